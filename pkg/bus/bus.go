// Package bus moves canonical messages between channel adapters and the
// conversation handler, and fans delivery events out to observers.
package bus

import (
	"context"
	"sync"

	"sunbird-adapter/pkg/message"
)

const defaultBufferSize = 100

// MessageBus holds one inbound and one outbound queue of canonical messages.
// After Close every publish fails and every consumer unblocks.
type MessageBus struct {
	inbound  chan message.Message
	outbound chan message.Message

	eventSubscribers      map[uint64]chan Event
	nextEventSubscriberID uint64

	done      chan struct{}
	closeOnce sync.Once

	mu sync.RWMutex
}

func NewMessageBus() *MessageBus {
	return NewMessageBusWithBuffer(defaultBufferSize)
}

// NewMessageBusWithBuffer sizes both queues; non-positive sizes use the default.
func NewMessageBusWithBuffer(size int) *MessageBus {
	if size <= 0 {
		size = defaultBufferSize
	}

	return &MessageBus{
		inbound:          make(chan message.Message, size),
		outbound:         make(chan message.Message, size),
		eventSubscribers: make(map[uint64]chan Event),
		done:             make(chan struct{}),
	}
}

// PublishInbound queues a converted inbound message for the conversation handler.
func (mb *MessageBus) PublishInbound(ctx context.Context, msg message.Message) bool {
	return mb.publish(ctx, mb.inbound, msg)
}

func (mb *MessageBus) ConsumeInbound(ctx context.Context) (message.Message, bool) {
	return mb.consume(ctx, mb.inbound)
}

// PublishOutbound queues a reply for delivery on msg.Channel.
func (mb *MessageBus) PublishOutbound(ctx context.Context, msg message.Message) bool {
	return mb.publish(ctx, mb.outbound, msg)
}

func (mb *MessageBus) SubscribeOutbound(ctx context.Context) (message.Message, bool) {
	return mb.consume(ctx, mb.outbound)
}

// publish refuses to enqueue once ctx or the bus is done, even if the queue has room.
func (mb *MessageBus) publish(ctx context.Context, queue chan<- message.Message, msg message.Message) bool {
	if ctx == nil {
		ctx = context.Background()
	}

	select {
	case <-ctx.Done():
		return false
	case <-mb.done:
		return false
	default:
	}

	select {
	case <-ctx.Done():
		return false
	case <-mb.done:
		return false
	case queue <- msg.Clone():
		return true
	}
}

func (mb *MessageBus) consume(ctx context.Context, queue <-chan message.Message) (message.Message, bool) {
	if ctx == nil {
		ctx = context.Background()
	}

	select {
	case <-ctx.Done():
		return message.Message{}, false
	case <-mb.done:
		return message.Message{}, false
	case msg := <-queue:
		return msg, true
	}
}

func (mb *MessageBus) Close() {
	mb.closeOnce.Do(func() {
		close(mb.done)

		mb.mu.Lock()
		for id, ch := range mb.eventSubscribers {
			close(ch)
			delete(mb.eventSubscribers, id)
		}
		mb.mu.Unlock()
	})
}
