package bus

import (
	"context"
	"sync"
	"time"

	"sunbird-adapter/pkg/message"
)

type EventType string

const (
	EventMessageReceived EventType = "message_received"
	EventMessageSent     EventType = "message_sent"
	EventSendFailed      EventType = "send_failed"
)

// Event reports one step in a message's life. ErrorKind carries the channel
// error kind (validation, serialization, transport) for failures.
type Event struct {
	Type             EventType     `json:"type"`
	At               time.Time     `json:"at"`
	Channel          string        `json:"channel,omitempty"`
	ChannelMessageID string        `json:"channel_message_id,omitempty"`
	ReplyID          string        `json:"reply_id,omitempty"`
	State            message.State `json:"state,omitempty"`
	ErrorKind        string        `json:"error_kind,omitempty"`
	Error            string        `json:"error,omitempty"`
}

// EventFor fills the message-derived fields of an event.
func EventFor(eventType EventType, msg message.Message) Event {
	return Event{
		Type:             eventType,
		Channel:          msg.Channel,
		ChannelMessageID: msg.MessageID.ChannelMessageID,
		ReplyID:          msg.MessageID.ReplyID,
		State:            msg.State,
	}
}

// PublishEvent delivers event to every subscriber without blocking; a full
// subscriber buffer drops the event for that subscriber.
func (mb *MessageBus) PublishEvent(ctx context.Context, event Event) bool {
	if ctx == nil {
		ctx = context.Background()
	}

	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}

	select {
	case <-ctx.Done():
		return false
	case <-mb.done:
		return false
	default:
	}

	mb.mu.RLock()
	defer mb.mu.RUnlock()

	for _, ch := range mb.eventSubscribers {
		select {
		case ch <- event:
		default:
		}
	}

	return true
}

// SubscribeEvents registers a buffered subscriber. The channel closes on
// unsubscribe, when ctx ends, or when the bus closes.
func (mb *MessageBus) SubscribeEvents(ctx context.Context, buffer int) (<-chan Event, func()) {
	if ctx == nil {
		ctx = context.Background()
	}
	if buffer <= 0 {
		buffer = defaultBufferSize
	}

	ch := make(chan Event, buffer)

	mb.mu.Lock()
	select {
	case <-mb.done:
		mb.mu.Unlock()
		close(ch)
		return ch, func() {}
	default:
	}

	id := mb.nextEventSubscriberID
	mb.nextEventSubscriberID++
	mb.eventSubscribers[id] = ch
	mb.mu.Unlock()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			mb.mu.Lock()
			if eventCh, ok := mb.eventSubscribers[id]; ok {
				delete(mb.eventSubscribers, id)
				close(eventCh)
			}
			mb.mu.Unlock()
		})
	}

	go func() {
		select {
		case <-ctx.Done():
			unsubscribe()
		case <-mb.done:
			unsubscribe()
		}
	}()

	return ch, unsubscribe
}
