package channel

import (
	"context"

	"sunbird-adapter/pkg/message"
)

// Handler is the conversation logic boundary: it receives one canonical
// inbound message and returns the reply to send, or nil for no reply.
type Handler func(context.Context, message.Message) (*message.Message, error)

// Converter turns one channel-native inbound payload into a canonical message.
type Converter[T any] interface {
	ConvertInbound(raw T) (message.Message, error)
}

// Result is the outcome of an asynchronous send.
type Result struct {
	Message message.Message
	Err     error
}

// Sender delivers canonical replies over one channel's transport.
//
// On success the returned message is a copy of the input carrying the
// channel-assigned id and StateSent. On failure the input is left unchanged.
type Sender interface {
	Name() string
	SendOutbound(ctx context.Context, msg message.Message) (message.Message, error)
	SendOutboundAsync(ctx context.Context, msg message.Message) <-chan Result
}

// Runner is a channel that pulls its own inbound traffic (for example long polling).
type Runner interface {
	Name() string
	Run(ctx context.Context, handler Handler) error
}

// SendAsync runs send on its own goroutine and delivers exactly one Result on
// the returned channel, which is closed afterwards.
func SendAsync(ctx context.Context, msg message.Message, send func(context.Context, message.Message) (message.Message, error)) <-chan Result {
	results := make(chan Result, 1)
	go func() {
		defer close(results)
		sent, err := send(ctx, msg)
		results <- Result{Message: sent, Err: err}
	}()
	return results
}
