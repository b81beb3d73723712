// Package sunbird adapts the Sunbird web portal channel to canonical messages.
package sunbird

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"sunbird-adapter/pkg/channel"
	"sunbird-adapter/pkg/message"
)

const (
	ChannelName  = "web"
	ProviderName = "sunbird"

	// DefaultAdminUserID receives every inbound portal message.
	DefaultAdminUserID = "admin"

	messagePreviewLimit = 240
)

// Options configures an Adapter.
type Options struct {
	// Endpoint is the transport URL outbound messages are posted to.
	Endpoint    string
	AdminUserID string
	Logger      *slog.Logger
	// Now overrides the timestamp clock, mainly for tests.
	Now func() time.Time
}

// Adapter converts portal webhooks into canonical messages and sends
// canonical replies back through the injected Dispatcher.
type Adapter struct {
	dispatcher Dispatcher
	endpoint   string
	admin      string
	now        func() time.Time
	log        *slog.Logger
}

var (
	_ channel.Sender                    = (*Adapter)(nil)
	_ channel.Converter[InboundMessage] = (*Adapter)(nil)
)

func New(dispatcher Dispatcher, opts Options) (*Adapter, error) {
	if dispatcher == nil {
		return nil, errors.New("dispatcher is required")
	}
	endpoint := strings.TrimSpace(opts.Endpoint)
	if endpoint == "" {
		return nil, errors.New("channels.sunbird.outbound_url is required")
	}

	admin := strings.TrimSpace(opts.AdminUserID)
	if admin == "" {
		admin = DefaultAdminUserID
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	return &Adapter{
		dispatcher: dispatcher,
		endpoint:   endpoint,
		admin:      admin,
		now:        now,
		log:        log.With("component", "channel.sunbird"),
	}, nil
}

func (a *Adapter) Name() string {
	return ChannelName
}

// ConvertInbound builds the canonical message for one portal webhook payload.
// Every inbound message is treated as a reply to an earlier outbound prompt.
func (a *Adapter) ConvertInbound(raw InboundMessage) (message.Message, error) {
	if err := raw.Validate(); err != nil {
		return message.Message{}, err
	}

	msg := message.Message{
		From: message.Address{UserID: raw.From},
		To:   message.Address{UserID: a.admin},
		MessageID: message.MessageID{
			ChannelMessageID: raw.MessageID,
			ReplyID:          raw.To,
		},
		State:     message.StateReplied,
		Type:      message.TypeText,
		Channel:   ChannelName,
		Provider:  ProviderName,
		Timestamp: a.now(),
		Payload:   message.Payload{Text: raw.Text},
	}

	a.log.Info("Converted inbound message", "from", raw.From, "message_id", raw.MessageID, "reply_id", raw.To, "content", previewText(raw.Text))
	return msg, nil
}

// SendOutbound posts msg to the portal and blocks until it is acknowledged.
func (a *Adapter) SendOutbound(ctx context.Context, msg message.Message) (message.Message, error) {
	wire, payload := BuildOutbound(msg)

	a.log.Info("Sending message", "reply_id", wire.To, "choices", len(wire.Message.Choices), "content", previewText(wire.Message.Title))

	ack, err := a.dispatcher.Dispatch(ctx, a.endpoint, wire)
	if err != nil {
		a.log.Debug("Failed to send message", "reply_id", wire.To, "error", err)
		if channel.KindOf(err) == "" {
			err = channel.Transport("send outbound", err)
		}
		return message.Message{}, fmt.Errorf("send %s message: %w", ChannelName, err)
	}

	sent := msg.Clone()
	sent.Payload = payload
	sent = sent.Acknowledge(ack.ID)

	a.log.Info("Message acknowledged", "reply_id", wire.To, "channel_message_id", ack.ID)
	return sent, nil
}

// SendOutboundAsync sends msg on its own goroutine; see channel.SendAsync.
func (a *Adapter) SendOutboundAsync(ctx context.Context, msg message.Message) <-chan channel.Result {
	return channel.SendAsync(ctx, msg.Clone(), a.SendOutbound)
}

// previewText returns a bounded log-safe preview of message text.
func previewText(text string) string {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) <= messagePreviewLimit {
		return trimmed
	}
	runes := []rune(trimmed)
	if len(runes) <= messagePreviewLimit {
		return trimmed
	}
	return string(runes[:messagePreviewLimit]) + "..."
}
