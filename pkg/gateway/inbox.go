package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"sunbird-adapter/pkg/channel"
	"sunbird-adapter/pkg/message"
	"sunbird-adapter/pkg/transport"
)

const defaultInboxTimeout = 30 * time.Second

// NewInboxHandler forwards each canonical inbound message to the platform inbox.
// A 200 response body is decoded as the reply; 202 and 204 mean no immediate
// reply. With an empty url the handler only logs and never replies.
func NewInboxHandler(url string, client *http.Client, log *slog.Logger) channel.Handler {
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "gateway.inbox")
	if client == nil {
		client = &http.Client{Timeout: defaultInboxTimeout}
	}

	url = strings.TrimSpace(url)
	if url == "" {
		return func(_ context.Context, msg message.Message) (*message.Message, error) {
			log.Info("Inbound message received", "channel", msg.Channel, "from", msg.From.UserID, "reply_id", msg.MessageID.ReplyID)
			return nil, nil
		}
	}

	return func(ctx context.Context, msg message.Message) (*message.Message, error) {
		const op = "forward to inbox"

		body, err := json.Marshal(msg)
		if err != nil {
			return nil, channel.Serialization(op, err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, channel.Transport(op, fmt.Errorf("build request: %w", err))
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		req.Header.Set(transport.HeaderRequestID, uuid.NewString())

		resp, err := client.Do(req)
		if err != nil {
			return nil, channel.Transport(op, err)
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(io.LimitReader(resp.Body, maxRequestBody))
		if err != nil {
			return nil, channel.Transport(op, fmt.Errorf("read response: %w", err))
		}

		switch resp.StatusCode {
		case http.StatusAccepted, http.StatusNoContent:
			return nil, nil
		case http.StatusOK:
		default:
			return nil, channel.Transportf(op, "unexpected status %d", resp.StatusCode)
		}

		if len(bytes.TrimSpace(raw)) == 0 {
			return nil, nil
		}

		var reply message.Message
		if err := json.Unmarshal(raw, &reply); err != nil {
			return nil, channel.Serialization("decode inbox reply", err)
		}
		log.Debug("Inbox replied", "channel", msg.Channel, "reply_id", msg.MessageID.ReplyID)
		return &reply, nil
	}
}
