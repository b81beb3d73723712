package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"sunbird-adapter/pkg/bus"
	"sunbird-adapter/pkg/channel"
	"sunbird-adapter/pkg/channel/sunbird"
	"sunbird-adapter/pkg/config"
	"sunbird-adapter/pkg/message"
	"sunbird-adapter/pkg/transport"

	"github.com/stretchr/testify/require"
)

type recordingSender struct {
	name string
	err  error

	mu   sync.Mutex
	sent []message.Message
}

func (s *recordingSender) Name() string {
	return s.name
}

func (s *recordingSender) SendOutbound(_ context.Context, msg message.Message) (message.Message, error) {
	if s.err != nil {
		return message.Message{}, s.err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, msg)
	return msg.Acknowledge("ack-" + msg.MessageID.ReplyID), nil
}

func (s *recordingSender) SendOutboundAsync(ctx context.Context, msg message.Message) <-chan channel.Result {
	return channel.SendAsync(ctx, msg, s.SendOutbound)
}

func (s *recordingSender) messages() []message.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]message.Message(nil), s.sent...)
}

type stubDispatcher struct {
	mu       sync.Mutex
	payloads []sunbird.OutboundMessage
	err      error
}

func (d *stubDispatcher) Dispatch(_ context.Context, _ string, payload any) (transport.Acknowledgement, error) {
	if d.err != nil {
		return transport.Acknowledgement{}, d.err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	out, _ := payload.(sunbird.OutboundMessage)
	d.payloads = append(d.payloads, out)
	return transport.Acknowledgement{ID: "portal-ack"}, nil
}

func (d *stubDispatcher) sent() []sunbird.OutboundMessage {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]sunbird.OutboundMessage(nil), d.payloads...)
}

func noReply(context.Context, message.Message) (*message.Message, error) {
	return nil, nil
}

func newTestService(t *testing.T, opts Options) *Service {
	t.Helper()

	if opts.Handler == nil {
		opts.Handler = noReply
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	svc, err := NewService(opts)
	require.NoError(t, err)
	return svc
}

func newPortalAdapter(t *testing.T, dispatcher sunbird.Dispatcher) *sunbird.Adapter {
	t.Helper()

	adapter, err := sunbird.New(dispatcher, sunbird.Options{
		Endpoint: "http://transport.local/adapterOutbound",
		Logger:   slog.New(slog.DiscardHandler),
		Now:      func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) },
	})
	require.NoError(t, err)
	return adapter
}

func TestNewServiceValidation(t *testing.T) {
	_, err := NewService(Options{Senders: []channel.Sender{&recordingSender{name: "web"}}})
	require.Error(t, err)

	_, err = NewService(Options{Handler: noReply})
	require.Error(t, err)

	_, err = NewService(Options{
		Handler: noReply,
		Senders: []channel.Sender{&recordingSender{name: "web"}, &recordingSender{name: "web"}},
	})
	require.ErrorContains(t, err, "duplicate sender")
}

func TestInboundWebhookStatusCodes(t *testing.T) {
	mb := bus.NewMessageBus()
	t.Cleanup(mb.Close)

	adapter := newPortalAdapter(t, &stubDispatcher{})
	svc := newTestService(t, Options{Bus: mb, Webhook: adapter, Senders: []channel.Sender{adapter}})
	server := httptest.NewServer(svc.Handler())
	defer server.Close()

	tests := []struct {
		name string
		body string
		want int
	}{
		{name: "accepted", body: `{"text":"hi","from":"u1","messageId":"m1","to":"r1"}`, want: http.StatusAccepted},
		{name: "malformed json", body: `{"text":`, want: http.StatusBadRequest},
		{name: "missing fields", body: `{"text":"hi"}`, want: http.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Post(server.URL+"/sunbird/inbound", "application/json", strings.NewReader(tt.body))
			require.NoError(t, err)
			defer resp.Body.Close()
			require.Equal(t, tt.want, resp.StatusCode)
		})
	}

	queued, ok := mb.ConsumeInbound(context.Background())
	require.True(t, ok)
	require.Equal(t, "u1", queued.From.UserID)
	require.Equal(t, message.MessageID{ChannelMessageID: "m1", ReplyID: "r1"}, queued.MessageID)
	require.Equal(t, message.StateReplied, queued.State)
}

func TestInboundRouteUsesConfiguredPath(t *testing.T) {
	adapter := newPortalAdapter(t, &stubDispatcher{})
	svc := newTestService(t, Options{
		Gateway: config.GatewayConfig{InboundPath: "portal/hook"},
		Webhook: adapter,
		Senders: []channel.Sender{adapter},
	})
	server := httptest.NewServer(svc.Handler())
	defer server.Close()

	body := `{"text":"hi","from":"u1","messageId":"m1","to":"r1"}`
	resp, err := http.Post(server.URL+"/portal/hook", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	resp, err = http.Post(server.URL+"/sunbird/inbound", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestOutboundEndpoint(t *testing.T) {
	mb := bus.NewMessageBus()
	t.Cleanup(mb.Close)
	events, unsubscribe := mb.SubscribeEvents(context.Background(), 8)
	defer unsubscribe()

	dispatcher := &stubDispatcher{}
	failing := &recordingSender{name: "broken", err: channel.Transportf("send", "unexpected status 503")}
	svc := newTestService(t, Options{
		Bus:     mb,
		Senders: []channel.Sender{newPortalAdapter(t, dispatcher), failing},
	})
	server := httptest.NewServer(svc.Handler())
	defer server.Close()

	post := func(msg message.Message) *http.Response {
		t.Helper()
		body, err := json.Marshal(msg)
		require.NoError(t, err)
		resp, err := http.Post(server.URL+"/outbound", "application/json", bytes.NewReader(body))
		require.NoError(t, err)
		return resp
	}

	reply := message.Message{
		Channel:   sunbird.ChannelName,
		MessageID: message.MessageID{ChannelMessageID: "m1", ReplyID: "r1"},
		Payload: message.Payload{
			Text:          "__Pick__\n\none",
			ButtonChoices: []message.ButtonChoice{{Text: "A first"}},
		},
	}

	resp := post(reply)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var acked message.Message
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&acked))
	require.Equal(t, "portal-ack", acked.MessageID.ChannelMessageID)
	require.Equal(t, "r1", acked.MessageID.ReplyID)
	require.Equal(t, message.StateSent, acked.State)
	require.Equal(t, []message.ButtonChoice{{Key: "A", Text: "first"}}, acked.Payload.ButtonChoices)

	sent := dispatcher.sent()
	require.Len(t, sent, 1)
	require.Equal(t, "Pickone", sent[0].Message.Title)

	got := <-events
	require.Equal(t, bus.EventMessageSent, got.Type)

	reply.Channel = "broken"
	failed := post(reply)
	failed.Body.Close()
	require.Equal(t, http.StatusBadGateway, failed.StatusCode)

	got = <-events
	require.Equal(t, bus.EventSendFailed, got.Type)
	require.Equal(t, string(channel.KindTransport), got.ErrorKind)

	reply.Channel = "carrier-pigeon"
	unknown := post(reply)
	unknown.Body.Close()
	require.Equal(t, http.StatusNotFound, unknown.StatusCode)

	resp, err := http.Post(server.URL+"/outbound", "application/json", strings.NewReader("not json"))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestStatusForMapsErrorKinds(t *testing.T) {
	require.Equal(t, http.StatusUnprocessableEntity, statusFor(channel.Validation("op", "bad")))
	require.Equal(t, http.StatusBadRequest, statusFor(channel.Serialization("op", errors.New("bad"))))
	require.Equal(t, http.StatusBadGateway, statusFor(channel.Transport("op", errors.New("down"))))
	require.Equal(t, http.StatusInternalServerError, statusFor(errors.New("plain")))
}

func TestAddressReplyFillsRoutingFromInbound(t *testing.T) {
	inbound := message.Message{
		From:      message.Address{UserID: "u1"},
		To:        message.Address{UserID: "admin"},
		MessageID: message.MessageID{ChannelMessageID: "m1", ReplyID: "r1"},
		Channel:   "web",
		Provider:  "sunbird",
	}

	out := addressReply(inbound, message.Message{Payload: message.Payload{Text: "hello"}})
	require.Equal(t, "web", out.Channel)
	require.Equal(t, "sunbird", out.Provider)
	require.Equal(t, "r1", out.MessageID.ReplyID)
	require.Empty(t, out.MessageID.ChannelMessageID)
	require.Equal(t, "u1", out.To.UserID)
	require.Equal(t, "admin", out.From.UserID)

	explicit := addressReply(inbound, message.Message{Channel: "telegram", MessageID: message.MessageID{ReplyID: "chat-9"}})
	require.Equal(t, "telegram", explicit.Channel)
	require.Equal(t, "chat-9", explicit.MessageID.ReplyID)
}

func TestIsReady(t *testing.T) {
	svc := &Service{
		senders:      map[string]channel.Sender{},
		runnerStates: map[string]runnerState{"telegram": {Running: true}},
	}
	require.True(t, svc.isReady())

	svc.runnerStates["telegram"] = runnerState{Failed: true, Error: "boom"}
	require.False(t, svc.isReady())

	empty := &Service{senders: map[string]channel.Sender{}, runnerStates: map[string]runnerState{}}
	require.False(t, empty.isReady())
}
