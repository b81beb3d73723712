package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"sunbird-adapter/pkg/bus"
	"sunbird-adapter/pkg/channel"
	"sunbird-adapter/pkg/config"
	"sunbird-adapter/pkg/message"

	"github.com/stretchr/testify/require"
)

type scriptedRunner struct {
	name    string
	inbound []message.Message
	runErr  error

	mu      sync.Mutex
	replies []*message.Message
	done    chan struct{}
}

func (r *scriptedRunner) Name() string {
	return r.name
}

func (r *scriptedRunner) Run(ctx context.Context, handler channel.Handler) error {
	for _, inbound := range r.inbound {
		reply, err := handler(ctx, inbound)
		if err != nil {
			return err
		}

		r.mu.Lock()
		r.replies = append(r.replies, reply)
		r.mu.Unlock()
	}

	close(r.done)
	if r.runErr != nil {
		return r.runErr
	}

	<-ctx.Done()
	return nil
}

func (r *scriptedRunner) snapshot() []*message.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*message.Message(nil), r.replies...)
}

func echoHandler(_ context.Context, in message.Message) (*message.Message, error) {
	return &message.Message{
		Payload: message.Payload{
			Text:          "__You said__ " + in.Payload.Text,
			ButtonChoices: []message.ButtonChoice{{Text: "1 again"}, {Text: "2 stop"}},
		},
	}, nil
}

func TestGatewayServiceRunE2EWebhookToPortal(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mb := bus.NewMessageBus()
	t.Cleanup(mb.Close)
	events, unsubscribe := mb.SubscribeEvents(ctx, 8)
	defer unsubscribe()

	dispatcher := &stubDispatcher{}
	adapter := newPortalAdapter(t, dispatcher)
	port := freeTCPPort(t)
	svc := newTestService(t, Options{
		Gateway: config.GatewayConfig{Host: "127.0.0.1", Port: port},
		Bus:     mb,
		Handler: echoHandler,
		Webhook: adapter,
		Senders: []channel.Sender{adapter},
	})

	runErr := make(chan error, 1)
	go func() { runErr <- svc.Run(ctx) }()

	base := fmt.Sprintf("http://127.0.0.1:%d", port)
	require.Equal(t, http.StatusOK, waitHTTPStatus(t, base+"/readyz", 2*time.Second))

	resp, err := http.Post(base+"/sunbird/inbound", "application/json",
		strings.NewReader(`{"text":"hello","from":"student-1","messageId":"m-7","to":"prompt-3"}`))
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	require.Eventually(t, func() bool { return len(dispatcher.sent()) == 1 }, 2*time.Second, 10*time.Millisecond)

	sent := dispatcher.sent()[0]
	require.Equal(t, "prompt-3", sent.To)
	require.Empty(t, sent.MessageID)
	require.Equal(t, "You said hello", sent.Message.Title)
	require.Len(t, sent.Message.Choices, 2)
	require.Equal(t, "1", sent.Message.Choices[0].Key)
	require.Equal(t, "again", sent.Message.Choices[0].Text)

	var seen []bus.EventType
	require.Eventually(t, func() bool {
		for {
			select {
			case event := <-events:
				seen = append(seen, event.Type)
			default:
				return len(seen) >= 2
			}
		}
	}, 2*time.Second, 10*time.Millisecond)
	require.Equal(t, []bus.EventType{bus.EventMessageReceived, bus.EventMessageSent}, seen)

	cancel()
	select {
	case err := <-runErr:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for service run to exit")
	}
}

func TestGatewayServiceRunE2ERunnerHandlerObserved(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mb := bus.NewMessageBus()
	t.Cleanup(mb.Close)
	events, unsubscribe := mb.SubscribeEvents(ctx, 8)
	defer unsubscribe()

	runner := &scriptedRunner{
		name:    "telegram",
		inbound: []message.Message{{Channel: "telegram", Payload: message.Payload{Text: "ping"}}},
		done:    make(chan struct{}),
	}
	svc := newTestService(t, Options{
		Gateway: config.GatewayConfig{Host: "127.0.0.1", Port: freeTCPPort(t)},
		Bus:     mb,
		Handler: echoHandler,
		Runners: []channel.Runner{runner},
	})

	runErr := make(chan error, 1)
	go func() { runErr <- svc.Run(ctx) }()

	select {
	case <-runner.done:
	case <-time.After(2 * time.Second):
		t.Fatal("runner did not finish its script")
	}

	replies := runner.snapshot()
	require.Len(t, replies, 1)
	require.Equal(t, "__You said__ ping", replies[0].Payload.Text)

	select {
	case event := <-events:
		require.Equal(t, bus.EventMessageReceived, event.Type)
		require.Equal(t, "telegram", event.Channel)
	case <-time.After(time.Second):
		t.Fatal("expected message_received event")
	}

	cancel()
	select {
	case err := <-runErr:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for service run to exit")
	}
}

func TestGatewayServiceRunReturnsRunnerFailure(t *testing.T) {
	runner := &scriptedRunner{name: "telegram", runErr: errors.New("polling stopped"), done: make(chan struct{})}
	svc := newTestService(t, Options{
		Gateway: config.GatewayConfig{Host: "127.0.0.1", Port: freeTCPPort(t)},
		Runners: []channel.Runner{runner},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	err := svc.Run(ctx)
	require.ErrorContains(t, err, "run telegram channel")
	require.False(t, svc.isReady())
}

func waitHTTPStatus(t *testing.T, url string, timeout time.Duration) int {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for {
		response, err := http.Get(url)
		if err == nil {
			statusCode := response.StatusCode
			require.NoError(t, response.Body.Close())
			return statusCode
		}

		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s: %v", url, err)
		}

		time.Sleep(25 * time.Millisecond)
	}
}

func freeTCPPort(t *testing.T) int {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()

	addr, ok := listener.Addr().(*net.TCPAddr)
	require.True(t, ok)
	return addr.Port
}
