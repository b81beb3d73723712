// Package gateway hosts the webhook endpoints and moves canonical messages
// between channels and the conversation handler.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"sunbird-adapter/pkg/bus"
	"sunbird-adapter/pkg/channel"
	"sunbird-adapter/pkg/channel/sunbird"
	"sunbird-adapter/pkg/config"
	"sunbird-adapter/pkg/message"
)

const (
	defaultHost        = "0.0.0.0"
	defaultPort        = 8090
	defaultInboundPath = "/sunbird/inbound"
	maxRequestBody     = 1 << 20
	shutdownTimeout    = 5 * time.Second
)

// Options wires a Service. Webhook may be nil when the portal channel is disabled.
type Options struct {
	Gateway config.GatewayConfig
	Bus     *bus.MessageBus
	Handler channel.Handler
	Webhook channel.Converter[sunbird.InboundMessage]
	Senders []channel.Sender
	Runners []channel.Runner
	Logger  *slog.Logger
}

// Service owns the HTTP server plus the inbound and outbound bus loops.
type Service struct {
	cfg     config.GatewayConfig
	bus     *bus.MessageBus
	handler channel.Handler
	webhook channel.Converter[sunbird.InboundMessage]
	senders map[string]channel.Sender
	runners []channel.Runner
	log     *slog.Logger

	mu           sync.RWMutex
	startedAt    time.Time
	runnerStates map[string]runnerState
}

type runnerState struct {
	Running bool   `json:"running"`
	Failed  bool   `json:"failed,omitempty"`
	Error   string `json:"error,omitempty"`
}

type statusResponse struct {
	Status        string                 `json:"status"`
	UptimeSeconds int64                  `json:"uptime_seconds"`
	Senders       []string               `json:"senders"`
	Runners       map[string]runnerState `json:"runners,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

type acceptedResponse struct {
	Status    string            `json:"status"`
	MessageID message.MessageID `json:"messageId"`
}

func NewService(opts Options) (*Service, error) {
	if opts.Handler == nil {
		return nil, errors.New("conversation handler is required")
	}
	if len(opts.Senders) == 0 && len(opts.Runners) == 0 {
		return nil, errors.New("at least one channel is required")
	}

	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	mb := opts.Bus
	if mb == nil {
		mb = bus.NewMessageBus()
	}

	senders := make(map[string]channel.Sender, len(opts.Senders))
	for _, sender := range opts.Senders {
		if _, dup := senders[sender.Name()]; dup {
			return nil, fmt.Errorf("duplicate sender for channel %q", sender.Name())
		}
		senders[sender.Name()] = sender
	}

	runnerStates := make(map[string]runnerState, len(opts.Runners))
	for _, runner := range opts.Runners {
		runnerStates[runner.Name()] = runnerState{}
	}

	return &Service{
		cfg:          opts.Gateway,
		bus:          mb,
		handler:      opts.Handler,
		webhook:      opts.Webhook,
		senders:      senders,
		runners:      opts.Runners,
		log:          log.With("component", "gateway.service"),
		runnerStates: runnerStates,
	}, nil
}

// Run serves HTTP and drives the bus loops until ctx ends or a component fails.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	s.startedAt = time.Now().UTC()
	s.mu.Unlock()

	errCh := make(chan error, len(s.runners)+1)
	go s.serveHTTP(ctx, errCh)

	var loops sync.WaitGroup
	loops.Add(2)
	go func() {
		defer loops.Done()
		s.inboundLoop(ctx)
	}()
	go func() {
		defer loops.Done()
		s.outboundLoop(ctx)
	}()

	for _, runner := range s.runners {
		s.setRunnerState(runner.Name(), runnerState{Running: true})

		go func() {
			err := runner.Run(ctx, s.observe(runner.Name(), s.handler))
			failed := err != nil && !errors.Is(err, context.Canceled)
			s.setRunnerState(runner.Name(), runnerState{Failed: failed, Error: errorString(err)})
			if failed {
				errCh <- fmt.Errorf("run %s channel: %w", runner.Name(), err)
			}
		}()
	}

	var err error
	select {
	case <-ctx.Done():
	case err = <-errCh:
	}

	cancel()
	loops.Wait()
	return err
}

// Handler exposes the gateway routes.
func (s *Service) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("POST /outbound", s.handleOutbound)
	if s.webhook != nil {
		mux.HandleFunc("POST "+s.inboundPath(), s.handleInbound)
	}
	return mux
}

func (s *Service) serveHTTP(ctx context.Context, errCh chan<- error) {
	host := strings.TrimSpace(s.cfg.Host)
	if host == "" {
		host = defaultHost
	}
	port := s.cfg.Port
	if port <= 0 {
		port = defaultPort
	}

	addr := host + ":" + strconv.Itoa(port)
	server := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.log.Info("Gateway server started", "address", addr, "inbound_path", s.inboundPath())
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		errCh <- fmt.Errorf("start gateway server: %w", err)
	}
}

func (s *Service) inboundPath() string {
	path := strings.TrimSpace(s.cfg.InboundPath)
	if path == "" {
		return defaultInboundPath
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return path
}

// handleInbound accepts one portal webhook and queues it for the conversation handler.
func (s *Service) handleInbound(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, channel.Serialization("read inbound body", err))
		return
	}

	raw, err := sunbird.ParseInbound(body)
	if err != nil {
		s.respondError(w, statusFor(err), err)
		return
	}

	msg, err := s.webhook.ConvertInbound(raw)
	if err != nil {
		s.respondError(w, statusFor(err), err)
		return
	}

	s.bus.PublishEvent(r.Context(), bus.EventFor(bus.EventMessageReceived, msg))
	if !s.bus.PublishInbound(r.Context(), msg) {
		s.respondError(w, http.StatusServiceUnavailable, errors.New("gateway is shutting down"))
		return
	}

	s.respondJSON(w, http.StatusAccepted, acceptedResponse{Status: "accepted", MessageID: msg.MessageID})
}

// handleOutbound sends one canonical reply synchronously and returns the acknowledged copy.
func (s *Service) handleOutbound(w http.ResponseWriter, r *http.Request) {
	var msg message.Message
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody))
	if err := decoder.Decode(&msg); err != nil {
		s.respondError(w, http.StatusBadRequest, channel.Serialization("decode outbound message", err))
		return
	}

	sent, err := s.deliver(r.Context(), msg)
	if err != nil {
		if errors.Is(err, errUnknownChannel) {
			s.respondError(w, http.StatusNotFound, err)
			return
		}
		s.respondError(w, statusFor(err), err)
		return
	}

	s.respondJSON(w, http.StatusOK, sent)
}

var errUnknownChannel = errors.New("no sender registered for channel")

// deliver routes msg to the sender named by msg.Channel and reports the outcome as an event.
func (s *Service) deliver(ctx context.Context, msg message.Message) (message.Message, error) {
	sender, ok := s.senders[msg.Channel]
	if !ok {
		err := fmt.Errorf("%w %q", errUnknownChannel, msg.Channel)
		s.publishFailure(ctx, msg, err)
		return message.Message{}, err
	}

	sent, err := sender.SendOutbound(ctx, msg)
	if err != nil {
		s.log.Error("Failed to send message", "channel", msg.Channel, "reply_id", msg.MessageID.ReplyID, "error", err)
		s.publishFailure(ctx, msg, err)
		return message.Message{}, err
	}

	s.log.Info("Message sent", "channel", sent.Channel, "channel_message_id", sent.MessageID.ChannelMessageID)
	s.bus.PublishEvent(ctx, bus.EventFor(bus.EventMessageSent, sent))
	return sent, nil
}

func (s *Service) publishFailure(ctx context.Context, msg message.Message, err error) {
	event := bus.EventFor(bus.EventSendFailed, msg)
	event.Error = err.Error()
	if kind := channel.KindOf(err); kind != "" {
		event.ErrorKind = string(kind)
	}
	s.bus.PublishEvent(ctx, event)
}

// inboundLoop hands queued inbound messages to the conversation handler and
// queues any reply for delivery.
func (s *Service) inboundLoop(ctx context.Context) {
	for {
		inbound, ok := s.bus.ConsumeInbound(ctx)
		if !ok {
			return
		}

		reply, err := s.handler(ctx, inbound)
		if err != nil {
			s.log.Error("Conversation handler failed", "channel", inbound.Channel, "reply_id", inbound.MessageID.ReplyID, "error", err)
			continue
		}
		if reply == nil {
			continue
		}

		out := addressReply(inbound, *reply)
		if !s.bus.PublishOutbound(ctx, out) {
			return
		}
	}
}

func (s *Service) outboundLoop(ctx context.Context) {
	for {
		msg, ok := s.bus.SubscribeOutbound(ctx)
		if !ok {
			return
		}
		_, _ = s.deliver(ctx, msg)
	}
}

// observe wraps a runner's handler so its inbound traffic shows up as events.
func (s *Service) observe(name string, handler channel.Handler) channel.Handler {
	return func(ctx context.Context, msg message.Message) (*message.Message, error) {
		s.bus.PublishEvent(ctx, bus.EventFor(bus.EventMessageReceived, msg))
		reply, err := handler(ctx, msg)
		if err != nil {
			s.log.Error("Conversation handler failed", "channel", name, "error", err)
		}
		return reply, err
	}
}

// addressReply fills routing fields the handler left empty from the inbound message.
func addressReply(inbound message.Message, reply message.Message) message.Message {
	out := reply.Clone()
	if out.Channel == "" {
		out.Channel = inbound.Channel
	}
	if out.Provider == "" {
		out.Provider = inbound.Provider
	}
	if out.MessageID.ReplyID == "" {
		out.MessageID.ReplyID = inbound.MessageID.ReplyID
	}
	if out.To.UserID == "" {
		out.To = inbound.From
	}
	if out.From.UserID == "" {
		out.From = inbound.To
	}
	return out
}

func statusFor(err error) int {
	switch channel.KindOf(err) {
	case channel.KindValidation:
		return http.StatusUnprocessableEntity
	case channel.KindSerialization:
		return http.StatusBadRequest
	case channel.KindTransport:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Service) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.respondJSON(w, http.StatusOK, s.currentStatus("ok"))
}

func (s *Service) handleReady(w http.ResponseWriter, _ *http.Request) {
	if !s.isReady() {
		s.respondJSON(w, http.StatusServiceUnavailable, s.currentStatus("not_ready"))
		return
	}
	s.respondJSON(w, http.StatusOK, s.currentStatus("ready"))
}

func (s *Service) respondError(w http.ResponseWriter, statusCode int, err error) {
	s.log.Debug("Request rejected", "status", statusCode, "error", err)
	s.respondJSON(w, statusCode, errorResponse{Error: err.Error(), Kind: string(channel.KindOf(err))})
}

func (s *Service) respondJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log.Error("Failed to write response", "error", err)
	}
}

func (s *Service) currentStatus(status string) statusResponse {
	s.mu.RLock()
	defer s.mu.RUnlock()

	uptime := int64(0)
	if !s.startedAt.IsZero() {
		uptime = int64(time.Since(s.startedAt).Seconds())
	}

	senders := make([]string, 0, len(s.senders))
	for name := range s.senders {
		senders = append(senders, name)
	}

	runners := make(map[string]runnerState, len(s.runnerStates))
	for name, state := range s.runnerStates {
		runners[name] = state
	}

	return statusResponse{
		Status:        status,
		UptimeSeconds: uptime,
		Senders:       senders,
		Runners:       runners,
	}
}

// isReady reports whether a channel is registered and no runner has failed.
func (s *Service) isReady() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.senders) == 0 && len(s.runnerStates) == 0 {
		return false
	}
	for _, state := range s.runnerStates {
		if state.Failed {
			return false
		}
	}
	return true
}

func (s *Service) setRunnerState(name string, state runnerState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runnerStates[name] = state
}

func errorString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
