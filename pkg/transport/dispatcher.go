// Package transport posts channel wire messages to their delivery endpoints.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"sunbird-adapter/pkg/channel"

	"github.com/google/uuid"
)

const (
	defaultTimeout  = 30 * time.Second
	maxResponseBody = 1 << 20
	bodySnippetSize = 256

	// HeaderRequestID carries a per-dispatch id for tracing on the receiving side.
	HeaderRequestID = "X-Request-ID"
)

// Acknowledgement is the transport's confirmation of a send.
type Acknowledgement struct {
	ID string `json:"id"`
}

// Options configures an HTTPDispatcher.
type Options struct {
	Client     *http.Client
	Authorizer Authorizer
	Timeout    time.Duration
	Logger     *slog.Logger
}

// HTTPDispatcher sends one JSON POST per dispatch. It keeps no per-call state
// and is safe for concurrent use.
type HTTPDispatcher struct {
	client     *http.Client
	authorizer Authorizer
	log        *slog.Logger
}

func NewHTTPDispatcher(opts Options) *HTTPDispatcher {
	client := opts.Client
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		client = &http.Client{Timeout: timeout}
	}

	authorizer := opts.Authorizer
	if authorizer == nil {
		authorizer = NoAuth{}
	}

	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	return &HTTPDispatcher{
		client:     client,
		authorizer: authorizer,
		log:        log.With("component", "transport.http"),
	}
}

// Dispatch serializes payload, posts it to endpoint and decodes the acknowledgement.
// A repeated call produces a repeated delivery downstream.
func (d *HTTPDispatcher) Dispatch(ctx context.Context, endpoint string, payload any) (Acknowledgement, error) {
	const op = "dispatch"

	body, err := json.Marshal(payload)
	if err != nil {
		return Acknowledgement{}, channel.Serialization(op, fmt.Errorf("encode wire message: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return Acknowledgement{}, channel.Transport(op, fmt.Errorf("build request: %w", err))
	}

	requestID := uuid.NewString()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set(HeaderRequestID, requestID)

	if err := d.authorizer.Authorize(ctx, req); err != nil {
		return Acknowledgement{}, channel.Transport(op, fmt.Errorf("authorize request: %w", err))
	}

	started := time.Now()
	resp, err := d.client.Do(req)
	if err != nil {
		return Acknowledgement{}, channel.Transport(op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return Acknowledgement{}, channel.Transport(op, fmt.Errorf("read response: %w", err))
	}

	d.log.Debug("Dispatched wire message", "endpoint", endpoint, "request_id", requestID, "status", resp.StatusCode, "elapsed", time.Since(started))

	if resp.StatusCode == http.StatusUnauthorized {
		if inv, ok := d.authorizer.(Invalidator); ok {
			inv.Invalidate()
			d.log.Warn("Endpoint rejected credentials, cached token dropped", "endpoint", endpoint, "request_id", requestID)
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Acknowledgement{}, channel.Transportf(op, "unexpected status %d: %s", resp.StatusCode, snippet(raw))
	}

	var ack Acknowledgement
	if err := json.Unmarshal(raw, &ack); err != nil {
		return Acknowledgement{}, channel.Transport(op, channel.Serialization("decode acknowledgement", err))
	}
	if strings.TrimSpace(ack.ID) == "" {
		return Acknowledgement{}, channel.Transport(op, errors.New("acknowledgement is missing id"))
	}

	return ack, nil
}

func snippet(body []byte) string {
	text := strings.TrimSpace(string(body))
	if len(text) <= bodySnippetSize {
		return text
	}
	return text[:bodySnippetSize] + "..."
}
