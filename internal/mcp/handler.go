package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/elnormous/contenttype"
	"github.com/go-chi/render"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"mermaid-checker-mcp/internal/hub"
	"mermaid-checker-mcp/internal/jsonrpc"
)

const (
	// DefaultHeartbeatInterval keeps idle streams open through proxies.
	DefaultHeartbeatInterval = 25 * time.Second

	// MessagesPath is the POST endpoint advertised to stream clients.
	MessagesPath = "/messages"

	maxBodyBytes = 4 << 20
)

var (
	eventStreamMediaType  = contenttype.NewMediaType("text/event-stream")
	eventStreamMediaTypes = []contenttype.MediaType{eventStreamMediaType}
)

// RPC answers a single decoded request.
type RPC interface {
	Dispatch(ctx context.Context, req jsonrpc.Request) *jsonrpc.Response
}

// Broadcaster publishes an encoded response to every stream.
type Broadcaster interface {
	Broadcast(msg []byte)
}

// Subscriber attaches streams to the fan-out. *hub.Hub satisfies it.
type Subscriber interface {
	Subscribe(deliver func([]byte), opts ...hub.Option) (unsubscribe func())
}

// Handler serves the HTTP transport: POSTed requests are answered inline and
// every response is also broadcast to the open event streams.
type Handler struct {
	rpc         RPC
	subscriber  Subscriber
	broadcaster Broadcaster
	heartbeat   time.Duration
	now         func() time.Time
	logger      zerolog.Logger
}

// Option configures a Handler.
type Option func(*Handler)

// WithBroadcaster replaces the hub as the broadcast target, e.g. with a relay
// that also forwards to other instances.
func WithBroadcaster(b Broadcaster) Option {
	return func(h *Handler) {
		h.broadcaster = b
	}
}

// WithHeartbeatInterval sets the interval between heartbeat events.
func WithHeartbeatInterval(d time.Duration) Option {
	return func(h *Handler) {
		if d > 0 {
			h.heartbeat = d
		}
	}
}

// NewHandler creates the HTTP transport handler over rpc and the given hub.
func NewHandler(rpc RPC, h *hub.Hub, logger zerolog.Logger, opts ...Option) *Handler {
	handler := &Handler{
		rpc:         rpc,
		subscriber:  h,
		broadcaster: h,
		heartbeat:   DefaultHeartbeatInterval,
		now:         time.Now,
		logger:      logger.With().Str("component", "mcp_http").Logger(),
	}
	for _, opt := range opts {
		opt(handler)
	}
	return handler
}

// HandleMessages answers a POSTed request object or batch. Malformed bodies
// get a plain 400 rather than a JSON-RPC envelope.
func (h *Handler) HandleMessages(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.plainError(w, r, http.StatusRequestEntityTooLarge)
			return
		}
		h.plainError(w, r, http.StatusBadRequest)
		return
	}

	msgs, batch, err := jsonrpc.ParseBody(body)
	if err != nil {
		h.logger.Debug().
			Err(err).
			Int("body_bytes", len(body)).
			Msg("Rejected request body")
		h.plainError(w, r, http.StatusBadRequest)
		return
	}

	// Dispatched calls run to completion even if the caller goes away.
	ctx := context.WithoutCancel(r.Context())

	responses := make([]*jsonrpc.Response, 0, len(msgs))
	for _, raw := range msgs {
		req, id, rpcErr := jsonrpc.DecodeRequest(raw)

		var resp *jsonrpc.Response
		if rpcErr != nil {
			resp = jsonrpc.NewErrorResponse(id, rpcErr)
		} else {
			resp = h.rpc.Dispatch(ctx, req)
		}
		responses = append(responses, resp)
		h.broadcast(resp)
	}

	h.logger.Debug().
		Int("requests", len(msgs)).
		Bool("batch", batch).
		Str("session_id", r.URL.Query().Get("sessionId")).
		Msg("Handled messages")

	render.Status(r, http.StatusOK)
	if batch {
		render.JSON(w, r, responses)
		return
	}
	render.JSON(w, r, responses[0])
}

func (h *Handler) broadcast(resp *jsonrpc.Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		h.logger.Error().
			Err(err).
			Msg("Failed to encode response for broadcast")
		return
	}
	h.broadcaster.Broadcast(data)
}

func (h *Handler) plainError(w http.ResponseWriter, r *http.Request, status int) {
	render.Status(r, status)
	render.PlainText(w, r, http.StatusText(status))
}

type systemEvent struct {
	Type string `json:"type"`
	TS   int64  `json:"ts"`
}

// HandleSSE serves a long-lived event stream carrying every broadcast
// response until the client disconnects.
func (h *Handler) HandleSSE(w http.ResponseWriter, r *http.Request) {
	if _, _, err := contenttype.GetAcceptableMediaType(r, eventStreamMediaTypes); err != nil {
		h.plainError(w, r, http.StatusNotAcceptable)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported!", http.StatusInternalServerError)
		return
	}

	ctx := r.Context()
	streamID := uuid.NewString()
	logger := h.logger.With().Str("stream_id", streamID).Logger()

	queue := newStreamQueue()
	unsubscribe := h.subscriber.Subscribe(queue.push,
		hub.WithID(streamID),
		hub.WithClientInfo(hub.ClientInfo{RemoteAddr: r.RemoteAddr, UserAgent: r.UserAgent()}),
	)
	ticker := time.NewTicker(h.heartbeat)
	defer func() {
		ticker.Stop()
		unsubscribe()
		logger.Info().Msg("Stream closed")
	}()

	w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	endpoint := endpointURL(r, streamID)
	if err := writeSSEEvent(w, "endpoint", []byte(endpoint)); err != nil {
		return
	}
	if err := h.writeSystemEvent(w, "ready"); err != nil {
		return
	}
	if _, err := io.WriteString(w, ": keep-alive\n\n"); err != nil {
		return
	}
	flusher.Flush()

	logger.Info().
		Str("remote_addr", r.RemoteAddr).
		Str("endpoint", endpoint).
		Msg("Stream opened")

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := h.writeSystemEvent(w, "heartbeat"); err != nil {
				logger.Debug().Err(err).Msg("Heartbeat write failed")
				return
			}
		case <-queue.notify:
			for _, msg := range queue.drain() {
				if err := writeSSEEvent(w, "message", msg); err != nil {
					logger.Debug().Err(err).Msg("Message write failed")
					return
				}
			}
		}
		flusher.Flush()
	}
}

func (h *Handler) writeSystemEvent(w io.Writer, kind string) error {
	data, err := json.Marshal(systemEvent{Type: kind, TS: h.now().UnixMilli()})
	if err != nil {
		return err
	}
	return writeSSEEvent(w, "system", data)
}

// writeSSEEvent writes one event frame. payload must not contain newlines.
func writeSSEEvent(w io.Writer, event string, payload []byte) error {
	if _, err := fmt.Fprintf(w, "event: %s\ndata: ", event); err != nil {
		return fmt.Errorf("failed to write SSE event header: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("failed to write SSE payload: %w", err)
	}
	if _, err := io.WriteString(w, "\n\n"); err != nil {
		return fmt.Errorf("failed to write SSE frame terminator: %w", err)
	}
	return nil
}

func endpointURL(r *http.Request, streamID string) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto == "http" || proto == "https" {
		scheme = proto
	}
	u := url.URL{
		Scheme:   scheme,
		Host:     r.Host,
		Path:     MessagesPath,
		RawQuery: url.Values{"sessionId": {streamID}}.Encode(),
	}
	return u.String()
}
