package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/render"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"mermaid-checker-mcp/internal/hub"
	"mermaid-checker-mcp/internal/mcp"
	"mermaid-checker-mcp/internal/telemetry"
)

var landing = strings.Join([]string{
	mcp.ServerName + " endpoints:",
	"- GET  /healthz        -> 200 ok",
	"- GET  /sse            -> Server-Sent Events stream",
	`- POST /messages       -> JSON-RPC 2.0 {method:"initialize"|"ping"|"tools/list"|"tools/call"}`,
	"- GET  /metrics        -> Prometheus metrics",
	"- GET  /streams/stats  -> open stream statistics",
}, "\n")

// Deps are the collaborators the HTTP transport is built from.
type Deps struct {
	// Invoker runs tools. Required.
	Invoker mcp.Invoker
	// Hub carries responses to open streams. Required.
	Hub *hub.Hub
	// Broadcaster replaces Hub as the broadcast target, e.g. with a relay.
	Broadcaster mcp.Broadcaster
	// Metrics enables instrumentation when set.
	Metrics *telemetry.Metrics
	// Gatherer serves /metrics when set.
	Gatherer prometheus.Gatherer
}

// New creates a new HTTP handler with the given configuration.
func New(cfg Config, deps Deps, logger zerolog.Logger) (http.Handler, error) {
	if deps.Invoker == nil {
		return nil, errors.New("server: tool invoker is required")
	}
	if deps.Hub == nil {
		return nil, errors.New("server: hub is required")
	}

	var rpc mcp.RPC = mcp.NewDispatcher(deps.Invoker, logger)
	if deps.Metrics != nil {
		rpc = telemetry.NewDispatcherWrapper(rpc, deps.Metrics)
	}

	opts := []mcp.Option{mcp.WithHeartbeatInterval(cfg.HeartbeatInterval)}
	if deps.Broadcaster != nil {
		opts = append(opts, mcp.WithBroadcaster(deps.Broadcaster))
	}
	mcpHandler := mcp.NewHandler(rpc, deps.Hub, logger, opts...)

	descriptors := deps.Invoker.List()
	names := make([]string, len(descriptors))
	for i, d := range descriptors {
		names[i] = d.Name
	}
	logger.Info().
		Int("count", len(names)).
		Strs("tools", names).
		Msg("Tools registered")

	// Create router
	r := chi.NewRouter()

	// Add middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)
	if deps.Metrics != nil {
		r.Use(telemetry.HTTPMetricsMiddleware(deps.Metrics))
	}

	// Enable CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Last-Event-ID", "Mcp-Session-Id"},
		ExposedHeaders:   []string{"Content-Type", "Cache-Control", "Connection"},
		AllowCredentials: false,
		MaxAge:           300, // Maximum value not ignored by any of major browsers
	}))

	// Add routes
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		render.PlainText(w, r, "OK")
	})
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		render.PlainText(w, r, "ok")
	})

	r.Get("/sse", mcpHandler.HandleSSE)
	r.Post(mcp.MessagesPath, mcpHandler.HandleMessages)
	r.Post("/", mcpHandler.HandleMessages)

	r.Get("/streams/stats", func(w http.ResponseWriter, r *http.Request) {
		render.JSON(w, r, deps.Hub.Stats())
	})

	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	// Anything else gets the usage text.
	r.Get("/", serveLanding)
	r.NotFound(serveLanding)
	r.MethodNotAllowed(serveLanding)

	return r, nil
}

func serveLanding(w http.ResponseWriter, r *http.Request) {
	render.PlainText(w, r, landing)
}

// requestLogger logs one line per request once it completes.
func requestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	logger = logger.With().Str("component", "http").Logger()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			defer func() {
				logger.Info().
					Str("request_id", middleware.GetReqID(r.Context())).
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Int("status", ww.Status()).
					Int("bytes", ww.BytesWritten()).
					Dur("duration", time.Since(start)).
					Msg("Request handled")
			}()

			next.ServeHTTP(ww, r)
		})
	}
}
