package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"mermaid-checker-mcp/internal/hub"
	"mermaid-checker-mcp/internal/hub/redisrelay"
	"mermaid-checker-mcp/internal/server"
	"mermaid-checker-mcp/internal/stdio"
	"mermaid-checker-mcp/internal/telemetry"
)

func main() {
	// Configure logger. Stdout carries the pipe transport, so logs go to stderr.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}).
		With().
		Timestamp().
		Logger()

	cfg, err := server.LoadConfig()
	if err != nil {
		logger.Fatal().Err(err).Msg("Invalid configuration")
	}
	level, _ := zerolog.ParseLevel(cfg.LogLevel)
	zerolog.SetGlobalLevel(level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := telemetry.NewMetrics(reg)

	registry, err := server.NewToolRegistry(logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to build tool registry")
	}
	invoker := telemetry.NewToolRegistryWrapper(registry, metrics)

	switch cfg.Transport {
	case server.TransportStdio:
		framing, _ := stdio.ParseFraming(cfg.StdioFraming)
		srv := stdio.NewServer(invoker, logger, stdio.WithFraming(framing))
		if err := srv.Serve(ctx, stdio.Stdio()); err != nil {
			logger.Fatal().Err(err).Msg("Pipe server failed")
		}
	default:
		if err := serveHTTP(ctx, cfg, logger, reg, metrics, invoker); err != nil {
			logger.Fatal().Err(err).Msg("Server failed")
		}
	}
}

func serveHTTP(ctx context.Context, cfg server.Config, logger zerolog.Logger, reg *prometheus.Registry, metrics *telemetry.Metrics, invoker *telemetry.ToolRegistryWrapper) error {
	var wg sync.WaitGroup
	defer wg.Wait()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	h := hub.New(logger)
	metrics.WatchHub(h)

	deps := server.Deps{
		Invoker:  invoker,
		Hub:      h,
		Metrics:  metrics,
		Gatherer: reg,
	}

	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer client.Close()

		relay := redisrelay.New(redisrelay.Config{Client: client, Channel: cfg.RedisChannel}, h, logger)
		deps.Broadcaster = relay

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := relay.Run(ctx); err != nil {
				logger.Error().Err(err).Msg("Redis relay stopped")
			}
		}()
	}

	collector := telemetry.NewSystemMetricsCollector(metrics, logger, cfg.SystemMetricsInterval)
	wg.Add(1)
	go func() {
		defer wg.Done()
		collector.Run(ctx)
	}()

	handler, err := server.New(cfg, deps, logger)
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:    cfg.Addr,
		Handler: handler,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.Addr).Msg("Starting server")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info().Dur("timeout", cfg.ShutdownTimeout).Msg("Shutting down server")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancelShutdown()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
