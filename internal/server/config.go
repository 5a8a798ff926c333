package server

import (
	"errors"
	"fmt"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/rs/zerolog"

	"mermaid-checker-mcp/internal/stdio"
)

// Transports the binary can serve.
const (
	TransportHTTP  = "http"
	TransportStdio = "stdio"
)

// Config contains the server configuration. Every field can be set from the
// environment; the tag defaults match DefaultConfig.
type Config struct {
	// Transport is "http" or "stdio". ENV: MCP_TRANSPORT
	Transport string `env:"MCP_TRANSPORT,default=http"`
	// Addr is the HTTP listen address. ENV: MCP_ADDR
	Addr string `env:"MCP_ADDR,default=:8787"`
	// LogLevel is a zerolog level name. ENV: MCP_LOG_LEVEL
	LogLevel string `env:"MCP_LOG_LEVEL,default=info"`

	HeartbeatInterval     time.Duration `env:"MCP_HEARTBEAT_INTERVAL,default=25s"`
	StdioFraming          string        `env:"MCP_STDIO_FRAMING,default=newline"`
	SystemMetricsInterval time.Duration `env:"MCP_SYSTEM_METRICS_INTERVAL,default=15s"`
	ShutdownTimeout       time.Duration `env:"MCP_SHUTDOWN_TIMEOUT,default=10s"`

	// RedisAddr enables the cross-instance relay when set. ENV: REDIS_ADDR
	RedisAddr    string `env:"REDIS_ADDR"`
	RedisChannel string `env:"MCP_REDIS_CHANNEL,default=mcp:broadcast"`
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() Config {
	return Config{
		Transport:             TransportHTTP,
		Addr:                  ":8787",
		LogLevel:              "info",
		HeartbeatInterval:     25 * time.Second,
		StdioFraming:          string(stdio.FramingNewline),
		SystemMetricsInterval: 15 * time.Second,
		ShutdownTimeout:       10 * time.Second,
		RedisChannel:          "mcp:broadcast",
	}
}

// LoadConfig reads the configuration from the environment and validates it.
func LoadConfig() (Config, error) {
	cfg := DefaultConfig()
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return Config{}, fmt.Errorf("decode environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects unknown enum values and non-positive durations.
func (c Config) Validate() error {
	var errs []error

	switch c.Transport {
	case TransportHTTP, TransportStdio:
	default:
		errs = append(errs, fmt.Errorf("unknown transport %q", c.Transport))
	}
	if _, err := stdio.ParseFraming(c.StdioFraming); err != nil {
		errs = append(errs, err)
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("invalid log level %q: %w", c.LogLevel, err))
	}
	if c.Transport == TransportHTTP && c.Addr == "" {
		errs = append(errs, errors.New("listen address is empty"))
	}

	durations := []struct {
		name  string
		value time.Duration
	}{
		{"heartbeat interval", c.HeartbeatInterval},
		{"system metrics interval", c.SystemMetricsInterval},
		{"shutdown timeout", c.ShutdownTimeout},
	}
	for _, d := range durations {
		if d.value <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %v", d.name, d.value))
		}
	}

	return errors.Join(errs...)
}
