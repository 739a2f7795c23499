// Package config loads binary configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/ggoodman/mcp-stdio-go/internal/logctx"
	"github.com/joeshaw/envdecode"
)

// Logging is shared by every binary.
type Logging struct {
	// ENV: MCP_LOG_LEVEL (debug, info, warn, error)
	Level string `env:"MCP_LOG_LEVEL,default=info"`
	// ENV: MCP_LOG_FORMAT (json or text)
	Format string `env:"MCP_LOG_FORMAT,default=json"`
}

// Server configures cmd/weather-server.
type Server struct {
	Logging
	// ENV: MCP_METRICS_FILE. When set, metrics are written there in the
	// Prometheus text format on exit.
	MetricsFile string `env:"MCP_METRICS_FILE"`
}

// Client configures cmd/mcp-client. Command line flags override these.
type Client struct {
	Logging
	RequestTimeout  time.Duration `env:"MCP_REQUEST_TIMEOUT,default=10s"`
	StartupGrace    time.Duration `env:"MCP_STARTUP_GRACE,default=500ms"`
	ShutdownTimeout time.Duration `env:"MCP_SHUTDOWN_TIMEOUT,default=5s"`
	MetricsFile     string        `env:"MCP_METRICS_FILE"`
}

// LoadServer reads Server from the environment.
func LoadServer() (Server, error) {
	var cfg Server
	if err := decode(&cfg); err != nil {
		return Server{}, err
	}
	return cfg, nil
}

// LoadClient reads Client from the environment.
func LoadClient() (Client, error) {
	var cfg Client
	if err := decode(&cfg); err != nil {
		return Client{}, err
	}
	return cfg, nil
}

func decode(target any) error {
	err := envdecode.Decode(target)
	if err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// NewLogger builds the logger binaries write to w (stderr; stdout carries
// the protocol). Records are decorated by logctx.Handler.
func (l Logging) NewLogger(w io.Writer) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return nil, fmt.Errorf("config: MCP_LOG_LEVEL: %w", err)
	}
	opts := &slog.HandlerOptions{Level: level}

	var h slog.Handler
	switch strings.ToLower(l.Format) {
	case "", "json":
		h = slog.NewJSONHandler(w, opts)
	case "text":
		h = slog.NewTextHandler(w, opts)
	default:
		return nil, fmt.Errorf("config: MCP_LOG_FORMAT: unknown format %q", l.Format)
	}
	return slog.New(logctx.Handler{Handler: h}), nil
}
