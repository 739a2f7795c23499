// Command weather-server serves the mock weather MCP server on stdin and
// stdout. Logs go to stderr.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ggoodman/mcp-stdio-go/examples/weather"
	"github.com/ggoodman/mcp-stdio-go/internal/config"
	"github.com/ggoodman/mcp-stdio-go/stdio"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %s\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadServer()
	if err != nil {
		return err
	}
	log, err := cfg.NewLogger(os.Stderr)
	if err != nil {
		return err
	}

	srv, err := weather.New()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	h := stdio.NewHandler(srv, stdio.WithLogger(log), stdio.WithMetricsRegisterer(reg))

	log.InfoContext(ctx, "weather_server.start", slog.String("version", weather.Version))
	err = h.Serve(ctx)
	if err != nil && ctx.Err() != nil {
		// Interrupted by a signal.
		err = nil
	}
	log.InfoContext(ctx, "weather_server.stop")

	if cfg.MetricsFile != "" {
		if werr := prometheus.WriteToTextfile(cfg.MetricsFile, reg); werr != nil {
			log.Error("weather_server.metrics.write_fail", slog.String("err", werr.Error()))
		}
	}
	return err
}
