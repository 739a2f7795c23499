package client

import (
	"io"
	"log/slog"
	"time"

	"code.cloudfoundry.org/clock"
	"github.com/ggoodman/mcp-stdio-go/mcp"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	defaultStartupGrace    = 500 * time.Millisecond
	defaultRequestTimeout  = 10 * time.Second
	defaultShutdownTimeout = 5 * time.Second
)

// Option customizes a Client or a Conn. Options that concern the child
// process are ignored by NewConn.
type Option func(*options)

type options struct {
	args []string
	env  []string
	dir  string

	log     *slog.Logger
	clock   clock.Clock
	stderr  io.Writer
	metrics prometheus.Registerer

	startupGrace    time.Duration
	requestTimeout  time.Duration
	shutdownTimeout time.Duration

	clientInfo      mcp.ImplementationInfo
	protocolVersion string
}

func defaultOptions() options {
	return options{
		log:             slog.Default(),
		clock:           clock.NewClock(),
		startupGrace:    defaultStartupGrace,
		requestTimeout:  defaultRequestTimeout,
		shutdownTimeout: defaultShutdownTimeout,
		clientInfo:      mcp.ImplementationInfo{Name: "mcp-stdio-client", Version: "1.0.0"},
		protocolVersion: mcp.ProtocolVersion20241105,
	}
}

// WithArgs sets the arguments passed to the server command.
func WithArgs(args ...string) Option {
	return func(o *options) { o.args = append([]string(nil), args...) }
}

// WithEnv sets the environment of the child process, in os.Environ form.
// When unset the child inherits the parent's environment.
func WithEnv(env []string) Option {
	return func(o *options) { o.env = env }
}

// WithDir sets the working directory of the child process.
func WithDir(dir string) Option {
	return func(o *options) { o.dir = dir }
}

// WithLogger overrides the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

// WithClock overrides the clock used for the startup grace period, request
// timeouts and the shutdown timeout.
func WithClock(c clock.Clock) Option {
	return func(o *options) {
		if c != nil {
			o.clock = c
		}
	}
}

// WithStartupGrace sets how long Connect waits after spawning the child
// before sending initialize. Defaults to 500ms.
func WithStartupGrace(d time.Duration) Option {
	return func(o *options) {
		if d >= 0 {
			o.startupGrace = d
		}
	}
}

// WithRequestTimeout sets the timeout used when a request is sent without
// one. Defaults to 10s.
func WithRequestTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.requestTimeout = d
		}
	}
}

// WithShutdownTimeout bounds how long Close waits for the child to exit after
// asking it to terminate before killing it. Defaults to 5s.
func WithShutdownTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.shutdownTimeout = d
		}
	}
}

// WithClientInfo sets the clientInfo sent during initialize.
func WithClientInfo(info mcp.ImplementationInfo) Option {
	return func(o *options) { o.clientInfo = info }
}

// WithProtocolVersion sets the protocol version requested during initialize.
// Defaults to mcp.ProtocolVersion20241105.
func WithProtocolVersion(v string) Option {
	return func(o *options) {
		if v != "" {
			o.protocolVersion = v
		}
	}
}

// WithMetrics registers client metrics with reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(o *options) { o.metrics = reg }
}

// WithStderr copies the child's stderr to w. By default each stderr line is
// logged at debug level. Stderr is never parsed as protocol output.
func WithStderr(w io.Writer) Option {
	return func(o *options) { o.stderr = w }
}
