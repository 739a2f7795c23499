// Package metrics holds the Prometheus collectors shared by the dispatcher
// and the client. All methods are safe on a nil receiver so components can
// run without metrics wired.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "mcp"

// Outcome labels.
const (
	OutcomeOK          = "ok"
	OutcomeToolError   = "tool_error"
	OutcomeRPCError    = "rpc_error"
	OutcomeTimeout     = "timeout"
	OutcomeCancelled   = "cancelled"
	OutcomeClosed      = "closed"
	OutcomeWriteError  = "write_error"
	OutcomeParseError  = "parse_error"
	OutcomeNotFound    = "not_found"
	OutcomeBadParams   = "invalid_params"
	OutcomeInternal    = "internal_error"
	OutcomeNoReply     = "notification"
	OutcomeInvalidJSON = "invalid_request"
)

// Server instruments the dispatcher.
type Server struct {
	Requests *prometheus.CounterVec
	Duration *prometheus.HistogramVec
}

// NewServer builds the dispatcher collectors and registers them with reg
// when reg is non-nil.
func NewServer(reg prometheus.Registerer) *Server {
	s := &Server{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      "requests_total",
			Help:      "Dispatched JSON-RPC messages by method and outcome.",
		}, []string{"method", "outcome"}),
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      "request_duration_seconds",
			Help:      "Time spent dispatching a JSON-RPC message.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 8),
		}, []string{"method"}),
	}
	if reg != nil {
		reg.MustRegister(s.Requests, s.Duration)
	}
	return s
}

// Observe records one dispatched message.
func (s *Server) Observe(method, outcome string, d time.Duration) {
	if s == nil {
		return
	}
	s.Requests.WithLabelValues(method, outcome).Inc()
	s.Duration.WithLabelValues(method).Observe(d.Seconds())
}

// Client instruments the request/response correlation layer.
type Client struct {
	Requests *prometheus.CounterVec
	Pending  prometheus.Gauge
	Dropped  prometheus.Counter
}

// NewClient builds the client collectors and registers them with reg when
// reg is non-nil.
func NewClient(reg prometheus.Registerer) *Client {
	c := &Client{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "client",
			Name:      "requests_total",
			Help:      "Requests sent to the child process by method and outcome.",
		}, []string{"method", "outcome"}),
		Pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "client",
			Name:      "pending_requests",
			Help:      "Requests awaiting a response.",
		}),
		Dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "client",
			Name:      "dropped_responses_total",
			Help:      "Responses that matched no waiting request.",
		}),
	}
	if reg != nil {
		reg.MustRegister(c.Requests, c.Pending, c.Dropped)
	}
	return c
}

// Observe records the outcome of one request.
func (c *Client) Observe(method, outcome string) {
	if c == nil {
		return
	}
	c.Requests.WithLabelValues(method, outcome).Inc()
}

// SetPending records the current size of the pending table.
func (c *Client) SetPending(n int) {
	if c == nil {
		return
	}
	c.Pending.Set(float64(n))
}

// DroppedResponse counts an unmatched response.
func (c *Client) DroppedResponse() {
	if c == nil {
		return
	}
	c.Dropped.Inc()
}
