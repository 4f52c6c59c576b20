package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "wscommands"

// NewRegistry returns a registry with the Go and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
	return reg
}

// Handler returns an HTTP handler exposing the registry.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

// Client holds the command client collectors. A nil *Client is a no-op.
type Client struct {
	connected         prometheus.Gauge
	reconnectAttempts prometheus.Gauge
	reconnects        prometheus.Counter
	exhausted         prometheus.Counter
	commands          *prometheus.CounterVec
	dropped           *prometheus.CounterVec
	pings             *prometheus.CounterVec
}

// NewClient creates and registers the client collectors.
func NewClient(reg prometheus.Registerer) *Client {
	c := &Client{
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "client",
			Name:      "connected",
			Help:      "1 while the command socket is open.",
		}),
		reconnectAttempts: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "client",
			Name:      "reconnect_attempts",
			Help:      "Consecutive reconnect attempts since the last successful open.",
		}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "client",
			Name:      "reconnects_scheduled_total",
			Help:      "Total number of reconnect attempts scheduled.",
		}),
		exhausted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "client",
			Name:      "reconnects_exhausted_total",
			Help:      "Times the reconnect budget ran out.",
		}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "client",
			Name:      "commands_dispatched_total",
			Help:      "Commands handed to the session, by kind.",
		}, []string{"kind"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "client",
			Name:      "commands_dropped_total",
			Help:      "Commands dropped before dispatch, by reason.",
		}, []string{"reason"}),
		pings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "client",
			Name:      "pings_total",
			Help:      "Keep-alive pings, by result.",
		}, []string{"result"}),
	}

	reg.MustRegister(
		c.connected,
		c.reconnectAttempts,
		c.reconnects,
		c.exhausted,
		c.commands,
		c.dropped,
		c.pings,
	)
	return c
}

// SetConnected records the socket state.
func (c *Client) SetConnected(open bool) {
	if c == nil {
		return
	}
	if open {
		c.connected.Set(1)
	} else {
		c.connected.Set(0)
	}
}

// SetReconnectAttempts records the current attempt count.
func (c *Client) SetReconnectAttempts(n int) {
	if c == nil {
		return
	}
	c.reconnectAttempts.Set(float64(n))
}

// ReconnectScheduled counts a scheduled reconnect.
func (c *Client) ReconnectScheduled() {
	if c == nil {
		return
	}
	c.reconnects.Inc()
}

// ReconnectExhausted counts a give-up.
func (c *Client) ReconnectExhausted() {
	if c == nil {
		return
	}
	c.exhausted.Inc()
}

// CommandDispatched counts a dispatched command.
func (c *Client) CommandDispatched(kind string) {
	if c == nil {
		return
	}
	c.commands.WithLabelValues(kind).Inc()
}

// CommandDropped counts a dropped command.
func (c *Client) CommandDropped(reason string) {
	if c == nil {
		return
	}
	c.dropped.WithLabelValues(reason).Inc()
}

// Ping counts a keep-alive ping.
func (c *Client) Ping(ok bool) {
	if c == nil {
		return
	}
	c.pings.WithLabelValues(result(ok)).Inc()
}

// Server holds the push hub collectors. A nil *Server is a no-op.
type Server struct {
	sessions   prometheus.Gauge
	pushes     *prometheus.CounterVec
	broadcasts prometheus.Counter
	delivered  prometheus.Counter
}

// NewServer creates and registers the push hub collectors.
func NewServer(reg prometheus.Registerer) *Server {
	s := &Server{
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "sessions",
			Help:      "Open command sockets.",
		}),
		pushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "pushes_total",
			Help:      "Targeted push commands, by result.",
		}, []string{"result"}),
		broadcasts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "broadcasts_total",
			Help:      "Broadcasts sent.",
		}),
		delivered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "broadcast_deliveries_total",
			Help:      "Individual socket deliveries made by broadcasts.",
		}),
	}

	reg.MustRegister(s.sessions, s.pushes, s.broadcasts, s.delivered)
	return s
}

// SetSessions records the open session count.
func (s *Server) SetSessions(n int) {
	if s == nil {
		return
	}
	s.sessions.Set(float64(n))
}

// Push counts a targeted push.
func (s *Server) Push(ok bool) {
	if s == nil {
		return
	}
	s.pushes.WithLabelValues(result(ok)).Inc()
}

// Broadcast counts a broadcast and its deliveries.
func (s *Server) Broadcast(delivered int) {
	if s == nil {
		return
	}
	s.broadcasts.Inc()
	s.delivered.Add(float64(delivered))
}

func result(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}
