// Package metrics maintains passive per-session counters derived from
// multiplexer and router activity, for observability only.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/zulandar/switchyard/internal/stream"
)

// Snapshot is a read-only view of one session's counters.
type Snapshot struct {
	SessionID        string  `json:"session_id"`
	MessagesSent     uint64  `json:"messages_sent"`
	MessagesReceived uint64  `json:"messages_received"`
	ToolsExecuted    uint64  `json:"tools_executed"`
	ErrorsCount      uint64  `json:"errors_count"`
	SessionDuration  float64 `json:"session_duration_seconds"`
}

type counters struct {
	startedAt        time.Time
	messagesSent     uint64
	messagesReceived uint64
	toolsExecuted    uint64
	errorsCount      uint64
}

// Collector implements the stream and input hooks. Counters live only as
// long as the session; Forget drops them.
type Collector struct {
	mu       sync.Mutex
	sessions map[string]*counters

	published *prometheus.CounterVec
	routed    *prometheus.CounterVec
}

// New creates a Collector. Prometheus metrics are registered on reg; a nil
// reg leaves them unregistered (tests).
func New(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)
	return &Collector{
		sessions: make(map[string]*counters),
		published: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "switchyard",
			Name:      "messages_published_total",
			Help:      "Messages published to session streams, by kind.",
		}, []string{"session_id", "kind"}),
		routed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "switchyard",
			Name:      "inputs_routed_total",
			Help:      "Inputs routed into session PTYs.",
		}, []string{"session_id"}),
	}
}

func (c *Collector) session(sessionID string) *counters {
	cs, ok := c.sessions[sessionID]
	if !ok {
		cs = &counters{startedAt: time.Now()}
		c.sessions[sessionID] = cs
	}
	return cs
}

// MessagePublished implements stream.Hook.
func (c *Collector) MessagePublished(sessionID string, kind stream.Kind) {
	c.mu.Lock()
	cs := c.session(sessionID)
	switch kind {
	case stream.KindToolEvent:
		cs.toolsExecuted++
	case stream.KindErrorEvent:
		cs.errorsCount++
	default:
		cs.messagesSent++
	}
	c.mu.Unlock()
	c.published.WithLabelValues(sessionID, string(kind)).Inc()
}

// InputRouted implements input.Hook.
func (c *Collector) InputRouted(sessionID string) {
	c.mu.Lock()
	c.session(sessionID).messagesReceived++
	c.mu.Unlock()
	c.routed.WithLabelValues(sessionID).Inc()
}

// Snapshot returns the counters for one session.
func (c *Collector) Snapshot(sessionID string) (Snapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cs, ok := c.sessions[sessionID]
	if !ok {
		return Snapshot{}, false
	}
	return Snapshot{
		SessionID:        sessionID,
		MessagesSent:     cs.messagesSent,
		MessagesReceived: cs.messagesReceived,
		ToolsExecuted:    cs.toolsExecuted,
		ErrorsCount:      cs.errorsCount,
		SessionDuration:  time.Since(cs.startedAt).Seconds(),
	}, true
}

// StreamClosed implements stream.Hook. A closed stream means the session is
// gone, and its counters and Prometheus label sets go with it.
func (c *Collector) StreamClosed(sessionID string) {
	c.Forget(sessionID)
}

// Forget drops a session's counters once the session is gone.
func (c *Collector) Forget(sessionID string) {
	c.mu.Lock()
	delete(c.sessions, sessionID)
	c.mu.Unlock()
	c.published.DeletePartialMatch(prometheus.Labels{"session_id": sessionID})
	c.routed.DeleteLabelValues(sessionID)
}
