package stream

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Transport identifies how a subscriber is connected.
type Transport string

const (
	TransportWebSocket Transport = "websocket"
	TransportSSE       Transport = "sse"
)

// ErrNoStream is returned when publishing or subscribing to a session the
// multiplexer does not know.
var ErrNoStream = errors.New("stream: no such session stream")

// Hook observes stream activity. Implemented by the metrics collector;
// a nil hook disables observation.
type Hook interface {
	MessagePublished(sessionID string, kind Kind)
	// StreamClosed fires after the final message, once the session's stream
	// is gone. Observers drop per-session state here.
	StreamClosed(sessionID string)
}

// Multiplexer fans each session's stream out to its subscribers. One tailer
// goroutine publishes; every subscriber drains its own bounded queue, so a
// slow or dead subscriber never blocks publication for the rest.
type Multiplexer struct {
	mu          sync.Mutex
	historySize int
	queueSize   int
	hook        Hook
	streams     map[string]*sessionStream
}

type sessionStream struct {
	mu   sync.Mutex
	id   string
	seq  uint64
	ring *ring
	subs map[string]*Subscriber
}

// Subscriber is one live WebSocket or SSE connection receiving a session's
// messages. Delivery order matches publish order; overflow shows up as a
// sequence gap plus a growing Dropped count, never as reordering.
type Subscriber struct {
	ID        string
	SessionID string
	Transport Transport

	ch      chan Message
	dropped atomic.Uint64
	closed  bool // guarded by the owning stream's mu
}

// New creates a Multiplexer. historySize bounds the per-session replay ring;
// queueSize bounds each subscriber's delivery queue.
func New(historySize, queueSize int, hook Hook) *Multiplexer {
	if historySize <= 0 {
		historySize = 256
	}
	if queueSize <= 0 {
		queueSize = 64
	}
	return &Multiplexer{
		historySize: historySize,
		queueSize:   queueSize,
		hook:        hook,
		streams:     make(map[string]*sessionStream),
	}
}

// Open creates the stream for a session. Idempotent.
func (m *Multiplexer) Open(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.streams[sessionID]; ok {
		return
	}
	m.streams[sessionID] = &sessionStream{
		id:   sessionID,
		ring: newRing(m.historySize),
		subs: make(map[string]*Subscriber),
	}
}

func (m *Multiplexer) stream(sessionID string) (*sessionStream, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.streams[sessionID]
	return s, ok
}

// Publish assigns the next sequence number, appends to the replay ring, and
// pushes to every subscriber's queue. Returns the assigned sequence number.
func (m *Multiplexer) Publish(sessionID string, msg Message) (uint64, error) {
	s, ok := m.stream(sessionID)
	if !ok {
		return 0, fmt.Errorf("stream: publish to %s: %w", sessionID, ErrNoStream)
	}

	s.mu.Lock()
	s.seq++
	msg.Seq = s.seq
	msg.SessionID = sessionID
	s.ring.append(msg)
	for _, sub := range s.subs {
		sub.deliver(msg)
	}
	s.mu.Unlock()

	if m.hook != nil {
		m.hook.MessagePublished(sessionID, msg.Kind)
	}
	return msg.Seq, nil
}

// Subscribe attaches a new subscriber. Its queue starts with a single History
// message replaying the buffered tail; registration and the ring snapshot
// happen under one lock, so the live tail continues from the replay with no
// gap or duplicate.
func (m *Multiplexer) Subscribe(sessionID string, transport Transport) (*Subscriber, error) {
	s, ok := m.stream(sessionID)
	if !ok {
		return nil, fmt.Errorf("stream: subscribe to %s: %w", sessionID, ErrNoStream)
	}

	sub := &Subscriber{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Transport: transport,
		// +1 so the history message never competes with live delivery space.
		ch: make(chan Message, m.queueSize+1),
	}

	s.mu.Lock()
	history := Message{
		Kind:      KindHistory,
		Seq:       s.seq,
		SessionID: sessionID,
		Payload:   HistoryPayload{Messages: s.ring.snapshot()},
	}
	sub.ch <- history
	s.subs[sub.ID] = sub
	s.mu.Unlock()

	return sub, nil
}

// Unsubscribe detaches a single subscriber and closes its channel. Safe to
// call after the session stream is gone.
func (m *Multiplexer) Unsubscribe(sub *Subscriber) {
	s, ok := m.stream(sub.SessionID)
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subs[sub.ID]; !ok {
		return
	}
	delete(s.subs, sub.ID)
	sub.closed = true
	close(sub.ch)
}

// Close publishes a final message, then cancels every subscriber and removes
// the stream. Used when a session stops or its process exits.
func (m *Multiplexer) Close(sessionID string, final Message) {
	m.mu.Lock()
	s, ok := m.streams[sessionID]
	if ok {
		delete(m.streams, sessionID)
	}
	m.mu.Unlock()
	if !ok {
		return
	}

	s.mu.Lock()
	s.seq++
	final.Seq = s.seq
	final.SessionID = sessionID
	for _, sub := range s.subs {
		sub.deliver(final)
		sub.closed = true
		close(sub.ch)
	}
	s.subs = make(map[string]*Subscriber)
	s.mu.Unlock()

	if m.hook != nil {
		m.hook.MessagePublished(sessionID, final.Kind)
		m.hook.StreamClosed(sessionID)
	}
}

// SubscriberCount returns the number of attached subscribers, zero if the
// stream is gone.
func (m *Multiplexer) SubscriberCount(sessionID string) int {
	s, ok := m.stream(sessionID)
	if !ok {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

// C returns the subscriber's delivery channel. It is closed when the
// subscriber detaches or the session stops.
func (s *Subscriber) C() <-chan Message { return s.ch }

// Dropped reports how many messages were shed because this subscriber fell
// behind. Any nonzero value implies a sequence gap the client can detect.
func (s *Subscriber) Dropped() uint64 { return s.dropped.Load() }

// deliver enqueues without blocking: when the queue is full the oldest entry
// is shed and delivery retried once, keeping the newest data flowing. Caller
// holds the stream lock.
func (s *Subscriber) deliver(msg Message) {
	if s.closed {
		return
	}
	select {
	case s.ch <- msg:
		return
	default:
	}
	select {
	case <-s.ch:
		s.dropped.Add(1)
	default:
	}
	select {
	case s.ch <- msg:
	default:
		s.dropped.Add(1)
	}
}
