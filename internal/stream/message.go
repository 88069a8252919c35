// Package stream fans a session's output out to any number of WebSocket and
// SSE subscribers, with a bounded replay ring for reconnect-safe history.
package stream

import (
	"encoding/json"
	"time"
)

// Kind discriminates message variants on the wire.
type Kind string

const (
	KindSystem      Kind = "system"
	KindUserInput   Kind = "user_input"
	KindAgentOutput Kind = "agent_output"
	KindToolEvent   Kind = "tool_event"
	KindErrorEvent  Kind = "error"
	KindPing        Kind = "ping"
	KindPong        Kind = "pong"
	KindHistory     Kind = "history"
)

// Payload is the closed set of message payloads. Every Kind has exactly one
// payload type; the unexported method keeps the set closed.
type Payload interface {
	kind() Kind
}

// SystemPayload carries lifecycle announcements ("session closed" and such).
type SystemPayload struct {
	Text string
}

// UserInputPayload echoes input routed into the session, so every observer
// sees what was typed regardless of which connection sent it.
type UserInputPayload struct {
	Text string
}

// AgentOutputPayload carries raw terminal output from the subprocess.
type AgentOutputPayload struct {
	Data []byte
}

// ToolEventPayload describes a tool invocation parsed from the agent's
// structured output.
type ToolEventPayload struct {
	Tool   string `json:"tool"`
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// ErrorPayload carries an error surfaced to subscribers.
type ErrorPayload struct {
	Message string
}

// PingPayload and PongPayload implement the application-level liveness probe.
type PingPayload struct{}

// PongPayload is the reply to a PingPayload.
type PongPayload struct{}

// HistoryPayload is the replay burst sent to a newly attached subscriber
// before live streaming begins.
type HistoryPayload struct {
	Messages []Message
}

func (SystemPayload) kind() Kind      { return KindSystem }
func (UserInputPayload) kind() Kind   { return KindUserInput }
func (AgentOutputPayload) kind() Kind { return KindAgentOutput }
func (ToolEventPayload) kind() Kind   { return KindToolEvent }
func (ErrorPayload) kind() Kind       { return KindErrorEvent }
func (PingPayload) kind() Kind        { return KindPing }
func (PongPayload) kind() Kind        { return KindPong }
func (HistoryPayload) kind() Kind     { return KindHistory }

// Message is one immutable entry in a session's stream. Seq is assigned by
// the multiplexer on publish and is monotonic within the session.
type Message struct {
	Kind      Kind
	Seq       uint64
	SessionID string
	Subtype   string
	Timestamp time.Time
	Metadata  map[string]string
	Payload   Payload
}

// New builds a message for the given payload with the timestamp set.
func NewMessage(sessionID string, p Payload) Message {
	return Message{
		Kind:      p.kind(),
		SessionID: sessionID,
		Timestamp: time.Now().UTC(),
		Payload:   p,
	}
}

// System builds a System message.
func System(sessionID, text string) Message {
	return NewMessage(sessionID, SystemPayload{Text: text})
}

// UserInput builds a UserInput message.
func UserInput(sessionID, text string) Message {
	return NewMessage(sessionID, UserInputPayload{Text: text})
}

// AgentOutput builds an AgentOutput message.
func AgentOutput(sessionID string, data []byte) Message {
	return NewMessage(sessionID, AgentOutputPayload{Data: data})
}

// ErrorEvent builds an ErrorEvent message.
func ErrorEvent(sessionID, text string) Message {
	return NewMessage(sessionID, ErrorPayload{Message: text})
}

// frame is the wire shape shared by WebSocket frames and SSE data lines.
type frame struct {
	Type      Kind              `json:"type"`
	Content   any               `json:"content"`
	Seq       uint64            `json:"seq,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Subtype   string            `json:"subtype,omitempty"`
	SessionID string            `json:"session_id"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// MarshalJSON renders the wire frame. Content is payload-specific: text for
// the textual kinds, a structured object for tool events, and a message array
// for history.
func (m Message) MarshalJSON() ([]byte, error) {
	f := frame{
		Type:      m.Kind,
		Seq:       m.Seq,
		Timestamp: m.Timestamp,
		Subtype:   m.Subtype,
		SessionID: m.SessionID,
		Metadata:  m.Metadata,
	}
	switch p := m.Payload.(type) {
	case SystemPayload:
		f.Content = p.Text
	case UserInputPayload:
		f.Content = p.Text
	case AgentOutputPayload:
		f.Content = string(p.Data)
	case ToolEventPayload:
		f.Content = p
	case ErrorPayload:
		f.Content = p.Message
	case HistoryPayload:
		f.Content = p.Messages
	case PingPayload, PongPayload, nil:
		f.Content = ""
	}
	return json.Marshal(f)
}
