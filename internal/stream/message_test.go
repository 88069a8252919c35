package stream

import (
	"encoding/json"
	"testing"
	"time"
)

func TestMarshal_AgentOutput(t *testing.T) {
	msg := AgentOutput("sess-1", []byte("hello\r\n"))
	msg.Seq = 7

	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var f map[string]any
	if err := json.Unmarshal(data, &f); err != nil {
		t.Fatalf("unmarshal frame: %v", err)
	}
	if f["type"] != "agent_output" {
		t.Errorf("type = %v, want agent_output", f["type"])
	}
	if f["content"] != "hello\r\n" {
		t.Errorf("content = %v, want raw text", f["content"])
	}
	if f["seq"] != float64(7) {
		t.Errorf("seq = %v, want 7", f["seq"])
	}
	if f["session_id"] != "sess-1" {
		t.Errorf("session_id = %v", f["session_id"])
	}
}

func TestMarshal_ToolEventStructured(t *testing.T) {
	msg := NewMessage("sess-1", ToolEventPayload{Tool: "bash", Status: "running", Detail: "ls"})

	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var f struct {
		Type    string `json:"type"`
		Content struct {
			Tool   string `json:"tool"`
			Status string `json:"status"`
			Detail string `json:"detail"`
		} `json:"content"`
	}
	if err := json.Unmarshal(data, &f); err != nil {
		t.Fatalf("unmarshal frame: %v", err)
	}
	if f.Type != "tool_event" {
		t.Errorf("type = %q, want tool_event", f.Type)
	}
	if f.Content.Tool != "bash" || f.Content.Status != "running" || f.Content.Detail != "ls" {
		t.Errorf("content = %+v", f.Content)
	}
}

func TestMarshal_SubtypeAndMetadata(t *testing.T) {
	msg := UserInput("sess-1", "/review-push")
	msg.Subtype = "automation"
	msg.Metadata = map[string]string{"source": "trigger"}

	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var f map[string]any
	json.Unmarshal(data, &f)
	if f["subtype"] != "automation" {
		t.Errorf("subtype = %v, want automation", f["subtype"])
	}
	md, ok := f["metadata"].(map[string]any)
	if !ok || md["source"] != "trigger" {
		t.Errorf("metadata = %v", f["metadata"])
	}
}

func TestMarshal_SubtypeOmittedWhenEmpty(t *testing.T) {
	data, err := json.Marshal(System("sess-1", "session started"))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var f map[string]any
	json.Unmarshal(data, &f)
	if _, ok := f["subtype"]; ok {
		t.Error("empty subtype should be omitted")
	}
	if _, ok := f["metadata"]; ok {
		t.Error("nil metadata should be omitted")
	}
}

func TestMarshal_HistoryNestsMessages(t *testing.T) {
	inner := []Message{
		{Kind: KindSystem, Seq: 1, SessionID: "sess-1", Timestamp: time.Now(), Payload: SystemPayload{Text: "a"}},
		{Kind: KindAgentOutput, Seq: 2, SessionID: "sess-1", Timestamp: time.Now(), Payload: AgentOutputPayload{Data: []byte("b")}},
	}
	msg := Message{Kind: KindHistory, Seq: 2, SessionID: "sess-1", Payload: HistoryPayload{Messages: inner}}

	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var f struct {
		Type    string            `json:"type"`
		Content []json.RawMessage `json:"content"`
	}
	if err := json.Unmarshal(data, &f); err != nil {
		t.Fatalf("unmarshal frame: %v", err)
	}
	if f.Type != "history" {
		t.Errorf("type = %q, want history", f.Type)
	}
	if len(f.Content) != 2 {
		t.Fatalf("history content length = %d, want 2", len(f.Content))
	}
}

func TestNew_SetsTimestampAndKind(t *testing.T) {
	before := time.Now().UTC()
	msg := ErrorEvent("sess-1", "boom")
	if msg.Kind != KindErrorEvent {
		t.Errorf("Kind = %q, want error", msg.Kind)
	}
	if msg.Timestamp.Before(before.Add(-time.Second)) {
		t.Errorf("Timestamp = %v not set", msg.Timestamp)
	}
}
