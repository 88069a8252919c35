package supervisor

import (
	"strings"
	"testing"

	"github.com/zulandar/switchyard/internal/stream"
)

func TestLineScanner_SplitsAcrossChunks(t *testing.T) {
	ls := &lineScanner{}

	lines := ls.lines([]byte("first\nsecond part"))
	if len(lines) != 1 || lines[0] != "first" {
		t.Fatalf("lines = %v, want [first]", lines)
	}

	lines = ls.lines([]byte(" continues\nthird\n"))
	if len(lines) != 2 {
		t.Fatalf("lines = %v, want 2 entries", lines)
	}
	if lines[0] != "second part continues" || lines[1] != "third" {
		t.Errorf("lines = %v", lines)
	}
}

func TestLineScanner_StripsCarriageReturn(t *testing.T) {
	ls := &lineScanner{}
	lines := ls.lines([]byte("terminal line\r\n"))
	if len(lines) != 1 || lines[0] != "terminal line" {
		t.Errorf("lines = %v", lines)
	}
}

func TestLineScanner_CapsPartialBuffer(t *testing.T) {
	ls := &lineScanner{}
	ls.lines([]byte(strings.Repeat("x", 200*1024)))
	if len(ls.rest) > 64*1024 {
		t.Errorf("partial buffer = %d bytes, want capped at 64KB", len(ls.rest))
	}
}

func TestParseStructuredEvents_ToolUse(t *testing.T) {
	msgs := parseStructuredEvents("sess-1", []string{
		`{"type":"tool_use","name":"edit","detail":"main.go"}`,
	})
	if len(msgs) != 1 {
		t.Fatalf("messages = %d, want 1", len(msgs))
	}
	payload := msgs[0].Payload.(stream.ToolEventPayload)
	if payload.Tool != "edit" || payload.Status != "started" || payload.Detail != "main.go" {
		t.Errorf("payload = %+v", payload)
	}
	if msgs[0].Subtype != "tool_use" {
		t.Errorf("subtype = %q", msgs[0].Subtype)
	}
}

func TestParseStructuredEvents_ToolResultDefaultsFinished(t *testing.T) {
	msgs := parseStructuredEvents("sess-1", []string{
		`{"type":"tool_result","name":"bash"}`,
	})
	if len(msgs) != 1 {
		t.Fatalf("messages = %d, want 1", len(msgs))
	}
	if status := msgs[0].Payload.(stream.ToolEventPayload).Status; status != "finished" {
		t.Errorf("status = %q, want finished", status)
	}
}

func TestParseStructuredEvents_Error(t *testing.T) {
	msgs := parseStructuredEvents("sess-1", []string{
		`{"type":"error","message":"rate limited"}`,
	})
	if len(msgs) != 1 || msgs[0].Kind != stream.KindErrorEvent {
		t.Fatalf("messages = %v", msgs)
	}
	if text := msgs[0].Payload.(stream.ErrorPayload).Message; text != "rate limited" {
		t.Errorf("message = %q", text)
	}
}

func TestParseStructuredEvents_IgnoresNoise(t *testing.T) {
	msgs := parseStructuredEvents("sess-1", []string{
		"plain terminal output",
		"{not json at all",
		`{"type":"unknown_event"}`,
		`{"type":"tool_use"}`, // no name
		"",
	})
	if len(msgs) != 0 {
		t.Errorf("messages = %v, want none", msgs)
	}
}
