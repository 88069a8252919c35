package supervisor

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/zulandar/switchyard/internal/stream"
)

// agentEvent is used for initial type dispatch on structured output lines.
type agentEvent struct {
	Type string `json:"type"`
}

// toolUseEvent extracts tool invocation details.
type toolUseEvent struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	Detail string `json:"detail"`
}

// errorEvent extracts error details.
type errorEvent struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

// lineScanner accumulates raw PTY output and yields complete lines, keeping
// a partial trailing line buffered between chunks.
type lineScanner struct {
	rest []byte
}

func (ls *lineScanner) lines(chunk []byte) []string {
	data := append(ls.rest, chunk...)
	var out []string
	for {
		i := bytes.IndexByte(data, '\n')
		if i < 0 {
			break
		}
		out = append(out, string(bytes.TrimRight(data[:i], "\r")))
		data = data[i+1:]
	}
	// Cap the partial-line buffer so binary output cannot grow it unbounded.
	if len(data) > 64*1024 {
		data = data[len(data)-64*1024:]
	}
	ls.rest = append([]byte(nil), data...)
	return out
}

// parseStructuredEvents scans output lines for JSON events the agent emits
// alongside its terminal output and converts them into ToolEvent and
// ErrorEvent messages. Non-JSON lines are ignored; they already reached
// subscribers as AgentOutput.
func parseStructuredEvents(sessionID string, lines []string) []stream.Message {
	var msgs []stream.Message
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if len(line) == 0 || line[0] != '{' {
			continue
		}

		var evt agentEvent
		if err := json.Unmarshal([]byte(line), &evt); err != nil {
			continue
		}

		switch evt.Type {
		case "tool_use", "tool_result":
			var t toolUseEvent
			if err := json.Unmarshal([]byte(line), &t); err != nil || t.Name == "" {
				continue
			}
			status := t.Status
			if status == "" {
				if evt.Type == "tool_use" {
					status = "started"
				} else {
					status = "finished"
				}
			}
			msg := stream.NewMessage(sessionID, stream.ToolEventPayload{
				Tool:   t.Name,
				Status: status,
				Detail: t.Detail,
			})
			msg.Subtype = evt.Type
			msgs = append(msgs, msg)
		case "error":
			var e errorEvent
			if err := json.Unmarshal([]byte(line), &e); err != nil {
				continue
			}
			text := e.Message
			if text == "" {
				text = e.Error
			}
			if text == "" {
				continue
			}
			msgs = append(msgs, stream.ErrorEvent(sessionID, text))
		}
	}
	return msgs
}
