package trigger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrUpstreamTimeout means the dispatch call exceeded its hard deadline.
var ErrUpstreamTimeout = errors.New("trigger: dispatch timed out")

// DispatchResult is the automation endpoint's response.
type DispatchResult struct {
	Success   bool   `json:"success"`
	SessionID string `json:"session_id"`
	PID       int    `json:"pid"`
	Mode      string `json:"mode"` // "dispatched" or "queued"
}

// Dispatcher sends a slash command to the backend for injection into the
// project's session.
type Dispatcher interface {
	Dispatch(ctx context.Context, command, projectDir string) (*DispatchResult, error)
}

// HTTPDispatcher is the primary network dispatch path: a POST to the
// Switchyard server with a hard timeout so a hung backend cannot block the
// triggering process.
type HTTPDispatcher struct {
	baseURL string
	client  *http.Client
}

// NewHTTPDispatcher creates an HTTPDispatcher for the server at baseURL.
func NewHTTPDispatcher(baseURL string, timeout time.Duration) *HTTPDispatcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPDispatcher{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

type dispatchRequest struct {
	Command    string `json:"command"`
	ProjectDir string `json:"project_dir"`
}

// Dispatch implements Dispatcher.
func (d *HTTPDispatcher) Dispatch(ctx context.Context, command, projectDir string) (*DispatchResult, error) {
	body, err := json.Marshal(dispatchRequest{Command: command, ProjectDir: projectDir})
	if err != nil {
		return nil, fmt.Errorf("trigger: encode dispatch request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		d.baseURL+"/api/automation/dispatch", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("trigger: build dispatch request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isClientTimeout(err) {
			return nil, fmt.Errorf("trigger: dispatch to %s: %w", d.baseURL, ErrUpstreamTimeout)
		}
		return nil, fmt.Errorf("trigger: dispatch to %s: %w", d.baseURL, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("trigger: read dispatch response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("trigger: dispatch returned %d: %s",
			resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var result DispatchResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("trigger: decode dispatch response: %w", err)
	}
	if !result.Success {
		return &result, fmt.Errorf("trigger: dispatch reported failure")
	}
	return &result, nil
}

func isClientTimeout(err error) bool {
	var netErr interface{ Timeout() bool }
	return errors.As(err, &netErr) && netErr.Timeout()
}
