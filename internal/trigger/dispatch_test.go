package trigger

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHTTPDispatcher_Success(t *testing.T) {
	var gotPath string
	var gotReq dispatchRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		json.NewDecoder(r.Body).Decode(&gotReq)
		json.NewEncoder(w).Encode(DispatchResult{
			Success:   true,
			SessionID: "sess-ab12cd34",
			PID:       4242,
			Mode:      "dispatched",
		})
	}))
	defer srv.Close()

	d := NewHTTPDispatcher(srv.URL, time.Second)
	result, err := d.Dispatch(context.Background(), "/review-push", "/repo/a")
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if gotPath != "/api/automation/dispatch" {
		t.Errorf("path = %q", gotPath)
	}
	if gotReq.Command != "/review-push" || gotReq.ProjectDir != "/repo/a" {
		t.Errorf("request = %+v", gotReq)
	}
	if result.SessionID != "sess-ab12cd34" || result.Mode != "dispatched" {
		t.Errorf("result = %+v", result)
	}
}

func TestHTTPDispatcher_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	d := NewHTTPDispatcher(srv.URL, 50*time.Millisecond)
	start := time.Now()
	_, err := d.Dispatch(context.Background(), "/review-push", "/repo/a")
	if !errors.Is(err, ErrUpstreamTimeout) {
		t.Fatalf("error = %v, want ErrUpstreamTimeout", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("dispatch blocked %v; the timeout must be hard", elapsed)
	}
}

func TestHTTPDispatcher_ContextCancel(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	d := NewHTTPDispatcher(srv.URL, 10*time.Second)
	_, err := d.Dispatch(ctx, "/review-push", "/repo/a")
	if !errors.Is(err, ErrUpstreamTimeout) {
		t.Fatalf("error = %v, want ErrUpstreamTimeout", err)
	}
}

func TestHTTPDispatcher_Non200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"project_dir is required"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	d := NewHTTPDispatcher(srv.URL, time.Second)
	_, err := d.Dispatch(context.Background(), "/review-push", "/repo/a")
	if err == nil {
		t.Fatal("expected error for 400 response")
	}
}

func TestHTTPDispatcher_ReportedFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(DispatchResult{Success: false})
	}))
	defer srv.Close()

	d := NewHTTPDispatcher(srv.URL, time.Second)
	_, err := d.Dispatch(context.Background(), "/review-push", "/repo/a")
	if err == nil {
		t.Fatal("expected error when the server reports failure")
	}
}

func TestHTTPDispatcher_ServerUnreachable(t *testing.T) {
	d := NewHTTPDispatcher("http://127.0.0.1:1", 500*time.Millisecond)
	_, err := d.Dispatch(context.Background(), "/review-push", "/repo/a")
	if err == nil {
		t.Fatal("expected error for unreachable server")
	}
}
