// Package server exposes the HTTP surface: session lifecycle, WebSocket and
// SSE streaming, input routing, metrics, and the automation dispatch endpoint.
package server

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/zulandar/switchyard/internal/input"
	"github.com/zulandar/switchyard/internal/metrics"
	"github.com/zulandar/switchyard/internal/stream"
	"github.com/zulandar/switchyard/internal/supervisor"
	"github.com/zulandar/switchyard/internal/trigger"
)

// StartOpts holds configuration for the HTTP server.
type StartOpts struct {
	Supervisor  *supervisor.Supervisor
	Router      *input.Router
	Mux         *stream.Multiplexer
	Collector   *metrics.Collector
	Pending     *trigger.Store // nil disables the pending listing endpoint
	Gatherer    prometheus.Gatherer
	Command     string        // default automation slash command
	SettleDelay time.Duration // wait after launching a fresh session before injecting
	Host        string
	Port        int
	Out         io.Writer
}

// Start launches the HTTP server. It blocks until ctx is cancelled, then
// shuts down gracefully.
func Start(ctx context.Context, opts StartOpts) error {
	if opts.Supervisor == nil {
		return fmt.Errorf("server: supervisor is required")
	}
	if opts.Port <= 0 {
		opts.Port = 8484
	}

	router := NewRouter(opts)

	addr := fmt.Sprintf("%s:%d", opts.Host, opts.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	// Graceful shutdown on context cancellation.
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	if opts.Out != nil {
		fmt.Fprintf(opts.Out, "Switchyard listening on http://%s\n", addr)
	}

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: %w", err)
	}
	return nil
}

// NewRouter builds the Gin engine with all routes registered. Split from
// Start so tests can drive it through httptest.
func NewRouter(opts StartOpts) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	h := &handlers{
		sup:         opts.Supervisor,
		router:      opts.Router,
		mux:         opts.Mux,
		collector:   opts.Collector,
		pending:     opts.Pending,
		command:     opts.Command,
		settleDelay: opts.SettleDelay,
	}

	api := router.Group("/api")
	{
		api.POST("/sessions", h.launchSession)
		api.GET("/sessions", h.listSessions)
		api.DELETE("/sessions/:id", h.stopSession)
		api.GET("/sessions/:id/ws", h.sessionWebSocket)
		api.GET("/sessions/:id/events", h.sessionSSE)
		api.POST("/sessions/:id/input", h.sendInput)
		api.POST("/sessions/:id/keys", h.sendKey)
		api.GET("/sessions/:id/metrics", h.sessionMetrics)
		api.POST("/automation/dispatch", h.automationDispatch)
		api.GET("/automation/pending", h.listPending)
		api.GET("/health", h.health)
	}

	if opts.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(
			opts.Gatherer, promhttp.HandlerOpts{})))
	}

	return router
}
