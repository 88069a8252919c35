package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/switchyard/internal/stream"
)

// sessionSSE attaches a read-only subscriber over Server-Sent Events. The
// first event is the history replay; input still goes through the POST
// endpoints.
func (h *handlers) sessionSSE(c *gin.Context) {
	sessionID := c.Param("id")
	sub, err := h.mux.Subscribe(sessionID, stream.TransportSSE)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	defer h.mux.Unsubscribe(sub)
	h.sup.RecordTransport(sessionID, string(stream.TransportSSE))

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Writer.Flush()

	ctx := c.Request.Context()
	heartbeat := time.NewTicker(15 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			// Comment line keeps proxies from timing out an idle stream.
			fmt.Fprint(c.Writer, ": heartbeat\n\n")
			c.Writer.Flush()
		case msg, ok := <-sub.C():
			if !ok {
				return
			}
			writeSSE(c.Writer, msg)
			c.Writer.Flush()
		}
	}
}

// writeSSE writes a single stream message as an SSE data line.
func writeSSE(w io.Writer, msg stream.Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", msg.Kind, data)
}
