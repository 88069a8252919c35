package server

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/zulandar/switchyard/internal/stream"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Browser clients connect from arbitrary origins; there is no
		// cookie-based auth to protect.
		return true
	},
}

// safeConn wraps a websocket.Conn with a mutex for thread-safe writes.
// gorilla/websocket doesn't support concurrent writes, so the stream writer
// goroutine and control-frame replies must be serialized.
type safeConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (sc *safeConn) writeJSON(v any) error {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.conn.WriteJSON(v)
}

func (sc *safeConn) writeControl(messageType int, data []byte) error {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.conn.WriteControl(messageType, data, time.Now().Add(5*time.Second))
}

// clientFrame is the inbound WebSocket message shape.
type clientFrame struct {
	Type    string `json:"type"` // "input", "key", or "ping"
	Content string `json:"content"`
}

// sessionWebSocket attaches a bidirectional subscriber: stream messages out,
// input frames in. The first outbound frame is always the history replay.
func (h *handlers) sessionWebSocket(c *gin.Context) {
	sessionID := c.Param("id")
	sub, err := h.mux.Subscribe(sessionID, stream.TransportWebSocket)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.mux.Unsubscribe(sub)
		return
	}
	sc := &safeConn{conn: conn}
	h.sup.RecordTransport(sessionID, string(stream.TransportWebSocket))

	// Writer: drain the subscriber queue until it closes, which happens on
	// Unsubscribe or when the session stops. Closing the conn afterwards
	// unblocks the reader below.
	go func() {
		for msg := range sub.C() {
			if err := sc.writeJSON(msg); err != nil {
				break
			}
		}
		sc.writeControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed"))
		conn.Close()
	}()

	for {
		var frame clientFrame
		if err := conn.ReadJSON(&frame); err != nil {
			break
		}
		switch frame.Type {
		case "input":
			if err := h.router.SendText(sessionID, frame.Content); err != nil {
				sc.writeJSON(stream.ErrorEvent(sessionID, err.Error()))
			}
		case "key":
			if err := h.router.SendKey(sessionID, frame.Content); err != nil {
				sc.writeJSON(stream.ErrorEvent(sessionID, err.Error()))
			}
		case "ping":
			sc.writeJSON(stream.NewMessage(sessionID, stream.PongPayload{}))
		default:
			log.Printf("server: ws %s: unknown frame type %q", sessionID, frame.Type)
		}
	}

	h.mux.Unsubscribe(sub)
	conn.Close()
}
