package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/switchyard/internal/input"
	"github.com/zulandar/switchyard/internal/metrics"
	"github.com/zulandar/switchyard/internal/stream"
	"github.com/zulandar/switchyard/internal/supervisor"
	"github.com/zulandar/switchyard/internal/trigger"
)

type handlers struct {
	sup         *supervisor.Supervisor
	router      *input.Router
	mux         *stream.Multiplexer
	collector   *metrics.Collector
	pending     *trigger.Store
	command     string
	settleDelay time.Duration
}

type launchRequest struct {
	TaskID  string `json:"task_id"`
	WorkDir string `json:"working_dir"`
}

func (h *handlers) launchSession(c *gin.Context) {
	var req launchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if req.WorkDir == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "working_dir is required"})
		return
	}

	result, err := h.sup.Launch(req.TaskID, req.WorkDir)
	if err != nil {
		var launchErr *supervisor.LaunchError
		if errors.As(err, &launchErr) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

type sessionView struct {
	SessionID    string    `json:"session_id"`
	TaskID       string    `json:"task_id,omitempty"`
	PID          int       `json:"pid"`
	WorkDir      string    `json:"working_dir"`
	Status       string    `json:"status"`
	Subscribers  int       `json:"subscribers"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
}

func (h *handlers) listSessions(c *gin.Context) {
	sessions := h.sup.Registry().List()
	views := make([]sessionView, 0, len(sessions))
	for _, sess := range sessions {
		views = append(views, sessionView{
			SessionID:    sess.ID,
			TaskID:       sess.TaskID,
			PID:          sess.PID,
			WorkDir:      sess.WorkDir,
			Status:       sess.Status(),
			Subscribers:  h.mux.SubscriberCount(sess.ID),
			CreatedAt:    sess.CreatedAt,
			LastActivity: sess.LastActivity(),
		})
	}
	c.JSON(http.StatusOK, gin.H{"sessions": views})
}

func (h *handlers) stopSession(c *gin.Context) {
	sessionID := c.Param("id")
	if err := h.sup.Stop(sessionID); err != nil {
		// Subscribers hear about the failed stop too, not just the caller.
		h.mux.Publish(sessionID, stream.ErrorEvent(sessionID, "stop failed: "+err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

type inputRequest struct {
	Text string `json:"text"`
}

func (h *handlers) sendInput(c *gin.Context) {
	var req inputRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := h.router.SendText(c.Param("id"), req.Text); err != nil {
		h.renderInputError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

type keyRequest struct {
	Key string `json:"key"`
}

func (h *handlers) sendKey(c *gin.Context) {
	var req keyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := h.router.SendKey(c.Param("id"), req.Key); err != nil {
		h.renderInputError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *handlers) renderInputError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, supervisor.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, supervisor.ErrSessionNotActive):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, input.ErrUnknownKey):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func (h *handlers) sessionMetrics(c *gin.Context) {
	sessionID := c.Param("id")
	snap, ok := h.collector.Snapshot(sessionID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no metrics for session " + sessionID})
		return
	}
	c.JSON(http.StatusOK, snap)
}

type dispatchRequest struct {
	Command    string `json:"command"`
	ProjectDir string `json:"project_dir"`
}

// automationDispatch injects a slash command into the project's session,
// launching an unbound session first when none is running.
func (h *handlers) automationDispatch(c *gin.Context) {
	var req dispatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if req.Command == "" {
		req.Command = h.command
	}
	if !strings.HasPrefix(req.Command, "/") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "command must start with /"})
		return
	}
	if req.ProjectDir == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "project_dir is required"})
		return
	}

	mode := "dispatched"
	sess := h.sup.Registry().ByWorkDir(req.ProjectDir)
	if sess == nil {
		result, err := h.sup.Launch("", req.ProjectDir)
		if err != nil {
			var launchErr *supervisor.LaunchError
			if errors.As(err, &launchErr) {
				c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
			return
		}
		mode = "queued"
		// Give a freshly spawned agent a moment to draw its prompt before
		// the command lands.
		if h.settleDelay > 0 {
			time.Sleep(h.settleDelay)
		}
		sess = h.sup.Registry().Get(result.SessionID)
		if sess == nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"success": false, "error": "session exited before command injection"})
			return
		}
	}

	if err := h.router.SendCommand(sess.ID, req.Command); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, trigger.DispatchResult{
		Success:   true,
		SessionID: sess.ID,
		PID:       sess.PID,
		Mode:      mode,
	})
}

func (h *handlers) listPending(c *gin.Context) {
	if h.pending == nil {
		c.JSON(http.StatusOK, gin.H{"pending": []any{}})
		return
	}
	rows, err := h.pending.List()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"pending": rows})
}

func (h *handlers) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"sessions": len(h.sup.Registry().List()),
	})
}
