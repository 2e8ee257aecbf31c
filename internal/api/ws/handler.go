// Package ws carries the two WebSocket surfaces: the UI shell's command and
// event channel, and per-terminal output streams.
package ws

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/kubedesk/workspace/internal/host/remote"
	"github.com/kubedesk/workspace/internal/infrastructure/logging"
	"github.com/kubedesk/workspace/internal/infrastructure/monitoring"
	"github.com/kubedesk/workspace/internal/workspace"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // the daemon binds to loopback
	},
}

// Handler manages WebSocket connections.
type Handler struct {
	orch     *workspace.Orchestrator
	surfaces *remote.SurfaceBridge
	log      *logging.Logger
	metrics  *monitoring.Metrics
}

// NewHandler creates a new WebSocket handler.
func NewHandler(orch *workspace.Orchestrator, surfaces *remote.SurfaceBridge, log *logging.Logger, metrics *monitoring.Metrics) *Handler {
	return &Handler{
		orch:     orch,
		surfaces: surfaces,
		log:      log,
		metrics:  metrics,
	}
}

// HandleShell attaches the UI shell process. Surface commands flow out over
// this connection; surface events flow back in.
func (h *Handler) HandleShell(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("shell upgrade failed", logging.Err(err))
		return
	}
	defer conn.Close()

	h.surfaces.Attach(conn)
	defer h.surfaces.Detach(conn)
	h.log.Info("ui shell connected")

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			h.log.Info("ui shell disconnected", logging.Err(err))
			return
		}
		if err := h.surfaces.HandleMessage(raw); err != nil {
			h.log.Warn("bad shell event", logging.Err(err))
		}
	}
}

// streamMessage is an inbound frame on a terminal stream connection.
type streamMessage struct {
	Type string `json:"type"`
	Data string `json:"data,omitempty"`
	Cols int    `json:"cols,omitempty"`
	Rows int    `json:"rows,omitempty"`
}

// HandleStream streams one terminal session's output to the client and
// accepts input and resize frames back.
func (h *Handler) HandleStream(c *gin.Context) {
	sessionID := c.Param("id")
	bridge, err := h.orch.Bridge(sessionID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "terminal session not found"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("stream upgrade failed", logging.Err(err))
		return
	}
	defer conn.Close()

	if h.metrics != nil {
		h.metrics.WSConnections.Inc()
		defer h.metrics.WSConnections.Dec()
	}

	log := h.log.WithSession(sessionID)
	log.Info("terminal stream opened")

	// The output tap fires on the bridge's poll goroutine while replies go
	// out on this one. One writer at a time.
	var writeMu sync.Mutex
	send := func(v interface{}) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		return conn.WriteJSON(v)
	}

	bridge.OnOutput(func(out []byte) {
		if err := send(gin.H{"type": "output", "data": string(out)}); err != nil {
			log.Debug("stream write failed", logging.Err(err))
		}
	})
	defer bridge.OnOutput(nil)

	ctx := c.Request.Context()
	for {
		var msg streamMessage
		if err := conn.ReadJSON(&msg); err != nil {
			log.Info("terminal stream closed", logging.Err(err))
			return
		}

		switch msg.Type {
		case "input":
			if err := h.orch.SendInput(ctx, sessionID, msg.Data); err != nil {
				send(gin.H{"type": "error", "error": err.Error()})
			}
		case "resize":
			if err := h.orch.ResizeTerminal(ctx, sessionID, msg.Cols, msg.Rows); err != nil {
				send(gin.H{"type": "error", "error": err.Error()})
			}
		case "ping":
			send(gin.H{"type": "pong"})
		default:
			send(gin.H{"type": "error", "error": "unknown message type"})
		}
	}
}
