// Package http exposes the workspace manager's REST surface to the UI
// shell.
package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kubedesk/workspace/internal/host"
	"github.com/kubedesk/workspace/internal/infrastructure/logging"
	"github.com/kubedesk/workspace/internal/session"
	"github.com/kubedesk/workspace/internal/workspace"
)

// Handlers holds dependencies for HTTP endpoints.
type Handlers struct {
	orch *workspace.Orchestrator
	log  *logging.Logger
}

// NewHandlers creates the handler set.
func NewHandlers(orch *workspace.Orchestrator, log *logging.Logger) *Handlers {
	return &Handlers{orch: orch, log: log}
}

// Root returns service identification.
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": "workspace-manager",
		"status":  "running",
	})
}

// Health returns service health.
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":   "healthy",
		"sessions": h.orch.Registry().Len(),
	})
}

// sessionList is the tab-strip payload: ordered sessions plus the active
// pointer.
type sessionList struct {
	Sessions []session.Session `json:"sessions"`
	ActiveID string            `json:"active_id"`
}

// ListSessions returns all sessions in tab order.
func (h *Handlers) ListSessions(c *gin.Context) {
	c.JSON(http.StatusOK, sessionList{
		Sessions: h.orch.Registry().List(),
		ActiveID: h.orch.Registry().ActiveID(),
	})
}

// GetSession returns one session.
func (h *Handlers) GetSession(c *gin.Context) {
	s, ok := h.orch.Registry().Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	c.JSON(http.StatusOK, s)
}

type createSessionRequest struct {
	Kind      string `json:"kind"`
	Name      string `json:"name"`
	Command   string `json:"command"`
	ProfileID string `json:"profile_id"`
	URL       string `json:"url"`
	FilePath  string `json:"file_path"`
	Content   string `json:"content"`
	Query     string `json:"query"`
}

// CreateSession opens a new session of the requested kind and activates it.
func (h *Handlers) CreateSession(c *gin.Context) {
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	s, err := h.orch.CreateSession(c.Request.Context(), workspace.CreateRequest{
		Kind:      session.Kind(req.Kind),
		Name:      req.Name,
		Command:   req.Command,
		ProfileID: req.ProfileID,
		URL:       req.URL,
		FilePath:  req.FilePath,
		Content:   req.Content,
		Query:     req.Query,
	})
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusCreated, s)
}

// SubmitPending stages a session-creation request without opening it. The
// next consume call, or the next daemon startup, converts it; a later
// submission replaces an unconsumed one.
func (h *Handlers) SubmitPending(c *gin.Context) {
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	h.orch.Submit(workspace.CreateRequest{
		Kind:      session.Kind(req.Kind),
		Name:      req.Name,
		Command:   req.Command,
		ProfileID: req.ProfileID,
		URL:       req.URL,
		FilePath:  req.FilePath,
		Content:   req.Content,
		Query:     req.Query,
	})
	c.JSON(http.StatusAccepted, gin.H{"staged": true})
}

// ConsumePending converts the staged request, if any, into a live session.
func (h *Handlers) ConsumePending(c *gin.Context) {
	s, consumed, err := h.orch.ConsumePending(c.Request.Context())
	if err != nil {
		h.renderError(c, err)
		return
	}
	if !consumed {
		c.JSON(http.StatusOK, gin.H{"consumed": false})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"consumed": true, "session": s})
}

// CloseSession closes one session.
func (h *Handlers) CloseSession(c *gin.Context) {
	if err := h.orch.CloseSession(c.Request.Context(), c.Param("id")); err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"active_id": h.orch.Registry().ActiveID()})
}

// CloseOtherSessions closes every session except the one named.
func (h *Handlers) CloseOtherSessions(c *gin.Context) {
	if err := h.orch.CloseOthers(c.Request.Context(), c.Param("id")); err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"active_id": h.orch.Registry().ActiveID()})
}

// CloseAllSessions closes every session.
func (h *Handlers) CloseAllSessions(c *gin.Context) {
	h.orch.CloseAll(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// ActivateSession switches the active tab.
func (h *Handlers) ActivateSession(c *gin.Context) {
	if err := h.orch.Activate(c.Request.Context(), c.Param("id")); err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"active_id": h.orch.Registry().ActiveID()})
}

type renameRequest struct {
	Name string `json:"name" binding:"required"`
}

// RenameSession relabels a session.
func (h *Handlers) RenameSession(c *gin.Context) {
	var req renameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
		return
	}
	if err := h.orch.Rename(c.Request.Context(), c.Param("id"), req.Name); err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

type reorderRequest struct {
	From int `json:"from"`
	To   int `json:"to"`
}

// ReorderSessions moves a tab to a new position.
func (h *Handlers) ReorderSessions(c *gin.Context) {
	var req reorderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := h.orch.Reorder(req.From, req.To); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, sessionList{
		Sessions: h.orch.Registry().List(),
		ActiveID: h.orch.Registry().ActiveID(),
	})
}

type inputRequest struct {
	Data string `json:"data"`
}

// TerminalInput forwards keystrokes to a terminal session.
func (h *Handlers) TerminalInput(c *gin.Context) {
	var req inputRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := h.orch.SendInput(c.Request.Context(), c.Param("id"), req.Data); err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

type resizeRequest struct {
	Cols int `json:"cols" binding:"required"`
	Rows int `json:"rows" binding:"required"`
}

// TerminalResize propagates new viewport dimensions.
func (h *Handlers) TerminalResize(c *gin.Context) {
	var req resizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cols and rows are required"})
		return
	}
	if err := h.orch.ResizeTerminal(c.Request.Context(), c.Param("id"), req.Cols, req.Rows); err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// TerminalExport reconstructs recent logical lines from a terminal session,
// e.g. to attach command output to a chat message.
func (h *Handlers) TerminalExport(c *gin.Context) {
	max := 0
	if v := c.Query("lines"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "lines must be an integer"})
			return
		}
		max = n
	}
	lines, err := h.orch.ExportTerminal(c.Param("id"), max)
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"lines": lines})
}

// ShellProfiles lists the shells available on the host alongside the
// resolved default.
func (h *Handlers) ShellProfiles(c *gin.Context) {
	profiles := h.orch.Profiles()
	resp := gin.H{"profiles": profiles}
	if p, ok := h.orch.DefaultProfile(); ok {
		resp["default_id"] = p.ID
	}
	c.JSON(http.StatusOK, resp)
}

type defaultProfileRequest struct {
	ProfileID string `json:"profile_id" binding:"required"`
}

// SetDefaultShellProfile persists the default shell choice.
func (h *Handlers) SetDefaultShellProfile(c *gin.Context) {
	var req defaultProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "profile_id is required"})
		return
	}
	if err := h.orch.SetDefaultProfile(c.Request.Context(), req.ProfileID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

type navigateRequest struct {
	URL string `json:"url" binding:"required"`
}

// BrowserNavigate drives a browser session to a new address.
func (h *Handlers) BrowserNavigate(c *gin.Context) {
	var req navigateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "url is required"})
		return
	}
	if err := h.orch.Navigate(c.Request.Context(), c.Param("id"), req.URL); err != nil {
		h.renderError(c, err)
		return
	}
	h.renderBrowser(c, c.Param("id"))
}

// BrowserBack navigates one history entry back.
func (h *Handlers) BrowserBack(c *gin.Context) {
	if err := h.orch.GoBack(c.Request.Context(), c.Param("id")); err != nil {
		h.renderError(c, err)
		return
	}
	h.renderBrowser(c, c.Param("id"))
}

// BrowserForward navigates one history entry forward.
func (h *Handlers) BrowserForward(c *gin.Context) {
	if err := h.orch.GoForward(c.Request.Context(), c.Param("id")); err != nil {
		h.renderError(c, err)
		return
	}
	h.renderBrowser(c, c.Param("id"))
}

// BrowserReload reloads the current page.
func (h *Handlers) BrowserReload(c *gin.Context) {
	if err := h.orch.Reload(c.Request.Context(), c.Param("id")); err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

type boundsRequest struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// BrowserBounds pushes placeholder geometry for the overlay surface.
func (h *Handlers) BrowserBounds(c *gin.Context) {
	var req boundsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	err := h.orch.SetBounds(c.Request.Context(), c.Param("id"), host.Bounds{
		X:      req.X,
		Y:      req.Y,
		Width:  req.Width,
		Height: req.Height,
	})
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// BrowserFavorite flips the favorite flag.
func (h *Handlers) BrowserFavorite(c *gin.Context) {
	if err := h.orch.ToggleFavorite(c.Param("id")); err != nil {
		h.renderError(c, err)
		return
	}
	h.renderBrowser(c, c.Param("id"))
}

type editorDirtyRequest struct {
	Dirty *bool `json:"dirty" binding:"required"`
}

// EditorDirty records whether an editor session has unsaved changes.
func (h *Handlers) EditorDirty(c *gin.Context) {
	var req editorDirtyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "dirty is required"})
		return
	}
	if err := h.orch.MarkEditorDirty(c.Param("id"), *req.Dirty); err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

type logQueryRequest struct {
	Query string    `json:"query"`
	From  time.Time `json:"from"`
	To    time.Time `json:"to"`
}

// LoggingQuery updates a logging session's filter and time range.
func (h *Handlers) LoggingQuery(c *gin.Context) {
	var req logQueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := h.orch.SetLogQuery(c.Param("id"), req.Query, req.From, req.To); err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

type keyRequest struct {
	Chord           string `json:"chord" binding:"required"`
	EditableFocused bool   `json:"editable_focused"`
}

// HandleKey dispatches a panel keyboard chord.
func (h *Handlers) HandleKey(c *gin.Context) {
	var req keyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "chord is required"})
		return
	}
	handled, err := h.orch.HandleKey(c.Request.Context(), req.Chord, req.EditableFocused)
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"handled":   handled,
		"active_id": h.orch.Registry().ActiveID(),
	})
}

// renderBrowser responds with the refreshed session record after a browser
// operation.
func (h *Handlers) renderBrowser(c *gin.Context, sessionID string) {
	s, ok := h.orch.Registry().Get(sessionID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	c.JSON(http.StatusOK, s)
}

func (h *Handlers) renderError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, session.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, workspace.ErrWrongKind), errors.Is(err, session.ErrInvalidKind):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		h.log.Error("request failed", logging.Err(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
