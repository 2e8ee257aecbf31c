package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kubedesk/workspace/internal/host"
	"github.com/kubedesk/workspace/internal/infrastructure/logging"
	"github.com/kubedesk/workspace/internal/session"
	"github.com/kubedesk/workspace/internal/storage"
	"github.com/kubedesk/workspace/internal/workspace"
)

type stubTerminals struct {
	mu     sync.Mutex
	nextID int
}

func (s *stubTerminals) CreateSession(ctx context.Context, spec host.TerminalSpec) (host.Descriptor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	name := spec.Name
	if name == "" {
		name = fmt.Sprintf("Terminal %d", s.nextID)
	}
	return host.Descriptor{ID: fmt.Sprintf("term-%d", s.nextID), Name: name}, nil
}

func (s *stubTerminals) Write(ctx context.Context, sessionID string, data []byte) error { return nil }
func (s *stubTerminals) Read(ctx context.Context, sessionID string) ([]byte, error)     { return nil, nil }
func (s *stubTerminals) Resize(ctx context.Context, sessionID string, cols, rows int) error {
	return nil
}
func (s *stubTerminals) Rename(ctx context.Context, sessionID, name string) error { return nil }
func (s *stubTerminals) Close(ctx context.Context, sessionID string) error        { return nil }
func (s *stubTerminals) CloseAll(ctx context.Context) error                       { return nil }
func (s *stubTerminals) Profiles(ctx context.Context) ([]host.ShellProfile, error) {
	return []host.ShellProfile{{ID: "bash-1a2b", Name: "bash", Path: "/bin/bash", Default: true}}, nil
}

type stubSurfaces struct{}

func (stubSurfaces) Create(ctx context.Context, sessionID, url string, bounds host.Bounds) error {
	return nil
}
func (stubSurfaces) Navigate(ctx context.Context, sessionID, url string) error { return nil }
func (stubSurfaces) GoBack(ctx context.Context, sessionID string) error        { return nil }
func (stubSurfaces) GoForward(ctx context.Context, sessionID string) error     { return nil }
func (stubSurfaces) Reload(ctx context.Context, sessionID string) error        { return nil }
func (stubSurfaces) Show(ctx context.Context, sessionID string) error          { return nil }
func (stubSurfaces) Hide(ctx context.Context, sessionID string) error          { return nil }
func (stubSurfaces) UpdateBounds(ctx context.Context, sessionID string, bounds host.Bounds) error {
	return nil
}
func (stubSurfaces) Close(ctx context.Context, sessionID string) error { return nil }

func newTestRouter(t *testing.T) (*gin.Engine, *workspace.Orchestrator) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	orch, err := workspace.New(workspace.Config{
		Terminals:    &stubTerminals{},
		Surfaces:     stubSurfaces{},
		Store:        storage.NewMemory(),
		PollInterval: time.Millisecond,
	})
	require.NoError(t, err)
	t.Cleanup(func() { orch.Shutdown(context.Background()) })

	h := NewHandlers(orch, logging.NewNop())
	router := gin.New()
	router.GET("/health", h.Health)
	router.GET("/sessions", h.ListSessions)
	router.POST("/sessions", h.CreateSession)
	router.GET("/sessions/:id", h.GetSession)
	router.DELETE("/sessions/:id", h.CloseSession)
	router.POST("/sessions/:id/activate", h.ActivateSession)
	router.POST("/sessions/:id/rename", h.RenameSession)
	router.POST("/reorder", h.ReorderSessions)
	router.POST("/sessions/:id/navigate", h.BrowserNavigate)
	router.POST("/sessions/:id/favorite", h.BrowserFavorite)
	router.PUT("/sessions/:id/bounds", h.BrowserBounds)
	router.GET("/profiles", h.ShellProfiles)
	router.POST("/keys", h.HandleKey)
	router.POST("/pending", h.SubmitPending)
	router.POST("/pending/consume", h.ConsumePending)
	return router, orch
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestCreateAndListSessions(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/sessions", gin.H{"kind": "terminal"})
	require.Equal(t, http.StatusCreated, w.Code)

	var created session.Session
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, session.KindTerminal, created.Kind)
	assert.NotEmpty(t, created.ID)

	w = doJSON(t, router, http.MethodGet, "/sessions", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var list struct {
		Sessions []session.Session `json:"sessions"`
		ActiveID string            `json:"active_id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list.Sessions, 1)
	assert.Equal(t, created.ID, list.ActiveID)
}

func TestGetUnknownSessionReturns404(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(t, router, http.MethodGet, "/sessions/no-such-id", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, router, http.MethodDelete, "/sessions/no-such-id", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateSessionRejectsUnknownKind(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/sessions", gin.H{"kind": "spreadsheet"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestActivateAndCloseFlow(t *testing.T) {
	router, _ := newTestRouter(t)

	var first, second session.Session
	w := doJSON(t, router, http.MethodPost, "/sessions", gin.H{"kind": "terminal"})
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &first))
	w = doJSON(t, router, http.MethodPost, "/sessions", gin.H{"kind": "terminal"})
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &second))

	w = doJSON(t, router, http.MethodPost, "/sessions/"+first.ID+"/activate", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, first.ID, resp["active_id"])

	// Closing the active session hands activation to the neighbor.
	w = doJSON(t, router, http.MethodDelete, "/sessions/"+first.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, second.ID, resp["active_id"])
}

func TestRenameRequiresName(t *testing.T) {
	router, _ := newTestRouter(t)

	var s session.Session
	w := doJSON(t, router, http.MethodPost, "/sessions", gin.H{"kind": "terminal"})
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &s))

	w = doJSON(t, router, http.MethodPost, "/sessions/"+s.ID+"/rename", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, router, http.MethodPost, "/sessions/"+s.ID+"/rename", gin.H{"name": "deploys"})
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, http.MethodGet, "/sessions/"+s.ID, nil)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &s))
	assert.Equal(t, "deploys", s.Name)
}

func TestReorderReturnsNewOrder(t *testing.T) {
	router, _ := newTestRouter(t)

	var a, b session.Session
	w := doJSON(t, router, http.MethodPost, "/sessions", gin.H{"kind": "terminal"})
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &a))
	w = doJSON(t, router, http.MethodPost, "/sessions", gin.H{"kind": "terminal"})
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &b))

	w = doJSON(t, router, http.MethodPost, "/reorder", gin.H{"from": 0, "to": 1})
	require.Equal(t, http.StatusOK, w.Code)

	var list struct {
		Sessions []session.Session `json:"sessions"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list.Sessions, 2)
	assert.Equal(t, b.ID, list.Sessions[0].ID)
	assert.Equal(t, a.ID, list.Sessions[1].ID)
}

func TestBrowserOperations(t *testing.T) {
	router, _ := newTestRouter(t)

	var b session.Session
	w := doJSON(t, router, http.MethodPost, "/sessions", gin.H{"kind": "browser"})
	require.Equal(t, http.StatusCreated, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &b))
	require.NotNil(t, b.Browser)
	assert.False(t, b.Browser.SurfaceCreated)

	w = doJSON(t, router, http.MethodPost, "/sessions/"+b.ID+"/navigate", gin.H{"url": "https://grafana.local"})
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &b))
	assert.True(t, b.Browser.SurfaceCreated)
	assert.Equal(t, "https://grafana.local", b.Browser.URL)

	w = doJSON(t, router, http.MethodPost, "/sessions/"+b.ID+"/favorite", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &b))
	assert.True(t, b.Browser.IsFavorite)

	w = doJSON(t, router, http.MethodPut, "/sessions/"+b.ID+"/bounds",
		gin.H{"x": 0, "y": 40, "width": 1200, "height": 800})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestBrowserOperationsRejectWrongKind(t *testing.T) {
	router, _ := newTestRouter(t)

	var s session.Session
	w := doJSON(t, router, http.MethodPost, "/sessions", gin.H{"kind": "terminal"})
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &s))

	w = doJSON(t, router, http.MethodPost, "/sessions/"+s.ID+"/favorite", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestShellProfilesEndpoint(t *testing.T) {
	router, orch := newTestRouter(t)
	require.NoError(t, orch.Start(context.Background()))

	w := doJSON(t, router, http.MethodGet, "/profiles", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Profiles  []host.ShellProfile `json:"profiles"`
		DefaultID string              `json:"default_id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Profiles, 1)
	assert.Equal(t, "bash-1a2b", resp.DefaultID)
}

func TestHandleKeyEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/keys", gin.H{"chord": "ctrl+t"})
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Handled  bool   `json:"handled"`
		ActiveID string `json:"active_id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Handled)
	assert.NotEmpty(t, resp.ActiveID)

	// With an editable control focused the chord passes through.
	w = doJSON(t, router, http.MethodPost, "/keys",
		gin.H{"chord": "ctrl+t", "editable_focused": true})
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Handled)
}

func TestPendingRequestStageAndConsume(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/pending",
		gin.H{"kind": "browser", "url": "https://grafana.local"})
	require.Equal(t, http.StatusAccepted, w.Code)

	w = doJSON(t, router, http.MethodPost, "/pending/consume", nil)
	require.Equal(t, http.StatusCreated, w.Code)

	var resp struct {
		Consumed bool            `json:"consumed"`
		Session  session.Session `json:"session"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Consumed)
	assert.Equal(t, session.KindBrowser, resp.Session.Kind)

	// Nothing is left staged after one consume.
	w = doJSON(t, router, http.MethodPost, "/pending/consume", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Consumed)
}
