package remote

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kubedesk/workspace/internal/host"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// dialBridge runs a test server acting as the daemon side and returns the
// client end of the shell connection.
func dialBridge(t *testing.T, bridge *SurfaceBridge) *websocket.Conn {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		bridge.Attach(conn)
		defer bridge.Detach(conn)
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				return
			}
			bridge.HandleMessage(raw)
		}
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	// Attach happens on the server goroutine after the dial returns. A
	// sync frame round trip proves this connection is the attached one.
	err = conn.WriteJSON(host.Event{Kind: host.EventLoadingChanged, SessionID: "sync"})
	require.NoError(t, err)
	select {
	case ev := <-bridge.Events():
		require.Equal(t, "sync", ev.SessionID)
	case <-time.After(time.Second):
		t.Fatal("bridge never attached")
	}
	return conn
}

func TestCommandsRequireConnection(t *testing.T) {
	bridge := NewSurfaceBridge(nil, nil)
	ctx := context.Background()

	err := bridge.Navigate(ctx, "sess-1", "https://grafana.local")
	assert.ErrorIs(t, err, ErrNotConnected)

	err = bridge.UpdateBounds(ctx, "sess-1", host.Bounds{Width: 800, Height: 600})
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestCommandsReachShell(t *testing.T) {
	bridge := NewSurfaceBridge(nil, nil)
	conn := dialBridge(t, bridge)
	ctx := context.Background()

	require.NoError(t, bridge.Create(ctx, "sess-1", "https://grafana.local", host.Bounds{X: 10, Y: 20, Width: 800, Height: 600}))
	require.NoError(t, bridge.Hide(ctx, "sess-1"))

	var create command
	require.NoError(t, conn.ReadJSON(&create))
	assert.Equal(t, "create", create.Op)
	assert.Equal(t, "sess-1", create.SessionID)
	assert.Equal(t, "https://grafana.local", create.URL)
	require.NotNil(t, create.Bounds)
	assert.Equal(t, 800.0, create.Bounds.Width)

	var hide command
	require.NoError(t, conn.ReadJSON(&hide))
	assert.Equal(t, "hide", hide.Op)
	assert.Nil(t, hide.Bounds)
}

func TestShellEventsReachChannel(t *testing.T) {
	bridge := NewSurfaceBridge(nil, nil)
	conn := dialBridge(t, bridge)

	err := conn.WriteJSON(host.Event{
		Kind:      host.EventAddressChanged,
		SessionID: "sess-1",
		URL:       "https://grafana.local/d/abc",
	})
	require.NoError(t, err)

	select {
	case ev := <-bridge.Events():
		assert.Equal(t, host.EventAddressChanged, ev.Kind)
		assert.Equal(t, "sess-1", ev.SessionID)
		assert.Equal(t, "https://grafana.local/d/abc", ev.URL)
	case <-time.After(time.Second):
		t.Fatal("event never delivered")
	}
}

func TestHandleMessageRejectsMalformedFrames(t *testing.T) {
	bridge := NewSurfaceBridge(nil, nil)

	assert.Error(t, bridge.HandleMessage([]byte("not json")))
	assert.Error(t, bridge.HandleMessage([]byte(`{"kind":"","session_id":""}`)))
	assert.NoError(t, bridge.HandleMessage([]byte(`{"kind":"loading-changed","session_id":"sess-1","loading":true}`)))
}

func TestDetachOnlyRemovesOwnConnection(t *testing.T) {
	bridge := NewSurfaceBridge(nil, nil)
	dialBridge(t, bridge)

	// A second dial supersedes the first; detaching the superseded
	// connection must not drop the new one.
	second := dialBridge(t, bridge)
	assert.True(t, bridge.Connected())

	require.NoError(t, bridge.Show(context.Background(), "sess-1"))

	var cmd command
	require.NoError(t, second.ReadJSON(&cmd))
	assert.Equal(t, "show", cmd.Op)
}
