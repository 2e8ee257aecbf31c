// Package remote implements the host surface over a WebSocket connection to
// the UI shell process, which owns the native webview overlays.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/kubedesk/workspace/internal/host"
	"github.com/kubedesk/workspace/internal/infrastructure/logging"
	"github.com/kubedesk/workspace/internal/infrastructure/monitoring"
)

// ErrNotConnected is returned when a surface command is issued while no UI
// shell connection is attached.
var ErrNotConnected = errors.New("remote: ui shell not connected")

// command is one surface instruction sent to the UI shell.
type command struct {
	Op        string       `json:"op"`
	SessionID string       `json:"session_id"`
	URL       string       `json:"url,omitempty"`
	Bounds    *host.Bounds `json:"bounds,omitempty"`
}

// SurfaceBridge implements host.SurfaceHost by forwarding commands to the
// connected UI shell and host.EventSource by relaying its push events. At
// most one shell connection is attached at a time; a new attach supersedes
// the previous connection.
type SurfaceBridge struct {
	log     *logging.Logger
	metrics *monitoring.Metrics

	mu   sync.Mutex
	conn *websocket.Conn

	events chan host.Event
}

// NewSurfaceBridge creates a bridge with no attached connection. Commands
// fail with ErrNotConnected until the shell connects.
func NewSurfaceBridge(log *logging.Logger, metrics *monitoring.Metrics) *SurfaceBridge {
	if log == nil {
		log = logging.NewNop()
	}
	return &SurfaceBridge{
		log:     log,
		metrics: metrics,
		events:  make(chan host.Event, 64),
	}
}

// Attach installs the shell connection, superseding any previous one.
func (b *SurfaceBridge) Attach(conn *websocket.Conn) {
	b.mu.Lock()
	prev := b.conn
	b.conn = conn
	b.mu.Unlock()

	if prev != nil && prev != conn {
		prev.Close()
		b.log.Warn("ui shell reconnected, dropped previous connection")
	}
}

// Detach removes the connection if it is still the attached one.
func (b *SurfaceBridge) Detach(conn *websocket.Conn) {
	b.mu.Lock()
	if b.conn == conn {
		b.conn = nil
	}
	b.mu.Unlock()
}

// Connected reports whether a shell connection is attached.
func (b *SurfaceBridge) Connected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.conn != nil
}

// Events returns the push channel fed by HandleMessage.
func (b *SurfaceBridge) Events() <-chan host.Event {
	return b.events
}

// HandleMessage parses one event frame from the shell connection and pushes
// it to the events channel. A full channel drops the event rather than
// stalling the read loop.
func (b *SurfaceBridge) HandleMessage(raw []byte) error {
	var ev host.Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		return fmt.Errorf("decode shell event: %w", err)
	}
	if ev.Kind == "" || ev.SessionID == "" {
		return errors.New("remote: shell event missing kind or session_id")
	}

	select {
	case b.events <- ev:
	default:
		b.log.Warn("event channel full, dropping shell event",
			logging.String("kind", string(ev.Kind)),
			logging.String("session_id", ev.SessionID))
	}
	return nil
}

// send writes one command frame to the attached connection. The write lock
// doubles as the websocket's single-writer guarantee.
func (b *SurfaceBridge) send(cmd command) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var err error
	if b.conn == nil {
		err = ErrNotConnected
	} else {
		err = b.conn.WriteJSON(cmd)
	}
	if b.metrics != nil {
		b.metrics.RecordHostCall("surface_"+cmd.Op, err)
	}
	if err != nil && !errors.Is(err, ErrNotConnected) {
		return fmt.Errorf("send surface %s: %w", cmd.Op, err)
	}
	return err
}

func (b *SurfaceBridge) Create(ctx context.Context, sessionID, url string, bounds host.Bounds) error {
	return b.send(command{Op: "create", SessionID: sessionID, URL: url, Bounds: &bounds})
}

func (b *SurfaceBridge) Navigate(ctx context.Context, sessionID, url string) error {
	return b.send(command{Op: "navigate", SessionID: sessionID, URL: url})
}

func (b *SurfaceBridge) GoBack(ctx context.Context, sessionID string) error {
	return b.send(command{Op: "back", SessionID: sessionID})
}

func (b *SurfaceBridge) GoForward(ctx context.Context, sessionID string) error {
	return b.send(command{Op: "forward", SessionID: sessionID})
}

func (b *SurfaceBridge) Reload(ctx context.Context, sessionID string) error {
	return b.send(command{Op: "reload", SessionID: sessionID})
}

func (b *SurfaceBridge) Show(ctx context.Context, sessionID string) error {
	return b.send(command{Op: "show", SessionID: sessionID})
}

func (b *SurfaceBridge) Hide(ctx context.Context, sessionID string) error {
	return b.send(command{Op: "hide", SessionID: sessionID})
}

func (b *SurfaceBridge) UpdateBounds(ctx context.Context, sessionID string, bounds host.Bounds) error {
	return b.send(command{Op: "bounds", SessionID: sessionID, Bounds: &bounds})
}

func (b *SurfaceBridge) Close(ctx context.Context, sessionID string) error {
	return b.send(command{Op: "close", SessionID: sessionID})
}
