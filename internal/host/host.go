// Package host defines the remote procedure surface the workspace manager
// consumes from its host process: PTY-backed terminal sessions and natively
// composited overlay surfaces. The manager never spawns processes or
// composites surfaces itself; it only drives these interfaces.
package host

import (
	"context"
	"errors"
	"time"
)

// ErrSessionNotFound is returned when a host call names an unknown session.
var ErrSessionNotFound = errors.New("host: session not found")

// TerminalSpec describes a terminal session creation request.
type TerminalSpec struct {
	Name string
	Cols int
	Rows int
	// ShellPath selects the shell program; empty means the host default.
	ShellPath string
	// InitialCommand is written to the shell once it has settled, before any
	// user input. Used to inject the cluster-context prefix.
	InitialCommand string
}

// Descriptor identifies a host-side terminal session.
type Descriptor struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Shell     string    `json:"shell"`
	Cols      int       `json:"cols"`
	Rows      int       `json:"rows"`
	CreatedAt time.Time `json:"created_at"`
}

// ShellProfile describes one shell available on the host.
type ShellProfile struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Path    string `json:"path"`
	Default bool   `json:"default"`
}

// TerminalHost is the terminal half of the host process surface.
type TerminalHost interface {
	CreateSession(ctx context.Context, spec TerminalSpec) (Descriptor, error)
	Write(ctx context.Context, sessionID string, data []byte) error
	// Read drains buffered output without blocking; an empty result means no
	// output since the previous read.
	Read(ctx context.Context, sessionID string) ([]byte, error)
	Resize(ctx context.Context, sessionID string, cols, rows int) error
	Rename(ctx context.Context, sessionID, name string) error
	Close(ctx context.Context, sessionID string) error
	CloseAll(ctx context.Context) error
	Profiles(ctx context.Context) ([]ShellProfile, error)
}

// Bounds is an absolute screen rectangle, already translated from
// window-relative coordinates and scaled for display density.
type Bounds struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// SurfaceHost is the overlay-surface half of the host process surface.
// Calls are fire-and-forget from the manager's perspective; results arrive
// as Events.
type SurfaceHost interface {
	Create(ctx context.Context, sessionID, url string, bounds Bounds) error
	Navigate(ctx context.Context, sessionID, url string) error
	GoBack(ctx context.Context, sessionID string) error
	GoForward(ctx context.Context, sessionID string) error
	Reload(ctx context.Context, sessionID string) error
	Show(ctx context.Context, sessionID string) error
	Hide(ctx context.Context, sessionID string) error
	UpdateBounds(ctx context.Context, sessionID string, bounds Bounds) error
	Close(ctx context.Context, sessionID string) error
}

// EventKind tags a push event from the host.
type EventKind string

const (
	EventAddressChanged EventKind = "address-changed"
	EventLoadingChanged EventKind = "loading-changed"
)

// Event is a push notification from the host about a surface.
type Event struct {
	Kind      EventKind `json:"kind"`
	SessionID string    `json:"session_id"`
	URL       string    `json:"url,omitempty"`
	Loading   bool      `json:"loading,omitempty"`
}

// EventSource exposes the host's push channel. The channel is closed when
// the host connection goes away.
type EventSource interface {
	Events() <-chan Event
}
