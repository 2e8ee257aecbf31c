// Package overlay coordinates host-native overlay surfaces composited over
// placeholder regions in the UI. Surfaces are expensive: they exist only
// after the first navigation, and exactly one dispose call releases them.
package overlay

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/kubedesk/workspace/internal/host"
	"github.com/kubedesk/workspace/internal/infrastructure/logging"
	"github.com/kubedesk/workspace/internal/infrastructure/monitoring"
)

// State is the coordinator's lifecycle state.
type State int

const (
	// StateUninitialized: no native surface exists yet.
	StateUninitialized State = iota
	// StateVisible: surface exists and is shown over the placeholder.
	StateVisible
	// StateHidden: surface exists but the owning tab is inactive.
	StateHidden
	// StateDisposed: terminal; the surface has been released.
	StateDisposed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateVisible:
		return "visible"
	case StateHidden:
		return "hidden"
	case StateDisposed:
		return "disposed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

var (
	// ErrDisposed is returned by operations on a disposed coordinator.
	ErrDisposed = errors.New("overlay: surface disposed")
	// ErrNoSurface is returned when an operation needs a created surface.
	ErrNoSurface = errors.New("overlay: surface not created yet")
)

// Coordinator manages one browser session's native surface: lazy creation,
// bounds/visibility sync, and navigation history with back/forward
// semantics. All methods are safe for concurrent use; a bounds update that
// lands after disposal is a no-op.
type Coordinator struct {
	sessionID string
	surfaces  host.SurfaceHost
	log       *logging.Logger
	metrics   *monitoring.Metrics

	mu     sync.Mutex
	state  State
	active bool
	bounds host.Bounds

	history []string
	index   int

	// pendingProgrammatic marks an in-flight back/forward navigation whose
	// resulting address-changed signal must not append a history entry.
	// Transitioned only by beginProgrammaticNav and HandleAddressChanged.
	pendingProgrammatic bool
}

// NewCoordinator creates a coordinator for a browser session. No host call
// is made until the first navigation.
func NewCoordinator(sessionID string, surfaces host.SurfaceHost, log *logging.Logger, metrics *monitoring.Metrics) *Coordinator {
	if log == nil {
		log = logging.NewNop()
	}
	return &Coordinator{
		sessionID: sessionID,
		surfaces:  surfaces,
		log:       log.WithSession(sessionID),
		metrics:   metrics,
		state:     StateUninitialized,
		active:    true,
		index:     -1,
	}
}

// State returns the current lifecycle state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SurfaceCreated reports whether the native surface exists (or existed).
func (c *Coordinator) SurfaceCreated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state != StateUninitialized
}

// Navigate loads a new address. The first navigation creates the native
// surface at the placeholder's current bounds; later ones reuse it. A host
// failure is returned for the panel to surface; the existing surface and
// content stay untouched.
func (c *Coordinator) Navigate(ctx context.Context, url string) error {
	c.mu.Lock()
	if c.state == StateDisposed {
		c.mu.Unlock()
		return ErrDisposed
	}

	if c.state == StateUninitialized {
		bounds := c.bounds
		c.mu.Unlock()

		if err := c.surfaces.Create(ctx, c.sessionID, url, bounds); err != nil {
			return fmt.Errorf("create surface: %w", err)
		}

		c.mu.Lock()
		// Disposal raced the create; release the fresh surface instead of
		// orphaning it.
		if c.state == StateDisposed {
			c.mu.Unlock()
			c.surfaces.Close(ctx, c.sessionID)
			return ErrDisposed
		}
		if c.active {
			c.state = StateVisible
		} else {
			c.state = StateHidden
		}
		c.mu.Unlock()

		if c.metrics != nil {
			c.metrics.SurfacesLive.Inc()
		}
		c.log.Info("surface created", logging.String("url", url))
		return nil
	}
	c.mu.Unlock()

	if err := c.surfaces.Navigate(ctx, c.sessionID, url); err != nil {
		return fmt.Errorf("navigate: %w", err)
	}
	return nil
}

// GoBack navigates one entry back. The move is recorded immediately; the
// resulting address-changed signal is flagged so it does not re-append.
func (c *Coordinator) GoBack(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateDisposed {
		c.mu.Unlock()
		return ErrDisposed
	}
	if c.state == StateUninitialized {
		c.mu.Unlock()
		return ErrNoSurface
	}
	if c.index <= 0 {
		c.mu.Unlock()
		return nil
	}
	c.index--
	c.beginProgrammaticNav()
	c.mu.Unlock()

	if err := c.surfaces.GoBack(ctx, c.sessionID); err != nil {
		// No signal will arrive for a failed move; put the index back and
		// disarm the guard so the next genuine navigation is recorded.
		c.mu.Lock()
		c.index++
		c.pendingProgrammatic = false
		c.mu.Unlock()
		return fmt.Errorf("go back: %w", err)
	}
	return nil
}

// GoForward navigates one entry forward.
func (c *Coordinator) GoForward(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateDisposed {
		c.mu.Unlock()
		return ErrDisposed
	}
	if c.state == StateUninitialized {
		c.mu.Unlock()
		return ErrNoSurface
	}
	if c.index >= len(c.history)-1 {
		c.mu.Unlock()
		return nil
	}
	c.index++
	c.beginProgrammaticNav()
	c.mu.Unlock()

	if err := c.surfaces.GoForward(ctx, c.sessionID); err != nil {
		c.mu.Lock()
		c.index--
		c.pendingProgrammatic = false
		c.mu.Unlock()
		return fmt.Errorf("go forward: %w", err)
	}
	return nil
}

// Reload reloads the current page. The resulting address-changed signal
// carries the current address, which duplicate suppression absorbs.
func (c *Coordinator) Reload(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateDisposed {
		c.mu.Unlock()
		return ErrDisposed
	}
	if c.state == StateUninitialized {
		c.mu.Unlock()
		return ErrNoSurface
	}
	c.mu.Unlock()

	if err := c.surfaces.Reload(ctx, c.sessionID); err != nil {
		return fmt.Errorf("reload: %w", err)
	}
	return nil
}

// beginProgrammaticNav arms the guard. Caller holds c.mu.
func (c *Coordinator) beginProgrammaticNav() {
	c.pendingProgrammatic = true
}

// HandleAddressChanged folds the host's address-changed signal into the
// history. A programmatic back/forward clears the guard without appending;
// a new address truncates forward history, and a repeat of the current top
// is not duplicated.
func (c *Coordinator) HandleAddressChanged(url string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateDisposed {
		return
	}

	if c.pendingProgrammatic {
		c.pendingProgrammatic = false
		return
	}

	if c.index >= 0 && c.index < len(c.history) {
		c.history = c.history[:c.index+1]
		if c.history[c.index] == url {
			return
		}
	}
	c.history = append(c.history, url)
	c.index = len(c.history) - 1
}

// SetActive follows the owning tab's activation. Becoming active shows the
// surface and then refreshes its bounds, in that order; becoming inactive
// hides it so it cannot render over the visible tab.
func (c *Coordinator) SetActive(ctx context.Context, active bool) error {
	c.mu.Lock()
	c.active = active
	if c.state == StateDisposed || c.state == StateUninitialized {
		c.mu.Unlock()
		return nil
	}

	if active {
		c.state = StateVisible
		bounds := c.bounds
		c.mu.Unlock()

		if err := c.surfaces.Show(ctx, c.sessionID); err != nil {
			c.log.Warn("surface show failed", logging.Err(err))
			return err
		}
		if err := c.surfaces.UpdateBounds(ctx, c.sessionID, bounds); err != nil {
			c.log.Warn("bounds refresh failed", logging.Err(err))
		}
		return nil
	}

	c.state = StateHidden
	c.mu.Unlock()

	if err := c.surfaces.Hide(ctx, c.sessionID); err != nil {
		c.log.Warn("surface hide failed", logging.Err(err))
		return err
	}
	return nil
}

// SetBounds records the placeholder's absolute geometry and pushes it to
// the host only while the surface is visible. Pushes while hidden are
// suppressed; updates after disposal are no-ops.
func (c *Coordinator) SetBounds(ctx context.Context, bounds host.Bounds) error {
	c.mu.Lock()
	if c.state == StateDisposed {
		c.mu.Unlock()
		return nil
	}
	c.bounds = bounds
	if c.state != StateVisible {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	if err := c.surfaces.UpdateBounds(ctx, c.sessionID, bounds); err != nil {
		c.log.Warn("bounds update failed", logging.Err(err))
		return err
	}
	return nil
}

// Dispose releases the native surface. At most one host close is issued; a
// second Dispose is a no-op. An undisposed surface keeps rendering forever,
// so session close and coordinator teardown both funnel here.
func (c *Coordinator) Dispose(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateDisposed {
		c.mu.Unlock()
		return nil
	}
	hadSurface := c.state != StateUninitialized
	c.state = StateDisposed
	c.mu.Unlock()

	if !hadSurface {
		return nil
	}

	if c.metrics != nil {
		c.metrics.SurfacesLive.Dec()
	}
	if err := c.surfaces.Close(ctx, c.sessionID); err != nil {
		c.log.Warn("surface close failed", logging.Err(err))
		return err
	}
	c.log.Info("surface disposed")
	return nil
}

// History returns a copy of the visited addresses and the current index.
func (c *Coordinator) History() ([]string, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.history))
	copy(out, c.history)
	return out, c.index
}

// URL returns the current address, or empty before any navigation settles.
func (c *Coordinator) URL() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.index < 0 || c.index >= len(c.history) {
		return ""
	}
	return c.history[c.index]
}

// CanGoBack reports whether a back navigation is possible.
func (c *Coordinator) CanGoBack() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.index > 0
}

// CanGoForward reports whether a forward navigation is possible.
func (c *Coordinator) CanGoForward() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.index < len(c.history)-1
}
