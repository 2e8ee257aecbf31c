// Package workspace ties the session registry, PTY bridges and overlay
// coordinators together behind the facade the rest of the application uses.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kubedesk/workspace/internal/host"
	"github.com/kubedesk/workspace/internal/infrastructure/logging"
	"github.com/kubedesk/workspace/internal/infrastructure/monitoring"
	"github.com/kubedesk/workspace/internal/overlay"
	"github.com/kubedesk/workspace/internal/session"
	"github.com/kubedesk/workspace/internal/storage"
	"github.com/kubedesk/workspace/internal/terminal"
)

var (
	// ErrWrongKind is returned when an operation targets a session of
	// another kind.
	ErrWrongKind = errors.New("workspace: operation not valid for session kind")
)

// CreateRequest is an externally signaled "please open a session" request,
// e.g. from a chat assistant wanting to run a command.
type CreateRequest struct {
	Kind session.Kind
	Name string

	// Terminal fields
	Command   string
	ProfileID string

	// Browser fields
	URL string

	// Editor fields
	FilePath string
	Content  string

	// Logging fields
	Query string
	From  time.Time
	To    time.Time
}

// Config configures an Orchestrator.
type Config struct {
	Terminals host.TerminalHost
	Surfaces  host.SurfaceHost
	// Events is the host's push channel for surface signals. Optional.
	Events  <-chan host.Event
	Store   storage.Store
	Log     *logging.Logger
	Metrics *monitoring.Metrics

	PollInterval    time.Duration
	DefaultCols     int
	DefaultRows     int
	ExportLineLimit int
	ClusterContext  string

	// NewScreen builds the screen buffer for each terminal session. Nil
	// uses the built-in logical line buffer.
	NewScreen func(cols int) terminal.Screen
}

// Orchestrator owns the session registry and the per-session resource
// objects. All mutations are driven through it so activation changes and
// resource release stay in lockstep with registry state.
type Orchestrator struct {
	cfg      Config
	registry *session.Registry
	log      *logging.Logger

	mu       sync.Mutex
	bridges  map[string]*terminal.Bridge
	overlays map[string]*overlay.Coordinator
	pending  *CreateRequest

	profiles       []host.ShellProfile
	defaultProfile host.ShellProfile
	haveProfile    bool

	pumpDone chan struct{}
}

// New creates an orchestrator. Call Start to resolve profiles and open the
// initial session.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Terminals == nil {
		return nil, errors.New("workspace: terminal host is required")
	}
	if cfg.Log == nil {
		cfg.Log = logging.NewNop()
	}
	if cfg.Store == nil {
		cfg.Store = storage.NewMemory()
	}
	if cfg.DefaultCols <= 0 {
		cfg.DefaultCols = 80
	}
	if cfg.DefaultRows <= 0 {
		cfg.DefaultRows = 24
	}
	if cfg.ExportLineLimit <= 0 {
		cfg.ExportLineLimit = 200
	}

	o := &Orchestrator{
		cfg:      cfg,
		registry: session.NewRegistry(),
		log:      cfg.Log,
		bridges:  make(map[string]*terminal.Bridge),
		overlays: make(map[string]*overlay.Coordinator),
	}
	o.registry.OnClose(o.releaseResources)
	return o, nil
}

// Registry exposes the session registry for read-side consumers.
func (o *Orchestrator) Registry() *session.Registry {
	return o.registry
}

// Start resolves shell profiles, consumes a pending creation request or
// opens one default terminal session, and begins draining host events.
func (o *Orchestrator) Start(ctx context.Context) error {
	if err := o.refreshProfiles(ctx); err != nil {
		o.log.Warn("shell profile resolution failed", logging.Err(err))
	}

	if o.cfg.Events != nil {
		o.pumpDone = make(chan struct{})
		go o.pumpEvents(ctx)
	}

	if _, consumed, err := o.ConsumePending(ctx); err != nil {
		return err
	} else if consumed {
		return nil
	}

	if o.registry.Len() == 0 {
		_, err := o.CreateTerminal(ctx, CreateRequest{})
		if err != nil {
			return fmt.Errorf("create default terminal: %w", err)
		}
	}
	return nil
}

// Shutdown closes every session, releasing all host resources.
func (o *Orchestrator) Shutdown(ctx context.Context) {
	o.registry.CloseAll()
	if o.pumpDone != nil {
		select {
		case <-o.pumpDone:
		case <-ctx.Done():
		}
	}
}

// refreshProfiles queries the host's shell profiles and resolves the
// effective default, preferring a persisted choice that still exists.
func (o *Orchestrator) refreshProfiles(ctx context.Context) error {
	profiles, err := o.cfg.Terminals.Profiles(ctx)
	if err != nil {
		return fmt.Errorf("list shell profiles: %w", err)
	}

	saved, err := o.cfg.Store.DefaultProfile(ctx)
	if err != nil {
		o.log.Warn("reading saved default profile failed", logging.Err(err))
		saved = ""
	}

	resolved, ok := ResolveDefaultProfile(profiles, saved)

	o.mu.Lock()
	o.profiles = profiles
	o.defaultProfile = resolved
	o.haveProfile = ok
	o.mu.Unlock()

	if saved != "" && (!ok || resolved.ID != saved) {
		o.log.Info("saved default profile unavailable, using host default",
			logging.String("saved", saved),
			logging.String("resolved", resolved.ID))
	}
	return nil
}

// Profiles returns the last fetched shell profiles.
func (o *Orchestrator) Profiles() []host.ShellProfile {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]host.ShellProfile, len(o.profiles))
	copy(out, o.profiles)
	return out
}

// DefaultProfile returns the resolved default shell profile.
func (o *Orchestrator) DefaultProfile() (host.ShellProfile, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.defaultProfile, o.haveProfile
}

// SetDefaultProfile persists a new default shell profile choice.
func (o *Orchestrator) SetDefaultProfile(ctx context.Context, profileID string) error {
	o.mu.Lock()
	var chosen *host.ShellProfile
	for i := range o.profiles {
		if o.profiles[i].ID == profileID {
			chosen = &o.profiles[i]
			break
		}
	}
	if chosen == nil {
		o.mu.Unlock()
		return fmt.Errorf("unknown shell profile: %s", profileID)
	}
	o.defaultProfile = *chosen
	o.haveProfile = true
	o.mu.Unlock()

	return o.cfg.Store.SetDefaultProfile(ctx, profileID)
}

// Submit stages an external session-creation request. A later Submit
// before consumption replaces the staged request.
func (o *Orchestrator) Submit(req CreateRequest) {
	o.mu.Lock()
	if o.pending != nil {
		o.log.Warn("replacing unconsumed pending session request")
	}
	o.pending = &req
	o.mu.Unlock()
}

// ConsumePending converts at most one staged request into a session and
// acknowledges it so it is never replayed.
func (o *Orchestrator) ConsumePending(ctx context.Context) (session.Session, bool, error) {
	o.mu.Lock()
	req := o.pending
	o.pending = nil
	o.mu.Unlock()

	if req == nil {
		return session.Session{}, false, nil
	}

	s, err := o.CreateSession(ctx, *req)
	if err != nil {
		return session.Session{}, true, err
	}
	return s, true, nil
}

// CreateSession dispatches on the request kind.
func (o *Orchestrator) CreateSession(ctx context.Context, req CreateRequest) (session.Session, error) {
	switch req.Kind {
	case session.KindTerminal, "":
		return o.CreateTerminal(ctx, req)
	case session.KindBrowser:
		return o.CreateBrowser(ctx, req)
	case session.KindEditor:
		return o.CreateEditor(ctx, req)
	case session.KindLogging:
		return o.CreateLogging(ctx, req)
	default:
		return session.Session{}, fmt.Errorf("%w: %q", session.ErrInvalidKind, req.Kind)
	}
}

// CreateTerminal opens a host shell and registers the session under the
// host-issued ID. A host creation failure aborts with no registry record.
func (o *Orchestrator) CreateTerminal(ctx context.Context, req CreateRequest) (session.Session, error) {
	shellPath := ""
	o.mu.Lock()
	if req.ProfileID != "" {
		for _, p := range o.profiles {
			if p.ID == req.ProfileID {
				shellPath = p.Path
				break
			}
		}
	} else if o.haveProfile {
		shellPath = o.defaultProfile.Path
	}
	o.mu.Unlock()

	initial := BuildInitialCommand(shellPath, o.cfg.ClusterContext, req.Command)

	var screen terminal.Screen
	if o.cfg.NewScreen != nil {
		screen = o.cfg.NewScreen(o.cfg.DefaultCols)
	}

	prevActive := o.registry.ActiveID()

	bridge, err := terminal.Start(ctx, terminal.Config{
		Host:         o.cfg.Terminals,
		Screen:       screen,
		Log:          o.cfg.Log,
		Metrics:      o.cfg.Metrics,
		PollInterval: o.cfg.PollInterval,
		Spec: host.TerminalSpec{
			Name:           req.Name,
			Cols:           o.cfg.DefaultCols,
			Rows:           o.cfg.DefaultRows,
			ShellPath:      shellPath,
			InitialCommand: initial,
		},
	})
	if err != nil {
		return session.Session{}, err
	}

	name := req.Name
	if name == "" {
		name = bridge.Descriptor().Name
	}

	s, err := o.registry.Create(session.KindTerminal, session.CreateOptions{
		ID:   bridge.ID(),
		Name: name,
	})
	if err != nil {
		bridge.Close(ctx)
		return session.Session{}, err
	}

	o.mu.Lock()
	o.bridges[s.ID] = bridge
	o.mu.Unlock()

	o.recordOpen(session.KindTerminal)
	o.propagateActivation(ctx, prevActive, s.ID)
	return s, nil
}

// CreateBrowser registers a browser session. The native surface is not
// created until the first navigation.
func (o *Orchestrator) CreateBrowser(ctx context.Context, req CreateRequest) (session.Session, error) {
	name := req.Name
	if name == "" {
		name = "Browser"
	}

	prevActive := o.registry.ActiveID()

	s, err := o.registry.Create(session.KindBrowser, session.CreateOptions{
		Name:    name,
		Browser: &session.BrowserState{URL: req.URL},
	})
	if err != nil {
		return session.Session{}, err
	}

	coord := overlay.NewCoordinator(s.ID, o.cfg.Surfaces, o.cfg.Log, o.cfg.Metrics)
	o.mu.Lock()
	o.overlays[s.ID] = coord
	o.mu.Unlock()

	o.recordOpen(session.KindBrowser)
	o.propagateActivation(ctx, prevActive, s.ID)

	if req.URL != "" {
		if err := o.Navigate(ctx, s.ID, req.URL); err != nil {
			o.log.Warn("initial navigation failed",
				logging.String("session_id", s.ID), logging.Err(err))
		}
		if updated, ok := o.registry.Get(s.ID); ok {
			s = updated
		}
	}
	return s, nil
}

// CreateEditor registers an editor session.
func (o *Orchestrator) CreateEditor(ctx context.Context, req CreateRequest) (session.Session, error) {
	name := req.Name
	if name == "" {
		name = req.FilePath
	}

	prevActive := o.registry.ActiveID()
	s, err := o.registry.Create(session.KindEditor, session.CreateOptions{
		Name: name,
		Editor: &session.EditorState{
			FilePath: req.FilePath,
			Content:  req.Content,
		},
	})
	if err != nil {
		return session.Session{}, err
	}

	o.recordOpen(session.KindEditor)
	o.propagateActivation(ctx, prevActive, s.ID)
	return s, nil
}

// CreateLogging registers a log-query session.
func (o *Orchestrator) CreateLogging(ctx context.Context, req CreateRequest) (session.Session, error) {
	name := req.Name
	if name == "" {
		name = "Logs"
	}

	prevActive := o.registry.ActiveID()
	s, err := o.registry.Create(session.KindLogging, session.CreateOptions{
		Name: name,
		Logging: &session.LoggingState{
			Query: req.Query,
			From:  req.From,
			To:    req.To,
		},
	})
	if err != nil {
		return session.Session{}, err
	}

	o.recordOpen(session.KindLogging)
	o.propagateActivation(ctx, prevActive, s.ID)
	return s, nil
}

// CloseSession closes one session; resource release rides the registry's
// close notification.
func (o *Orchestrator) CloseSession(ctx context.Context, sessionID string) error {
	prevActive := o.registry.ActiveID()
	if err := o.registry.Close(sessionID); err != nil {
		return err
	}
	o.propagateActivation(ctx, prevActive, o.registry.ActiveID())
	return nil
}

// CloseOthers closes every session but one.
func (o *Orchestrator) CloseOthers(ctx context.Context, keepID string) error {
	prevActive := o.registry.ActiveID()
	if err := o.registry.CloseOthers(keepID); err != nil {
		return err
	}
	o.propagateActivation(ctx, prevActive, keepID)
	return nil
}

// CloseAll closes every session.
func (o *Orchestrator) CloseAll(ctx context.Context) {
	o.registry.CloseAll()
}

// Rename relabels a session, and for terminals mirrors the label to the
// host.
func (o *Orchestrator) Rename(ctx context.Context, sessionID, name string) error {
	if err := o.registry.Rename(sessionID, name); err != nil {
		return err
	}
	s, ok := o.registry.Get(sessionID)
	if !ok {
		return nil
	}
	switch s.Kind {
	case session.KindTerminal:
		if err := o.cfg.Terminals.Rename(ctx, sessionID, name); err != nil {
			o.log.Warn("host rename failed",
				logging.String("session_id", sessionID), logging.Err(err))
		}
	case session.KindBrowser, session.KindEditor, session.KindLogging:
		// Label-only kinds.
	}
	return nil
}

// Reorder passes straight through to the registry.
func (o *Orchestrator) Reorder(fromIndex, toIndex int) error {
	return o.registry.Reorder(fromIndex, toIndex)
}

// Activate switches the active tab and propagates footprint changes to the
// sessions leaving and entering the foreground.
func (o *Orchestrator) Activate(ctx context.Context, sessionID string) error {
	prevActive := o.registry.ActiveID()
	if prevActive == sessionID {
		return nil
	}
	if err := o.registry.SetActive(sessionID); err != nil {
		return err
	}
	o.propagateActivation(ctx, prevActive, sessionID)
	return nil
}

// propagateActivation applies show/hide to the overlay coordinators of the
// sessions that left and entered the foreground. Visibility is applied
// before any later geometry work for the same session.
func (o *Orchestrator) propagateActivation(ctx context.Context, oldID, newID string) {
	if oldID == newID {
		return
	}
	if oldID != "" {
		if coord := o.overlayFor(oldID); coord != nil {
			coord.SetActive(ctx, false)
		}
	}
	if newID != "" {
		if coord := o.overlayFor(newID); coord != nil {
			coord.SetActive(ctx, true)
		}
	}
}

func (o *Orchestrator) overlayFor(sessionID string) *overlay.Coordinator {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.overlays[sessionID]
}

func (o *Orchestrator) bridgeFor(sessionID string) (*terminal.Bridge, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	b, ok := o.bridges[sessionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", session.ErrNotFound, sessionID)
	}
	return b, nil
}

// Bridge returns the PTY bridge for a terminal session.
func (o *Orchestrator) Bridge(sessionID string) (*terminal.Bridge, error) {
	return o.bridgeFor(sessionID)
}

// SendInput forwards keystrokes to a terminal session.
func (o *Orchestrator) SendInput(ctx context.Context, sessionID, data string) error {
	b, err := o.bridgeFor(sessionID)
	if err != nil {
		return err
	}
	return b.SendInput(ctx, data)
}

// ResizeTerminal propagates new viewport dimensions.
func (o *Orchestrator) ResizeTerminal(ctx context.Context, sessionID string, cols, rows int) error {
	b, err := o.bridgeFor(sessionID)
	if err != nil {
		return err
	}
	return b.Resize(ctx, cols, rows)
}

// ExportTerminal reconstructs recent logical lines from a terminal session.
func (o *Orchestrator) ExportTerminal(sessionID string, max int) ([]string, error) {
	b, err := o.bridgeFor(sessionID)
	if err != nil {
		return nil, err
	}
	if max <= 0 || max > o.cfg.ExportLineLimit {
		max = o.cfg.ExportLineLimit
	}
	return b.ExportLines(max), nil
}

// Navigate drives a browser session to a new address.
func (o *Orchestrator) Navigate(ctx context.Context, sessionID, url string) error {
	coord := o.overlayFor(sessionID)
	if coord == nil {
		return fmt.Errorf("%w: %s", ErrWrongKind, sessionID)
	}
	if err := coord.Navigate(ctx, url); err != nil {
		return err
	}
	// The address reflects the request immediately; history waits for the
	// host's address-changed signal.
	o.registry.Update(sessionID, func(s *session.Session) {
		if s.Browser != nil {
			s.Browser.URL = url
			s.Browser.SurfaceCreated = coord.SurfaceCreated()
		}
	})
	return nil
}

// GoBack navigates a browser session one history entry back.
func (o *Orchestrator) GoBack(ctx context.Context, sessionID string) error {
	coord := o.overlayFor(sessionID)
	if coord == nil {
		return fmt.Errorf("%w: %s", ErrWrongKind, sessionID)
	}
	if err := coord.GoBack(ctx); err != nil {
		return err
	}
	o.syncBrowserState(sessionID)
	return nil
}

// GoForward navigates a browser session one history entry forward.
func (o *Orchestrator) GoForward(ctx context.Context, sessionID string) error {
	coord := o.overlayFor(sessionID)
	if coord == nil {
		return fmt.Errorf("%w: %s", ErrWrongKind, sessionID)
	}
	if err := coord.GoForward(ctx); err != nil {
		return err
	}
	o.syncBrowserState(sessionID)
	return nil
}

// Reload reloads a browser session.
func (o *Orchestrator) Reload(ctx context.Context, sessionID string) error {
	coord := o.overlayFor(sessionID)
	if coord == nil {
		return fmt.Errorf("%w: %s", ErrWrongKind, sessionID)
	}
	return coord.Reload(ctx)
}

// SetBounds pushes placeholder geometry to a browser session's surface.
func (o *Orchestrator) SetBounds(ctx context.Context, sessionID string, bounds host.Bounds) error {
	coord := o.overlayFor(sessionID)
	if coord == nil {
		return fmt.Errorf("%w: %s", ErrWrongKind, sessionID)
	}
	return coord.SetBounds(ctx, bounds)
}

// ToggleFavorite flips a browser session's favorite flag.
func (o *Orchestrator) ToggleFavorite(sessionID string) error {
	return o.updateKind(sessionID, session.KindBrowser, func(s *session.Session) {
		s.Browser.IsFavorite = !s.Browser.IsFavorite
	})
}

// MarkEditorDirty records unsaved changes on an editor session.
func (o *Orchestrator) MarkEditorDirty(sessionID string, dirty bool) error {
	return o.updateKind(sessionID, session.KindEditor, func(s *session.Session) {
		s.Editor.HasUnsavedChanges = dirty
	})
}

// SetLogQuery updates a logging session's filter and time range.
func (o *Orchestrator) SetLogQuery(sessionID, query string, from, to time.Time) error {
	return o.updateKind(sessionID, session.KindLogging, func(s *session.Session) {
		s.Logging.Query = query
		s.Logging.From = from
		s.Logging.To = to
	})
}

func (o *Orchestrator) updateKind(sessionID string, kind session.Kind, fn func(*session.Session)) error {
	s, ok := o.registry.Get(sessionID)
	if !ok {
		return fmt.Errorf("%w: %s", session.ErrNotFound, sessionID)
	}
	if s.Kind != kind {
		return fmt.Errorf("%w: %s is %s", ErrWrongKind, sessionID, s.Kind)
	}
	return o.registry.Update(sessionID, fn)
}

// HandleKey dispatches a panel keyboard chord. It does nothing when a
// text-editing control holds focus: the terminal's own input capture takes
// precedence while focused.
func (o *Orchestrator) HandleKey(ctx context.Context, chord string, editableFocused bool) (bool, error) {
	if editableFocused {
		return false, nil
	}

	shortcut, n := ParseChord(chord)
	switch shortcut {
	case ShortcutNone:
		return false, nil
	case ShortcutNewTab:
		_, err := o.CreateTerminal(ctx, CreateRequest{})
		return true, err
	case ShortcutCloseTab:
		active := o.registry.ActiveID()
		if active == "" {
			return true, nil
		}
		return true, o.CloseSession(ctx, active)
	case ShortcutNextTab:
		return true, o.step(ctx, 1)
	case ShortcutPrevTab:
		return true, o.step(ctx, -1)
	case ShortcutJumpTab:
		list := o.registry.List()
		if n > len(list) {
			return true, nil
		}
		return true, o.Activate(ctx, list[n-1].ID)
	default:
		return false, nil
	}
}

// step moves activation by delta in tab order, wrapping at the edges.
func (o *Orchestrator) step(ctx context.Context, delta int) error {
	list := o.registry.List()
	if len(list) == 0 {
		return nil
	}
	idx := o.registry.IndexOf(o.registry.ActiveID())
	if idx < 0 {
		idx = 0
	}
	next := (idx + delta + len(list)) % len(list)
	return o.Activate(ctx, list[next].ID)
}

// pumpEvents drains the host's push channel and folds surface signals into
// the coordinators and registry records.
func (o *Orchestrator) pumpEvents(ctx context.Context) {
	defer close(o.pumpDone)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-o.cfg.Events:
			if !ok {
				return
			}
			o.handleEvent(ev)
		}
	}
}

func (o *Orchestrator) handleEvent(ev host.Event) {
	switch ev.Kind {
	case host.EventAddressChanged:
		if coord := o.overlayFor(ev.SessionID); coord != nil {
			coord.HandleAddressChanged(ev.URL)
		}
		o.syncBrowserState(ev.SessionID)
	case host.EventLoadingChanged:
		o.registry.Update(ev.SessionID, func(s *session.Session) {
			if s.Browser != nil {
				s.Browser.IsLoading = ev.Loading
			}
		})
	default:
		o.log.Debug("ignoring unknown host event", logging.String("kind", string(ev.Kind)))
	}
}

// syncBrowserState mirrors coordinator state into the session record.
func (o *Orchestrator) syncBrowserState(sessionID string) {
	coord := o.overlayFor(sessionID)
	if coord == nil {
		return
	}
	_, index := coord.History()
	url := coord.URL()
	created := coord.SurfaceCreated()
	o.registry.Update(sessionID, func(s *session.Session) {
		if s.Browser == nil {
			return
		}
		s.Browser.SurfaceCreated = created
		s.Browser.HistoryIndex = index
		if url != "" {
			s.Browser.URL = url
		}
	})
}

// releaseResources is the registry's close hook: every removed session
// releases its live resource exactly once.
func (o *Orchestrator) releaseResources(s session.Session) {
	switch s.Kind {
	case session.KindTerminal:
		o.mu.Lock()
		bridge := o.bridges[s.ID]
		delete(o.bridges, s.ID)
		o.mu.Unlock()
		if bridge != nil {
			if err := bridge.Close(context.Background()); err != nil {
				o.log.Warn("terminal close failed",
					logging.String("session_id", s.ID), logging.Err(err))
			}
		}
	case session.KindBrowser:
		o.mu.Lock()
		coord := o.overlays[s.ID]
		delete(o.overlays, s.ID)
		o.mu.Unlock()
		if coord != nil {
			if err := coord.Dispose(context.Background()); err != nil {
				o.log.Warn("surface dispose failed",
					logging.String("session_id", s.ID), logging.Err(err))
			}
		}
	case session.KindEditor, session.KindLogging:
		// No host-side resource.
	}

	if o.cfg.Metrics != nil {
		o.cfg.Metrics.SessionsClosed.WithLabelValues(string(s.Kind)).Inc()
		o.cfg.Metrics.SessionsActive.WithLabelValues(string(s.Kind)).Dec()
	}
}

func (o *Orchestrator) recordOpen(kind session.Kind) {
	if o.cfg.Metrics != nil {
		o.cfg.Metrics.SessionsOpened.WithLabelValues(string(kind)).Inc()
		o.cfg.Metrics.SessionsActive.WithLabelValues(string(kind)).Inc()
	}
}
