package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kubedesk/workspace/internal/shared/id"
)

var (
	// ErrNotFound is returned when an operation names an unknown session.
	ErrNotFound = errors.New("session not found")
	// ErrInvalidKind is returned for a kind outside the closed set.
	ErrInvalidKind = errors.New("invalid session kind")
)

// CloseFunc observes a session leaving the registry. The registry invokes it
// synchronously for every removed session so owners of live resources (PTY
// poll loops, overlay surfaces) release them; a close without this
// notification would leak the resource.
type CloseFunc func(Session)

// CreateOptions carries optional fields for Create.
type CreateOptions struct {
	// ID overrides the generated registry ID. Terminal sessions use the
	// host-issued descriptor ID so the host keys the shell by session ID.
	ID   string
	Name string

	Browser *BrowserState
	Editor  *EditorState
	Logging *LoggingState
}

// Registry is the ordered collection of sessions plus the active pointer.
// All operations are atomic from the caller's perspective: no half-applied
// create or close is ever observable, and the invariants hold on exit from
// every exported method: the active ID is either empty or a member, and a
// non-empty registry always has an active session.
type Registry struct {
	mu       sync.Mutex
	sessions []*Session
	activeID string
	onClose  []CloseFunc
	gen      *id.Generator
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{gen: id.NewGenerator()}
}

// OnClose registers a close observer. Observers registered after sessions
// exist still see every subsequent close.
func (r *Registry) OnClose(fn CloseFunc) {
	r.mu.Lock()
	r.onClose = append(r.onClose, fn)
	r.mu.Unlock()
}

// Create appends a new session and makes it active.
func (r *Registry) Create(kind Kind, opts CreateOptions) (Session, error) {
	if !kind.Valid() {
		return Session{}, fmt.Errorf("%w: %q", ErrInvalidKind, kind)
	}

	sessionID := opts.ID
	if sessionID == "" {
		sessionID = r.gen.GenerateWithPrefix(id.SessionPrefix)
	}

	s := &Session{
		ID:        sessionID,
		Name:      opts.Name,
		Kind:      kind,
		CreatedAt: time.Now(),
	}

	switch kind {
	case KindTerminal:
		// Shell association lives in the host, keyed by ID.
	case KindBrowser:
		if opts.Browser != nil {
			b := *opts.Browser
			s.Browser = &b
		} else {
			s.Browser = &BrowserState{}
		}
	case KindEditor:
		if opts.Editor != nil {
			e := *opts.Editor
			s.Editor = &e
		} else {
			s.Editor = &EditorState{}
		}
	case KindLogging:
		if opts.Logging != nil {
			l := *opts.Logging
			s.Logging = &l
		} else {
			s.Logging = &LoggingState{}
		}
	}

	r.mu.Lock()
	if r.indexOfLocked(sessionID) >= 0 {
		r.mu.Unlock()
		return Session{}, fmt.Errorf("duplicate session id: %s", sessionID)
	}
	r.sessions = append(r.sessions, s)
	r.activeID = s.ID
	out := s.clone()
	r.mu.Unlock()

	return out, nil
}

// Close removes a session. When the closed session was active, activation
// falls to the session now occupying its position, clamped to the last
// index, or to nothing when the registry empties.
func (r *Registry) Close(sessionID string) error {
	r.mu.Lock()
	idx := r.indexOfLocked(sessionID)
	if idx < 0 {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, sessionID)
	}

	closed := r.sessions[idx].clone()
	r.sessions = append(r.sessions[:idx], r.sessions[idx+1:]...)

	if r.activeID == sessionID {
		if len(r.sessions) == 0 {
			r.activeID = ""
		} else {
			next := idx
			if next >= len(r.sessions) {
				next = len(r.sessions) - 1
			}
			r.activeID = r.sessions[next].ID
		}
	}
	observers := r.onClose
	r.mu.Unlock()

	for _, fn := range observers {
		fn(closed)
	}
	return nil
}

// CloseOthers removes every session except keepID and makes it active.
func (r *Registry) CloseOthers(keepID string) error {
	r.mu.Lock()
	if r.indexOfLocked(keepID) < 0 {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, keepID)
	}

	var removed []Session
	kept := r.sessions[:0]
	for _, s := range r.sessions {
		if s.ID == keepID {
			kept = append(kept, s)
		} else {
			removed = append(removed, s.clone())
		}
	}
	r.sessions = kept
	r.activeID = keepID
	observers := r.onClose
	r.mu.Unlock()

	for _, s := range removed {
		for _, fn := range observers {
			fn(s)
		}
	}
	return nil
}

// CloseAll removes every session.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	removed := make([]Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		removed = append(removed, s.clone())
	}
	r.sessions = nil
	r.activeID = ""
	observers := r.onClose
	r.mu.Unlock()

	for _, s := range removed {
		for _, fn := range observers {
			fn(s)
		}
	}
}

// Rename changes a session's display label.
func (r *Registry) Rename(sessionID, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := r.indexOfLocked(sessionID)
	if idx < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, sessionID)
	}
	r.sessions[idx].Name = name
	return nil
}

// Reorder moves the session at fromIndex to toIndex. A pure positional
// move: the active session never changes.
func (r *Registry) Reorder(fromIndex, toIndex int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := len(r.sessions)
	if fromIndex < 0 || fromIndex >= n || toIndex < 0 || toIndex >= n {
		return fmt.Errorf("reorder out of range: %d -> %d with %d sessions", fromIndex, toIndex, n)
	}
	if fromIndex == toIndex {
		return nil
	}

	s := r.sessions[fromIndex]
	r.sessions = append(r.sessions[:fromIndex], r.sessions[fromIndex+1:]...)
	r.sessions = append(r.sessions[:toIndex], append([]*Session{s}, r.sessions[toIndex:]...)...)
	return nil
}

// SetActive marks a session active.
func (r *Registry) SetActive(sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.indexOfLocked(sessionID) < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, sessionID)
	}
	r.activeID = sessionID
	return nil
}

// ActiveID returns the active session's ID, or empty when the registry is
// empty.
func (r *Registry) ActiveID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.activeID
}

// Get returns a copy of the session.
func (r *Registry) Get(sessionID string) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := r.indexOfLocked(sessionID)
	if idx < 0 {
		return Session{}, false
	}
	return r.sessions[idx].clone(), true
}

// List returns copies of all sessions in tab order.
func (r *Registry) List() []Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s.clone())
	}
	return out
}

// Len returns the number of sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// IndexOf returns the position of a session in tab order, or -1.
func (r *Registry) IndexOf(sessionID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.indexOfLocked(sessionID)
}

// Update applies fn to the stored session under the registry lock. Used by
// the orchestrator to fold host events (address changes, loading state) and
// explicit mutations (mark-dirty, query edits) into the record.
func (r *Registry) Update(sessionID string, fn func(*Session)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := r.indexOfLocked(sessionID)
	if idx < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, sessionID)
	}
	fn(r.sessions[idx])
	return nil
}

func (r *Registry) indexOfLocked(sessionID string) int {
	for i, s := range r.sessions {
		if s.ID == sessionID {
			return i
		}
	}
	return -1
}
