// Package session holds the workspace session model and the ordered
// registry that tracks which session is active.
package session

import "time"

// Kind tags the session variant. The set is closed: every switch over Kind
// in this module lists all four and fails loudly on anything else, so adding
// a fifth kind is a compile-and-test exercise rather than a runtime guess.
type Kind string

const (
	KindTerminal Kind = "terminal"
	KindBrowser  Kind = "browser"
	KindEditor   Kind = "editor"
	KindLogging  Kind = "logging"
)

// Valid reports whether k is one of the four known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindTerminal, KindBrowser, KindEditor, KindLogging:
		return true
	}
	return false
}

// BrowserState is the Browser variant payload.
type BrowserState struct {
	URL            string `json:"url"`
	HistoryIndex   int    `json:"history_index"`
	IsFavorite     bool   `json:"is_favorite"`
	SurfaceCreated bool   `json:"surface_created"`
	IsLoading      bool   `json:"is_loading"`
}

// EditorState is the Editor variant payload.
type EditorState struct {
	FilePath          string `json:"file_path"`
	Content           string `json:"content,omitempty"`
	HasUnsavedChanges bool   `json:"has_unsaved_changes"`
}

// LoggingState is the Logging variant payload.
type LoggingState struct {
	Query string    `json:"query,omitempty"`
	From  time.Time `json:"from"`
	To    time.Time `json:"to"`
}

// Session is one independently lifecycled unit of interactive work. Exactly
// one payload pointer is non-nil, matching Kind.
type Session struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Kind      Kind      `json:"kind"`
	CreatedAt time.Time `json:"created_at"`

	Browser *BrowserState `json:"browser,omitempty"`
	Editor  *EditorState  `json:"editor,omitempty"`
	Logging *LoggingState `json:"logging,omitempty"`
}

// clone returns a deep copy so registry callers never alias internal state.
func (s *Session) clone() Session {
	out := *s
	if s.Browser != nil {
		b := *s.Browser
		out.Browser = &b
	}
	if s.Editor != nil {
		e := *s.Editor
		out.Editor = &e
	}
	if s.Logging != nil {
		l := *s.Logging
		out.Logging = &l
	}
	return out
}
