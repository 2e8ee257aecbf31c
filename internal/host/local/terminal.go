// Package local implements host.TerminalHost in-process on real PTYs.
//
// The daemon embeds this so a UI shell gets working terminal sessions
// without a separate native host; overlay surfaces still require the shell's
// compositor.
package local

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/creack/pty"
	"github.com/google/uuid"

	"github.com/kubedesk/workspace/internal/host"
	"github.com/kubedesk/workspace/internal/infrastructure/logging"
)

const (
	defaultCols = 80
	defaultRows = 24

	// outputBufferSize bounds per-session buffered output between reads.
	outputBufferSize = 1024 * 1024

	// initialCommandDelay gives the shell time to print its prompt before
	// the injected command lands.
	initialCommandDelay = 500 * time.Millisecond
)

// session is one live PTY-backed shell.
type session struct {
	id        string
	name      string
	shell     string
	cols      int
	rows      int
	createdAt time.Time

	cmd  *exec.Cmd
	ptmx *os.File
	buf  *ringBuffer

	mu     sync.RWMutex
	closed bool
}

// TerminalHost manages local PTY sessions.
type TerminalHost struct {
	mu       sync.RWMutex
	sessions map[string]*session
	log      *logging.Logger
}

var _ host.TerminalHost = (*TerminalHost)(nil)

// NewTerminalHost creates an empty local terminal host.
func NewTerminalHost(log *logging.Logger) *TerminalHost {
	if log == nil {
		log = logging.NewNop()
	}
	return &TerminalHost{
		sessions: make(map[string]*session),
		log:      log,
	}
}

// CreateSession spawns a shell on a fresh PTY with the requested geometry.
func (h *TerminalHost) CreateSession(ctx context.Context, spec host.TerminalSpec) (host.Descriptor, error) {
	shell := spec.ShellPath
	if shell == "" {
		shell = defaultShell()
	}

	cols := spec.Cols
	if cols <= 0 {
		cols = defaultCols
	}
	rows := spec.Rows
	if rows <= 0 {
		rows = defaultRows
	}

	cmd := exec.Command(shell, shellArgs(shell)...)
	cmd.Env = append(os.Environ(),
		"TERM=xterm-256color",
		"COLORTERM=truecolor",
	)

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{
		Rows: uint16(rows),
		Cols: uint16(cols),
	})
	if err != nil {
		return host.Descriptor{}, fmt.Errorf("failed to start PTY: %w", err)
	}

	id := uuid.New().String()
	name := spec.Name
	if name == "" {
		name = "Terminal " + id[:6]
	}

	s := &session{
		id:        id,
		name:      name,
		shell:     shell,
		cols:      cols,
		rows:      rows,
		createdAt: time.Now(),
		cmd:       cmd,
		ptmx:      ptmx,
		buf:       newRingBuffer(outputBufferSize),
	}

	h.mu.Lock()
	h.sessions[id] = s
	h.mu.Unlock()

	go h.readOutput(s)
	go h.monitorProcess(s)

	if spec.InitialCommand != "" {
		go h.writeInitialCommand(s, spec.InitialCommand)
	}

	h.log.Info("created local terminal session",
		logging.String("session_id", id),
		logging.String("shell", shell))

	return host.Descriptor{
		ID:        id,
		Name:      name,
		Shell:     shell,
		Cols:      cols,
		Rows:      rows,
		CreatedAt: s.createdAt,
	}, nil
}

// readOutput pumps PTY output into the session's ring buffer until EOF.
func (h *TerminalHost) readOutput(s *session) {
	buf := make([]byte, 4096)
	for {
		n, err := s.ptmx.Read(buf)
		if n > 0 {
			s.buf.Write(buf[:n])
		}
		if err != nil {
			if err != io.EOF {
				h.log.Debug("PTY read ended",
					logging.String("session_id", s.id),
					logging.Err(err))
			}
			return
		}
	}
}

// monitorProcess waits for the shell to exit and marks the session closed.
func (h *TerminalHost) monitorProcess(s *session) {
	s.cmd.Wait()

	s.mu.Lock()
	alreadyClosed := s.closed
	s.closed = true
	s.mu.Unlock()

	if !alreadyClosed {
		s.ptmx.Close()
	}
}

func (h *TerminalHost) writeInitialCommand(s *session, command string) {
	time.Sleep(initialCommandDelay)

	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return
	}

	if _, err := s.ptmx.Write([]byte(command + "\n")); err != nil {
		h.log.Warn("failed to write initial command",
			logging.String("session_id", s.id),
			logging.Err(err))
	}
}

func (h *TerminalHost) get(sessionID string) (*session, error) {
	h.mu.RLock()
	s, ok := h.sessions[sessionID]
	h.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", host.ErrSessionNotFound, sessionID)
	}
	return s, nil
}

// Write sends raw input bytes to the PTY.
func (h *TerminalHost) Write(ctx context.Context, sessionID string, data []byte) error {
	s, err := h.get(sessionID)
	if err != nil {
		return err
	}

	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return fmt.Errorf("session is closed: %s", sessionID)
	}

	_, err = s.ptmx.Write(data)
	return err
}

// Read drains buffered output without blocking.
func (h *TerminalHost) Read(ctx context.Context, sessionID string) ([]byte, error) {
	s, err := h.get(sessionID)
	if err != nil {
		return nil, err
	}
	return s.buf.Drain(), nil
}

// Resize changes the PTY dimensions.
func (h *TerminalHost) Resize(ctx context.Context, sessionID string, cols, rows int) error {
	s, err := h.get(sessionID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("session is closed: %s", sessionID)
	}

	s.cols = cols
	s.rows = rows

	return pty.Setsize(s.ptmx, &pty.Winsize{
		Rows: uint16(rows),
		Cols: uint16(cols),
	})
}

// Rename updates the session's display name.
func (h *TerminalHost) Rename(ctx context.Context, sessionID, name string) error {
	s, err := h.get(sessionID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.name = name
	s.mu.Unlock()
	return nil
}

// Close terminates the shell process and releases the PTY. Closing an
// already-closed session is a no-op.
func (h *TerminalHost) Close(ctx context.Context, sessionID string) error {
	h.mu.Lock()
	s, ok := h.sessions[sessionID]
	if ok {
		delete(h.sessions, sessionID)
	}
	h.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", host.ErrSessionNotFound, sessionID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	if s.cmd.Process != nil {
		s.cmd.Process.Kill()
	}
	s.ptmx.Close()

	h.log.Info("closed local terminal session", logging.String("session_id", sessionID))
	return nil
}

// CloseAll terminates every live session.
func (h *TerminalHost) CloseAll(ctx context.Context) error {
	h.mu.Lock()
	sessions := h.sessions
	h.sessions = make(map[string]*session)
	h.mu.Unlock()

	for _, s := range sessions {
		s.mu.Lock()
		if !s.closed {
			s.closed = true
			if s.cmd.Process != nil {
				s.cmd.Process.Kill()
			}
			s.ptmx.Close()
		}
		s.mu.Unlock()
	}

	h.log.Info("closed all local terminal sessions", logging.Int("count", len(sessions)))
	return nil
}

func defaultShell() string {
	if shell := os.Getenv("SHELL"); shell != "" {
		return shell
	}
	return "/bin/bash"
}

// shellArgs returns interactive-mode flags for known shells.
func shellArgs(shell string) []string {
	switch {
	case strings.Contains(shell, "zsh"):
		return []string{"-i"}
	case strings.Contains(shell, "bash"):
		return []string{"--login", "-i"}
	default:
		return nil
	}
}
