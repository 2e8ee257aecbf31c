// Package terminal bridges keystrokes and output between a UI-facing screen
// buffer and a host-owned pseudo-terminal.
package terminal

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kubedesk/workspace/internal/host"
	"github.com/kubedesk/workspace/internal/infrastructure/logging"
	"github.com/kubedesk/workspace/internal/infrastructure/monitoring"
)

// ErrClosed is returned by operations on a closed bridge.
var ErrClosed = errors.New("terminal: bridge is closed")

// DefaultPollInterval is the output poll cadence when none is configured.
const DefaultPollInterval = 10 * time.Millisecond

// Config configures a bridge.
type Config struct {
	Host         host.TerminalHost
	Screen       Screen
	Log          *logging.Logger
	Metrics      *monitoring.Metrics
	PollInterval time.Duration
	Spec         host.TerminalSpec
}

// Bridge is the per-terminal-session I/O bridge. It owns the only polling
// loop for its session: construction starts the loop, Close stops it
// deterministically, and Close is safe to call more than once.
type Bridge struct {
	desc    host.Descriptor
	host    host.TerminalHost
	screen  Screen
	log     *logging.Logger
	metrics *monitoring.Metrics

	cancel context.CancelFunc
	done   chan struct{}

	mu        sync.Mutex
	lastCols  int
	lastRows  int
	line      []rune
	onOutput  func([]byte)
	closed    bool
	closeOnce sync.Once
}

// Start asks the host for a session-scoped shell and begins polling its
// output. A host creation failure is returned as-is; no bridge exists then.
func Start(ctx context.Context, cfg Config) (*Bridge, error) {
	if cfg.Host == nil {
		return nil, errors.New("terminal: host is required")
	}
	if cfg.Screen == nil {
		cfg.Screen = NewLineBuffer(cfg.Spec.Cols)
	}
	if cfg.Log == nil {
		cfg.Log = logging.NewNop()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}

	desc, err := cfg.Host.CreateSession(ctx, cfg.Spec)
	if err != nil {
		return nil, fmt.Errorf("create terminal session: %w", err)
	}

	pollCtx, cancel := context.WithCancel(context.Background())
	b := &Bridge{
		desc:     desc,
		host:     cfg.Host,
		screen:   cfg.Screen,
		log:      cfg.Log.WithSession(desc.ID),
		metrics:  cfg.Metrics,
		cancel:   cancel,
		done:     make(chan struct{}),
		lastCols: desc.Cols,
		lastRows: desc.Rows,
	}

	go b.poll(pollCtx, cfg.PollInterval)

	return b, nil
}

// ID returns the host-issued session ID.
func (b *Bridge) ID() string {
	return b.desc.ID
}

// Descriptor returns the host session descriptor.
func (b *Bridge) Descriptor() host.Descriptor {
	return b.desc
}

// Screen returns the screen buffer the bridge writes into.
func (b *Bridge) Screen() Screen {
	return b.screen
}

// poll pulls buffered output from the host until cancelled. A failed read
// is transient: logged and retried on the next tick.
func (b *Bridge) poll(ctx context.Context, interval time.Duration) {
	defer close(b.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if b.metrics != nil {
				b.metrics.PollTicks.Inc()
			}
			out, err := b.host.Read(ctx, b.desc.ID)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				b.log.Debug("output poll failed", logging.Err(err))
				continue
			}
			if len(out) == 0 {
				continue
			}
			b.screen.Write(out)
			if b.metrics != nil {
				b.metrics.OutputBytes.Add(float64(len(out)))
			}
			b.mu.Lock()
			tap := b.onOutput
			b.mu.Unlock()
			if tap != nil {
				tap(out)
			}
		}
	}
}

// SendInput forwards keystrokes to the host immediately, with no batching;
// latency here is directly perceptible. The current-line accumulator tracks
// the latest unterminated input line for features like "last command run".
func (b *Bridge) SendInput(ctx context.Context, data string) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrClosed
	}
	b.accumulate(data)
	b.mu.Unlock()

	if err := b.host.Write(ctx, b.desc.ID, []byte(data)); err != nil {
		b.log.Warn("terminal write failed", logging.Err(err))
		return err
	}
	return nil
}

// accumulate mirrors printable input into the current-line tracker. Caller
// holds b.mu.
func (b *Bridge) accumulate(data string) {
	for _, r := range data {
		switch {
		case r == '\r' || r == '\n':
			b.line = b.line[:0]
		case r == 0x7f || r == '\b':
			if len(b.line) > 0 {
				b.line = b.line[:len(b.line)-1]
			}
		case r >= 0x20:
			b.line = append(b.line, r)
		}
	}
}

// CurrentLine returns the latest unterminated input line.
func (b *Bridge) CurrentLine() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.line)
}

// ClearLine resets the current-line accumulator.
func (b *Bridge) ClearLine() {
	b.mu.Lock()
	b.line = b.line[:0]
	b.mu.Unlock()
}

// Resize fits the screen buffer to new dimensions and propagates them to
// the host. Repeats with unchanged dimensions are dropped, so a burst of
// identical resize events reaches the host once.
func (b *Bridge) Resize(ctx context.Context, cols, rows int) error {
	if cols <= 0 || rows <= 0 {
		return fmt.Errorf("terminal: invalid dimensions %dx%d", cols, rows)
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrClosed
	}
	if cols == b.lastCols && rows == b.lastRows {
		b.mu.Unlock()
		return nil
	}
	b.lastCols = cols
	b.lastRows = rows
	b.mu.Unlock()

	b.screen.Resize(cols, rows)

	if err := b.host.Resize(ctx, b.desc.ID, cols, rows); err != nil {
		b.log.Warn("terminal resize failed", logging.Err(err))
		return err
	}
	return nil
}

// ExportLines reconstructs up to max recent logical lines from the screen
// buffer without touching the live buffer or cursor.
func (b *Bridge) ExportLines(max int) []string {
	return ExportLines(b.screen, max)
}

// OnOutput installs a tap invoked with each non-empty poll result, after the
// screen buffer has been updated. Pass nil to remove.
func (b *Bridge) OnOutput(fn func([]byte)) {
	b.mu.Lock()
	b.onOutput = fn
	b.mu.Unlock()
}

// Alive reports whether the bridge has not been closed.
func (b *Bridge) Alive() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return !b.closed
}

// Close stops the polling loop, waits for it to exit, then closes the host
// session. Idempotent: the host sees at most one close call.
func (b *Bridge) Close(ctx context.Context) error {
	var err error
	b.closeOnce.Do(func() {
		b.mu.Lock()
		b.closed = true
		b.mu.Unlock()

		b.cancel()
		<-b.done

		if closeErr := b.host.Close(ctx, b.desc.ID); closeErr != nil {
			b.log.Warn("host close failed", logging.Err(closeErr))
			err = closeErr
		}
	})
	return err
}
