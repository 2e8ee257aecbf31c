package terminal

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/kubedesk/workspace/internal/host"
)

// mockHost is an in-memory TerminalHost that records calls and serves
// queued output to Read.
type mockHost struct {
	mu         sync.Mutex
	createErr  error
	writes     [][]byte
	resizes    [][2]int
	closeCalls int
	readCalls  int
	pending    [][]byte
	readErr    error
}

func (m *mockHost) CreateSession(ctx context.Context, spec host.TerminalSpec) (host.Descriptor, error) {
	if m.createErr != nil {
		return host.Descriptor{}, m.createErr
	}
	cols, rows := spec.Cols, spec.Rows
	if cols == 0 {
		cols = 80
	}
	if rows == 0 {
		rows = 24
	}
	return host.Descriptor{ID: "term-1", Name: spec.Name, Cols: cols, Rows: rows, CreatedAt: time.Now()}, nil
}

func (m *mockHost) Write(ctx context.Context, sessionID string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes = append(m.writes, append([]byte{}, data...))
	return nil
}

func (m *mockHost) Read(ctx context.Context, sessionID string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readCalls++
	if m.readErr != nil {
		return nil, m.readErr
	}
	if len(m.pending) == 0 {
		return nil, nil
	}
	out := m.pending[0]
	m.pending = m.pending[1:]
	return out, nil
}

func (m *mockHost) Resize(ctx context.Context, sessionID string, cols, rows int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resizes = append(m.resizes, [2]int{cols, rows})
	return nil
}

func (m *mockHost) Rename(ctx context.Context, sessionID, name string) error { return nil }

func (m *mockHost) Close(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeCalls++
	return nil
}

func (m *mockHost) CloseAll(ctx context.Context) error { return nil }

func (m *mockHost) Profiles(ctx context.Context) ([]host.ShellProfile, error) {
	return nil, nil
}

func (m *mockHost) queue(data string) {
	m.mu.Lock()
	m.pending = append(m.pending, []byte(data))
	m.mu.Unlock()
}

func (m *mockHost) reads() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.readCalls
}

func startBridge(t *testing.T, m *mockHost) *Bridge {
	t.Helper()
	b, err := Start(context.Background(), Config{
		Host:         m,
		PollInterval: time.Millisecond,
	})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(func() { b.Close(context.Background()) })
	return b
}

func TestStartCreationFailure(t *testing.T) {
	m := &mockHost{createErr: errors.New("host unavailable")}

	if _, err := Start(context.Background(), Config{Host: m}); err == nil {
		t.Fatal("expected creation error")
	}
}

func TestPollWritesOutputToScreen(t *testing.T) {
	m := &mockHost{}
	b := startBridge(t, m)

	m.queue("hello world\n")

	deadline := time.After(time.Second)
	for {
		lines := b.ExportLines(10)
		if len(lines) == 1 && lines[0] == "hello world" {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("output never reached screen, got %v", lines)
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestPollErrorIsTransient(t *testing.T) {
	m := &mockHost{}
	b := startBridge(t, m)

	m.mu.Lock()
	m.readErr = errors.New("transient")
	m.mu.Unlock()

	time.Sleep(20 * time.Millisecond)
	if !b.Alive() {
		t.Fatal("poll failures must not kill the bridge")
	}

	m.mu.Lock()
	m.readErr = nil
	m.mu.Unlock()
	m.queue("recovered\n")

	deadline := time.After(time.Second)
	for {
		lines := b.ExportLines(10)
		if len(lines) == 1 && lines[0] == "recovered" {
			break
		}
		select {
		case <-deadline:
			t.Fatal("poll did not recover after transient failure")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestSendInputForwardsAndAccumulates(t *testing.T) {
	m := &mockHost{}
	b := startBridge(t, m)
	ctx := context.Background()

	for _, chunk := range []string{"kubectl ", "get podz", "\x7f", "s"} {
		if err := b.SendInput(ctx, chunk); err != nil {
			t.Fatalf("SendInput failed: %v", err)
		}
	}

	m.mu.Lock()
	writes := len(m.writes)
	m.mu.Unlock()
	if writes != 4 {
		t.Errorf("expected 4 immediate writes, got %d", writes)
	}

	if got := b.CurrentLine(); got != "kubectl get pods" {
		t.Errorf("expected accumulated line %q, got %q", "kubectl get pods", got)
	}

	if err := b.SendInput(ctx, "\r"); err != nil {
		t.Fatalf("SendInput failed: %v", err)
	}
	if got := b.CurrentLine(); got != "" {
		t.Errorf("carriage return should reset the accumulator, got %q", got)
	}

	b.SendInput(ctx, "ls")
	b.ClearLine()
	if got := b.CurrentLine(); got != "" {
		t.Errorf("ClearLine should reset the accumulator, got %q", got)
	}
}

func TestResizeIdempotent(t *testing.T) {
	m := &mockHost{}
	b := startBridge(t, m)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := b.Resize(ctx, 120, 40); err != nil {
			t.Fatalf("Resize failed: %v", err)
		}
	}

	m.mu.Lock()
	resizes := append([][2]int{}, m.resizes...)
	m.mu.Unlock()

	if len(resizes) != 1 {
		t.Fatalf("expected host to observe final dimensions exactly once, got %d calls", len(resizes))
	}
	if resizes[0] != [2]int{120, 40} {
		t.Errorf("unexpected dimensions %v", resizes[0])
	}

	// A genuinely new size goes through.
	if err := b.Resize(ctx, 80, 24); err != nil {
		t.Fatalf("Resize failed: %v", err)
	}
	m.mu.Lock()
	count := len(m.resizes)
	m.mu.Unlock()
	if count != 2 {
		t.Errorf("expected 2 host resizes, got %d", count)
	}

	if err := b.Resize(ctx, 0, 24); err == nil {
		t.Error("invalid dimensions must be rejected")
	}
}

func TestCloseStopsPollingExactlyOnce(t *testing.T) {
	m := &mockHost{}
	b := startBridge(t, m)

	time.Sleep(10 * time.Millisecond)

	if err := b.Close(context.Background()); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if b.Alive() {
		t.Error("bridge should report closed")
	}

	settled := m.reads()
	time.Sleep(20 * time.Millisecond)
	if m.reads() != settled {
		t.Error("polling loop still running after Close")
	}

	// Second close is a no-op; the host sees exactly one close call.
	if err := b.Close(context.Background()); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}
	m.mu.Lock()
	closes := m.closeCalls
	m.mu.Unlock()
	if closes != 1 {
		t.Errorf("expected exactly one host close, got %d", closes)
	}

	if err := b.SendInput(context.Background(), "x"); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed after close, got %v", err)
	}
}

func TestOnOutputTap(t *testing.T) {
	m := &mockHost{}
	b := startBridge(t, m)

	var mu sync.Mutex
	var got []byte
	b.OnOutput(func(p []byte) {
		mu.Lock()
		got = append(got, p...)
		mu.Unlock()
	})

	m.queue("tapped")

	deadline := time.After(time.Second)
	for {
		mu.Lock()
		done := string(got) == "tapped"
		mu.Unlock()
		if done {
			break
		}
		select {
		case <-deadline:
			t.Fatal("output tap never fired")
		case <-time.After(5 * time.Millisecond):
		}
	}
}
