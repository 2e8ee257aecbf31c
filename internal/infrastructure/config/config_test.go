package config

import (
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Default()

	if cfg.Server.Port != "7900" || cfg.Server.Host != "127.0.0.1" {
		t.Fatalf("server defaults = %+v", cfg.Server)
	}
	if cfg.Terminal.PollInterval != 10*time.Millisecond {
		t.Fatalf("poll interval = %v", cfg.Terminal.PollInterval)
	}
	if cfg.Terminal.DefaultCols != 80 || cfg.Terminal.DefaultRows != 24 {
		t.Fatalf("terminal geometry = %dx%d", cfg.Terminal.DefaultCols, cfg.Terminal.DefaultRows)
	}
	if cfg.Terminal.ExportLineLimit != 200 {
		t.Fatalf("export line limit = %d", cfg.Terminal.ExportLineLimit)
	}
	if cfg.Workspace.ClusterContext != "" {
		t.Fatalf("cluster context = %q, want empty", cfg.Workspace.ClusterContext)
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("WORKSPACE_PORT", "8123")
	t.Setenv("WORKSPACE_TERMINAL_POLL_INTERVAL", "25ms")
	t.Setenv("WORKSPACE_CLUSTER_CONTEXT", "prod-east")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != "8123" {
		t.Fatalf("port = %q", cfg.Server.Port)
	}
	if cfg.Terminal.PollInterval != 25*time.Millisecond {
		t.Fatalf("poll interval = %v", cfg.Terminal.PollInterval)
	}
	if cfg.Workspace.ClusterContext != "prod-east" {
		t.Fatalf("cluster context = %q", cfg.Workspace.ClusterContext)
	}
}

func TestLoadOrDefaultFallsBack(t *testing.T) {
	t.Setenv("WORKSPACE_TERMINAL_COLS", "not-a-number")

	cfg := LoadOrDefault()
	if cfg.Terminal.DefaultCols != 80 {
		t.Fatalf("cols = %d, want default 80", cfg.Terminal.DefaultCols)
	}
}
