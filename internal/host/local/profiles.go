package local

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/kubedesk/workspace/internal/host"
)

// Profiles reports the shells installed on this machine. The entry matching
// $SHELL is flagged as the host default; when $SHELL is unset the first
// discovered shell gets the flag.
func (h *TerminalHost) Profiles(ctx context.Context) ([]host.ShellProfile, error) {
	paths := shellCandidates()

	userShell := os.Getenv("SHELL")
	var profiles []host.ShellProfile
	for _, path := range paths {
		name := filepath.Base(path)
		profiles = append(profiles, host.ShellProfile{
			ID:      name + "-" + shortHashPath(path),
			Name:    name,
			Path:    path,
			Default: path == userShell,
		})
	}

	if len(profiles) > 0 {
		hasDefault := false
		for _, p := range profiles {
			if p.Default {
				hasDefault = true
				break
			}
		}
		if !hasDefault {
			profiles[0].Default = true
		}
	}

	return profiles, nil
}

// shellCandidates merges /etc/shells with $SHELL, keeping only paths that
// exist and dropping duplicates.
func shellCandidates() []string {
	seen := make(map[string]bool)
	var paths []string

	add := func(path string) {
		if path == "" || seen[path] {
			return
		}
		if _, err := os.Stat(path); err != nil {
			return
		}
		seen[path] = true
		paths = append(paths, path)
	}

	add(os.Getenv("SHELL"))

	f, err := os.Open("/etc/shells")
	if err == nil {
		defer f.Close()
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			add(line)
		}
	}

	if len(paths) == 0 {
		add("/bin/bash")
		add("/bin/sh")
	}

	return paths
}

// shortHashPath derives a stable short suffix so two shells with the same
// base name (e.g. /bin/zsh and /usr/local/bin/zsh) get distinct profile IDs.
func shortHashPath(path string) string {
	var h uint32 = 2166136261
	for i := 0; i < len(path); i++ {
		h ^= uint32(path[i])
		h *= 16777619
	}
	const digits = "0123456789abcdef"
	out := make([]byte, 4)
	for i := 0; i < 4; i++ {
		out[i] = digits[h&0xf]
		h >>= 4
	}
	return string(out)
}
