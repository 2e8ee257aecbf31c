package workspace

import (
	"fmt"
	"strings"

	"github.com/kubedesk/workspace/internal/host"
)

// Dialect selects the shell syntax used for the injected context prefix.
type Dialect int

const (
	DialectPOSIX Dialect = iota
	DialectCmd
	DialectPowerShell
)

// DialectForShell inspects a shell path and picks the matching dialect.
// Anything that is not cmd or PowerShell is treated as POSIX. Windows paths
// use backslash separators regardless of the platform this daemon runs on.
func DialectForShell(shellPath string) Dialect {
	base := shellPath
	if i := strings.LastIndexAny(base, `/\`); i >= 0 {
		base = base[i+1:]
	}
	base = strings.ToLower(base)
	base = strings.TrimSuffix(base, ".exe")
	switch base {
	case "cmd":
		return DialectCmd
	case "powershell", "pwsh":
		return DialectPowerShell
	default:
		return DialectPOSIX
	}
}

// contextPrefix renders the cluster-context environment assignment for a
// dialect.
func contextPrefix(d Dialect, cluster string) string {
	switch d {
	case DialectCmd:
		return fmt.Sprintf("set KUBE_CONTEXT=%s", cluster)
	case DialectPowerShell:
		return fmt.Sprintf("$env:KUBE_CONTEXT = '%s'", cluster)
	default:
		return fmt.Sprintf("export KUBE_CONTEXT='%s'", cluster)
	}
}

// BuildInitialCommand composes the initial command written into a fresh
// shell: the cluster-context prefix, then the user-supplied command. Either
// part may be empty.
func BuildInitialCommand(shellPath, clusterContext, userCommand string) string {
	if clusterContext == "" {
		return userCommand
	}

	d := DialectForShell(shellPath)
	prefix := contextPrefix(d, clusterContext)
	if userCommand == "" {
		return prefix
	}

	switch d {
	case DialectPowerShell:
		return prefix + "; " + userCommand
	default:
		return prefix + " && " + userCommand
	}
}

// ResolveDefaultProfile picks the effective default shell profile: a saved
// ID still present in the fresh list wins, otherwise the host-reported
// default, otherwise the first profile. Returns false when no profiles
// exist at all.
func ResolveDefaultProfile(profiles []host.ShellProfile, savedID string) (host.ShellProfile, bool) {
	if len(profiles) == 0 {
		return host.ShellProfile{}, false
	}

	if savedID != "" {
		for _, p := range profiles {
			if p.ID == savedID {
				return p, true
			}
		}
	}

	for _, p := range profiles {
		if p.Default {
			return p, true
		}
	}
	return profiles[0], true
}
