package workspace

import (
	"strconv"
	"strings"
)

// Shortcut identifies a panel keyboard action.
type Shortcut int

const (
	ShortcutNone Shortcut = iota
	ShortcutNewTab
	ShortcutCloseTab
	ShortcutNextTab
	ShortcutPrevTab
	// ShortcutJumpTab carries a 1-based tab number alongside.
	ShortcutJumpTab
)

// ParseChord maps a normalized key chord (e.g. "ctrl+t", "ctrl+3") to a
// shortcut. The jump target accompanies ShortcutJumpTab as a 1-based index.
func ParseChord(chord string) (Shortcut, int) {
	switch strings.ToLower(chord) {
	case "ctrl+t", "cmd+t":
		return ShortcutNewTab, 0
	case "ctrl+w", "cmd+w":
		return ShortcutCloseTab, 0
	case "ctrl+tab":
		return ShortcutNextTab, 0
	case "ctrl+shift+tab":
		return ShortcutPrevTab, 0
	}

	lower := strings.ToLower(chord)
	for _, mod := range []string{"ctrl+", "cmd+"} {
		if rest, ok := strings.CutPrefix(lower, mod); ok {
			if n, err := strconv.Atoi(rest); err == nil && n >= 1 && n <= 9 {
				return ShortcutJumpTab, n
			}
		}
	}

	return ShortcutNone, 0
}
