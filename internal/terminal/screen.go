package terminal

import (
	"strings"
	"sync"
)

// Screen is the seam to the terminal-emulation layer. The bridge owns which
// bytes reach it and when; glyph rendering, colors and cursor drawing belong
// to the implementation.
type Screen interface {
	// Write feeds raw PTY output into the buffer.
	Write(data []byte)
	// Resize refits the buffer to new dimensions.
	Resize(cols, rows int)
	// LineCount returns the number of physical rows currently held.
	LineCount() int
	// Line returns the text of row i and whether the row is a soft
	// continuation of the previous one (line wrap, not a newline).
	Line(i int) (text string, wrapped bool)
}

const defaultScrollback = 2000

// LineBuffer is a plain Screen implementation: a logical line model with
// soft wrapping and a bounded scrollback, enough for content export and
// tests. ANSI escape sequences are stripped, not interpreted.
type LineBuffer struct {
	mu         sync.Mutex
	cols       int
	rows       []row
	scrollback int
	partialEsc []byte
	pendingCR  bool
}

type row struct {
	text    string
	wrapped bool
}

// NewLineBuffer creates a line buffer with the given width.
func NewLineBuffer(cols int) *LineBuffer {
	if cols <= 0 {
		cols = 80
	}
	return &LineBuffer{
		cols:       cols,
		rows:       []row{{}},
		scrollback: defaultScrollback,
	}
}

func (b *LineBuffer) Write(data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()

	text := b.stripEscapes(data)
	for _, r := range text {
		// CRLF is a single newline. Only a bare carriage return rewinds
		// the row; the decision waits for the next rune so the pair can
		// straddle two writes.
		if b.pendingCR {
			b.pendingCR = false
			if r == '\n' {
				b.rows = append(b.rows, row{})
				continue
			}
			last := &b.rows[len(b.rows)-1]
			last.text = ""
		}
		switch r {
		case '\n':
			b.rows = append(b.rows, row{})
		case '\r':
			b.pendingCR = true
		default:
			if r < 0x20 {
				continue
			}
			b.appendRune(r)
		}
	}
	b.trim()
}

func (b *LineBuffer) appendRune(r rune) {
	last := &b.rows[len(b.rows)-1]
	if len([]rune(last.text)) >= b.cols {
		// Soft wrap: same logical line continues on the next row.
		b.rows = append(b.rows, row{wrapped: true})
		last = &b.rows[len(b.rows)-1]
	}
	last.text += string(r)
}

func (b *LineBuffer) trim() {
	if len(b.rows) > b.scrollback {
		b.rows = b.rows[len(b.rows)-b.scrollback:]
		b.rows[0].wrapped = false
	}
}

// stripEscapes drops ANSI CSI/OSC sequences, carrying partial sequences
// across Write calls.
func (b *LineBuffer) stripEscapes(data []byte) string {
	var out strings.Builder
	buf := append(b.partialEsc, data...)
	b.partialEsc = nil

	for i := 0; i < len(buf); {
		c := buf[i]
		if c != 0x1b {
			out.WriteByte(c)
			i++
			continue
		}
		end, complete := escapeEnd(buf[i:])
		if !complete {
			b.partialEsc = append([]byte{}, buf[i:]...)
			break
		}
		i += end
	}
	return out.String()
}

// escapeEnd returns the length of the escape sequence starting at buf[0] and
// whether it is complete within buf.
func escapeEnd(buf []byte) (int, bool) {
	if len(buf) < 2 {
		return 0, false
	}
	switch buf[1] {
	case '[': // CSI: parameters then a final byte in 0x40..0x7e
		for i := 2; i < len(buf); i++ {
			if buf[i] >= 0x40 && buf[i] <= 0x7e {
				return i + 1, true
			}
		}
		return 0, false
	case ']': // OSC: terminated by BEL or ST
		for i := 2; i < len(buf); i++ {
			if buf[i] == 0x07 {
				return i + 1, true
			}
			if buf[i] == 0x1b && i+1 < len(buf) && buf[i+1] == '\\' {
				return i + 2, true
			}
		}
		return 0, false
	default: // two-byte escape
		return 2, true
	}
}

func (b *LineBuffer) Resize(cols, rows int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if cols > 0 {
		b.cols = cols
	}
}

func (b *LineBuffer) LineCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.rows)
}

func (b *LineBuffer) Line(i int) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if i < 0 || i >= len(b.rows) {
		return "", false
	}
	return b.rows[i].text, b.rows[i].wrapped
}

// ExportLines reconstructs up to max recent logical lines from a screen,
// joining soft-wrapped rows and dropping trailing blank lines. Read-only:
// the live buffer and cursor are untouched.
func ExportLines(s Screen, max int) []string {
	if max <= 0 {
		return nil
	}

	count := s.LineCount()
	var lines []string

	i := count - 1
	for i >= 0 && len(lines) < max {
		// Walk back to the first row of this logical line.
		start := i
		for start > 0 {
			if _, wrapped := s.Line(start); !wrapped {
				break
			}
			start--
		}

		var joined strings.Builder
		for j := start; j <= i; j++ {
			text, _ := s.Line(j)
			joined.WriteString(text)
		}
		line := strings.TrimRight(joined.String(), " ")

		// Skip trailing blanks below the last content line.
		if line != "" || len(lines) > 0 {
			lines = append(lines, line)
		}
		i = start - 1
	}

	// Walked bottom-up; restore top-down order.
	for l, r := 0, len(lines)-1; l < r; l, r = l+1, r-1 {
		lines[l], lines[r] = lines[r], lines[l]
	}
	return lines
}
