package terminal

import (
	"reflect"
	"testing"
)

func TestLineBufferPlainText(t *testing.T) {
	b := NewLineBuffer(80)
	b.Write([]byte("first line\r\nsecond line\r\n"))

	lines := ExportLines(b, 10)
	want := []string{"first line", "second line"}
	if !reflect.DeepEqual(lines, want) {
		t.Errorf("expected %v, got %v", want, lines)
	}
}

func TestLineBufferStripsEscapes(t *testing.T) {
	b := NewLineBuffer(80)
	b.Write([]byte("\x1b[32mgreen\x1b[0m text\r\n"))
	b.Write([]byte("\x1b]0;window title\x07prompt$ \r\n"))

	lines := ExportLines(b, 10)
	want := []string{"green text", "prompt$"}
	if !reflect.DeepEqual(lines, want) {
		t.Errorf("expected %v, got %v", want, lines)
	}
}

func TestLineBufferPartialEscapeAcrossWrites(t *testing.T) {
	b := NewLineBuffer(80)
	b.Write([]byte("before\x1b[3"))
	b.Write([]byte("1mred\r\n"))

	lines := ExportLines(b, 10)
	want := []string{"beforered"}
	if !reflect.DeepEqual(lines, want) {
		t.Errorf("expected %v, got %v", want, lines)
	}
}

func TestExportJoinsSoftWraps(t *testing.T) {
	b := NewLineBuffer(5)
	b.Write([]byte("abcdefgh\nxy\n"))

	if b.LineCount() < 3 {
		t.Fatalf("expected wrapped physical rows, got %d", b.LineCount())
	}

	lines := ExportLines(b, 10)
	want := []string{"abcdefgh", "xy"}
	if !reflect.DeepEqual(lines, want) {
		t.Errorf("expected wrap join %v, got %v", want, lines)
	}
}

func TestExportBoundsAndTrailingBlanks(t *testing.T) {
	b := NewLineBuffer(80)
	b.Write([]byte("one\ntwo\nthree\n\n\n"))

	lines := ExportLines(b, 2)
	want := []string{"two", "three"}
	if !reflect.DeepEqual(lines, want) {
		t.Errorf("expected last two content lines %v, got %v", want, lines)
	}

	if got := ExportLines(b, 0); got != nil {
		t.Errorf("zero budget should export nothing, got %v", got)
	}
}

func TestCarriageReturnNewlineSplitAcrossWrites(t *testing.T) {
	b := NewLineBuffer(80)
	b.Write([]byte("first line\r"))
	b.Write([]byte("\nsecond line\r\n"))

	lines := ExportLines(b, 10)
	want := []string{"first line", "second line"}
	if !reflect.DeepEqual(lines, want) {
		t.Errorf("expected %v, got %v", want, lines)
	}
}

func TestCarriageReturnOverwritesRow(t *testing.T) {
	b := NewLineBuffer(80)
	b.Write([]byte("progress 1%\rprogress 99%\n"))

	lines := ExportLines(b, 10)
	want := []string{"progress 99%"}
	if !reflect.DeepEqual(lines, want) {
		t.Errorf("expected %v, got %v", want, lines)
	}
}
