package console

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
)

func TestStdWritesStreams(t *testing.T) {
	var out, errBuf bytes.Buffer
	sink := NewStdWriters(&out, &errBuf)
	sink.WriteOut("hello\n")
	sink.WriteOut("no newline")
	sink.WriteErr("boom\n")
	if got := out.String(); got != "hello\nno newline\n" {
		t.Fatalf("stdout = %q", got)
	}
	if got := errBuf.String(); got != "stderr: boom\n" {
		t.Fatalf("stderr = %q", got)
	}
}

func TestBufferAndTee(t *testing.T) {
	var a, b Buffer
	sink := Tee(&a, nil, &b)
	sink.WriteOut("x")
	sink.WriteErr("y")
	for _, buf := range []*Buffer{&a, &b} {
		if buf.Out() != "x" || buf.Err() != "y" {
			t.Fatalf("unexpected buffer contents out=%q err=%q", buf.Out(), buf.Err())
		}
	}
}

func TestTranscriptTailReturnsRecentLinesAndTotal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "run.log")
	tr, err := NewTranscript(path)
	if err != nil {
		t.Fatalf("new transcript: %v", err)
	}
	tr.WriteOut("entry-0\nentry-1\n")
	tr.WriteErr("entry-2")
	tr.WriteOut("")
	tr.WriteOut("entry-3\n")
	lines, total := tr.Tail(2)
	if total != 4 {
		t.Fatalf("total lines = %d, want 4", total)
	}
	if len(lines) != 2 {
		t.Fatalf("len(lines) = %d, want 2", len(lines))
	}
	if !strings.Contains(lines[0], "ERR entry-2") || !strings.Contains(lines[1], "OUT entry-3") {
		t.Fatalf("unexpected tail %q", lines)
	}
}

func TestTranscriptTailMissingFile(t *testing.T) {
	tr, err := NewTranscript(filepath.Join(t.TempDir(), "missing.log"))
	if err != nil {
		t.Fatalf("new transcript: %v", err)
	}
	if lines, total := tr.Tail(5); lines != nil || total != 0 {
		t.Fatalf("expected empty tail, got %v %d", lines, total)
	}
}
