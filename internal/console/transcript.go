package console

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Stream labels a transcript entry.
type Stream string

const (
	StreamOut Stream = "OUT"
	StreamErr Stream = "ERR"
)

// Transcript persists forwarded step output to a text file, one timestamped
// line per output line.
type Transcript struct {
	path  string
	mu    sync.Mutex
	clock func() time.Time
}

// NewTranscript creates a transcript that appends to path.
func NewTranscript(path string) (*Transcript, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("console: ensure transcript dir: %w", err)
	}
	return &Transcript{path: path, clock: time.Now}, nil
}

// Path returns the file backing this transcript.
func (t *Transcript) Path() string {
	if t == nil {
		return ""
	}
	return t.path
}

// WriteOut satisfies plan.Sink.
func (t *Transcript) WriteOut(text string) { t.Append(StreamOut, text) }

// WriteErr satisfies plan.Sink.
func (t *Transcript) WriteErr(text string) { t.Append(StreamErr, text) }

// Append writes each line of text as a separate entry.
func (t *Transcript) Append(stream Stream, text string) {
	if t == nil {
		return
	}
	text = strings.TrimRight(text, "\n")
	if text == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	file, err := os.OpenFile(t.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return
	}
	defer file.Close()
	stamp := t.clock().UTC().Format(time.RFC3339)
	w := bufio.NewWriter(file)
	for _, line := range strings.Split(text, "\n") {
		fmt.Fprintf(w, "%s %-3s %s\n", stamp, string(stream), line)
	}
	_ = w.Flush()
}

// Tail returns up to maxLines of the most recent entries and the total number
// of entries in the file.
func (t *Transcript) Tail(maxLines int) ([]string, int) {
	if t == nil || maxLines <= 0 {
		return nil, 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	file, err := os.Open(t.path)
	if err != nil {
		return nil, 0
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	total := len(lines)
	if total > maxLines {
		lines = lines[total-maxLines:]
	}
	return lines, total
}
