// Package console provides plan.Sink implementations for forwarding step
// output to terminals, files and memory.
package console

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/kingrea/chainexec/plan"
)

// ErrPrefix marks forwarded stderr text.
const ErrPrefix = "stderr: "

var errStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#F25D94"))

// Std writes stdout text verbatim and stderr text with ErrPrefix. Stderr is
// coloured when the destination is a terminal.
type Std struct {
	mu     sync.Mutex
	out    io.Writer
	err    io.Writer
	styled bool
}

// NewStd builds a sink over the process's standard streams.
func NewStd() *Std {
	return NewStdWriters(os.Stdout, os.Stderr)
}

// NewStdWriters builds a sink over arbitrary writers. Styling is enabled only
// when errW is a terminal file.
func NewStdWriters(outW, errW io.Writer) *Std {
	return &Std{out: outW, err: errW, styled: isTerminal(errW)}
}

// WriteOut satisfies plan.Sink.
func (s *Std) WriteOut(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprint(s.out, ensureNewline(text))
}

// WriteErr satisfies plan.Sink.
func (s *Std) WriteErr(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	line := ErrPrefix + strings.TrimRight(text, "\n")
	if s.styled {
		line = errStyle.Render(line)
	}
	fmt.Fprintln(s.err, line)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}

func ensureNewline(text string) string {
	if text == "" || strings.HasSuffix(text, "\n") {
		return text
	}
	return text + "\n"
}

// Buffer captures forwarded output in memory.
type Buffer struct {
	mu  sync.Mutex
	out strings.Builder
	err strings.Builder
}

// WriteOut satisfies plan.Sink.
func (b *Buffer) WriteOut(text string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.out.WriteString(text)
}

// WriteErr satisfies plan.Sink.
func (b *Buffer) WriteErr(text string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.err.WriteString(text)
}

// Out returns everything written as stdout so far.
func (b *Buffer) Out() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.out.String()
}

// Err returns everything written as stderr so far.
func (b *Buffer) Err() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.err.String()
}

type tee []plan.Sink

// Tee fans output out to every non-nil sink in order.
func Tee(sinks ...plan.Sink) plan.Sink {
	out := make(tee, 0, len(sinks))
	for _, sink := range sinks {
		if sink != nil {
			out = append(out, sink)
		}
	}
	return out
}

func (t tee) WriteOut(text string) {
	for _, sink := range t {
		sink.WriteOut(text)
	}
}

func (t tee) WriteErr(text string) {
	for _, sink := range t {
		sink.WriteErr(text)
	}
}
