package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/kingrea/chainexec/internal/config"
)

// FileName is the log file inside .chainexec/logs.
const FileName = "chainexec.log"

type logFile struct {
	mu   sync.Mutex
	file *os.File
}

// Logger appends timestamped lines to .chainexec/logs/chainexec.log. Loggers
// derived with With share the file and tag every line with their scope, so the
// lines of one plan can be grepped out of a busy log.
type Logger struct {
	out   *logFile
	scope string
}

// New creates (or reuses) the log file for the current project directory.
func New(projectDir string) (*Logger, error) {
	logDir := filepath.Join(projectDir, config.ProjectDirName, "logs")
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, fmt.Errorf("logging: ensure log dir: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(logDir, FileName), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("logging: open log file: %w", err)
	}
	return &Logger{out: &logFile{file: f}}, nil
}

// With returns a logger writing to the same file under scope. Scopes nest as
// "outer/inner".
func (l *Logger) With(scope string) *Logger {
	if l == nil {
		return nil
	}
	scope = strings.TrimSpace(scope)
	if l.scope != "" && scope != "" {
		scope = l.scope + "/" + scope
	} else if scope == "" {
		scope = l.scope
	}
	return &Logger{out: l.out, scope: scope}
}

// Close releases the file handle for every logger sharing it.
func (l *Logger) Close() error {
	if l == nil || l.out == nil {
		return nil
	}
	l.out.mu.Lock()
	defer l.out.mu.Unlock()
	if l.out.file == nil {
		return nil
	}
	err := l.out.file.Close()
	l.out.file = nil
	return err
}

// Printf writes one line per call; embedded newlines are folded so each
// entry stays on a single line.
func (l *Logger) Printf(format string, args ...any) {
	if l == nil || l.out == nil {
		return
	}
	msg := strings.TrimRight(fmt.Sprintf(format, args...), "\n")
	msg = strings.ReplaceAll(msg, "\n", " | ")
	var b strings.Builder
	b.WriteString(time.Now().Format(time.RFC3339))
	if l.scope != "" {
		b.WriteString(" [" + l.scope + "]")
	}
	b.WriteString(" " + msg + "\n")
	l.out.mu.Lock()
	defer l.out.mu.Unlock()
	if l.out.file == nil {
		return
	}
	_, _ = l.out.file.WriteString(b.String())
}
