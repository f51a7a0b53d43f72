// Package logging builds the supervisor's slog logger. Lines go to stderr and,
// when the logs directory is writable, are appended to a file there as well so
// they survive container restarts on the data volume.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/mattn/go-isatty"
)

// Format values accepted by Options.Format.
const (
	FormatAuto = "auto"
	FormatText = "text"
	FormatJSON = "json"
)

// Options configures New.
type Options struct {
	Level  string
	Format string
	// FilePath is the log file to append to. Empty disables file output.
	FilePath string
	// Stderr defaults to os.Stderr.
	Stderr io.Writer
}

// Logger wraps the slog logger together with the file it may hold open.
type Logger struct {
	*slog.Logger
	file *os.File
}

// New builds a logger. A log file that cannot be opened is reported on the
// returned logger as a warning, never as an error: logging must not stop the
// supervisor from starting.
func New(opts Options) *Logger {
	stderr := opts.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}

	var (
		out     = stderr
		file    *os.File
		fileErr error
	)
	if opts.FilePath != "" {
		file, fileErr = openFile(opts.FilePath)
		if fileErr == nil {
			out = io.MultiWriter(stderr, file)
		}
	}

	handlerOpts := &slog.HandlerOptions{Level: ParseLevel(opts.Level)}
	var handler slog.Handler
	if useJSON(opts.Format, stderr) {
		handler = slog.NewJSONHandler(out, handlerOpts)
	} else {
		handler = slog.NewTextHandler(out, handlerOpts)
	}

	l := &Logger{Logger: slog.New(handler), file: file}
	if fileErr != nil {
		l.Warn("log file unavailable, logging to stderr only", "path", opts.FilePath, "error", fileErr)
	}
	return l
}

// Close releases the log file, if any.
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}

// ParseLevel maps LOG_LEVEL values (case-insensitive, Python-style names
// included) to slog levels. Unknown values fall back to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error", "critical", "fatal":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func useJSON(format string, w io.Writer) bool {
	switch strings.ToLower(format) {
	case FormatJSON:
		return true
	case FormatText:
		return false
	}
	// auto: humans get text, collectors get JSON.
	if f, ok := w.(*os.File); ok {
		return !isatty.IsTerminal(f.Fd()) && !isatty.IsCygwinTerminal(f.Fd())
	}
	return false
}

func openFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}
	return f, nil
}

// Discard returns a logger that drops everything; handy in tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
