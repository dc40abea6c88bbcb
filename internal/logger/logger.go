// Package logger builds the process-wide zerolog logger.
package logger

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/term"
)

// Options controls where and how much is logged.
type Options struct {
	// Level is one of debug, info, warn or error. Unknown values mean info.
	Level string
	// File, when set, receives a JSON copy of every entry (append-only, 0600).
	File string
	// Console forces human-readable output on stderr. When false it is chosen for terminals.
	Console bool
	// Out overrides stderr; used by tests.
	Out io.Writer
}

// Setup returns a logger and a close func for the optional file sink.
func Setup(opts Options) (zerolog.Logger, func() error, error) {
	level := ParseLevel(opts.Level)

	out := opts.Out
	if out == nil {
		out = os.Stderr
	}
	console := opts.Console || isTerminal(out)
	if console {
		out = zerolog.ConsoleWriter{Out: out, FormatTimestamp: func(i any) string {
			return time.Now().Format(time.RFC3339)
		}}
	}

	closeFn := func() error { return nil }
	if path := strings.TrimSpace(opts.File); path != "" {
		file, err := openLogFile(path)
		if err != nil {
			return zerolog.Nop(), closeFn, err
		}
		out = zerolog.MultiLevelWriter(out, file)
		closeFn = file.Close
	}

	ctx := zerolog.New(out).Level(level).With().Timestamp()
	if level <= zerolog.DebugLevel {
		ctx = ctx.Caller()
	}
	return ctx.Logger(), closeFn, nil
}

// ParseLevel maps a configured level name to a zerolog level.
func ParseLevel(raw string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func openLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, err
	}
	return os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
