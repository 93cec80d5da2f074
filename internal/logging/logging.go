// Package logging builds the hostwatch zap logger. Output goes to a file
// because the dashboard owns the terminal; the most recent lines are also
// kept in memory for the dashboard's log panel.
package logging

import (
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options select the log destination and verbosity.
type Options struct {
	File   string
	Level  string
	Recent int // lines kept for the log panel; 0 uses the default
}

const defaultRecent = 50

// ParseLevel reads a level name case-insensitively, accepting "warning" for
// warn. An unknown name yields info along with the error.
func ParseLevel(name string) (zapcore.Level, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "warning" {
		name = "warn"
	}
	level, err := zapcore.ParseLevel(name)
	if err != nil {
		return zapcore.InfoLevel, fmt.Errorf("log level %q: %w", name, err)
	}
	return level, nil
}

// New returns a sugared logger writing console-encoded lines to opts.File,
// and the Recent buffer mirroring them. An unknown level logs at info;
// callers that want to report it check ParseLevel first.
func New(opts Options) (*zap.SugaredLogger, *Recent, error) {
	level, _ := ParseLevel(opts.Level)
	file := opts.File
	if file == "" {
		file = "hostwatch.log"
	}
	size := opts.Recent
	if size <= 0 {
		size = defaultRecent
	}
	recent := NewRecent(size)

	logCfg := zap.NewProductionConfig()
	logCfg.Level = zap.NewAtomicLevelAt(level)
	logCfg.Encoding = "console"
	logCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logCfg.Sampling = nil
	logCfg.OutputPaths = []string{file}
	logCfg.ErrorOutputPaths = []string{file}

	logger, err := logCfg.Build(zap.Hooks(recent.Hook))
	if err != nil {
		return nil, nil, fmt.Errorf("build logger: %w", err)
	}
	return logger.Sugar(), recent, nil
}

// Recent is a fixed-size ring of formatted log lines. It is safe for
// concurrent use.
type Recent struct {
	mu    sync.Mutex
	lines []string
	next  int
	full  bool
}

func NewRecent(size int) *Recent {
	if size <= 0 {
		size = defaultRecent
	}
	return &Recent{lines: make([]string, size)}
}

// Hook records an entry. It has the signature zap.Hooks expects.
func (r *Recent) Hook(e zapcore.Entry) error {
	line := fmt.Sprintf("%s %-5s %s",
		e.Time.Format("15:04:05"),
		strings.ToUpper(e.Level.String()),
		e.Message)

	r.mu.Lock()
	r.lines[r.next] = line
	r.next = (r.next + 1) % len(r.lines)
	if r.next == 0 {
		r.full = true
	}
	r.mu.Unlock()
	return nil
}

// Lines returns the buffered lines, oldest first.
func (r *Recent) Lines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.full {
		return append([]string(nil), r.lines[:r.next]...)
	}
	out := make([]string, 0, len(r.lines))
	out = append(out, r.lines[r.next:]...)
	return append(out, r.lines[:r.next]...)
}
