package session

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// artifactSet holds the per-session resources acquired by Start and
// released by Stop: the artifact directory and the session logfile.
type artifactSet struct {
	dir     string
	logFile *os.File
	base    *slog.Logger
}

func acquireArtifacts(root, name string) (*artifactSet, error) {
	dir := filepath.Join(root, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact directory: %w", err)
	}
	logPath := filepath.Join(dir, "session.log")
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open session logfile: %w", err)
	}
	return &artifactSet{dir: dir, logFile: f}, nil
}

// Dir returns the session's artifact directory.
func (a *artifactSet) Dir() string { return a.dir }

// tee wraps base so records also land in the session logfile.
func (a *artifactSet) tee(base *slog.Logger) *slog.Logger {
	a.base = base
	file := slog.NewJSONHandler(a.logFile, nil)
	return slog.New(teeHandler{base.Handler(), file})
}

// release closes the logfile and returns the pre-tee logger. It never
// fails: close errors are logged and dropped so Stop stays unblockable.
func (a *artifactSet) release() *slog.Logger {
	base := a.base
	if base == nil {
		base = slog.Default()
	}
	if err := a.logFile.Close(); err != nil {
		base.Warn("Failed to close session logfile", "error", err)
	}
	return base
}

// teeHandler fans one record out to every wrapped handler.
type teeHandler []slog.Handler

func (t teeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range t {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (t teeHandler) Handle(ctx context.Context, r slog.Record) error {
	var firstErr error
	for _, h := range t {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (t teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := make(teeHandler, len(t))
	for i, h := range t {
		next[i] = h.WithAttrs(attrs)
	}
	return next
}

func (t teeHandler) WithGroup(name string) slog.Handler {
	next := make(teeHandler, len(t))
	for i, h := range t {
		next[i] = h.WithGroup(name)
	}
	return next
}
