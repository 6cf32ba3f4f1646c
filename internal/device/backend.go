// Package device defines the boundary between the session runtime and the
// concrete backends that inject input, run commands, and capture the screen.
// Backends themselves (local input injection, cloud VMs, browser sandboxes)
// live outside this repository; this package owns only the interface, the
// key/button vocabulary, and a minimal shell-only backend.
package device

import (
	"context"
	"errors"
	"time"
)

// ErrNotSupported is returned by a backend that does not implement the
// requested primitive. The dispatch harness never retries it.
var ErrNotSupported = errors.New("device: operation not supported by backend")

// Backend exposes the primitive operations the session runtime drives.
// Any returned error other than ErrNotSupported is treated as transient
// and retried up to the session's retry budget.
type Backend interface {
	KeyDown(key Key) error
	KeyUp(key Key) error
	MoveMouse(x, y int, duration time.Duration) error
	MouseButtonDown(button Button) error
	MouseButtonUp(button Button) error
	Shell(ctx context.Context, command string, timeout time.Duration) (string, error)
	CaptureScreen(ctx context.Context) ([]byte, error)
}

// Suspender is implemented by backends that support true suspension.
// Backends without it are paused and resumed as no-ops.
type Suspender interface {
	Pause() error
	Resume() error
}
