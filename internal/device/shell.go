package device

import (
	"context"
	"fmt"
	"os/exec"
	"time"
)

// ShellBackend runs shell commands on the local host and reports every
// input and screen primitive as unsupported. It exists so the daemon can run
// standalone; full input-injection backends are provided externally.
type ShellBackend struct {
	// Shell is the interpreter invoked with -c. Defaults to /bin/sh.
	ShellPath string
}

var _ Backend = (*ShellBackend)(nil)

func (b *ShellBackend) KeyDown(Key) error                        { return ErrNotSupported }
func (b *ShellBackend) KeyUp(Key) error                          { return ErrNotSupported }
func (b *ShellBackend) MoveMouse(int, int, time.Duration) error  { return ErrNotSupported }
func (b *ShellBackend) MouseButtonDown(Button) error             { return ErrNotSupported }
func (b *ShellBackend) MouseButtonUp(Button) error               { return ErrNotSupported }
func (b *ShellBackend) CaptureScreen(context.Context) ([]byte, error) {
	return nil, ErrNotSupported
}

// Shell runs the command under the configured interpreter, bounded by
// timeout when it is positive.
func (b *ShellBackend) Shell(ctx context.Context, command string, timeout time.Duration) (string, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	shell := b.ShellPath
	if shell == "" {
		shell = "/bin/sh"
	}

	out, err := exec.CommandContext(ctx, shell, "-c", command).CombinedOutput()
	if err != nil {
		return string(out), fmt.Errorf("run %q: %w", command, err)
	}
	return string(out), nil
}
