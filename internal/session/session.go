// Package session owns the device session lifecycle: a small state machine
// over Stopped/Running/Paused and the retry-guarded dispatch harness that
// wraps every backend action.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/commandAGI/deviced/internal/device"
	"github.com/google/uuid"
)

// State is the session lifecycle state.
type State string

const (
	StateStopped State = "stopped"
	StateRunning State = "running"
	StatePaused  State = "paused"
)

// ErrorPolicy selects what a caller sees after the retry budget is exhausted.
type ErrorPolicy int

const (
	// Raise returns the last error to the caller.
	Raise ErrorPolicy = iota
	// Swallow reports failure through the Result only.
	Swallow
)

// ParseErrorPolicy converts a configuration string to an ErrorPolicy.
func ParseErrorPolicy(s string) (ErrorPolicy, error) {
	switch s {
	case "raise":
		return Raise, nil
	case "swallow":
		return Swallow, nil
	}
	return Raise, fmt.Errorf("unknown error policy %q", s)
}

// Recorder persists session state transitions. Recording is best-effort:
// failures are logged and never block a transition.
type Recorder interface {
	RecordTransition(ctx context.Context, sessionID, name string, from, to State) error
}

// Options configures a Controller.
type Options struct {
	Name         string
	RetryBudget  int
	Policy       ErrorPolicy
	ArtifactRoot string
	Recorder     Recorder
	Logger       *slog.Logger
}

// Controller drives one device session. All state transitions go through
// its methods; the state field is mutex-protected because programmatic
// callers and bridge connection handlers dispatch from arbitrary
// goroutines. Backend calls themselves run outside the lock.
type Controller struct {
	id      string
	name    string
	backend device.Backend

	mu    sync.Mutex
	state State

	retryBudget int
	policy      ErrorPolicy

	artifactRoot string
	artifacts    *artifactSet

	recorder Recorder
	log      *slog.Logger
}

// NewController creates a stopped session bound to the given backend.
func NewController(backend device.Backend, opts Options) *Controller {
	name := opts.Name
	if name == "" {
		name = "session"
	}
	budget := opts.RetryBudget
	if budget <= 0 {
		budget = 3
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Controller{
		id:           uuid.NewString(),
		name:         name,
		backend:      backend,
		state:        StateStopped,
		retryBudget:  budget,
		policy:       opts.Policy,
		artifactRoot: opts.ArtifactRoot,
		recorder:     opts.Recorder,
		log:          log.With("session", name),
	}
}

// ID returns the session's unique identifier.
func (c *Controller) ID() string { return c.id }

// Name returns the session name.
func (c *Controller) Name() string { return c.name }

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// logger snapshots the current logger. Start and Stop swap the logger field
// when the session logfile is acquired or released, so readers outside the
// lock must go through here.
func (c *Controller) logger() *slog.Logger {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.log
}

// Start brings the session to Running. It is idempotent: starting a running
// session logs a warning and does nothing; starting a paused session
// resumes it. One-time setup (artifact directory and session logfile) is
// acquired here and released by Stop.
func (c *Controller) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.startLocked()
}

func (c *Controller) startLocked() error {
	switch c.state {
	case StateRunning:
		c.log.Warn("Session is already started")
		return nil
	case StatePaused:
		c.log.Info("Resuming paused session")
		return c.resumeLocked()
	}

	if c.artifactRoot != "" {
		arts, err := acquireArtifacts(c.artifactRoot, c.name)
		if err != nil {
			return fmt.Errorf("acquire session artifacts: %w", err)
		}
		c.artifacts = arts
		c.log = arts.tee(c.log)
	}

	c.log.Info("Starting session")
	c.setStateLocked(StateRunning)
	c.log.Info("Session started")
	return nil
}

// Stop brings the session to Stopped. It always succeeds locally: backend
// teardown errors are logged and never returned, and artifact resources are
// released on every path.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
}

func (c *Controller) stopLocked() {
	if c.state == StateStopped {
		c.log.Warn("Session is already stopped")
		return
	}
	if c.state == StatePaused {
		c.log.Info("Session is paused, stopping anyway")
	}

	c.log.Info("Stopping session")
	if closer, ok := c.backend.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			// Destruction must not be blockable.
			c.log.Error("Backend teardown failed", "error", err)
		}
	}
	c.setStateLocked(StateStopped)
	c.log.Info("Session stopped")

	if c.artifacts != nil {
		c.log = c.artifacts.release()
		c.artifacts = nil
	}
}

// Pause suspends a running session. The backend hook is retried up to the
// retry budget; on exhaustion the session stays Running and an error is
// returned.
func (c *Controller) Pause() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pauseLocked()
}

func (c *Controller) pauseLocked() error {
	if c.state != StateRunning {
		c.log.Warn("Cannot pause session", "state", c.state)
		return fmt.Errorf("cannot pause session in %s state", c.state)
	}
	if err := c.retrySuspend("pause", func(s device.Suspender) error { return s.Pause() }); err != nil {
		return err
	}
	c.setStateLocked(StatePaused)
	c.log.Info("Session paused")
	return nil
}

// Resume returns a paused session to Running, retrying the backend hook up
// to the retry budget. On exhaustion the session stays Paused.
func (c *Controller) Resume() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resumeLocked()
}

func (c *Controller) resumeLocked() error {
	if c.state != StatePaused {
		c.log.Warn("Cannot resume session", "state", c.state)
		return fmt.Errorf("cannot resume session in %s state", c.state)
	}
	if err := c.retrySuspend("resume", func(s device.Suspender) error { return s.Resume() }); err != nil {
		return err
	}
	c.setStateLocked(StateRunning)
	c.log.Info("Session resumed")
	return nil
}

// retrySuspend runs a pause/resume hook with the session's retry budget.
// Backends without suspension support succeed as a no-op.
func (c *Controller) retrySuspend(what string, hook func(device.Suspender) error) error {
	suspender, ok := c.backend.(device.Suspender)
	if !ok {
		c.log.Debug("Backend does not support suspension", "op", what)
		return nil
	}
	var lastErr error
	for attempt := 1; attempt <= c.retryBudget; attempt++ {
		if err := hook(suspender); err != nil {
			lastErr = err
			c.log.Error("Suspension hook failed", "op", what, "attempt", attempt, "budget", c.retryBudget, "error", err)
			continue
		}
		return nil
	}
	return fmt.Errorf("%s failed after %d attempts: %w", what, c.retryBudget, lastErr)
}

// EnsureState drives the session to the target state using the transition
// table. Every (current, target) pair is defined; the two-step path
// Stopped -> Paused starts then pauses.
func (c *Controller) EnsureState(target State) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ensureStateLocked(target)
}

func (c *Controller) ensureStateLocked(target State) error {
	switch [2]State{c.state, target} {
	case [2]State{StateRunning, StateRunning},
		[2]State{StatePaused, StatePaused},
		[2]State{StateStopped, StateStopped}:
		return nil
	case [2]State{StateStopped, StateRunning}:
		return c.startLocked()
	case [2]State{StatePaused, StateRunning}:
		return c.resumeLocked()
	case [2]State{StateRunning, StatePaused}:
		return c.pauseLocked()
	case [2]State{StateStopped, StatePaused}:
		if err := c.startLocked(); err != nil {
			return err
		}
		return c.pauseLocked()
	case [2]State{StateRunning, StateStopped},
		[2]State{StatePaused, StateStopped}:
		c.stopLocked()
		return nil
	}
	return fmt.Errorf("invalid state transition: %s -> %s", c.state, target)
}

// Reset performs a full stop/start cycle.
func (c *Controller) Reset() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
	return c.startLocked()
}

func (c *Controller) setStateLocked(next State) {
	prev := c.state
	c.state = next
	if c.recorder == nil || prev == next {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.recorder.RecordTransition(ctx, c.id, c.name, prev, next); err != nil {
		c.log.Warn("Failed to record state transition", "from", prev, "to", next, "error", err)
	}
}
