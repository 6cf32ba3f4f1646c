package session

import (
	"errors"
	"fmt"

	"github.com/commandAGI/deviced/internal/device"
)

// Result reports the outcome of one dispatched action.
type Result struct {
	Succeeded bool
	Attempts  int
	LastErr   error
}

// Dispatch runs one named backend operation under the session's retry
// harness:
//
//  1. The session is driven to Running; if that fails the operation does
//     not run.
//  2. op is attempted up to the retry budget, each attempt logged with its
//     index. device.ErrNotSupported is a capability error and is never
//     retried.
//  3. On exhaustion the error policy decides whether the caller gets the
//     last error (Raise) or a failed Result with a nil error (Swallow).
//
// The controller's lock is held only for the state check, so concurrent
// dispatches may run their backend calls in parallel. A retry loop runs to
// completion once begun; Stop does not interrupt it.
func (c *Controller) Dispatch(name string, op func() error) (Result, error) {
	if err := c.EnsureState(StateRunning); err != nil {
		c.logger().Error("Action rejected, session not running", "action", name, "error", err)
		res := Result{LastErr: err}
		if c.policy == Raise {
			return res, fmt.Errorf("session not running for %s: %w", name, err)
		}
		return res, nil
	}

	// Snapshot the logger: Stop may swap the field while the retry loop
	// runs outside the lock.
	log := c.logger()
	var lastErr error
	for attempt := 1; attempt <= c.retryBudget; attempt++ {
		err := op()
		if err == nil {
			log.Info("Action succeeded", "action", name, "attempt", attempt)
			return Result{Succeeded: true, Attempts: attempt}, nil
		}
		if errors.Is(err, device.ErrNotSupported) {
			log.Error("Action not supported by backend", "action", name)
			res := Result{Attempts: attempt, LastErr: err}
			if c.policy == Raise {
				return res, err
			}
			return res, nil
		}
		lastErr = err
		log.Error("Action failed", "action", name, "attempt", attempt, "budget", c.retryBudget, "error", err)
	}

	res := Result{Attempts: c.retryBudget, LastErr: lastErr}
	if c.policy == Raise {
		return res, fmt.Errorf("%s failed after %d attempts: %w", name, c.retryBudget, lastErr)
	}
	return res, nil
}
