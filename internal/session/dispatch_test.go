package session

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/commandAGI/deviced/internal/device"
)

func TestDispatch_SucceedsFirstAttempt(t *testing.T) {
	c := newTestController(&fakeBackend{})
	if err := c.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	res, err := c.Dispatch("shell", func() error { return nil })
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if !res.Succeeded || res.Attempts != 1 {
		t.Errorf("result = %+v, want succeeded with 1 attempt", res)
	}
}

func TestDispatch_RecoversWithinBudget(t *testing.T) {
	c := newTestController(&fakeBackend{})
	if err := c.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	failures := 2
	res, err := c.Dispatch("flaky", func() error {
		if failures > 0 {
			failures--
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if !res.Succeeded || res.Attempts != 3 {
		t.Errorf("result = %+v, want succeeded with 3 attempts", res)
	}
}

func TestDispatch_ExhaustsBudget(t *testing.T) {
	c := newTestController(&fakeBackend{})
	if err := c.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	calls := 0
	res, _ := c.Dispatch("doomed", func() error {
		calls++
		return errors.New("permanent")
	})
	if res.Succeeded {
		t.Error("dispatch should fail after exhaustion")
	}
	if res.Attempts != 3 || calls != 3 {
		t.Errorf("attempts = %d (calls %d), want 3", res.Attempts, calls)
	}
	if res.LastErr == nil {
		t.Error("LastErr should carry the final error")
	}
}

func TestDispatch_SwallowNeverRaises(t *testing.T) {
	c := NewController(&fakeBackend{}, Options{Name: "swallow", RetryBudget: 2, Policy: Swallow})
	if err := c.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	res, err := c.Dispatch("doomed", func() error { return errors.New("permanent") })
	if err != nil {
		t.Errorf("Swallow policy returned error: %v", err)
	}
	if res.Succeeded || res.LastErr == nil {
		t.Errorf("result = %+v, want failure with LastErr", res)
	}
}

func TestDispatch_RaiseReturnsLastError(t *testing.T) {
	c := NewController(&fakeBackend{}, Options{Name: "raise", RetryBudget: 2, Policy: Raise})
	if err := c.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	permanent := errors.New("permanent")
	res, err := c.Dispatch("doomed", func() error { return permanent })
	if err == nil {
		t.Fatal("Raise policy should return an error after exhaustion")
	}
	if !errors.Is(err, permanent) {
		t.Errorf("error = %v, want wrap of %v", err, permanent)
	}
	if res.Attempts != 2 {
		t.Errorf("attempts = %d, want 2", res.Attempts)
	}
}

func TestDispatch_CapabilityErrorNotRetried(t *testing.T) {
	c := newTestController(&fakeBackend{})
	if err := c.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	calls := 0
	res, _ := c.Dispatch("unsupported", func() error {
		calls++
		return device.ErrNotSupported
	})
	if calls != 1 {
		t.Errorf("capability error retried %d times, want 1 call", calls)
	}
	if res.Succeeded {
		t.Error("unsupported operation reported success")
	}
	if !errors.Is(res.LastErr, device.ErrNotSupported) {
		t.Errorf("LastErr = %v, want ErrNotSupported", res.LastErr)
	}
}

func TestDispatch_AutoStartsStoppedSession(t *testing.T) {
	c := newTestController(&fakeBackend{})

	res, err := c.Dispatch("shell", func() error { return nil })
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if !res.Succeeded {
		t.Errorf("result = %+v, want success", res)
	}
	if c.State() != StateRunning {
		t.Errorf("state = %s, want running", c.State())
	}
}

// Dispatch runs from bridge connection goroutines while programmatic
// callers cycle the lifecycle; Start and Stop swap the logger field, so
// the retry loop must never read it outside the lock. Run with -race.
func TestDispatch_ConcurrentWithLifecycle(t *testing.T) {
	c := NewController(&fakeBackend{}, Options{
		Name:         "concurrent",
		RetryBudget:  2,
		Policy:       Swallow,
		ArtifactRoot: t.TempDir(),
	})

	stop := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				_, _ = c.Dispatch("noop", func() error { return nil })
			}
		}()
	}

	for i := 0; i < 25; i++ {
		c.Stop()
		if err := c.Start(); err != nil {
			t.Errorf("Start cycle %d: %v", i, err)
			break
		}
	}
	close(stop)
	wg.Wait()
	c.Stop()
}

func TestDispatch_ShellScenario(t *testing.T) {
	b := &fakeBackend{}
	c := newTestController(b)
	if err := c.EnsureState(StateRunning); err != nil {
		t.Fatalf("EnsureState(running): %v", err)
	}

	res, err := c.Dispatch("shell", func() error {
		_, shellErr := b.Shell(context.Background(), "echo hi", 0)
		return shellErr
	})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if !res.Succeeded || res.Attempts != 1 {
		t.Errorf("result = %+v, want {succeeded:true attempts:1}", res)
	}
}
