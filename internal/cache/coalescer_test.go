package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestCoalescerSharesOneInvocation(t *testing.T) {
	c := NewCoalescer[string]()
	release := make(chan struct{})
	var calls atomic.Int32

	const callers = 8
	var wg sync.WaitGroup
	results := make([]string, callers)
	errs := make([]error, callers)
	for i := range callers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _, errs[i] = c.Do(context.Background(), "key", func(context.Context) (string, error) {
				calls.Add(1)
				<-release
				return "value", nil
			})
		}(i)
	}

	waitFor(t, func() bool { return c.Pending() == 1 })
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if calls.Load() != 1 {
		t.Fatalf("expected one invocation, got %d", calls.Load())
	}
	for i := range callers {
		if errs[i] != nil || results[i] != "value" {
			t.Fatalf("caller %d got %q err=%v", i, results[i], errs[i])
		}
	}
	if c.Pending() != 0 {
		t.Fatalf("expected no pending operations, got %d", c.Pending())
	}
}

func TestCoalescerReleasesKeyAfterFailure(t *testing.T) {
	c := NewCoalescer[string]()
	boom := errors.New("boom")

	_, _, err := c.Do(context.Background(), "key", func(context.Context) (string, error) {
		return "", boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	got, shared, err := c.Do(context.Background(), "key", func(context.Context) (string, error) {
		return "recovered", nil
	})
	if err != nil || got != "recovered" || shared {
		t.Fatalf("expected a fresh invocation, got %q shared=%v err=%v", got, shared, err)
	}
}

func TestCoalescerCallerContextDoesNotCancelOperation(t *testing.T) {
	c := NewCoalescer[string]()
	release := make(chan struct{})
	done := make(chan error, 1)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		_, _, err := c.Do(ctx, "key", func(opCtx context.Context) (string, error) {
			<-release
			done <- opCtx.Err()
			return "late", nil
		})
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected caller to observe cancellation, got %v", err)
		}
	}()

	waitFor(t, func() bool { return c.Pending() == 1 })
	cancel()
	time.Sleep(10 * time.Millisecond)
	close(release)

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("operation context should stay alive, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("operation did not finish")
	}
	waitFor(t, func() bool { return c.Pending() == 0 })
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met before deadline")
		}
		time.Sleep(time.Millisecond)
	}
}
