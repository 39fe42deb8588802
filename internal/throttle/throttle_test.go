package throttle

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestFirstInvocationAlwaysExecutes(t *testing.T) {
	l := New(time.Hour)

	executed := false
	if !l.Invoke(func() { executed = true }) {
		t.Fatal("first invocation was suppressed")
	}
	if !executed {
		t.Fatal("callback did not run")
	}
}

func TestSecondInvocationInsideWindowSuppressed(t *testing.T) {
	l := New(time.Hour)

	if !l.Allow() {
		t.Fatal("first call should be allowed")
	}
	if l.Allow() {
		t.Fatal("second call inside window should be suppressed")
	}
}

func TestZeroIntervalDisablesThrottling(t *testing.T) {
	l := New(0)

	for i := 0; i < 100; i++ {
		if !l.Allow() {
			t.Fatalf("call %d suppressed with zero interval", i)
		}
	}
}

func TestNegativeIntervalDisablesThrottling(t *testing.T) {
	l := New(-time.Second)

	if !l.Allow() || !l.Allow() {
		t.Fatal("negative interval should disable throttling")
	}
}

func TestAllowsAgainAfterWindowElapses(t *testing.T) {
	l := New(20 * time.Millisecond)

	if !l.Allow() {
		t.Fatal("first call should be allowed")
	}
	if l.Allow() {
		t.Fatal("call inside window should be suppressed")
	}

	time.Sleep(25 * time.Millisecond)

	if !l.Allow() {
		t.Fatal("call after window elapsed should be allowed")
	}
}

// TestPublishRateBounded simulates a read storm: events every 50ms for
// 2 seconds against a 500ms window must produce between 3 and 5 executions.
func TestPublishRateBounded(t *testing.T) {
	l := New(500 * time.Millisecond)

	executions := 0
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		l.Invoke(func() { executions++ })
		time.Sleep(50 * time.Millisecond)
	}

	if executions < 3 || executions > 5 {
		t.Fatalf("expected 3-5 executions over 2s with 500ms window, got %d", executions)
	}
}

func TestConcurrentCallersSingleWinnerPerWindow(t *testing.T) {
	l := New(time.Hour)

	var allowed atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Allow() {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := allowed.Load(); got != 1 {
		t.Fatalf("expected exactly 1 allowed call, got %d", got)
	}
}

func TestIntervalAccessor(t *testing.T) {
	l := New(250 * time.Millisecond)
	if l.Interval() != 250*time.Millisecond {
		t.Fatalf("unexpected interval: %v", l.Interval())
	}
}
