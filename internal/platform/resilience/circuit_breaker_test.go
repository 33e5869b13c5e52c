package resilience

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func TestCircuitBreaker_OpensAfterFailureStreak(t *testing.T) {
	b := NewCircuitBreaker(3, time.Minute, 1)

	for i := 0; i < 2; i++ {
		if err := b.Allow(); err != nil {
			t.Fatalf("closed breaker must allow, got %v", err)
		}
		b.RecordFailure()
	}
	if b.State() != CircuitStateClosed {
		t.Fatalf("two failures must not open a threshold-3 breaker, state=%s", b.State())
	}

	b.RecordFailure()
	if b.State() != CircuitStateOpen {
		t.Fatalf("expected open after threshold, state=%s", b.State())
	}
	if err := b.Allow(); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("open breaker must reject, got %v", err)
	}
}

func TestCircuitBreaker_SuccessResetsStreak(t *testing.T) {
	b := NewCircuitBreaker(2, time.Minute, 1)

	b.RecordFailure()
	b.RecordSuccess()
	b.RecordFailure()
	if b.State() != CircuitStateClosed {
		t.Fatalf("interleaved success must reset the streak, state=%s", b.State())
	}
}

func TestCircuitBreaker_HalfOpenRecovery(t *testing.T) {
	b := NewCircuitBreaker(1, 10*time.Second, 1)
	base := time.Now()
	b.now = func() time.Time { return base }

	b.RecordFailure()
	if err := b.Allow(); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected rejection inside the open window, got %v", err)
	}

	b.now = func() time.Time { return base.Add(11 * time.Second) }
	if b.State() != CircuitStateHalfOpen {
		t.Fatalf("expected half-open after the window, state=%s", b.State())
	}
	if err := b.Allow(); err != nil {
		t.Fatalf("half-open breaker must admit a trial request, got %v", err)
	}
	// The trial budget is spent until the in-flight request resolves.
	if err := b.Allow(); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected trial budget exhaustion, got %v", err)
	}

	b.RecordSuccess()
	if b.State() != CircuitStateClosed {
		t.Fatalf("trial success must close the breaker, state=%s", b.State())
	}
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	b := NewCircuitBreaker(1, 10*time.Second, 1)
	base := time.Now()
	b.now = func() time.Time { return base }

	b.RecordFailure()
	b.now = func() time.Time { return base.Add(11 * time.Second) }
	if err := b.Allow(); err != nil {
		t.Fatalf("expected trial admission, got %v", err)
	}

	b.RecordFailure()
	if err := b.Allow(); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("half-open failure must reopen the breaker, got %v", err)
	}
}

func TestSingleFlight_SharesConcurrentCalls(t *testing.T) {
	var g SingleFlight

	entered := make(chan struct{})
	release := make(chan struct{})
	calls := 0
	leaderDone := make(chan struct{})
	go func() {
		defer close(leaderDone)
		val, err, shared := g.Do("profile", func() (any, error) {
			calls++
			close(entered)
			<-release
			return "loaded", nil
		})
		if err != nil || val != "loaded" || shared {
			t.Errorf("leader: val=%v err=%v shared=%v", val, err, shared)
		}
	}()

	<-entered

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			val, err, shared := g.Do("profile", func() (any, error) {
				calls++
				return "loaded", nil
			})
			if err != nil || val != "loaded" {
				t.Errorf("follower: val=%v err=%v shared=%v", val, err, shared)
			}
		}()
	}

	// Give the followers time to join the in-flight call before it resolves.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()
	<-leaderDone

	if calls > 2 {
		t.Fatalf("concurrent callers must collapse into the in-flight call, got %d executions", calls)
	}
}

func TestSingleFlight_DistinctKeysRunIndependently(t *testing.T) {
	var g SingleFlight

	a, err, _ := g.Do("a", func() (any, error) { return 1, nil })
	if err != nil || a != 1 {
		t.Fatalf("key a: val=%v err=%v", a, err)
	}
	b, err, _ := g.Do("b", func() (any, error) { return 2, nil })
	if err != nil || b != 2 {
		t.Fatalf("key b: val=%v err=%v", b, err)
	}
}
