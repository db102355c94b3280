//go:build load

// Package load contains load tests that are excluded from regular CI runs.
// Run with: go test -tags load -count=1 -timeout 60s ./tests/load/
package load

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Strob0t/AgentFoundry/internal/git"
	"github.com/Strob0t/AgentFoundry/internal/resilience"
)

// TestGitPoolConcurrencyCap runs 200 goroutines through a limit=8 pool and
// verifies the in-flight count never exceeds the cap while every call still
// completes.
func TestGitPoolConcurrencyCap(t *testing.T) {
	const limit = 8
	const goroutines = 200

	pool := git.NewPool(limit)

	var inFlight, peak, completed atomic.Int64
	var wg sync.WaitGroup
	wg.Add(goroutines)

	for range goroutines {
		go func() {
			defer wg.Done()
			err := pool.Run(context.Background(), func() error {
				n := inFlight.Add(1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}
				time.Sleep(2 * time.Millisecond)
				inFlight.Add(-1)
				completed.Add(1)
				return nil
			})
			if err != nil {
				t.Errorf("pool.Run: %v", err)
			}
		}()
	}

	wg.Wait()

	t.Logf("completed=%d peak=%d (cap %d)", completed.Load(), peak.Load(), limit)

	if completed.Load() != goroutines {
		t.Errorf("expected %d completions, got %d", goroutines, completed.Load())
	}
	if peak.Load() > limit {
		t.Errorf("in-flight peak %d exceeded pool limit %d", peak.Load(), limit)
	}
}

// TestGitPoolCancelledWaiters saturates the pool, then fires waiters with an
// already-cancelled context: every waiter must return ctx.Err() without ever
// running its function.
func TestGitPoolCancelledWaiters(t *testing.T) {
	pool := git.NewPool(1)

	release := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_ = pool.Run(context.Background(), func() error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	const waiters = 50
	var ran atomic.Int64
	var wg sync.WaitGroup
	wg.Add(waiters)
	for range waiters {
		go func() {
			defer wg.Done()
			err := pool.Run(ctx, func() error {
				ran.Add(1)
				return nil
			})
			if !errors.Is(err, context.Canceled) {
				t.Errorf("expected context.Canceled, got %v", err)
			}
		}()
	}
	wg.Wait()
	close(release)

	if ran.Load() != 0 {
		t.Errorf("expected 0 executions for cancelled waiters, got %d", ran.Load())
	}
}

// TestBreakerUnderConcurrentFailures hammers a breaker with failing calls
// from many goroutines. Once open, calls must be rejected without executing;
// at most maxFailures executions should ever reach the failing dependency
// before the short-circuit engages (plus a small race window).
func TestBreakerUnderConcurrentFailures(t *testing.T) {
	const maxFailures = 5
	const goroutines = 20
	const callsPerGoroutine = 50

	reg := resilience.NewRegistry(maxFailures, time.Minute)
	b := reg.For("anthropic")

	boom := errors.New("provider unavailable")
	var executed, rejected atomic.Int64
	var wg sync.WaitGroup
	wg.Add(goroutines)

	for range goroutines {
		go func() {
			defer wg.Done()
			for range callsPerGoroutine {
				err := b.Execute(func() error {
					executed.Add(1)
					return boom
				})
				if errors.Is(err, resilience.ErrCircuitOpen) {
					rejected.Add(1)
				}
			}
		}()
	}

	wg.Wait()

	total := int64(goroutines * callsPerGoroutine)
	t.Logf("total=%d executed=%d rejected=%d", total, executed.Load(), rejected.Load())

	if b.State() != resilience.StateOpen {
		t.Errorf("expected open breaker, got %v", b.State())
	}
	if rejected.Load() == 0 {
		t.Error("expected short-circuited calls once the breaker opened")
	}
	// The failing dependency should see far fewer calls than were issued:
	// everything past the threshold (modulo in-flight racers) is rejected.
	if executed.Load() > maxFailures+goroutines {
		t.Errorf("expected at most %d executions, got %d", maxFailures+goroutines, executed.Load())
	}
}

// TestRegistryConcurrentAccess exercises For and States from many goroutines
// to shake out races in the per-key breaker map.
func TestRegistryConcurrentAccess(t *testing.T) {
	reg := resilience.NewRegistry(3, time.Minute)
	keys := []string{"anthropic", "openai", "gemini", "openrouter"}

	const goroutines = 40
	var wg sync.WaitGroup
	wg.Add(goroutines)

	for i := range goroutines {
		go func() {
			defer wg.Done()
			key := keys[i%len(keys)]
			for range 100 {
				_ = reg.For(key).Execute(func() error { return nil })
				_ = reg.States()
			}
		}()
	}

	wg.Wait()

	states := reg.States()
	if len(states) != len(keys) {
		t.Fatalf("expected %d breakers, got %d", len(keys), len(states))
	}
	for key, state := range states {
		if state != resilience.StateClosed {
			t.Errorf("breaker %s: expected closed after successes, got %v", key, state)
		}
	}
}
