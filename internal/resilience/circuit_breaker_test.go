package resilience

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/testforge/docforge/internal/config"
)

var errBackend = errors.New("backend failure")

func fail(ctx context.Context) (string, error) { return "", errBackend }

func succeed(ctx context.Context) (string, error) { return "ok", nil }

func tripAfter(n uint32, timeout time.Duration) *Breaker {
	return NewBreaker(Settings{
		Name:        "test",
		MaxRequests: 1,
		Timeout:     timeout,
		ReadyToTrip: ConsecutiveFailures(n),
	})
}

func TestBreaker_StartsClosed(t *testing.T) {
	b := NewBreaker(Settings{Name: "test"})

	if b.State() != StateClosed {
		t.Errorf("initial state = %v, want closed", b.State())
	}
	if b.Name() != "test" {
		t.Errorf("Name() = %q, want test", b.Name())
	}
}

func TestBreaker_TripsToOpen(t *testing.T) {
	b := tripAfter(3, time.Second)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		Do(ctx, b, fail)
	}
	if b.State() != StateClosed {
		t.Fatalf("state after 2 failures = %v, want closed", b.State())
	}

	Do(ctx, b, fail)
	if b.State() != StateOpen {
		t.Errorf("state after 3 failures = %v, want open", b.State())
	}
}

func TestBreaker_RejectsWhenOpen(t *testing.T) {
	b := tripAfter(1, 10*time.Second)
	ctx := context.Background()

	Do(ctx, b, fail)

	called := false
	_, err := Do(ctx, b, func(ctx context.Context) (string, error) {
		called = true
		return "ok", nil
	})

	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("error = %v, want ErrCircuitOpen", err)
	}
	if called {
		t.Error("open breaker must not call the backend")
	}
}

func TestBreaker_ClosesAfterSuccessInHalfOpen(t *testing.T) {
	b := tripAfter(1, 50*time.Millisecond)
	ctx := context.Background()

	Do(ctx, b, fail)
	time.Sleep(100 * time.Millisecond)

	if b.State() != StateHalfOpen {
		t.Fatalf("state after timeout = %v, want half-open", b.State())
	}

	got, err := Do(ctx, b, succeed)
	if err != nil {
		t.Fatalf("trial request error = %v", err)
	}
	if got != "ok" {
		t.Errorf("result = %q, want ok", got)
	}
	if b.State() != StateClosed {
		t.Errorf("state after success = %v, want closed", b.State())
	}
}

func TestBreaker_ReOpensAfterFailureInHalfOpen(t *testing.T) {
	b := tripAfter(1, 50*time.Millisecond)
	ctx := context.Background()

	Do(ctx, b, fail)
	time.Sleep(100 * time.Millisecond)
	Do(ctx, b, fail)

	if b.State() != StateOpen {
		t.Errorf("state after failure in half-open = %v, want open", b.State())
	}
}

func TestBreaker_CancelledContextIsNeutral(t *testing.T) {
	b := tripAfter(1, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Do(ctx, b, func(ctx context.Context) (string, error) {
		t.Error("fn must not run with a cancelled context")
		return "", nil
	})

	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
	if b.State() != StateClosed {
		t.Errorf("state after cancellation = %v, want closed", b.State())
	}
}

func TestBreaker_ConcurrentRequests(t *testing.T) {
	b := NewBreaker(Settings{Name: "test", ReadyToTrip: ConsecutiveFailures(1000)})
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				Do(ctx, b, fail)
			} else {
				Do(ctx, b, succeed)
			}
		}(i)
	}
	wg.Wait()

	counts := b.Counts()
	if counts.Requests != 50 {
		t.Errorf("Requests = %d, want 50", counts.Requests)
	}
	if counts.TotalFailures+counts.TotalSuccesses != 50 {
		t.Errorf("outcomes = %d, want 50", counts.TotalFailures+counts.TotalSuccesses)
	}
}

func TestBreaker_OnStateChange(t *testing.T) {
	var mu sync.Mutex
	var transitions []string

	b := NewBreaker(Settings{
		Name:        "llm",
		Timeout:     50 * time.Millisecond,
		ReadyToTrip: ConsecutiveFailures(1),
		OnStateChange: func(name string, from, to State) {
			mu.Lock()
			defer mu.Unlock()
			transitions = append(transitions, name+":"+from.String()+"->"+to.String())
		},
	})
	ctx := context.Background()

	Do(ctx, b, fail)
	time.Sleep(100 * time.Millisecond)
	Do(ctx, b, succeed)

	mu.Lock()
	defer mu.Unlock()
	want := []string{"llm:closed->open", "llm:open->half-open", "llm:half-open->closed"}
	if len(transitions) != len(want) {
		t.Fatalf("transitions = %v, want %v", transitions, want)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Errorf("transition[%d] = %q, want %q", i, transitions[i], want[i])
		}
	}
}

func TestSettingsFromConfig(t *testing.T) {
	s := SettingsFromConfig("gemini", config.BreakerConfig{
		FailureThreshold: 2,
		SuccessThreshold: 1,
		Timeout:          time.Minute,
	}, nil)

	b := NewBreaker(s)
	ctx := context.Background()
	Do(ctx, b, fail)
	Do(ctx, b, fail)

	if b.State() != StateOpen {
		t.Errorf("state = %v, want open after FailureThreshold failures", b.State())
	}
	if s.Timeout != time.Minute {
		t.Errorf("Timeout = %v, want 1m", s.Timeout)
	}
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateClosed, "closed"},
		{StateOpen, "open"},
		{StateHalfOpen, "half-open"},
		{State(99), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}
