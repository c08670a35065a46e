package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pitabwire/recruitflow/model"
)

func newTestGuarded(next Notifier, threshold int, cooldown time.Duration) (*Guarded, *time.Time) {
	g := NewGuarded(next, threshold, cooldown, nil)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	g.now = func() time.Time { return now }
	return g, &now
}

func TestGuarded_passesThroughWhenClosed(t *testing.T) {
	mem := NewMemoryNotifier()
	g, _ := newTestGuarded(mem, 3, time.Minute)

	if err := g.Notify(context.Background(), model.Notification{Recipient: "recruiter"}); err != nil {
		t.Fatalf("Notify() error = %v", err)
	}
	if len(mem.Sent()) != 1 {
		t.Errorf("sent = %d, want 1", len(mem.Sent()))
	}
	if g.State() != BreakerClosed {
		t.Errorf("state = %s, want closed", g.State())
	}
}

func TestGuarded_opensAfterThreshold(t *testing.T) {
	mem := NewMemoryNotifier()
	mem.Err = errors.New("broker down")
	g, _ := newTestGuarded(mem, 3, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := g.Notify(ctx, model.Notification{}); err == nil || errors.Is(err, ErrCircuitOpen) {
			t.Fatalf("attempt %d: error = %v, want delivery error", i, err)
		}
	}
	if g.State() != BreakerOpen {
		t.Fatalf("state = %s, want open", g.State())
	}

	mem.Err = nil
	if err := g.Notify(ctx, model.Notification{}); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("error = %v, want ErrCircuitOpen", err)
	}
	if len(mem.Sent()) != 0 {
		t.Error("open circuit must not reach the wrapped notifier")
	}
	if err := g.HealthCheck(ctx); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("HealthCheck() = %v, want ErrCircuitOpen", err)
	}
}

func TestGuarded_successResetsFailureCount(t *testing.T) {
	mem := NewMemoryNotifier()
	g, _ := newTestGuarded(mem, 2, time.Minute)
	ctx := context.Background()

	mem.Err = errors.New("flaky")
	_ = g.Notify(ctx, model.Notification{})
	mem.Err = nil
	_ = g.Notify(ctx, model.Notification{})
	mem.Err = errors.New("flaky")
	_ = g.Notify(ctx, model.Notification{})

	if g.State() != BreakerClosed {
		t.Errorf("state = %s, want closed (failures were not consecutive)", g.State())
	}
}

func TestGuarded_halfOpenTrialDelivery(t *testing.T) {
	mem := NewMemoryNotifier()
	mem.Err = errors.New("broker down")
	g, now := newTestGuarded(mem, 1, time.Minute)
	ctx := context.Background()

	_ = g.Notify(ctx, model.Notification{})
	if g.State() != BreakerOpen {
		t.Fatalf("state = %s, want open", g.State())
	}

	*now = now.Add(time.Minute)
	if g.State() != BreakerHalfOpen {
		t.Fatalf("state = %s, want half-open after cooldown", g.State())
	}

	// A failed trial reopens immediately.
	_ = g.Notify(ctx, model.Notification{})
	if g.State() != BreakerOpen {
		t.Fatalf("state = %s, want open after failed trial", g.State())
	}

	*now = now.Add(time.Minute)
	mem.Err = nil
	if err := g.Notify(ctx, model.Notification{Recipient: "recruiter"}); err != nil {
		t.Fatalf("trial error = %v", err)
	}
	if g.State() != BreakerClosed {
		t.Errorf("state = %s, want closed after successful trial", g.State())
	}
}

// gateNotifier blocks each delivery until released.
type gateNotifier struct {
	entered chan struct{}
	release chan error
}

func (g *gateNotifier) Notify(context.Context, model.Notification) error {
	g.entered <- struct{}{}
	return <-g.release
}

func TestGuarded_halfOpenAdmitsOneDelivery(t *testing.T) {
	gate := &gateNotifier{entered: make(chan struct{}, 1), release: make(chan error, 1)}
	g, now := newTestGuarded(gate, 1, time.Minute)
	ctx := context.Background()

	// Trip the breaker.
	gate.release <- errors.New("broker down")
	_ = g.Notify(ctx, model.Notification{})
	<-gate.entered
	if g.State() != BreakerOpen {
		t.Fatalf("state = %s, want open", g.State())
	}

	*now = now.Add(time.Minute)
	done := make(chan error, 1)
	go func() { done <- g.Notify(ctx, model.Notification{Recipient: "recruiter"}) }()
	<-gate.entered

	// The first delivery is in flight; the rest are refused.
	for i := 0; i < 3; i++ {
		if err := g.Notify(ctx, model.Notification{}); !errors.Is(err, ErrCircuitOpen) {
			t.Fatalf("concurrent delivery %d: error = %v, want ErrCircuitOpen", i, err)
		}
	}

	gate.release <- nil
	if err := <-done; err != nil {
		t.Fatalf("first delivery error = %v", err)
	}
	if g.State() != BreakerClosed {
		t.Errorf("state = %s, want closed", g.State())
	}
}

func TestGuarded_defaults(t *testing.T) {
	g := NewGuarded(NewMemoryNotifier(), 0, 0, nil)
	if g.threshold != 5 {
		t.Errorf("threshold = %d, want 5", g.threshold)
	}
	if g.cooldown != 30*time.Second {
		t.Errorf("cooldown = %s, want 30s", g.cooldown)
	}
}

func TestBreakerState_String(t *testing.T) {
	tests := map[BreakerState]string{
		BreakerClosed:   "closed",
		BreakerOpen:     "open",
		BreakerHalfOpen: "half-open",
		BreakerState(9): "unknown",
	}
	for s, want := range tests {
		if s.String() != want {
			t.Errorf("%d.String() = %q, want %q", s, s.String(), want)
		}
	}
}
