package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pitabwire/recruitflow/model"
)

// ErrCircuitOpen is returned by a Guarded notifier while deliveries are
// being short-circuited.
var ErrCircuitOpen = errors.New("notification delivery suspended: circuit open")

// BreakerState is the delivery state of a Guarded notifier.
type BreakerState int

const (
	// BreakerClosed delivers every notification.
	BreakerClosed BreakerState = iota
	// BreakerOpen fails every notification immediately.
	BreakerOpen
	// BreakerHalfOpen lets a single trial delivery through. Others fail
	// immediately until the trial succeeds or fails.
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Guarded wraps a Notifier with a consecutive-failure circuit breaker.
type Guarded struct {
	next      Notifier
	threshold int
	cooldown  time.Duration
	logger    *zap.Logger
	now       func() time.Time

	mu            sync.Mutex
	state         BreakerState
	failures      int
	openedAt      time.Time
	trialInFlight bool
}

// NewGuarded wraps next. After threshold consecutive failures deliveries fail
// with ErrCircuitOpen for cooldown, then a single trial delivery decides
// whether the circuit closes again.
func NewGuarded(next Notifier, threshold int, cooldown time.Duration, logger *zap.Logger) *Guarded {
	if threshold < 1 {
		threshold = 5
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Guarded{
		next:      next,
		threshold: threshold,
		cooldown:  cooldown,
		logger:    logger,
		now:       time.Now,
	}
}

// Notify delivers n through the wrapped notifier unless the circuit is open.
func (g *Guarded) Notify(ctx context.Context, n model.Notification) error {
	if !g.allow() {
		return ErrCircuitOpen
	}
	err := g.next.Notify(ctx, n)
	g.record(err)
	return err
}

// State returns the current breaker state.
func (g *Guarded) State() BreakerState {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.maybeHalfOpen()
	return g.state
}

// HealthCheck reports an open circuit, otherwise the wrapped notifier's
// health when it has one.
func (g *Guarded) HealthCheck(ctx context.Context) error {
	if g.State() == BreakerOpen {
		return ErrCircuitOpen
	}
	if hc, ok := g.next.(interface{ HealthCheck(context.Context) error }); ok {
		return hc.HealthCheck(ctx)
	}
	return nil
}

func (g *Guarded) allow() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.maybeHalfOpen()
	switch g.state {
	case BreakerOpen:
		return false
	case BreakerHalfOpen:
		if g.trialInFlight {
			return false
		}
		g.trialInFlight = true
	}
	return true
}

func (g *Guarded) record(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.trialInFlight = false

	if err == nil {
		if g.state == BreakerHalfOpen {
			g.logger.Info("notification delivery recovered")
		}
		g.state = BreakerClosed
		g.failures = 0
		return
	}

	g.failures++
	if g.state == BreakerHalfOpen || g.failures >= g.threshold {
		if g.state != BreakerOpen {
			g.logger.Warn("notification delivery suspended",
				zap.Int("consecutive_failures", g.failures),
				zap.Duration("cooldown", g.cooldown),
				zap.Error(err),
			)
		}
		g.state = BreakerOpen
		g.openedAt = g.now()
	}
}

// maybeHalfOpen must be called with the lock held.
func (g *Guarded) maybeHalfOpen() {
	if g.state == BreakerOpen && g.now().Sub(g.openedAt) >= g.cooldown {
		g.state = BreakerHalfOpen
	}
}
