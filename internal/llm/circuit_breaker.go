package llm

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// ErrCircuitOpen is returned when the circuit breaker rejects a request
// because the provider has been failing.
var ErrCircuitOpen = errors.New("provider circuit breaker is open")

// GuardConfig tunes the call guard shared by all provider clients.
type GuardConfig struct {
	// MaxFailures is the number of consecutive failures that trips the
	// circuit. Default: 3.
	MaxFailures uint32

	// OpenTimeout is how long the circuit stays open before allowing
	// probe requests. Default: 30s.
	OpenTimeout time.Duration

	// HalfOpenProbes is the number of successful probes required to
	// close the circuit again. Default: 2.
	HalfOpenProbes uint32

	// RequestsPerSecond enables client-side rate limiting when > 0.
	RequestsPerSecond float64

	// Burst is the rate limiter burst size. Default: 1 when limiting
	// is enabled.
	Burst int
}

// Guard wraps provider calls with a circuit breaker and an optional
// client-side rate limiter. The limiter waits (respecting ctx) before
// the call; the breaker decides whether the call may run at all.
type Guard struct {
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
}

// NewGuard builds a Guard with defaults applied.
func NewGuard(cfg GuardConfig) *Guard {
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = 3
	}
	if cfg.OpenTimeout == 0 {
		cfg.OpenTimeout = 30 * time.Second
	}
	if cfg.HalfOpenProbes == 0 {
		cfg.HalfOpenProbes = 2
	}

	g := &Guard{}
	g.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "llm",
		MaxRequests: cfg.HalfOpenProbes,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
	})
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	return g
}

// Do runs fn through the rate limiter and circuit breaker. A cancelled
// context returns immediately; an open circuit returns ErrCircuitOpen.
func (g *Guard) Do(ctx context.Context, fn func() (any, error)) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	result, err := g.breaker.Execute(func() (any, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return fn()
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, ErrCircuitOpen
		}
		return nil, err
	}
	return result, nil
}

// State reports the breaker state: "closed", "open", or "half-open".
func (g *Guard) State() string {
	switch g.breaker.State() {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateOpen:
		return "open"
	case gobreaker.StateHalfOpen:
		return "half-open"
	}
	return "unknown"
}
