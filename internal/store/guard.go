package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"github.com/i474232898/bike-tracker/internal/tracking"
)

// Backend is what every store implementation provides.
type Backend interface {
	tracking.HistoryStore
	tracking.DedupIndex
	Close() error
}

// GuardConfig controls the circuit breaker around a backend.
type GuardConfig struct {
	Name string
	// ConsecutiveFailures trips the breaker. Default 5.
	ConsecutiveFailures uint32
	// Timeout is how long the breaker stays open. Default 30s.
	Timeout time.Duration
	Logger  *slog.Logger
}

// Guarded wraps a Backend with a circuit breaker so that a dead backend
// fails fast with tracking.ErrStoreUnavailable instead of stalling ingestion
// and every API request on network timeouts.
type Guarded struct {
	inner   Backend
	circuit *gobreaker.CircuitBreaker
}

// NewGuarded creates a new Guarded backend.
func NewGuarded(inner Backend, cfg GuardConfig) *Guarded {
	if cfg.Name == "" {
		cfg.Name = "store"
	}
	if cfg.ConsecutiveFailures == 0 {
		cfg.ConsecutiveFailures = 5
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: 1,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures
		},
		// Only backend outages count against the breaker; corrupt values
		// and cancelled contexts do not.
		IsSuccessful: func(err error) bool {
			return err == nil || isContextErr(err) || !errors.Is(err, tracking.ErrStoreUnavailable)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("store circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
	return &Guarded{inner: inner, circuit: cb}
}

// State reports the breaker state ("closed", "half-open", "open").
func (g *Guarded) State() string {
	return g.circuit.State().String()
}

func (g *Guarded) SeedIfEmpty(ctx context.Context, bootstrap tracking.Reading) (bool, error) {
	return execute(g, func() (bool, error) { return g.inner.SeedIfEmpty(ctx, bootstrap) })
}

func (g *Guarded) Append(ctx context.Context, r tracking.Reading) error {
	_, err := execute(g, func() (struct{}, error) { return struct{}{}, g.inner.Append(ctx, r) })
	return err
}

func (g *Guarded) Latest(ctx context.Context) (tracking.Reading, bool, error) {
	type latest struct {
		r  tracking.Reading
		ok bool
	}
	res, err := execute(g, func() (latest, error) {
		r, ok, err := g.inner.Latest(ctx)
		return latest{r: r, ok: ok}, err
	})
	return res.r, res.ok, err
}

func (g *Guarded) History(ctx context.Context, offset, limit int) ([]tracking.Reading, error) {
	return execute(g, func() ([]tracking.Reading, error) { return g.inner.History(ctx, offset, limit) })
}

func (g *Guarded) Seen(ctx context.Context, fp tracking.Fingerprint) (bool, error) {
	return execute(g, func() (bool, error) { return g.inner.Seen(ctx, fp) })
}

func (g *Guarded) Record(ctx context.Context, fp tracking.Fingerprint) error {
	_, err := execute(g, func() (struct{}, error) { return struct{}{}, g.inner.Record(ctx, fp) })
	return err
}

func (g *Guarded) Close() error {
	return g.inner.Close()
}

func execute[T any](g *Guarded, fn func() (T, error)) (T, error) {
	var zero T
	result, err := g.circuit.Execute(func() (interface{}, error) {
		return fn()
	})
	if err != nil {
		// If circuit is open, fail fast as a retryable outage.
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return zero, fmt.Errorf("%w: %v", tracking.ErrStoreUnavailable, err)
		}
		return zero, err
	}
	v, ok := result.(T)
	if !ok {
		return zero, fmt.Errorf("unexpected result type from circuit breaker")
	}
	return v, nil
}
