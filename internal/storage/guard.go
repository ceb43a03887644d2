package storage

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/sony/gobreaker"

	"github.com/loupelabs/loupe/pkg/types"
)

var _ GraphStore = (*GuardedStore)(nil)

// GuardConfig holds the circuit breaker configuration for a GuardedStore.
type GuardConfig struct {
	// MaxFailures is the number of consecutive failures required to trip
	// the circuit. Default: 3.
	MaxFailures uint32

	// Timeout is how long the circuit stays open before transitioning to
	// half-open. Default: 30 seconds.
	Timeout time.Duration

	// HalfOpenMaxSuccesses is the number of consecutive successes required
	// in half-open state to close the circuit again. Default: 2.
	HalfOpenMaxSuccesses uint32
}

func (c *GuardConfig) applyDefaults() {
	if c.MaxFailures == 0 {
		c.MaxFailures = 3
	}
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
	if c.HalfOpenMaxSuccesses == 0 {
		c.HalfOpenMaxSuccesses = 2
	}
}

// GuardedStore wraps a GraphStore behind a circuit breaker so a failing
// backend (typically a remote postgres) degrades fast instead of hanging
// every caller. While the circuit is open, calls return ErrStoreUnavailable
// immediately.
//
// ErrNotFound and ErrInvalidInput are business outcomes, not backend
// failures; they pass through without counting against the circuit.
type GuardedStore struct {
	inner   GraphStore
	breaker *gobreaker.CircuitBreaker
}

// NewGuardedStore wraps inner with a circuit breaker.
func NewGuardedStore(inner GraphStore, cfg GuardConfig) *GuardedStore {
	cfg.applyDefaults()

	settings := gobreaker.Settings{
		Name:        "graph-store",
		MaxRequests: cfg.HalfOpenMaxSuccesses,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrNotFound) || errors.Is(err, ErrInvalidInput)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Printf("WARNING: %s circuit breaker %s -> %s", name, from, to)
		},
	}

	return &GuardedStore{
		inner:   inner,
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

// State returns the current circuit state: "closed", "open" or "half-open".
func (g *GuardedStore) State() string {
	switch g.breaker.State() {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateOpen:
		return "open"
	case gobreaker.StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

func (g *GuardedStore) PutEntities(ctx context.Context, source string, entities []types.Entity) error {
	_, err := g.execute(func() (interface{}, error) {
		return nil, g.inner.PutEntities(ctx, source, entities)
	})
	return err
}

func (g *GuardedStore) PutRelationships(ctx context.Context, source string, rels []types.Relationship) error {
	_, err := g.execute(func() (interface{}, error) {
		return nil, g.inner.PutRelationships(ctx, source, rels)
	})
	return err
}

func (g *GuardedStore) GetEntity(ctx context.Context, id string) (*types.Entity, error) {
	out, err := g.execute(func() (interface{}, error) {
		return g.inner.GetEntity(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	return out.(*types.Entity), nil
}

func (g *GuardedStore) DeleteBySource(ctx context.Context, source string) (int, error) {
	out, err := g.execute(func() (interface{}, error) {
		return g.inner.DeleteBySource(ctx, source)
	})
	if err != nil {
		return 0, err
	}
	return out.(int), nil
}

func (g *GuardedStore) Query(ctx context.Context, q types.Query) ([]types.Result, error) {
	out, err := g.execute(func() (interface{}, error) {
		return g.inner.Query(ctx, q)
	})
	if err != nil {
		return nil, err
	}
	return out.([]types.Result), nil
}

func (g *GuardedStore) Neighbors(ctx context.Context, nodeID string, edgeKinds []types.RelationshipKind, direction types.Direction) ([]string, error) {
	out, err := g.execute(func() (interface{}, error) {
		return g.inner.Neighbors(ctx, nodeID, edgeKinds, direction)
	})
	if err != nil {
		return nil, err
	}
	return out.([]string), nil
}

func (g *GuardedStore) Stats(ctx context.Context) (*GraphStats, error) {
	out, err := g.execute(func() (interface{}, error) {
		return g.inner.Stats(ctx)
	})
	if err != nil {
		return nil, err
	}
	return out.(*GraphStats), nil
}

// Close bypasses the breaker; releasing resources should always be tried.
func (g *GuardedStore) Close() error {
	return g.inner.Close()
}

func (g *GuardedStore) execute(fn func() (interface{}, error)) (interface{}, error) {
	out, err := g.breaker.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return out, err
}
