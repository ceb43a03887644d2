// Package engine provides the context engine that ties extraction, lenses,
// and graph storage together. The engine routes content through the adapter
// registry, maintains the rolling activation context that drives lens
// selection, and runs queries through the lens transform and result
// pipelines before and after they hit the store.
package engine

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/loupelabs/loupe/internal/extract"
	"github.com/loupelabs/loupe/internal/lens"
	"github.com/loupelabs/loupe/internal/storage"
	"github.com/loupelabs/loupe/pkg/types"
)

// ContextEngine is the core orchestrator for extraction, lens-mediated
// querying, and graph traversal. It owns the adapter registry, the lens
// registry, and the rolling activation context; the graph store is supplied
// by the caller, who retains responsibility for closing it.
type ContextEngine struct {
	// Configuration
	config Config

	// Collaborators
	store    storage.GraphStore
	adapters *extract.Registry
	lenses   *lens.Registry

	// Rolling activation context
	currentFiles  []string
	recentActions []types.ActionEvent
	project       types.ProjectContext

	// State management
	started bool
	mu      sync.RWMutex

	// Callbacks
	onExtraction func(summary ExtractionSummary)
	onLensEvent  func(ev lens.Event)
}

// NewContextEngine creates a context engine with the default adapter and
// lens registries. The store parameter provides the graph storage backend.
// Use DefaultConfig() for sensible defaults.
func NewContextEngine(store storage.GraphStore, engineConfig Config) (*ContextEngine, error) {
	return NewContextEngineWithRegistries(store, engineConfig, extract.DefaultRegistry(), lens.DefaultRegistry())
}

// NewContextEngineWithRegistries creates a context engine around caller
// supplied registries. Use this to run a trimmed adapter set or a custom
// lens lineup.
func NewContextEngineWithRegistries(store storage.GraphStore, engineConfig Config, adapters *extract.Registry, lenses *lens.Registry) (*ContextEngine, error) {
	if store == nil {
		return nil, fmt.Errorf("graph store is required")
	}

	if adapters == nil {
		return nil, fmt.Errorf("adapter registry is required")
	}

	if lenses == nil {
		return nil, fmt.Errorf("lens registry is required")
	}

	if err := engineConfig.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	engine := &ContextEngine{
		config:   engineConfig,
		store:    store,
		adapters: adapters,
		lenses:   lenses,
		started:  false,
	}

	// Forward the lens events the web hub cares about.
	lenses.AddEventListener(lens.EventActivation, engine.forwardLensEvent)
	lenses.AddEventListener(lens.EventLensError, engine.forwardLensEvent)

	return engine, nil
}

// SetOnExtraction sets a callback fired after every successful extraction.
// This is useful for triggering UI updates via WebSocket.
func (e *ContextEngine) SetOnExtraction(callback func(summary ExtractionSummary)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onExtraction = callback
}

// SetOnLensEvent sets a callback fired for lens activation changes and lens
// pipeline errors.
func (e *ContextEngine) SetOnLensEvent(callback func(ev lens.Event)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onLensEvent = callback
}

// Start starts the context engine. It must be called before any extraction,
// query, or traversal operation.
func (e *ContextEngine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.started {
		return fmt.Errorf("engine already started")
	}

	log.Printf("Starting context engine with %d adapters and %d lenses",
		len(e.adapters.Adapters()), len(e.lenses.RegisteredLenses()))

	e.started = true

	return nil
}

// Shutdown stops the context engine. Operations after Shutdown return
// "engine not started". The graph store is left open for the caller to
// close.
func (e *ContextEngine) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.started {
		return fmt.Errorf("engine not started")
	}

	e.started = false
	log.Println("Context engine shut down")

	return nil
}

// GetEntity retrieves a single entity by id.
func (e *ContextEngine) GetEntity(ctx context.Context, id string) (*types.Entity, error) {
	if err := e.ensureStarted(); err != nil {
		return nil, err
	}
	return e.store.GetEntity(ctx, id)
}

// RemoveSource deletes every entity and relationship recorded under the
// given source, returning the number of entities removed. The watcher uses
// this when a tracked file disappears.
func (e *ContextEngine) RemoveSource(ctx context.Context, source string) (int, error) {
	if err := e.ensureStarted(); err != nil {
		return 0, err
	}
	return e.store.DeleteBySource(ctx, source)
}

// Stats reports the current shape of the graph.
func (e *ContextEngine) Stats(ctx context.Context) (*storage.GraphStats, error) {
	if err := e.ensureStarted(); err != nil {
		return nil, err
	}
	return e.store.Stats(ctx)
}

// Lenses exposes the lens registry for configuration surfaces: listing,
// Configure, manual override, conflict detection.
func (e *ContextEngine) Lenses() *lens.Registry {
	return e.lenses
}

// Adapters exposes the adapter registry.
func (e *ContextEngine) Adapters() *extract.Registry {
	return e.adapters
}

// ensureStarted returns an error unless Start has been called.
func (e *ContextEngine) ensureStarted() error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if !e.started {
		return fmt.Errorf("engine not started")
	}
	return nil
}

// forwardLensEvent hands a registry event to the configured callback. The
// callback reference is snapshotted so the lens registry is never invoked
// while the engine lock is held.
func (e *ContextEngine) forwardLensEvent(ev lens.Event) {
	e.mu.RLock()
	callback := e.onLensEvent
	e.mu.RUnlock()

	if callback != nil {
		callback(ev)
	}
}

// notifyExtraction fires the extraction callback when one is configured.
func (e *ContextEngine) notifyExtraction(summary ExtractionSummary) {
	e.mu.RLock()
	callback := e.onExtraction
	e.mu.RUnlock()

	if callback != nil {
		callback(summary)
	}
}
