// Package storage defines the persistence boundary for the knowledge graph
// and provides the in-process reference implementation. Stores hold entities
// and the directed, typed edges between them; SQL-backed implementations
// live in the sqlite and postgres subpackages.
//
// Query semantics are identical across every implementation: backends may
// narrow candidate sets however they like, but the final filtering, ordering
// and pagination always go through ApplyQuery so a query means the same
// thing against any store.
package storage

import (
	"context"
	"errors"

	"github.com/loupelabs/loupe/pkg/types"
)

// Common errors returned by storage implementations.
var (
	// ErrNotFound is returned when a requested resource doesn't exist.
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")

	// ErrStoreUnavailable is returned by GuardedStore while its circuit
	// breaker is open and the backend is not being attempted.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// GraphStore is the primary interface for persisting and querying the
// entity graph. All writes are scoped to a source (the path or logical
// origin of an extraction pass) so re-extracting a file can atomically
// replace its prior contribution.
type GraphStore interface {
	// PutEntities upserts the given entities under the source. Each
	// entity's inline Relationships are indexed as edges exactly as if
	// they had also been passed to PutRelationships.
	// Returns ErrInvalidInput for an empty source or an entity with no ID.
	PutEntities(ctx context.Context, source string, entities []types.Entity) error

	// PutRelationships upserts edges under the source. A later write with
	// the same (source id, target id, kind) triple replaces the earlier
	// edge's metadata. Targets may dangle: an edge may point at an ID no
	// stored entity carries.
	// Returns ErrInvalidInput for an empty source or an edge missing
	// either endpoint.
	PutRelationships(ctx context.Context, source string, rels []types.Relationship) error

	// GetEntity retrieves one entity by ID.
	// Returns ErrNotFound if no entity with that ID is stored.
	GetEntity(ctx context.Context, id string) (*types.Entity, error)

	// DeleteBySource removes every entity and edge written under the
	// source and reports how many entities were removed. Edges written
	// under other sources are kept even when they point at removed
	// entities. Deleting an unknown source removes nothing and is not an
	// error.
	DeleteBySource(ctx context.Context, source string) (int, error)

	// Query evaluates the query against the stored entities and returns
	// matching results. The returned slice is never nil.
	Query(ctx context.Context, q types.Query) ([]types.Result, error)

	// Neighbors returns the IDs adjacent to nodeID following edges of the
	// given kinds (nil or empty means all kinds) in the given direction.
	// IDs appear in edge insertion order, deduplicated, and may include
	// dangling targets. An unknown node has no neighbors.
	Neighbors(ctx context.Context, nodeID string, edgeKinds []types.RelationshipKind, direction types.Direction) ([]string, error)

	// Stats reports aggregate counts over the stored graph.
	Stats(ctx context.Context) (*GraphStats, error)

	// Close releases any resources held by the store.
	Close() error
}

// EmbeddingSidecar is an optional capability for stores that can persist
// vector embeddings alongside entities. Callers must type-assert for it
// before invoking.
type EmbeddingSidecar interface {
	// StoreEmbedding saves the embedding vector for an entity, replacing
	// any earlier vector.
	StoreEmbedding(ctx context.Context, entityID string, embedding []float32) error

	// NearestEntities returns up to k entity IDs ordered by ascending
	// cosine distance from the given vector.
	NearestEntities(ctx context.Context, embedding []float32, k int) ([]Nearest, error)
}

// Nearest is one vector-search hit.
type Nearest struct {
	EntityID string  `json:"entityId"`
	Distance float64 `json:"distance"` // Cosine distance, 0 = identical direction
}

// GraphStats summarizes the stored graph.
type GraphStats struct {
	TotalEntities       int            `json:"totalEntities"`
	TotalRelationships  int            `json:"totalRelationships"`
	EntitiesByKind      map[string]int `json:"entitiesByKind"`
	RelationshipsByKind map[string]int `json:"relationshipsByKind"`
	Sources             int            `json:"sources"` // Distinct extraction sources
}
