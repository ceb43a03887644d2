package storage

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/loupelabs/loupe/pkg/types"
)

var _ GraphStore = (*MemoryStore)(nil)

// MemoryStore is the in-process GraphStore. It is the default backend for
// tests and one-shot CLI runs, and the reference implementation the SQL
// backends are expected to agree with.
type MemoryStore struct {
	mu       sync.RWMutex
	entities map[string]*entityRecord
	edges    []*edgeRecord
	edgeIdx  map[edgeKey]*edgeRecord
	nextSeq  int64
}

type entityRecord struct {
	entity  types.Entity
	source  string
	created int64 // Sequence assigned at first write, stable across upserts
	touched int64 // Sequence refreshed on every write
}

type edgeRecord struct {
	rel    types.Relationship
	origin string
}

type edgeKey struct {
	source string
	target string
	kind   types.RelationshipKind
}

// NewMemoryStore creates an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entities: make(map[string]*entityRecord),
		edgeIdx:  make(map[edgeKey]*edgeRecord),
	}
}

// PutEntities upserts entities under the source and indexes their inline
// relationships as edges.
func (s *MemoryStore) PutEntities(ctx context.Context, source string, entities []types.Entity) error {
	if source == "" {
		return fmt.Errorf("%w: source is required", ErrInvalidInput)
	}
	for _, e := range entities {
		if e.ID == "" {
			return fmt.Errorf("%w: entity ID is required", ErrInvalidInput)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range entities {
		s.nextSeq++
		rec, exists := s.entities[e.ID]
		if !exists {
			rec = &entityRecord{created: s.nextSeq}
			s.entities[e.ID] = rec
		}
		rec.entity = cloneEntity(e)
		rec.source = source
		rec.touched = s.nextSeq

		for _, rel := range e.Relationships {
			if rel.Source == "" {
				rel.Source = e.ID
			}
			if rel.Target == "" {
				continue
			}
			s.upsertEdgeLocked(rel, source)
		}
	}
	return nil
}

// PutRelationships upserts edges under the source.
func (s *MemoryStore) PutRelationships(ctx context.Context, source string, rels []types.Relationship) error {
	if source == "" {
		return fmt.Errorf("%w: source is required", ErrInvalidInput)
	}
	for _, rel := range rels {
		if rel.Source == "" || rel.Target == "" {
			return fmt.Errorf("%w: relationship needs both source and target", ErrInvalidInput)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rel := range rels {
		s.upsertEdgeLocked(rel, source)
	}
	return nil
}

// upsertEdgeLocked inserts or replaces an edge keyed by its
// (source, target, kind) triple. Callers hold the write lock.
func (s *MemoryStore) upsertEdgeLocked(rel types.Relationship, origin string) {
	key := edgeKey{source: rel.Source, target: rel.Target, kind: rel.Kind}
	rel.Metadata = types.CloneMetadata(rel.Metadata)

	if existing, ok := s.edgeIdx[key]; ok {
		existing.rel = rel
		existing.origin = origin
		return
	}

	rec := &edgeRecord{rel: rel, origin: origin}
	s.edges = append(s.edges, rec)
	s.edgeIdx[key] = rec
}

// GetEntity retrieves one entity by ID.
func (s *MemoryStore) GetEntity(ctx context.Context, id string) (*types.Entity, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: entity ID is required", ErrInvalidInput)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.entities[id]
	if !ok {
		return nil, ErrNotFound
	}
	e := cloneEntity(rec.entity)
	return &e, nil
}

// DeleteBySource removes everything written under the source.
func (s *MemoryStore) DeleteBySource(ctx context.Context, source string) (int, error) {
	if source == "" {
		return 0, fmt.Errorf("%w: source is required", ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, rec := range s.entities {
		if rec.source == source {
			delete(s.entities, id)
			removed++
		}
	}

	kept := s.edges[:0]
	for _, rec := range s.edges {
		if rec.origin == source {
			delete(s.edgeIdx, edgeKey{source: rec.rel.Source, target: rec.rel.Target, kind: rec.rel.Kind})
			continue
		}
		kept = append(kept, rec)
	}
	s.edges = kept

	return removed, nil
}

// Query evaluates the query against the stored entities.
func (s *MemoryStore) Query(ctx context.Context, q types.Query) ([]types.Result, error) {
	s.mu.RLock()
	records := make([]*entityRecord, 0, len(s.entities))
	for _, rec := range s.entities {
		records = append(records, rec)
	}
	s.mu.RUnlock()

	preferRecent := q.PerformanceHints != nil && q.PerformanceHints.PreferRecent
	slices.SortFunc(records, func(a, b *entityRecord) int {
		if preferRecent {
			return cmp.Compare(b.touched, a.touched)
		}
		return cmp.Compare(a.created, b.created)
	})

	entities := make([]types.Entity, len(records))
	for i, rec := range records {
		entities[i] = cloneEntity(rec.entity)
	}
	return ApplyQuery(entities, q), nil
}

// Neighbors returns adjacent IDs in edge insertion order.
func (s *MemoryStore) Neighbors(ctx context.Context, nodeID string, edgeKinds []types.RelationshipKind, direction types.Direction) ([]string, error) {
	if nodeID == "" {
		return nil, fmt.Errorf("%w: node ID is required", ErrInvalidInput)
	}
	if direction == "" {
		direction = types.DirectionOutgoing
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]bool)
	var out []string
	add := func(id string) {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}

	for _, rec := range s.edges {
		if !kindAllowed(rec.rel.Kind, edgeKinds) {
			continue
		}
		if rec.rel.Source == nodeID && (direction == types.DirectionOutgoing || direction == types.DirectionBoth) {
			add(rec.rel.Target)
		}
		if rec.rel.Target == nodeID && (direction == types.DirectionIncoming || direction == types.DirectionBoth) {
			add(rec.rel.Source)
		}
	}
	return out, nil
}

// Stats reports aggregate counts.
func (s *MemoryStore) Stats(ctx context.Context) (*GraphStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &GraphStats{
		TotalEntities:       len(s.entities),
		TotalRelationships:  len(s.edges),
		EntitiesByKind:      make(map[string]int),
		RelationshipsByKind: make(map[string]int),
	}

	sources := make(map[string]bool)
	for _, rec := range s.entities {
		stats.EntitiesByKind[string(rec.entity.Kind)]++
		sources[rec.source] = true
	}
	for _, rec := range s.edges {
		stats.RelationshipsByKind[string(rec.rel.Kind)]++
		sources[rec.origin] = true
	}
	stats.Sources = len(sources)

	return stats, nil
}

// Close is a no-op for the in-process store.
func (s *MemoryStore) Close() error { return nil }

func kindAllowed(kind types.RelationshipKind, allowed []types.RelationshipKind) bool {
	if len(allowed) == 0 {
		return true
	}
	return slices.Contains(allowed, kind)
}

// cloneEntity copies an entity deeply enough that callers and the store
// never alias each other's metadata maps or relationship slices.
func cloneEntity(e types.Entity) types.Entity {
	e.Metadata = types.CloneMetadata(e.Metadata)
	if len(e.Relationships) > 0 {
		rels := make([]types.Relationship, len(e.Relationships))
		copy(rels, e.Relationships)
		for i := range rels {
			rels[i].Metadata = types.CloneMetadata(rels[i].Metadata)
		}
		e.Relationships = rels
	}
	return e
}
