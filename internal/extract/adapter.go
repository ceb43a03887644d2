// Package extract turns raw content into the shared entity/relationship
// model. A fallback adapter handles any content type; specialized adapters
// (code, record, narrative) run the fallback first and layer domain
// extraction on top of its output.
//
// Extraction is total: no adapter ever returns an error or panics on
// malformed input. Unparseable content degrades to partial entities, at
// minimum the fallback's document entity.
package extract

import (
	"fmt"
	"strings"

	"github.com/loupelabs/loupe/pkg/types"
)

// Adapter is a pluggable extraction strategy for one content domain.
type Adapter interface {
	// Name identifies the adapter in diagnostics and registry listings.
	Name() string

	// Extensions lists the lowercased file extensions (including the dot)
	// this adapter claims. The fallback claims none; it takes whatever no
	// specialized adapter wants.
	Extensions() []string

	// Extract maps content to entities. Never returns an error: malformed
	// input degrades to whatever partial entities can be produced.
	Extract(content string, meta types.FileMetadata) []types.Entity
}

// RelationshipDetector is the optional second-pass capability: deriving
// cross-entity relationships (call graphs, inheritance, proximity) from an
// already-extracted entity set. Callers must type-assert for it before
// invoking.
type RelationshipDetector interface {
	DetectRelationships(entities []types.Entity) []types.Relationship
}

// Registry routes file metadata to the adapter claiming its extension,
// falling back to the baseline adapter for everything else.
type Registry struct {
	fallback Adapter
	byExt    map[string]Adapter
	order    []Adapter
}

// NewRegistry creates an empty registry around the given fallback adapter.
func NewRegistry(fallback Adapter) *Registry {
	return &Registry{
		fallback: fallback,
		byExt:    make(map[string]Adapter),
		order:    []Adapter{fallback},
	}
}

// DefaultRegistry wires the built-in adapter set: fallback baseline plus the
// code, record, and narrative adapters.
func DefaultRegistry() *Registry {
	fallback := NewFallbackAdapter()
	r := NewRegistry(fallback)
	r.Register(NewCodeAdapter(fallback))
	r.Register(NewRecordAdapter(fallback))
	r.Register(NewNarrativeAdapter(fallback))
	return r
}

// Register claims the adapter's extensions. A later registration for an
// already-claimed extension wins.
func (r *Registry) Register(a Adapter) {
	for _, ext := range a.Extensions() {
		r.byExt[strings.ToLower(ext)] = a
	}
	r.order = append(r.order, a)
}

// ForFile returns the adapter responsible for the given file metadata.
func (r *Registry) ForFile(meta types.FileMetadata) Adapter {
	if a, ok := r.byExt[strings.ToLower(meta.Extension)]; ok {
		return a
	}
	return r.fallback
}

// Adapters returns every registered adapter in registration order, the
// fallback first.
func (r *Registry) Adapters() []Adapter {
	out := make([]Adapter, len(r.order))
	copy(out, r.order)
	return out
}

// Extract routes to the responsible adapter and, when it also detects
// relationships, runs the second pass and returns its edges.
func (r *Registry) Extract(content string, meta types.FileMetadata) ([]types.Entity, []types.Relationship) {
	adapter := r.ForFile(meta)
	entities := adapter.Extract(content, meta)

	var relationships []types.Relationship
	if detector, ok := adapter.(RelationshipDetector); ok {
		relationships = detector.DetectRelationships(entities)
	}
	return entities, relationships
}

// originKey identifies the extraction origin used in entity ids. Entity ids
// only need to be unique within one extraction pass, so content without a
// path shares a fixed inline origin.
func originKey(meta types.FileMetadata) string {
	if meta.Path != "" {
		return meta.Path
	}
	if meta.Filename != "" {
		return meta.Filename
	}
	return "inline"
}

// entityID builds the conventional kind-prefixed id.
func entityID(prefix, origin string, parts ...interface{}) string {
	id := prefix + ":" + origin
	for _, p := range parts {
		id += fmt.Sprintf(":%v", p)
	}
	return id
}

// diagnosticEntity describes an extraction problem as data instead of an
// error, keeping extraction total.
func diagnosticEntity(origin, name, problem string, detail map[string]interface{}) types.Entity {
	meta := map[string]interface{}{
		"entityType": "diagnostic",
		"problem":    problem,
	}
	for k, v := range detail {
		meta[k] = v
	}
	return types.Entity{
		ID:       entityID("diag", origin, name),
		Kind:     types.EntityKindDiagnostic,
		Name:     name,
		Metadata: meta,
	}
}
