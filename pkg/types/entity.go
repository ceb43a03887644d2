package types

import (
	"path/filepath"
	"strings"
)

// Entity is a typed unit of extracted knowledge: a function, a paragraph, a
// place, a character. Adapters produce entities; everything downstream
// (storage, lenses, traversal) consumes them.
type Entity struct {
	ID      string     `json:"id"`                // Unique within one extraction pass (format: kind:path:ordinal)
	Kind    EntityKind `json:"type"`              // Entity kind (see EntityKind constants)
	Name    string     `json:"name"`              // Display name (heading text, function name, place name)
	Content string     `json:"content,omitempty"` // Raw content span this entity was extracted from

	// Metadata is an open key-value map for domain-specific fields:
	// "entityType" discriminator, "parameters", "coordinates", "hours",
	// "startLine"/"endLine" spans, "jsDoc", and so on.
	Metadata map[string]interface{} `json:"metadata,omitempty"`

	// Relationships holds directed edges whose source is implicitly this
	// entity. Cross-entity edges discovered later (call graphs, proximity)
	// come from DetectRelationships instead.
	Relationships []Relationship `json:"relationships,omitempty"`
}

// Relationship is a directed, typed edge between two entities. Target may be
// a dangling reference when the edge points outside the extraction context
// (e.g. an import of an external package).
type Relationship struct {
	Kind     RelationshipKind       `json:"type"`               // Relationship kind (see RelationshipKind constants)
	Source   string                 `json:"source"`             // Source entity ID
	Target   string                 `json:"target"`             // Target entity ID (may be unresolved)
	Metadata map[string]interface{} `json:"metadata,omitempty"` // Open map, conventionally carrying "relationshipType"
}

// FileMetadata describes the origin of a piece of content. Purely
// descriptive; adapters branch on Extension, nothing mutates it.
type FileMetadata struct {
	Path      string `json:"path"`           // Full path as supplied by the caller
	Filename  string `json:"filename"`       // Base name including extension
	Extension string `json:"extension"`      // Lowercased extension including the dot, "" when none
	Size      int64  `json:"size,omitempty"` // Content length in bytes when known
}

// FileMetadataFor builds FileMetadata from a path, deriving filename and
// extension the way every caller should.
func FileMetadataFor(path string, size int64) FileMetadata {
	return FileMetadata{
		Path:      path,
		Filename:  filepath.Base(path),
		Extension: strings.ToLower(filepath.Ext(path)),
		Size:      size,
	}
}

// CloneMetadata returns a shallow copy of an open metadata map. Used by
// lenses and stores that must not alias caller-owned maps.
func CloneMetadata(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
