package engine

import (
	"fmt"
	"time"

	"github.com/loupelabs/loupe/pkg/types"
)

// Config holds configuration for the context engine.
type Config struct {
	// RecentActionLimit is how many recorded actions the rolling activation
	// context retains (default: 50).
	RecentActionLimit int

	// MaxTraversalDepth caps the depth of Expand and FindConnected calls
	// regardless of what the caller asks for (default: 10).
	MaxTraversalDepth int

	// MaxQueryResults caps result sets for queries that carry no pagination
	// limit and no MaxResults hint of their own. 0 disables the cap
	// (default: 500).
	MaxQueryResults int
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		RecentActionLimit: 50,
		MaxTraversalDepth: 10,
		MaxQueryResults:   500,
	}
}

// Validate checks if the config is valid.
func (c *Config) Validate() error {
	if c.RecentActionLimit < 1 {
		return fmt.Errorf("RecentActionLimit must be >= 1, got %d", c.RecentActionLimit)
	}

	if c.MaxTraversalDepth < 1 {
		return fmt.Errorf("MaxTraversalDepth must be >= 1, got %d", c.MaxTraversalDepth)
	}

	if c.MaxQueryResults < 0 {
		return fmt.Errorf("MaxQueryResults must be >= 0, got %d", c.MaxQueryResults)
	}

	return nil
}

// ExtractionSummary reports what one extraction pass produced and replaced.
type ExtractionSummary struct {
	// Source is the store key the extraction was filed under, normally the
	// file path.
	Source string `json:"source"`

	// Adapter is the name of the adapter that handled the content.
	Adapter string `json:"adapter"`

	// Entities is the number of entities extracted and stored.
	Entities int `json:"entities"`

	// Relationships is the number of detected cross-entity relationships,
	// not counting the inline relationships entities carry themselves.
	Relationships int `json:"relationships"`

	// Replaced is the number of entities from a previous extraction of the
	// same source that this pass removed.
	Replaced int `json:"replaced"`

	// Duration is how long extraction and storage took.
	Duration time.Duration `json:"duration"`
}

// QueryResponse bundles query results with the lens attribution for the run.
type QueryResponse struct {
	// Results are the processed results in final order.
	Results []types.Result `json:"results"`

	// AppliedLenses lists the ids of the lenses active for this query, in
	// the priority order they were applied.
	AppliedLenses []string `json:"appliedLenses"`

	// Total equals len(Results).
	Total int `json:"total"`
}

// ExpandOptions bounds a graph expansion from a single node.
type ExpandOptions struct {
	// MaxDepth is how many hops to expand. Values above the engine's
	// MaxTraversalDepth are clamped; 0 and below default to 1.
	MaxDepth int

	// Direction selects which edges to follow. Defaults to outgoing.
	Direction types.Direction

	// EdgeKinds restricts expansion to these relationship kinds. Empty
	// means all kinds.
	EdgeKinds []types.RelationshipKind
}
