package types

import "time"

// Condition operators understood by query execution.
const (
	OpEquals    = "equals"
	OpContains  = "contains"
	OpPrefix    = "prefix"
	OpIn        = "in"
	OpNotEquals = "not_equals"
)

// Ordering directions.
const (
	OrderAsc  = "asc"
	OrderDesc = "desc"
)

// QueryCondition is one filter clause. Conditions added by lenses carry the
// lens id in AddedBy so consumers can attribute them.
type QueryCondition struct {
	Field    string      `json:"field"`             // Entity field or metadata key ("kind", "name", "metadata.entityType", ...)
	Operator string      `json:"operator"`          // One of the Op* constants
	Value    interface{} `json:"value"`             // Comparison value
	AddedBy  string      `json:"addedBy,omitempty"` // Lens id when lens-added, "" when caller-supplied
}

// QueryOrdering is one sort clause.
type QueryOrdering struct {
	Field     string `json:"field"`
	Direction string `json:"direction"` // OrderAsc or OrderDesc
	AddedBy   string `json:"addedBy,omitempty"`
}

// Pagination bounds a result window.
type Pagination struct {
	Offset int `json:"offset,omitempty"`
	Limit  int `json:"limit"`
}

// PerformanceHints lets lenses suggest execution shortcuts to the store.
// Hints are advisory; a store may ignore them.
type PerformanceHints struct {
	MaxResults   int  `json:"maxResults,omitempty"`
	PreferRecent bool `json:"preferRecent,omitempty"`
	SkipContent  bool `json:"skipContent,omitempty"` // Results may omit entity content bodies
}

// Query is the caller-owned description of a graph lookup. Lenses extend it
// additively: they may append conditions and ordering, raise Depth, and grow
// Pagination.Limit, but never remove or shrink what the caller supplied.
type Query struct {
	Conditions       []QueryCondition  `json:"conditions,omitempty"`
	Ordering         []QueryOrdering   `json:"ordering,omitempty"`
	Depth            int               `json:"depth,omitempty"` // Relationship expansion depth, 0 = entities only
	Pagination       *Pagination       `json:"pagination,omitempty"`
	PerformanceHints *PerformanceHints `json:"performanceHints,omitempty"`
}

// Clone returns a deep copy. Lens transforms operate on clones so the
// caller's query is never aliased.
func (q Query) Clone() Query {
	out := Query{Depth: q.Depth}
	if len(q.Conditions) > 0 {
		out.Conditions = make([]QueryCondition, len(q.Conditions))
		copy(out.Conditions, q.Conditions)
	}
	if len(q.Ordering) > 0 {
		out.Ordering = make([]QueryOrdering, len(q.Ordering))
		copy(out.Ordering, q.Ordering)
	}
	if q.Pagination != nil {
		p := *q.Pagination
		out.Pagination = &p
	}
	if q.PerformanceHints != nil {
		h := *q.PerformanceHints
		out.PerformanceHints = &h
	}
	return out
}

// QueryContext accompanies result processing: the query that produced the
// results and the activation snapshot in force when it ran.
type QueryContext struct {
	Query      Query              `json:"query"`
	Activation *ActivationContext `json:"activation,omitempty"`
	Timestamp  time.Time          `json:"timestamp"`
}

// Result is one entity flowing through the lens result pipeline. LensMeta
// accumulates lens attribution: "appliedLens" names the last lens that
// processed the result, and lens-specific values use lens-namespaced keys
// (e.g. "debugging.score").
type Result struct {
	Entity   Entity                 `json:"entity"`
	LensMeta map[string]interface{} `json:"_lensMetadata,omitempty"`
}

// WithLensMeta returns a copy of the result with key set in a copied LensMeta
// map. The receiver is not modified.
func (r Result) WithLensMeta(key string, value interface{}) Result {
	meta := make(map[string]interface{}, len(r.LensMeta)+1)
	for k, v := range r.LensMeta {
		meta[k] = v
	}
	meta[key] = value
	r.LensMeta = meta
	return r
}

// AppliedLens returns the id recorded under "appliedLens", or "".
func (r Result) AppliedLens() string {
	if r.LensMeta == nil {
		return ""
	}
	if id, ok := r.LensMeta["appliedLens"].(string); ok {
		return id
	}
	return ""
}
