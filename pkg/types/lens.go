package types

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Activation rule kinds.
const (
	RuleKeyword     = "keyword"
	RuleAction      = "action"
	RuleFilePattern = "file_pattern"
)

// Query modification kinds.
const (
	ModAddCondition = "add_condition"
	ModRaiseDepth   = "raise_depth"
	ModExtendLimit  = "extend_limit"
	ModHint         = "hint"
)

// Result transformation kinds.
const (
	TransformScore    = "score"
	TransformReorder  = "reorder"
	TransformAnnotate = "annotate"
)

// ActivationRule is one configured activation trigger. Exactly which field
// matters depends on Kind: keywords for RuleKeyword, action types for
// RuleAction, glob-ish filename patterns for RuleFilePattern.
type ActivationRule struct {
	Kind     string   `json:"kind"`
	Keywords []string `json:"keywords,omitempty"`
	Actions  []string `json:"actions,omitempty"`
	Patterns []string `json:"patterns,omitempty"`
}

// Validate checks the rule is well-formed.
func (r ActivationRule) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Kind, validation.Required, validation.In(RuleKeyword, RuleAction, RuleFilePattern)),
	)
}

// QueryModification is one configured query rewrite a lens applies when
// active. Modifications are additive: conditions are appended, depth only
// raised, limits only grown.
type QueryModification struct {
	Kind      string          `json:"kind"`
	Condition *QueryCondition `json:"condition,omitempty"` // ModAddCondition
	Depth     int             `json:"depth,omitempty"`     // ModRaiseDepth
	Limit     int             `json:"limit,omitempty"`     // ModExtendLimit
	Hint      string          `json:"hint,omitempty"`      // ModHint
}

// Validate checks the modification is well-formed.
func (m QueryModification) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.Kind, validation.Required, validation.In(ModAddCondition, ModRaiseDepth, ModExtendLimit, ModHint)),
		validation.Field(&m.Depth, validation.Min(0)),
		validation.Field(&m.Limit, validation.Min(0)),
	)
}

// ResultTransformation is one configured result-processing step. Emphasis
// names the content/metadata pattern the transformation boosts; two lenses
// sharing an emphasis overlap in effect, which conflict detection reports.
type ResultTransformation struct {
	Kind     string  `json:"kind"`
	Emphasis string  `json:"emphasis,omitempty"`
	Weight   float64 `json:"weight,omitempty"`
}

// Validate checks the transformation is well-formed.
func (t ResultTransformation) Validate() error {
	return validation.ValidateStruct(&t,
		validation.Field(&t.Kind, validation.Required, validation.In(TransformScore, TransformReorder, TransformAnnotate)),
		validation.Field(&t.Weight, validation.Min(0.0), validation.Max(1.0)),
	)
}

// LensConfig is the mutable configuration of a lens instance. It is accepted
// only through a lens's Configure method, which validates it first; an
// invalid config is rejected with a descriptive error and the lens keeps its
// previous configuration.
type LensConfig struct {
	Enabled               bool                   `json:"enabled"`
	Priority              int                    `json:"priority"` // Non-negative; higher runs earlier
	ActivationRules       []ActivationRule       `json:"activationRules,omitempty"`
	QueryModifications    []QueryModification    `json:"queryModifications,omitempty"`
	ResultTransformations []ResultTransformation `json:"resultTransformations,omitempty"`
}

// Validate checks the whole configuration, failing fast with a descriptive
// error. Nested rules validate element by element.
func (c LensConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Priority, validation.Min(0)),
		validation.Field(&c.ActivationRules),
		validation.Field(&c.QueryModifications),
		validation.Field(&c.ResultTransformations),
	)
}

// ConflictType classifies a detected lens conflict.
type ConflictType string

// Conflict types
const (
	PriorityConflict       ConflictType = "priority_conflict"
	TransformationConflict ConflictType = "transformation_conflict"
)

// Suggested conflict resolutions
const (
	ResolutionAdjustPriority = "adjust_priority"
	ResolutionReviewOverlap  = "review_overlapping_transformations"
)

// Conflict records a detected incompatibility between two registered lenses.
// Produced on demand by the registry, never persisted.
type Conflict struct {
	Type       ConflictType `json:"type"`
	LensIDs    []string     `json:"lensIds"`
	Resolution string       `json:"resolution"`
}
