// Package lens provides contextual viewpoints over the knowledge graph.
// A lens decides when it applies, extends queries with its own conditions,
// and rescores or annotates results; the Registry coordinates priorities,
// conflicts, caching, and error isolation across all registered lenses.
package lens

import (
	"fmt"
	"path"
	"slices"
	"strings"
	"sync"

	"github.com/loupelabs/loupe/pkg/types"
)

// Lens is one contextual viewpoint. Priority is fixed at construction and
// never changes afterwards; Configure updates everything else. TransformQuery
// and ProcessResults must not mutate their inputs: they return extended
// copies, tagging whatever they touch so consumers can attribute the change
// ("appliedLens" plus lens-namespaced keys such as "debugging.score").
type Lens interface {
	ID() string
	Name() string
	Priority() int
	ShouldActivate(ctx *types.ActivationContext) bool
	TransformQuery(q types.Query) types.Query
	ProcessResults(results []types.Result, qc *types.QueryContext) []types.Result
	Configure(cfg types.LensConfig) error
	Config() types.LensConfig
}

// Relevance scores attached by ProcessResults range 0 to maxScore.
const maxScore = 100

// Performance hint names understood by query modifications.
const (
	HintPreferRecent = "prefer_recent"
	HintSkipContent  = "skip_content"
)

// Base is a config-driven lens: activation, query transformation, and result
// scoring all follow the rules in its LensConfig. The built-in lenses embed
// it and replace only the pieces that need domain heuristics; a Base on its
// own is a complete custom lens.
type Base struct {
	id       string
	name     string
	priority int

	mu     sync.RWMutex
	config types.LensConfig
}

// NewCustomLens builds a lens whose whole behavior comes from cfg. The
// priority is taken from cfg and fixed; later Configure calls cannot change
// it.
func NewCustomLens(id, name string, cfg types.LensConfig) (*Base, error) {
	if id == "" {
		return nil, fmt.Errorf("lens id must not be empty")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config for lens '%s': %w", id, err)
	}
	return &Base{id: id, name: name, priority: cfg.Priority, config: cfg}, nil
}

// ID returns the unique lens identifier.
func (b *Base) ID() string { return b.id }

// Name returns the human-readable lens name.
func (b *Base) Name() string { return b.name }

// Priority returns the priority fixed at construction. Higher runs earlier.
func (b *Base) Priority() int { return b.priority }

// Config returns the current configuration.
func (b *Base) Config() types.LensConfig {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.config
}

// Configure validates and applies a new configuration. The priority set at
// construction is kept regardless of what cfg carries; an invalid config is
// rejected and the previous one stays in force.
func (b *Base) Configure(cfg types.LensConfig) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config for lens '%s': %w", b.id, err)
	}
	cfg.Priority = b.priority
	b.mu.Lock()
	b.config = cfg
	b.mu.Unlock()
	return nil
}

// ShouldActivate reports whether any configured activation rule matches the
// context. Rules form a disjunction: a single keyword, action, or
// file-pattern hit is enough. Disabled lenses never activate. The check
// reads only the context and the lens config, so equal inputs give equal
// answers.
func (b *Base) ShouldActivate(ctx *types.ActivationContext) bool {
	cfg := b.Config()
	if !cfg.Enabled || ctx == nil {
		return false
	}
	return rulesMatch(cfg.ActivationRules, ctx)
}

// TransformQuery returns a copy of q extended by the configured query
// modifications. Existing conditions and ordering are never removed; depth
// and limits only grow. Added conditions carry the lens id in AddedBy.
func (b *Base) TransformQuery(q types.Query) types.Query {
	cfg := b.Config()
	out := q.Clone()
	for _, mod := range cfg.QueryModifications {
		switch mod.Kind {
		case types.ModAddCondition:
			if mod.Condition == nil {
				continue
			}
			cond := *mod.Condition
			cond.AddedBy = b.id
			out.Conditions = append(out.Conditions, cond)
		case types.ModRaiseDepth:
			if mod.Depth > out.Depth {
				out.Depth = mod.Depth
			}
		case types.ModExtendLimit:
			if out.Pagination != nil && mod.Limit > out.Pagination.Limit {
				out.Pagination.Limit = mod.Limit
			}
		case types.ModHint:
			applyHint(&out, mod.Hint)
		}
	}
	return out
}

// ProcessResults scores, annotates, and reorders results according to the
// configured transformations. The generic relevance score counts matched
// score-transformation emphases; built-in lenses substitute their own
// scoring.
func (b *Base) ProcessResults(results []types.Result, qc *types.QueryContext) []types.Result {
	cfg := b.Config()
	return processWith(b.id, cfg, results, func(e types.Entity) int {
		return emphasisScore(cfg.ResultTransformations, e)
	})
}

// rulesMatch reports whether any rule matches the context. Keyword rules
// match current file paths and recent-action metadata text, action rules
// match recent action types, and pattern rules match current file names.
func rulesMatch(rules []types.ActivationRule, ctx *types.ActivationContext) bool {
	for _, rule := range rules {
		switch rule.Kind {
		case types.RuleKeyword:
			for _, kw := range rule.Keywords {
				if keywordInContext(strings.ToLower(kw), ctx) {
					return true
				}
			}
		case types.RuleAction:
			for _, want := range rule.Actions {
				if actionInContext(types.ActionType(want), ctx) {
					return true
				}
			}
		case types.RuleFilePattern:
			for _, pat := range rule.Patterns {
				if patternInContext(pat, ctx) {
					return true
				}
			}
		}
	}
	return false
}

func keywordInContext(kw string, ctx *types.ActivationContext) bool {
	for _, f := range ctx.CurrentFiles {
		if strings.Contains(strings.ToLower(f), kw) {
			return true
		}
	}
	for _, a := range ctx.RecentActions {
		for _, v := range a.Metadata {
			if s, ok := v.(string); ok && strings.Contains(strings.ToLower(s), kw) {
				return true
			}
		}
	}
	return false
}

func actionInContext(t types.ActionType, ctx *types.ActivationContext) bool {
	for _, a := range ctx.RecentActions {
		if a.Type == t {
			return true
		}
	}
	return false
}

func patternInContext(pat string, ctx *types.ActivationContext) bool {
	for _, f := range ctx.CurrentFiles {
		base := path.Base(strings.ReplaceAll(f, "\\", "/"))
		if strings.ContainsAny(pat, "*?[") {
			if ok, err := path.Match(pat, base); err == nil && ok {
				return true
			}
		} else if strings.Contains(base, pat) {
			return true
		}
	}
	return false
}

func applyHint(q *types.Query, hint string) {
	if hint == "" {
		return
	}
	if q.PerformanceHints == nil {
		q.PerformanceHints = &types.PerformanceHints{}
	}
	switch hint {
	case HintPreferRecent:
		q.PerformanceHints.PreferRecent = true
	case HintSkipContent:
		q.PerformanceHints.SkipContent = true
	}
}

// processWith runs the shared result pipeline: tag every result with the
// lens id, attach the scorer's 0-100 relevance under "<id>.score", apply any
// configured annotations, and, when the config asks for reordering, stably
// sort by descending score. The returned list holds exactly the input items;
// the input slice and its results are left untouched.
func processWith(id string, cfg types.LensConfig, results []types.Result, score func(types.Entity) int) []types.Result {
	out := make([]types.Result, len(results))
	for i, r := range results {
		s := clampScore(score(r.Entity))
		tagged := r.WithLensMeta("appliedLens", id)
		tagged = tagged.WithLensMeta(id+".score", s)
		for _, t := range cfg.ResultTransformations {
			if t.Kind == types.TransformAnnotate && t.Emphasis != "" && entityMatchesEmphasis(r.Entity, t.Emphasis) {
				tagged = tagged.WithLensMeta(id+"."+t.Emphasis, true)
			}
		}
		out[i] = tagged
	}
	if hasReorder(cfg.ResultTransformations) {
		key := id + ".score"
		slices.SortStableFunc(out, func(a, b types.Result) int {
			return lensScore(b, key) - lensScore(a, key)
		})
	}
	return out
}

func hasReorder(transforms []types.ResultTransformation) bool {
	for _, t := range transforms {
		if t.Kind == types.TransformReorder {
			return true
		}
	}
	return false
}

func lensScore(r types.Result, key string) int {
	if v, ok := r.LensMeta[key].(int); ok {
		return v
	}
	return 0
}

// emphasisScore is the generic relevance for custom lenses: each score
// transformation whose emphasis matches the entity contributes its weight.
func emphasisScore(transforms []types.ResultTransformation, e types.Entity) int {
	score := 0
	for _, t := range transforms {
		if t.Kind != types.TransformScore || t.Emphasis == "" {
			continue
		}
		if entityMatchesEmphasis(e, t.Emphasis) {
			w := t.Weight
			if w == 0 {
				w = 0.5
			}
			score += int(w * float64(maxScore))
		}
	}
	return clampScore(score)
}

// entityMatchesEmphasis reports whether the emphasis pattern describes the
// entity: its kind, its entityType metadata, or a substring of its name or
// content.
func entityMatchesEmphasis(e types.Entity, emphasis string) bool {
	em := strings.ToLower(emphasis)
	if strings.ToLower(string(e.Kind)) == em {
		return true
	}
	if et, ok := e.Metadata["entityType"].(string); ok && strings.ToLower(et) == em {
		return true
	}
	if strings.Contains(strings.ToLower(e.Name), em) {
		return true
	}
	return strings.Contains(strings.ToLower(e.Content), em)
}

func clampScore(n int) int {
	if n < 0 {
		return 0
	}
	if n > maxScore {
		return maxScore
	}
	return n
}
