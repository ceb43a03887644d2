package lens

import (
	"strings"

	"github.com/loupelabs/loupe/pkg/types"
)

// Default debugging lens priority. High: when something is broken, error
// context beats everything else.
const debuggingPriority = 80

// errorSignals maps content keywords to their relevance contribution,
// iterated in slice order so scores are reproducible.
var errorSignals = []struct {
	keyword string
	weight  int
}{
	{"error", 30},
	{"exception", 25},
	{"fail", 20},
	{"bug", 15},
	{"fix", 15},
	{"stack", 10},
	{"trace", 10},
}

// DebuggingLens surfaces error-adjacent context while the caller is
// debugging: it activates on debugger and error actions, failed test runs,
// and error-flavored keywords, then reorders results so diagnostics and
// suspect code come first.
type DebuggingLens struct {
	Base
}

// NewDebuggingLens returns the built-in debugging lens with its default
// configuration. The defaults can be replaced through Configure; the
// priority cannot.
func NewDebuggingLens() *DebuggingLens {
	cfg := types.LensConfig{
		Enabled:  true,
		Priority: debuggingPriority,
		ActivationRules: []types.ActivationRule{
			{Kind: types.RuleAction, Actions: []string{
				string(types.ActionDebuggerStart),
				string(types.ActionError),
			}},
			{Kind: types.RuleKeyword, Keywords: []string{"error", "bug", "fix", "debug", "stack", "exception", "crash"}},
			{Kind: types.RuleFilePattern, Patterns: []string{"*_test.*", "*.test.*", "*.spec.*", "*.log"}},
		},
		QueryModifications: []types.QueryModification{
			{Kind: types.ModRaiseDepth, Depth: 2},
			{Kind: types.ModHint, Hint: HintPreferRecent},
		},
		ResultTransformations: []types.ResultTransformation{
			{Kind: types.TransformScore, Emphasis: "error", Weight: 0.8},
			{Kind: types.TransformReorder},
		},
	}
	return &DebuggingLens{Base: Base{
		id:       "debugging",
		name:     "Debugging",
		priority: debuggingPriority,
		config:   cfg,
	}}
}

// ShouldActivate extends the generic rules with one refinement: a recent
// test run counts only when it failed.
func (l *DebuggingLens) ShouldActivate(ctx *types.ActivationContext) bool {
	if l.Base.ShouldActivate(ctx) {
		return true
	}
	if !l.Config().Enabled || ctx == nil {
		return false
	}
	return failedTestRun(ctx)
}

// ProcessResults scores each result by its error signals and reorders so the
// most trouble-laden entities come first.
func (l *DebuggingLens) ProcessResults(results []types.Result, qc *types.QueryContext) []types.Result {
	return processWith(l.id, l.Config(), results, debugRelevance)
}

// debugRelevance scores an entity 0-100 by error signals: keyword hits in
// name and content, diagnostic kind, executable code kinds.
func debugRelevance(e types.Entity) int {
	text := strings.ToLower(e.Name + " " + e.Content)
	score := 0
	for _, sig := range errorSignals {
		if strings.Contains(text, sig.keyword) {
			score += sig.weight
		}
	}
	switch e.Kind {
	case types.EntityKindDiagnostic:
		score += 30
	case types.EntityKindFunction, types.EntityKindClass:
		score += 10
	}
	return clampScore(score)
}

// failedTestRun reports whether a recent test run ended in failure.
func failedTestRun(ctx *types.ActivationContext) bool {
	for _, a := range ctx.RecentActions {
		if a.Type != types.ActionTestRun {
			continue
		}
		if res, ok := a.Metadata["result"].(string); ok && res == "failed" {
			return true
		}
	}
	return false
}
