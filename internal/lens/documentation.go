package lens

import (
	"strings"

	"github.com/loupelabs/loupe/pkg/types"
)

// Default documentation lens priority. Below debugging: explanations matter,
// but not more than a live failure.
const documentationPriority = 60

// DocumentationLens favors explanatory material: it activates when the
// caller is reading or searching documentation and reorders results so
// documented, exported, and prose entities come first.
type DocumentationLens struct {
	Base
}

// NewDocumentationLens returns the built-in documentation lens with its
// default configuration.
func NewDocumentationLens() *DocumentationLens {
	cfg := types.LensConfig{
		Enabled:  true,
		Priority: documentationPriority,
		ActivationRules: []types.ActivationRule{
			{Kind: types.RuleKeyword, Keywords: []string{"docs", "documentation", "readme", "guide", "tutorial", "reference"}},
			{Kind: types.RuleFilePattern, Patterns: []string{"*.md", "*.markdown", "README*", "*.d.ts"}},
		},
		QueryModifications: []types.QueryModification{
			{Kind: types.ModRaiseDepth, Depth: 1},
			{Kind: types.ModExtendLimit, Limit: 50},
		},
		ResultTransformations: []types.ResultTransformation{
			{Kind: types.TransformScore, Emphasis: "document", Weight: 0.6},
			{Kind: types.TransformReorder},
		},
	}
	return &DocumentationLens{Base: Base{
		id:       "documentation",
		name:     "Documentation",
		priority: documentationPriority,
		config:   cfg,
	}}
}

// ProcessResults scores each result by its documentation signals and
// reorders so the best-documented entities come first.
func (l *DocumentationLens) ProcessResults(results []types.Result, qc *types.QueryContext) []types.Result {
	return processWith(l.id, l.Config(), results, docRelevance)
}

// docRelevance scores an entity 0-100 by documentation signals: JSDoc
// presence, export visibility, prose kinds, and README-ish names.
func docRelevance(e types.Entity) int {
	score := 0
	if _, ok := e.Metadata["jsDoc"]; ok {
		score += 35
	}
	if exported, ok := e.Metadata["exported"].(bool); ok && exported {
		score += 25
	}
	switch e.Kind {
	case types.EntityKindDocument, types.EntityKindSection:
		score += 20
	case types.EntityKindParagraph, types.EntityKindReference:
		score += 10
	}
	name := strings.ToLower(e.Name)
	if strings.Contains(name, "readme") || strings.HasSuffix(name, ".md") {
		score += 15
	}
	return clampScore(score)
}
