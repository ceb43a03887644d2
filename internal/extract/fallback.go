package extract

import (
	"strings"

	"github.com/loupelabs/loupe/pkg/types"
)

// markupExtensions are the file extensions that trigger the fallback
// adapter's markup pass on top of the paragraph split.
var markupExtensions = map[string]bool{
	".md":       true,
	".markdown": true,
	".mdx":      true,
}

// FallbackAdapter is the content-agnostic baseline shared by every adapter.
// It always emits exactly one document entity, splits content into paragraph
// entities on blank-line boundaries, and for markup files additionally
// recognizes sections, lists, and references.
type FallbackAdapter struct{}

// NewFallbackAdapter creates the baseline adapter.
func NewFallbackAdapter() *FallbackAdapter {
	return &FallbackAdapter{}
}

// Name implements Adapter.
func (a *FallbackAdapter) Name() string { return "fallback" }

// Extensions implements Adapter. The fallback claims no extensions; the
// registry routes to it when nothing else matches.
func (a *FallbackAdapter) Extensions() []string { return nil }

// Extract implements Adapter. Total over all inputs, including empty,
// NUL-laden, and mixed line-ending content.
func (a *FallbackAdapter) Extract(content string, meta types.FileMetadata) []types.Entity {
	origin := originKey(meta)
	lines := splitLines(content)

	doc := types.Entity{
		ID:      entityID("doc", origin),
		Kind:    types.EntityKindDocument,
		Name:    documentName(meta, origin),
		Content: content,
		Metadata: map[string]interface{}{
			"entityType": "document",
			"lineCount":  countLines(content, lines),
			"size":       len(content),
		},
	}
	if meta.Extension != "" {
		doc.Metadata["extension"] = meta.Extension
	}

	paragraphs := a.extractParagraphs(lines, origin, &doc)

	var markup []types.Entity
	if markupExtensions[meta.Extension] {
		markup = extractMarkupEntities(lines, origin, &doc)
	}

	entities := make([]types.Entity, 0, 1+len(paragraphs)+len(markup))
	entities = append(entities, doc)
	entities = append(entities, paragraphs...)
	entities = append(entities, markup...)
	return entities
}

// extractParagraphs splits lines on blank-line boundaries into paragraph
// entities tagged with 1-based inclusive line spans. Every non-blank line
// belongs to exactly one paragraph. The document entity accumulates a
// contains edge per paragraph; each paragraph carries part-of back to the
// document, follows to its predecessor, and precedes to its successor.
func (a *FallbackAdapter) extractParagraphs(lines []string, origin string, doc *types.Entity) []types.Entity {
	type span struct{ start, end int }
	var spans []span

	start := 0
	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			if start != 0 {
				spans = append(spans, span{start, i})
				start = 0
			}
			continue
		}
		if start == 0 {
			start = i + 1
		}
	}
	if start != 0 {
		spans = append(spans, span{start, len(lines)})
	}

	paragraphs := make([]types.Entity, 0, len(spans))
	for i, sp := range spans {
		ordinal := i + 1
		id := entityID("para", origin, ordinal)
		text := strings.Join(lines[sp.start-1:sp.end], "\n")

		p := types.Entity{
			ID:      id,
			Kind:    types.EntityKindParagraph,
			Name:    truncateName(lines[sp.start-1], 60),
			Content: text,
			Metadata: map[string]interface{}{
				"entityType": "paragraph",
				"startLine":  sp.start,
				"endLine":    sp.end,
				"ordinal":    ordinal,
			},
			Relationships: []types.Relationship{
				{Kind: types.RelPartOf, Source: id, Target: doc.ID},
			},
		}
		if i > 0 {
			prev := paragraphs[i-1].ID
			p.Relationships = append(p.Relationships, types.Relationship{
				Kind: types.RelFollows, Source: id, Target: prev,
			})
			paragraphs[i-1].Relationships = append(paragraphs[i-1].Relationships, types.Relationship{
				Kind: types.RelPrecedes, Source: prev, Target: id,
			})
		}

		doc.Relationships = append(doc.Relationships, types.Relationship{
			Kind: types.RelContains, Source: doc.ID, Target: id,
		})
		paragraphs = append(paragraphs, p)
	}
	return paragraphs
}

func documentName(meta types.FileMetadata, origin string) string {
	if meta.Filename != "" {
		return meta.Filename
	}
	return origin
}

// countLines reports the line count of the original content, zero for empty
// input.
func countLines(content string, lines []string) int {
	if content == "" {
		return 0
	}
	return len(lines)
}
