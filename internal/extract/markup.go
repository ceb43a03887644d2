package extract

import (
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/loupelabs/loupe/pkg/types"
)

var (
	headingRe  = regexp.MustCompile(`^(#{1,6})\s+(.+?)\s*$`)
	bulletRe   = regexp.MustCompile(`^\s*[-*+]\s+(.+)$`)
	numberedRe = regexp.MustCompile(`^\s*\d+[.)]\s+(.+)$`)
	mdLinkRe   = regexp.MustCompile(`\[([^\]]+)\]\(([^)\s]+)(?:\s+"[^"]*")?\)`)
	bareURLRe  = regexp.MustCompile(`https?://[^\s<>()\[\]"']+`)
	filePathRe = regexp.MustCompile(`(?:\.{1,2}/[\w.\-/]+|/[\w.\-/]+\.\w+|\b[\w\-]+(?:/[\w.\-]+)+\.\w+)`)
)

// extractMarkupEntities layers sections, lists, and references over the
// paragraph baseline for markup files, and parses YAML frontmatter into the
// document's metadata. Each produced entity is linked to the document with a
// part-of/contains edge pair. Nothing here errors: broken markup yields
// whatever still matches.
func extractMarkupEntities(lines []string, origin string, doc *types.Entity) []types.Entity {
	parseFrontmatter(lines, doc)

	var out []types.Entity
	out = append(out, extractSections(lines, origin, doc)...)
	out = append(out, extractLists(lines, origin, doc)...)
	out = append(out, extractReferences(lines, origin, doc)...)
	return out
}

// parseFrontmatter reads a leading YAML block delimited by --- lines into
// doc.Metadata["frontmatter"]. Invalid YAML or a missing closing delimiter
// leaves the document untouched; the lines still count as body content.
func parseFrontmatter(lines []string, doc *types.Entity) {
	if len(lines) == 0 || strings.TrimSpace(lines[0]) != "---" {
		return
	}
	closeIdx := -1
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "---" {
			closeIdx = i
			break
		}
	}
	if closeIdx == -1 {
		return
	}

	fm := make(map[string]interface{})
	if err := yaml.Unmarshal([]byte(strings.Join(lines[1:closeIdx], "\n")), &fm); err != nil {
		return
	}
	if len(fm) > 0 {
		doc.Metadata["frontmatter"] = fm
	}
}

// extractSections turns ATX heading lines into section entities.
func extractSections(lines []string, origin string, doc *types.Entity) []types.Entity {
	var sections []types.Entity
	for i, line := range lines {
		m := headingRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		ordinal := len(sections) + 1
		id := entityID("sec", origin, ordinal)
		sections = append(sections, types.Entity{
			ID:      id,
			Kind:    types.EntityKindSection,
			Name:    cleanHeading(m[2]),
			Content: line,
			Metadata: map[string]interface{}{
				"entityType": "section",
				"level":      len(m[1]),
				"line":       i + 1,
			},
			Relationships: []types.Relationship{
				{Kind: types.RelPartOf, Source: id, Target: doc.ID},
			},
		})
		doc.Relationships = append(doc.Relationships, types.Relationship{
			Kind: types.RelContains, Source: doc.ID, Target: id,
		})
	}
	return sections
}

// cleanHeading strips markup symbols surrounding heading text.
func cleanHeading(s string) string {
	return strings.TrimSpace(strings.Trim(s, "#*_` "))
}

// extractLists groups contiguous bullet or numbered lines into one list
// entity containing ordered list-item entities.
func extractLists(lines []string, origin string, doc *types.Entity) []types.Entity {
	var out []types.Entity
	listOrdinal := 0

	i := 0
	for i < len(lines) {
		text, ordered := listItemText(lines[i])
		if text == "" {
			i++
			continue
		}

		start := i
		var items []string
		for i < len(lines) {
			itemText, _ := listItemText(lines[i])
			if itemText == "" {
				break
			}
			items = append(items, itemText)
			i++
		}

		listOrdinal++
		listID := entityID("list", origin, listOrdinal)
		list := types.Entity{
			ID:      listID,
			Kind:    types.EntityKindList,
			Name:    truncateName(items[0], 60),
			Content: strings.Join(lines[start:i], "\n"),
			Metadata: map[string]interface{}{
				"entityType": "list",
				"ordered":    ordered,
				"itemCount":  len(items),
				"startLine":  start + 1,
				"endLine":    i,
			},
			Relationships: []types.Relationship{
				{Kind: types.RelPartOf, Source: listID, Target: doc.ID},
			},
		}
		doc.Relationships = append(doc.Relationships, types.Relationship{
			Kind: types.RelContains, Source: doc.ID, Target: listID,
		})

		itemEntities := make([]types.Entity, 0, len(items))
		for j, itemText := range items {
			itemID := entityID("item", origin, listOrdinal, j+1)
			itemEntities = append(itemEntities, types.Entity{
				ID:      itemID,
				Kind:    types.EntityKindListItem,
				Name:    truncateName(itemText, 60),
				Content: itemText,
				Metadata: map[string]interface{}{
					"entityType": "list-item",
					"ordinal":    j + 1,
					"line":       start + j + 1,
				},
				Relationships: []types.Relationship{
					{Kind: types.RelPartOf, Source: itemID, Target: listID},
				},
			})
			list.Relationships = append(list.Relationships, types.Relationship{
				Kind: types.RelContains, Source: listID, Target: itemID,
			})
		}

		out = append(out, list)
		out = append(out, itemEntities...)
	}
	return out
}

// listItemText returns the item text of a bullet or numbered line, and
// whether the line is numbered. Empty text means the line is not a list item.
func listItemText(line string) (string, bool) {
	if m := bulletRe.FindStringSubmatch(line); m != nil {
		return strings.TrimSpace(m[1]), false
	}
	if m := numberedRe.FindStringSubmatch(line); m != nil {
		return strings.TrimSpace(m[1]), true
	}
	return "", false
}

// extractReferences finds markdown links, bare URLs, and file-path tokens,
// deduplicated by target across the whole document.
func extractReferences(lines []string, origin string, doc *types.Entity) []types.Entity {
	var out []types.Entity
	seen := make(map[string]bool)

	add := func(name, target, refType string, line int) {
		key := refType + "|" + target
		if seen[key] {
			return
		}
		seen[key] = true

		ordinal := len(out) + 1
		id := entityID("ref", origin, ordinal)
		meta := map[string]interface{}{
			"entityType":    "reference",
			"referenceType": refType,
			"line":          line,
		}
		if refType == "url" {
			meta["url"] = target
		} else {
			meta["path"] = target
		}
		out = append(out, types.Entity{
			ID:       id,
			Kind:     types.EntityKindReference,
			Name:     name,
			Metadata: meta,
			Relationships: []types.Relationship{
				{Kind: types.RelPartOf, Source: id, Target: doc.ID},
			},
		})
		doc.Relationships = append(doc.Relationships, types.Relationship{
			Kind: types.RelContains, Source: doc.ID, Target: id,
		})
	}

	for i, line := range lines {
		buf := []byte(line)

		// Markdown links first so their targets cannot rematch as bare
		// URLs or paths.
		for _, m := range mdLinkRe.FindAllSubmatchIndex(buf, -1) {
			name := line[m[2]:m[3]]
			target := line[m[4]:m[5]]
			add(name, target, classifyReference(target), i+1)
			maskSpan(buf, m[0], m[1])
		}
		masked := string(buf)

		for _, m := range bareURLRe.FindAllStringIndex(masked, -1) {
			target := strings.TrimRight(masked[m[0]:m[1]], ".,;:")
			add(target, target, "url", i+1)
			maskSpan(buf, m[0], m[1])
		}
		masked = string(buf)

		for _, m := range filePathRe.FindAllStringIndex(masked, -1) {
			target := masked[m[0]:m[1]]
			add(target, target, "file", i+1)
		}
	}
	return out
}

// classifyReference distinguishes url targets from file targets.
func classifyReference(target string) string {
	if strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://") {
		return "url"
	}
	return "file"
}
