package extract

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/loupelabs/loupe/pkg/types"
)

// speechVerbs attribute quoted dialogue to a speaker.
var speechVerbs = map[string]bool{
	"said": true, "asked": true, "replied": true, "whispered": true,
	"shouted": true, "exclaimed": true, "muttered": true, "answered": true,
	"cried": true, "called": true, "told": true, "spoke": true,
	"demanded": true, "inquired": true, "observed": true, "remarked": true,
}

// familialHonorifics and professionalHonorifics mark how one character
// addresses another. Neutral forms like Mr or Lady establish a character
// without implying a relation to the speaker, so they appear only in the
// honorific pattern below.
var (
	familialHonorifics = map[string]bool{
		"aunt": true, "uncle": true, "mother": true, "father": true,
		"brother": true, "sister": true, "cousin": true,
		"grandma": true, "grandpa": true, "grandmother": true, "grandfather": true,
		"mama": true, "papa": true,
	}
	professionalHonorifics = map[string]bool{
		"dr": true, "doctor": true, "professor": true, "captain": true,
		"officer": true, "judge": true, "nurse": true, "detective": true,
		"sergeant": true,
	}
)

// narrativeStopwords are capitalized sentence-starters that are not names.
var narrativeStopwords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "but": true, "or": true,
	"he": true, "she": true, "it": true, "they": true, "we": true, "i": true,
	"you": true, "his": true, "her": true, "their": true, "then": true,
	"now": true, "when": true, "while": true, "after": true, "before": true,
	"suddenly": true, "meanwhile": true, "later": true, "once": true,
	"there": true, "this": true, "that": true, "what": true, "who": true,
	"yes": true, "no": true, "oh": true, "well": true, "chapter": true,
}

var (
	nameSpanPattern = `(?:[A-Z][a-z]+(?:[ \t]+[A-Z][a-z]+)*)`
	speechVerbAlt   = `(?:said|asked|replied|whispered|shouted|exclaimed|muttered|answered|cried|called|told|spoke|demanded|inquired|observed|remarked)`
	honorificAlt    = `(?:Aunt|Uncle|Mother|Father|Brother|Sister|Cousin|Grandma|Grandpa|Grandmother|Grandfather|Mama|Papa|Dr|Doctor|Professor|Captain|Officer|Judge|Nurse|Detective|Sergeant|Mr|Mrs|Ms|Miss|Lady|Lord|Sir|Madam)`

	nameThenVerbRe = regexp.MustCompile(`\b(` + nameSpanPattern + `)[ \t]+` + speechVerbAlt + `\b`)
	verbThenNameRe = regexp.MustCompile(`\b` + speechVerbAlt + `[ \t]+(` + nameSpanPattern + `)`)
	honorificRe    = regexp.MustCompile(`\b(` + honorificAlt + `)\.?[ \t]+([A-Z][a-z]+)`)

	quoteRe      = regexp.MustCompile(`"([^"\n]+)"|“([^”\n]+)”`)
	chapterRe    = regexp.MustCompile(`(?m)^[ \t]*((?:Chapter|CHAPTER)[ \t]+(?:\d+|[IVXLC]+|[A-Za-z]+)|Prologue|Epilogue|PROLOGUE|EPILOGUE)\b[ \t]*(?:[:.][ \t]*(.*))?$`)
	sceneBreakRe = regexp.MustCompile(`(?m)^[ \t]*(\*[ \t]*\*[ \t]*\*[*\t ]*|-{3,}|={3,}|~{3,})[ \t]*$`)
	timeMarkerRe = regexp.MustCompile(`(?im)^[ \t]*((?:the[ \t]+next|the[ \t]+following|that[ \t]+same|later[ \t]+that)[ \t]+(?:morning|afternoon|evening|night|day|week|month|year)|(?:a|an|one|two|three|four|five|six|seven|eight|nine|ten|several|many)[ \t]+(?:minutes?|hours?|days?|weeks?|months?|years?)[ \t]+(?:later|earlier|passed|before|after)|meanwhile|at[ \t]+(?:dawn|dusk|noon|midnight|sunrise|sunset)|(?:years|months|weeks|days)[ \t]+(?:later|earlier))\b`)
)

// NarrativeAdapter extracts story structure from prose: characters with
// mention counts, dialogue and narration, chapter sections, scene breaks,
// and time markers. Characters need positive evidence, a speech verb or an
// honorific next to a capitalized name, so ordinary capitalized words do
// not become people.
type NarrativeAdapter struct {
	fallback *FallbackAdapter
}

// NewNarrativeAdapter creates a narrative adapter around the given fallback
// extractor.
func NewNarrativeAdapter(fallback *FallbackAdapter) *NarrativeAdapter {
	if fallback == nil {
		fallback = NewFallbackAdapter()
	}
	return &NarrativeAdapter{fallback: fallback}
}

// Name implements Adapter.
func (a *NarrativeAdapter) Name() string { return "narrative" }

// Extensions implements Adapter.
func (a *NarrativeAdapter) Extensions() []string {
	return []string{".txt", ".story"}
}

// Extract implements Adapter: fallback baseline first, then story entities.
func (a *NarrativeAdapter) Extract(content string, meta types.FileMetadata) []types.Entity {
	origin := originKey(meta)
	entities := a.fallback.Extract(content, meta)

	lines := splitLines(content)
	text := strings.Join(lines, "\n")

	characters := a.extractCharacters(text, origin)
	entities = append(entities, characters...)
	entities = append(entities, a.extractSpeech(lines, origin, characters)...)
	entities = append(entities, a.extractChapters(lines, origin)...)
	entities = append(entities, a.extractScenes(lines, origin)...)
	entities = append(entities, a.extractTimeMarkers(lines, origin)...)
	return entities
}

// extractCharacters finds names backed by speech-verb or honorific
// evidence, one character entity per distinct name.
func (a *NarrativeAdapter) extractCharacters(text, origin string) []types.Entity {
	type evidence struct {
		speaker    bool
		honorifics []string
	}
	found := map[string]*evidence{}

	note := func(name string, speaks bool, honorific string) {
		name = trimStopwordPrefix(name)
		if name == "" {
			return
		}
		ev := found[name]
		if ev == nil {
			ev = &evidence{}
			found[name] = ev
		}
		if speaks {
			ev.speaker = true
		}
		if honorific != "" {
			for _, h := range ev.honorifics {
				if h == honorific {
					return
				}
			}
			ev.honorifics = append(ev.honorifics, honorific)
		}
	}

	for _, m := range nameThenVerbRe.FindAllStringSubmatch(text, -1) {
		note(m[1], true, "")
	}
	for _, m := range verbThenNameRe.FindAllStringSubmatch(text, -1) {
		note(m[1], true, "")
	}
	for _, m := range honorificRe.FindAllStringSubmatch(text, -1) {
		note(m[2], false, strings.TrimSuffix(m[1], "."))
	}

	names := make([]string, 0, len(found))
	for name := range found {
		names = append(names, name)
	}
	sort.Strings(names)

	entities := make([]types.Entity, 0, len(names))
	for _, name := range names {
		ev := found[name]
		meta := map[string]interface{}{
			"entityType": "character",
			"mentions":   countWordOccurrences(text, name),
			"speaker":    ev.speaker,
		}
		if len(ev.honorifics) > 0 {
			meta["honorifics"] = ev.honorifics
		}
		entities = append(entities, types.Entity{
			ID:       entityID("char", origin, name),
			Kind:     types.EntityKindCharacter,
			Name:     name,
			Metadata: meta,
		})
	}
	return entities
}

// extractSpeech walks the text line by line, emitting a dialogue entity per
// quoted span and a narrative entity per paragraph without any quotes.
func (a *NarrativeAdapter) extractSpeech(lines []string, origin string, characters []types.Entity) []types.Entity {
	charIDs := map[string]string{}
	for _, c := range characters {
		charIDs[c.Name] = c.ID
	}

	var entities []types.Entity
	dialogueOrdinal := 0
	narrativeOrdinal := 0

	flushNarrative := func(start, end int, buf []string) {
		text := strings.TrimSpace(strings.Join(buf, "\n"))
		if text == "" || sceneBreakRe.MatchString(text) || chapterRe.MatchString(text) {
			return
		}
		narrativeOrdinal++
		entities = append(entities, types.Entity{
			ID:      entityID("narr", origin, narrativeOrdinal),
			Kind:    types.EntityKindNarrative,
			Name:    truncateName(text, 60),
			Content: text,
			Metadata: map[string]interface{}{
				"entityType": "narrative",
				"startLine":  start,
				"endLine":    end,
			},
		})
	}

	paraStart := 0
	var paraBuf []string
	paraQuoted := false

	for i, line := range lines {
		lineNo := i + 1
		if strings.TrimSpace(line) == "" {
			if len(paraBuf) > 0 && !paraQuoted {
				flushNarrative(paraStart, lineNo-1, paraBuf)
			}
			paraBuf = nil
			paraQuoted = false
			continue
		}
		if len(paraBuf) == 0 {
			paraStart = lineNo
		}
		paraBuf = append(paraBuf, line)

		for _, m := range quoteRe.FindAllStringSubmatchIndex(line, -1) {
			paraQuoted = true
			quoted := submatchText(line, m, 1)
			if quoted == "" {
				quoted = submatchText(line, m, 2)
			}
			dialogueOrdinal++

			meta := map[string]interface{}{
				"entityType": "dialogue",
				"line":       lineNo,
			}
			if speaker := attributeSpeaker(line, m[0], m[1]); speaker != "" {
				meta["speaker"] = speaker
				if id, ok := charIDs[speaker]; ok {
					meta["speakerId"] = id
				}
			}
			entities = append(entities, types.Entity{
				ID:       entityID("dlg", origin, dialogueOrdinal),
				Kind:     types.EntityKindDialogue,
				Name:     truncateName(quoted, 60),
				Content:  quoted,
				Metadata: meta,
			})
		}
	}
	if len(paraBuf) > 0 && !paraQuoted {
		flushNarrative(paraStart, len(lines), paraBuf)
	}
	return entities
}

// attributeSpeaker looks for a speech attribution next to a quote on the
// same line: "..." said Marcus, Marcus said "...", or the reversed orders.
func attributeSpeaker(line string, quoteStart, quoteEnd int) string {
	after := line[quoteEnd:]
	if m := afterQuoteVerbNameRe.FindStringSubmatch(after); m != nil {
		return trimStopwordPrefix(m[1])
	}
	if m := afterQuoteNameVerbRe.FindStringSubmatch(after); m != nil {
		return trimStopwordPrefix(m[1])
	}

	before := line[:quoteStart]
	if m := beforeQuoteRe.FindStringSubmatch(before); m != nil {
		return trimStopwordPrefix(m[1])
	}
	return ""
}

var (
	afterQuoteVerbNameRe = regexp.MustCompile(`^[,.!?]*[ \t]*` + speechVerbAlt + `[ \t]+(` + nameSpanPattern + `)`)
	afterQuoteNameVerbRe = regexp.MustCompile(`^[,.!?]*[ \t]*(` + nameSpanPattern + `)[ \t]+` + speechVerbAlt + `\b`)
	beforeQuoteRe        = regexp.MustCompile(`(` + nameSpanPattern + `)[ \t]+` + speechVerbAlt + `[^"“]*$`)
)

// extractChapters emits a section entity per chapter heading.
func (a *NarrativeAdapter) extractChapters(lines []string, origin string) []types.Entity {
	var entities []types.Entity
	ordinal := 0
	for i, line := range lines {
		m := chapterRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		ordinal++
		name := strings.TrimSpace(m[1])
		if title := strings.TrimSpace(m[2]); title != "" {
			name = name + ": " + title
		}
		entities = append(entities, types.Entity{
			ID:   entityID("sec", origin, ordinal),
			Kind: types.EntityKindSection,
			Name: name,
			Metadata: map[string]interface{}{
				"entityType": "chapter",
				"ordinal":    ordinal,
				"line":       i + 1,
			},
		})
	}
	return entities
}

// extractScenes splits the text at scene-break markers, one scene entity
// per segment. Texts without any marker get no scene entities.
func (a *NarrativeAdapter) extractScenes(lines []string, origin string) []types.Entity {
	var breaks []int
	for i, line := range lines {
		if sceneBreakRe.MatchString(line) {
			breaks = append(breaks, i + 1)
		}
	}
	if len(breaks) == 0 {
		return nil
	}

	var entities []types.Entity
	ordinal := 0
	start := 1
	emit := func(start, end int) {
		if end < start {
			return
		}
		ordinal++
		entities = append(entities, types.Entity{
			ID:   entityID("scene", origin, ordinal),
			Kind: types.EntityKindScene,
			Name: fmt.Sprintf("scene %d", ordinal),
			Metadata: map[string]interface{}{
				"entityType": "scene",
				"ordinal":    ordinal,
				"startLine":  start,
				"endLine":    end,
			},
		})
	}
	for _, br := range breaks {
		emit(start, br-1)
		start = br + 1
	}
	emit(start, len(lines))
	return entities
}

// extractTimeMarkers emits a time_marker entity per temporal transition
// phrase opening a line.
func (a *NarrativeAdapter) extractTimeMarkers(lines []string, origin string) []types.Entity {
	var entities []types.Entity
	ordinal := 0
	for i, line := range lines {
		m := timeMarkerRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		ordinal++
		phrase := strings.TrimSpace(m[1])
		entities = append(entities, types.Entity{
			ID:   entityID("time", origin, ordinal),
			Kind: types.EntityKindTimeMarker,
			Name: phrase,
			Metadata: map[string]interface{}{
				"entityType": "time_marker",
				"phrase":     phrase,
				"line":       i + 1,
			},
		})
	}
	return entities
}

// DetectRelationships implements RelationshipDetector: when a speaker
// addresses a character with a familial or professional honorific inside
// dialogue, the pair gets a family or professional edge. One edge per pair
// and kind.
func (a *NarrativeAdapter) DetectRelationships(entities []types.Entity) []types.Relationship {
	charIDs := map[string]string{}
	for _, e := range entities {
		if e.Kind == types.EntityKindCharacter {
			charIDs[e.Name] = e.ID
		}
	}

	var rels []types.Relationship
	seen := map[string]bool{}
	for _, e := range entities {
		if e.Kind != types.EntityKindDialogue {
			continue
		}
		speaker, _ := e.Metadata["speaker"].(string)
		speakerID := charIDs[speaker]
		if speakerID == "" {
			continue
		}

		for _, m := range honorificRe.FindAllStringSubmatch(e.Content, -1) {
			honorific := strings.ToLower(strings.TrimSuffix(m[1], "."))
			addressed := m[2]
			addressedID := charIDs[addressed]
			if addressedID == "" || addressedID == speakerID {
				continue
			}

			var kind types.RelationshipKind
			switch {
			case familialHonorifics[honorific]:
				kind = types.RelFamily
			case professionalHonorifics[honorific]:
				kind = types.RelProfessional
			default:
				continue
			}

			key := speakerID + "|" + addressedID + "|" + string(kind)
			if seen[key] {
				continue
			}
			seen[key] = true
			rels = append(rels, types.Relationship{
				Kind:   kind,
				Source: speakerID,
				Target: addressedID,
				Metadata: map[string]interface{}{
					"honorific": m[1],
					"evidence":  e.ID,
				},
			})
		}
	}
	return rels
}

// trimStopwordPrefix drops leading capitalized stopwords from a candidate
// name span, so sentence starters like "Then Marcus" resolve to "Marcus".
func trimStopwordPrefix(span string) string {
	words := strings.Fields(span)
	for len(words) > 0 && narrativeStopwords[strings.ToLower(words[0])] {
		words = words[1:]
	}
	return strings.Join(words, " ")
}

// countWordOccurrences counts whole-word occurrences of name in text.
func countWordOccurrences(text, name string) int {
	count := 0
	for from := 0; ; {
		idx := strings.Index(text[from:], name)
		if idx < 0 {
			return count
		}
		abs := from + idx
		beforeOK := abs == 0 || !isWordByte(text[abs-1])
		end := abs + len(name)
		afterOK := end >= len(text) || !isWordByte(text[end])
		if beforeOK && afterOK {
			count++
		}
		from = abs + len(name)
	}
}

func isWordByte(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

func submatchText(s string, m []int, group int) string {
	if m[2*group] < 0 {
		return ""
	}
	return s[m[2*group]:m[2*group+1]]
}
