package extract

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loupelabs/loupe/pkg/types"
)

const visitStory = `Chapter 1: The Visit

Marcus walked slowly down the lane. The old house had not changed.

"Hello, Aunt May," said Marcus. "It has been too long."

"Come in, dear," May replied. "Dr. Chen is already here."

Marcus nodded to the doctor.

* * *

The next morning, Marcus packed his bag.

"Goodbye, Doctor Chen," Marcus called.
`

func narrativeExtract(t *testing.T, filename, content string) []types.Entity {
	t.Helper()
	adapter := NewNarrativeAdapter(nil)
	return adapter.Extract(content, types.FileMetadataFor(filename, int64(len(content))))
}

func TestNarrativeAdapterCharacters(t *testing.T) {
	entities := narrativeExtract(t, "visit.txt", visitStory)

	characters := entitiesOfKind(entities, types.EntityKindCharacter)
	names := make([]string, 0, len(characters))
	for _, c := range characters {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"Chen", "Marcus", "May"}, names,
		"characters need speech or honorific evidence and come out sorted")

	marcus := findByName(entities, types.EntityKindCharacter, "Marcus")
	require.NotNil(t, marcus)
	assert.Equal(t, true, marcus.Metadata["speaker"])
	assert.Equal(t, 5, marcus.Metadata["mentions"])

	may := findByName(entities, types.EntityKindCharacter, "May")
	require.NotNil(t, may)
	assert.Equal(t, true, may.Metadata["speaker"])
	assert.Equal(t, []string{"Aunt"}, may.Metadata["honorifics"])

	chen := findByName(entities, types.EntityKindCharacter, "Chen")
	require.NotNil(t, chen)
	assert.Equal(t, false, chen.Metadata["speaker"])
	assert.ElementsMatch(t, []string{"Dr", "Doctor"}, chen.Metadata["honorifics"])

	// Capitalized sentence starters are not characters.
	assert.Nil(t, findByName(entities, types.EntityKindCharacter, "The"))
	assert.Nil(t, findByName(entities, types.EntityKindCharacter, "Chapter"))
}

func TestNarrativeAdapterDialogue(t *testing.T) {
	entities := narrativeExtract(t, "visit.txt", visitStory)

	dialogue := entitiesOfKind(entities, types.EntityKindDialogue)
	require.Len(t, dialogue, 5)

	assert.Equal(t, "Hello, Aunt May,", dialogue[0].Content)
	assert.Equal(t, "Marcus", dialogue[0].Metadata["speaker"])

	assert.Equal(t, "It has been too long.", dialogue[1].Content)

	assert.Equal(t, "Come in, dear,", dialogue[2].Content)
	assert.Equal(t, "May", dialogue[2].Metadata["speaker"])

	assert.Equal(t, "Dr. Chen is already here.", dialogue[3].Content)
	assert.Equal(t, "May", dialogue[3].Metadata["speaker"])

	assert.Equal(t, "Goodbye, Doctor Chen,", dialogue[4].Content)
	assert.Equal(t, "Marcus", dialogue[4].Metadata["speaker"])

	// Speakers resolve to their character entities.
	marcus := findByName(entities, types.EntityKindCharacter, "Marcus")
	assert.Equal(t, marcus.ID, dialogue[0].Metadata["speakerId"])
}

func TestNarrativeAdapterNarration(t *testing.T) {
	entities := narrativeExtract(t, "visit.txt", visitStory)

	narration := entitiesOfKind(entities, types.EntityKindNarrative)
	require.Len(t, narration, 3)
	assert.Contains(t, narration[0].Content, "Marcus walked slowly")
	assert.Contains(t, narration[1].Content, "nodded to the doctor")
	assert.Contains(t, narration[2].Content, "packed his bag")

	// Chapter headings and scene breaks are not narration.
	for _, n := range narration {
		assert.NotContains(t, n.Content, "Chapter")
		assert.NotContains(t, n.Content, "* * *")
	}
}

func TestNarrativeAdapterStructure(t *testing.T) {
	entities := narrativeExtract(t, "visit.txt", visitStory)

	chapters := entitiesOfKind(entities, types.EntityKindSection)
	require.Len(t, chapters, 1)
	assert.Equal(t, "Chapter 1: The Visit", chapters[0].Name)
	assert.Equal(t, "chapter", chapters[0].Metadata["entityType"])
	assert.Equal(t, 1, chapters[0].Metadata["line"])

	scenes := entitiesOfKind(entities, types.EntityKindScene)
	require.Len(t, scenes, 2, "one break splits the text into two scenes")
	assert.Equal(t, 1, scenes[0].Metadata["startLine"])
	second, ok := scenes[1].Metadata["startLine"].(int)
	require.True(t, ok)
	first, ok := scenes[0].Metadata["endLine"].(int)
	require.True(t, ok)
	assert.Equal(t, first+2, second, "scenes resume after the break line")

	markers := entitiesOfKind(entities, types.EntityKindTimeMarker)
	require.Len(t, markers, 1)
	assert.Equal(t, "The next morning", markers[0].Name)
}

func TestNarrativeDetectRelationships(t *testing.T) {
	adapter := NewNarrativeAdapter(nil)
	entities := adapter.Extract(visitStory, types.FileMetadataFor("visit.txt", int64(len(visitStory))))
	rels := adapter.DetectRelationships(entities)

	marcus := findByName(entities, types.EntityKindCharacter, "Marcus")
	may := findByName(entities, types.EntityKindCharacter, "May")
	chen := findByName(entities, types.EntityKindCharacter, "Chen")

	var family, professional []types.Relationship
	for _, r := range rels {
		switch r.Kind {
		case types.RelFamily:
			family = append(family, r)
		case types.RelProfessional:
			professional = append(professional, r)
		}
	}

	require.Len(t, family, 1)
	assert.Equal(t, marcus.ID, family[0].Source)
	assert.Equal(t, may.ID, family[0].Target)
	assert.Equal(t, "Aunt", family[0].Metadata["honorific"])

	require.Len(t, professional, 2)
	sources := map[string]bool{}
	for _, r := range professional {
		assert.Equal(t, chen.ID, r.Target)
		sources[r.Source] = true
	}
	assert.True(t, sources[may.ID], "May addresses Dr. Chen")
	assert.True(t, sources[marcus.ID], "Marcus addresses Doctor Chen")
}

func TestNarrativeDetectRelationshipsDeduplicates(t *testing.T) {
	story := strings.Join([]string{
		`"Aunt May, Aunt May!" said Marcus.`,
		"",
		`"Are you there, Aunt May?" Marcus asked.`,
	}, "\n")
	adapter := NewNarrativeAdapter(nil)
	entities := adapter.Extract(story, types.FileMetadataFor("calls.txt", int64(len(story))))
	rels := adapter.DetectRelationships(entities)

	var family []types.Relationship
	for _, r := range rels {
		if r.Kind == types.RelFamily {
			family = append(family, r)
		}
	}
	require.Len(t, family, 1, "repeated address collapses to one edge")
}

func TestNarrativeAdapterCurlyQuotes(t *testing.T) {
	story := `“Good evening,” said Eleanor.`
	entities := narrativeExtract(t, "curly.txt", story)

	dialogue := entitiesOfKind(entities, types.EntityKindDialogue)
	require.Len(t, dialogue, 1)
	assert.Equal(t, "Good evening,", dialogue[0].Content)
	assert.Equal(t, "Eleanor", dialogue[0].Metadata["speaker"])
}

func TestNarrativeAdapterStopwordTrimming(t *testing.T) {
	story := `Then Marcus said the words everyone feared.`
	entities := narrativeExtract(t, "stop.txt", story)

	assert.NotNil(t, findByName(entities, types.EntityKindCharacter, "Marcus"))
	assert.Nil(t, findByName(entities, types.EntityKindCharacter, "Then Marcus"))
}

func TestNarrativeAdapterPlainProse(t *testing.T) {
	for _, content := range []string{"", "just a plain note with nothing in it", "one\n\ntwo"} {
		entities := narrativeExtract(t, "plain.txt", content)
		require.Len(t, entitiesOfKind(entities, types.EntityKindDocument), 1)
		assert.Empty(t, entitiesOfKind(entities, types.EntityKindCharacter))
		assert.Empty(t, entitiesOfKind(entities, types.EntityKindDialogue))
		assert.Empty(t, entitiesOfKind(entities, types.EntityKindScene))
	}
}

func TestNarrativeAdapterDeterministic(t *testing.T) {
	adapter := NewNarrativeAdapter(nil)
	meta := types.FileMetadataFor("visit.txt", int64(len(visitStory)))

	a := adapter.Extract(visitStory, meta)
	b := adapter.Extract(visitStory, meta)
	require.Equal(t, a, b)
	require.Equal(t, adapter.DetectRelationships(a), adapter.DetectRelationships(b))
}
