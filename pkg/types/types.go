// Package types defines the core data structures for the Loupe knowledge
// graph: entities, relationships, file metadata, activation contexts,
// queries, and lens configuration. Every other package produces or consumes
// these shapes; none of them carry behavior beyond validation and cloning.
package types

// EntityKind classifies an extracted entity. The set is open: any non-empty
// string is legal, and the constants below are the conventional vocabulary
// emitted by the built-in adapters. Domain-specific detail lives in the
// entity's metadata map, conventionally under an "entityType" discriminator.
type EntityKind string

// RelationshipKind classifies a directed edge between two entities. Open set,
// same convention as EntityKind: finer-grained tags (e.g. "near") live in the
// relationship's metadata under "relationshipType".
type RelationshipKind string

// Direction selects which edges a traversal or neighbor lookup follows.
type Direction string

// Traversal directions
const (
	DirectionOutgoing Direction = "outgoing"
	DirectionIncoming Direction = "incoming"
	DirectionBoth     Direction = "both"
)

// Structural entity kinds emitted by the fallback adapter
const (
	EntityKindDocument  EntityKind = "document"
	EntityKindParagraph EntityKind = "paragraph"
	EntityKindSection   EntityKind = "section"
	EntityKindList      EntityKind = "list"
	EntityKindListItem  EntityKind = "list-item"
	EntityKindReference EntityKind = "reference"
)

// Code entity kinds emitted by the code adapter
const (
	EntityKindFunction   EntityKind = "function"
	EntityKindClass      EntityKind = "class"
	EntityKindInterface  EntityKind = "interface"
	EntityKindTypeAlias  EntityKind = "type-alias"
	EntityKindEnum       EntityKind = "enum"
	EntityKindNamespace  EntityKind = "namespace"
	EntityKindImport     EntityKind = "import"
	EntityKindExport     EntityKind = "export"
	EntityKindDiagnostic EntityKind = "diagnostic"
)

// Record entity kinds emitted by the record adapter
const (
	EntityKindPlace    EntityKind = "place"
	EntityKindActivity EntityKind = "activity"
	EntityKindService  EntityKind = "service"
)

// Narrative entity kinds emitted by the narrative adapter
const (
	EntityKindCharacter  EntityKind = "character"
	EntityKindDialogue   EntityKind = "dialogue"
	EntityKindNarrative  EntityKind = "narrative"
	EntityKindScene      EntityKind = "scene"
	EntityKindTimeMarker EntityKind = "time_marker"
)

// ValidEntityKinds lists every kind the built-in adapters emit. Validation
// helpers treat unknown kinds as legal; this slice exists for enumeration
// (stats, UI grouping), not gatekeeping.
var ValidEntityKinds = []EntityKind{
	EntityKindDocument,
	EntityKindParagraph,
	EntityKindSection,
	EntityKindList,
	EntityKindListItem,
	EntityKindReference,
	EntityKindFunction,
	EntityKindClass,
	EntityKindInterface,
	EntityKindTypeAlias,
	EntityKindEnum,
	EntityKindNamespace,
	EntityKindImport,
	EntityKindExport,
	EntityKindDiagnostic,
	EntityKindPlace,
	EntityKindActivity,
	EntityKindService,
	EntityKindCharacter,
	EntityKindDialogue,
	EntityKindNarrative,
	EntityKindScene,
	EntityKindTimeMarker,
}

// Structural relationship kinds
const (
	RelContains = RelationshipKind("contains")
	RelPartOf   = RelationshipKind("part-of")
	RelFollows  = RelationshipKind("follows")
	RelPrecedes = RelationshipKind("precedes")
)

// Code relationship kinds
const (
	RelExtends    = RelationshipKind("extends")
	RelImplements = RelationshipKind("implements")
	RelCalls      = RelationshipKind("calls")
	RelDependsOn  = RelationshipKind("depends-on")
	RelImports    = RelationshipKind("imports")
	RelExports    = RelationshipKind("exports")
)

// Cross-domain relationship kinds. References carries finer-grained tags
// (e.g. "near" for spatial proximity) in metadata under "relationshipType".
const (
	RelReferences   = RelationshipKind("references")
	RelFamily       = RelationshipKind("family")
	RelProfessional = RelationshipKind("professional")
)

// ValidRelationshipKinds lists every kind the built-in adapters emit.
var ValidRelationshipKinds = []RelationshipKind{
	RelContains,
	RelPartOf,
	RelFollows,
	RelPrecedes,
	RelExtends,
	RelImplements,
	RelCalls,
	RelDependsOn,
	RelImports,
	RelExports,
	RelReferences,
	RelFamily,
	RelProfessional,
}

// IsKnownEntityKind reports whether k is one of the kinds the built-in
// adapters emit. Unknown kinds are still valid entities.
func IsKnownEntityKind(k EntityKind) bool {
	for _, v := range ValidEntityKinds {
		if v == k {
			return true
		}
	}
	return false
}

// IsKnownRelationshipKind reports whether k is one of the kinds the built-in
// adapters emit.
func IsKnownRelationshipKind(k RelationshipKind) bool {
	for _, v := range ValidRelationshipKinds {
		if v == k {
			return true
		}
	}
	return false
}

// ActionType identifies what kind of editor/host event an ActionEvent records.
type ActionType string

// Action types recognized by lens activation heuristics
const (
	ActionFileOpen      ActionType = "file_open"
	ActionFileSave      ActionType = "file_save"
	ActionFileEdit      ActionType = "file_edit"
	ActionDebuggerStart ActionType = "debugger_start"
	ActionDebuggerStop  ActionType = "debugger_stop"
	ActionTestRun       ActionType = "test_run"
	ActionError         ActionType = "error_occurrence"
	ActionSearch        ActionType = "search"
	ActionCommand       ActionType = "command"
)
