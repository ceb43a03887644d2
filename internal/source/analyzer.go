// Package source resolves file-level structure: what a file imports, what
// it exports, and which sibling files it depends on. The analyzer never
// parses anything itself; it projects the code adapter's entities into a
// flat per-file report.
package source

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/loupelabs/loupe/internal/extract"
	"github.com/loupelabs/loupe/pkg/types"
)

// candidateExtensions are probed, in order, when a relative import omits
// its extension.
var candidateExtensions = []string{".ts", ".tsx", ".js", ".jsx", ".mjs", ".cjs"}

// ImportRecord is one import statement in a file.
type ImportRecord struct {
	// Source is the module specifier as written.
	Source string `json:"source"`

	// Type classifies the import: default, named, namespace, or commonjs.
	Type string `json:"type"`

	// Specifiers lists the bound names: the default binding first when
	// present, then the namespace binding, then named imports.
	Specifiers []string `json:"specifiers"`
}

// ExportRecord is one exported name.
type ExportRecord struct {
	Name string `json:"name"`

	// Type is the declaration kind for declaration exports (function,
	// class, ...) or the export form (named, star, default) for export
	// statements.
	Type string `json:"type"`
}

// AnalysisError reports a syntax-level problem found while analyzing a file
// that exists. Problems never fail the analysis.
type AnalysisError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// FileAnalysis is the per-file structure report.
type FileAnalysis struct {
	Path    string         `json:"path"`
	Imports []ImportRecord `json:"imports"`
	Exports []ExportRecord `json:"exports"`

	// Dependencies holds resolved local file paths only; imports of
	// external packages are excluded.
	Dependencies []string `json:"dependencies"`

	// Dependents is reserved for reverse-dependency reporting and is
	// always empty here; building it needs the whole project graph.
	Dependents []string `json:"dependents"`

	Errors []AnalysisError `json:"errors,omitempty"`
}

// Analyzer turns files into FileAnalysis reports using an adapter registry
// for the heavy lifting.
type Analyzer struct {
	adapters *extract.Registry
}

// NewAnalyzer creates an analyzer. A nil registry falls back to the default
// adapter set.
func NewAnalyzer(adapters *extract.Registry) *Analyzer {
	if adapters == nil {
		adapters = extract.DefaultRegistry()
	}
	return &Analyzer{adapters: adapters}
}

// AnalyzeFile reads and analyzes one file. It fails only when the file
// cannot be read; content problems surface in the report's Errors instead.
func (a *Analyzer) AnalyzeFile(path string) (*FileAnalysis, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	meta := types.FileMetadataFor(path, int64(len(data)))
	entities, _ := a.adapters.Extract(string(data), meta)

	analysis := &FileAnalysis{
		Path:         path,
		Imports:      []ImportRecord{},
		Exports:      []ExportRecord{},
		Dependencies: []string{},
		Dependents:   []string{},
	}

	dir := filepath.Dir(path)
	seenDeps := make(map[string]bool)

	for _, e := range entities {
		switch e.Kind {
		case types.EntityKindImport:
			record := importRecord(e)
			analysis.Imports = append(analysis.Imports, record)

			if isLocal, _ := e.Metadata["isLocal"].(bool); isLocal {
				if resolved, ok := resolveLocalImport(dir, record.Source); ok && !seenDeps[resolved] {
					seenDeps[resolved] = true
					analysis.Dependencies = append(analysis.Dependencies, resolved)
				}
			}

		case types.EntityKindExport:
			analysis.Exports = append(analysis.Exports, exportRecords(e)...)

		case types.EntityKindDiagnostic:
			analysis.Errors = append(analysis.Errors, AnalysisError{
				Type:    e.Name,
				Message: metaString(e.Metadata, "problem"),
			})

		default:
			if exported, _ := e.Metadata["exported"].(bool); exported {
				analysis.Exports = append(analysis.Exports, ExportRecord{
					Name: e.Name,
					Type: string(e.Kind),
				})
			}
		}
	}

	return analysis, nil
}

// importRecord projects an import entity into the report shape.
func importRecord(e types.Entity) ImportRecord {
	record := ImportRecord{
		Source:     metaString(e.Metadata, "source"),
		Type:       metaString(e.Metadata, "importKind"),
		Specifiers: []string{},
	}
	if def := metaString(e.Metadata, "defaultImport"); def != "" {
		record.Specifiers = append(record.Specifiers, def)
	}
	if ns := metaString(e.Metadata, "namespace"); ns != "" {
		record.Specifiers = append(record.Specifiers, ns)
	}
	record.Specifiers = append(record.Specifiers, metaStrings(e.Metadata, "imports")...)
	return record
}

// exportRecords projects an export entity into one record per exported
// name. A star export reports its alias, or "*" when unaliased.
func exportRecords(e types.Entity) []ExportRecord {
	kind := metaString(e.Metadata, "exportKind")
	switch kind {
	case "star":
		name := metaString(e.Metadata, "alias")
		if name == "" {
			name = "*"
		}
		return []ExportRecord{{Name: name, Type: "star"}}
	default:
		names := metaStrings(e.Metadata, "names")
		if len(names) == 0 && e.Name != "" {
			names = []string{e.Name}
		}
		out := make([]ExportRecord, 0, len(names))
		for _, n := range names {
			out = append(out, ExportRecord{Name: n, Type: kind})
		}
		return out
	}
}

// resolveLocalImport resolves a relative specifier against the importing
// file's directory, probing the specifier as written, with each known
// extension appended, and as a directory with an index file. Only a
// candidate that exists counts as resolved.
func resolveLocalImport(dir, specifier string) (string, bool) {
	if specifier == "" {
		return "", false
	}
	base := filepath.Clean(filepath.Join(dir, filepath.FromSlash(specifier)))

	var candidates []string
	if filepath.Ext(base) != "" {
		candidates = append(candidates, base)
	}
	for _, ext := range candidateExtensions {
		candidates = append(candidates, base+ext)
	}
	for _, ext := range candidateExtensions {
		candidates = append(candidates, filepath.Join(base, "index"+ext))
	}

	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && !info.IsDir() {
			return c, true
		}
	}
	return "", false
}

// metaString reads a string metadata value, tolerating absence.
func metaString(meta map[string]interface{}, key string) string {
	if meta == nil {
		return ""
	}
	s, _ := meta[key].(string)
	return s
}

// metaStrings reads a string-list metadata value in either of the shapes it
// can arrive in: []string fresh from an adapter, []interface{} after a JSON
// round trip.
func metaStrings(meta map[string]interface{}, key string) []string {
	if meta == nil {
		return nil
	}
	switch v := meta[key].(type) {
	case []string:
		return v
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
