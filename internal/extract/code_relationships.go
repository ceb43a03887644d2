package extract

import (
	"github.com/loupelabs/loupe/pkg/types"
)

// DetectRelationships implements RelationshipDetector for code entities:
// extends and implements edges from heritage clauses, calls edges between
// functions, and depends-on edges from local imports to the entities they
// pull in. Targets that resolve to an extracted entity use its id; others
// keep the raw name so cross-file resolution can happen later.
func (a *CodeAdapter) DetectRelationships(entities []types.Entity) []types.Relationship {
	idx := buildNameIndex(entities)
	var rels []types.Relationship
	rels = append(rels, heritageRelationships(entities, idx)...)
	rels = append(rels, callRelationships(entities, idx)...)
	rels = append(rels, importRelationships(entities, idx)...)
	return rels
}

// nameIndex resolves declared names to entity ids, first declaration wins.
type nameIndex struct {
	functions  map[string]string
	classes    map[string]string
	interfaces map[string]string
}

func buildNameIndex(entities []types.Entity) *nameIndex {
	idx := &nameIndex{
		functions:  map[string]string{},
		classes:    map[string]string{},
		interfaces: map[string]string{},
	}
	for _, e := range entities {
		switch e.Kind {
		case types.EntityKindFunction:
			if _, ok := idx.functions[e.Name]; !ok {
				idx.functions[e.Name] = e.ID
			}
		case types.EntityKindClass:
			if _, ok := idx.classes[e.Name]; !ok {
				idx.classes[e.Name] = e.ID
			}
		case types.EntityKindInterface:
			if _, ok := idx.interfaces[e.Name]; !ok {
				idx.interfaces[e.Name] = e.ID
			}
		}
	}
	return idx
}

// resolveType maps a type name to a class or interface id, falling back to
// the raw name for targets declared elsewhere.
func (ix *nameIndex) resolveType(name string) string {
	if id, ok := ix.classes[name]; ok {
		return id
	}
	if id, ok := ix.interfaces[name]; ok {
		return id
	}
	return name
}

// resolveAny maps a name to any declared entity id, raw name otherwise.
func (ix *nameIndex) resolveAny(name string) string {
	if id, ok := ix.functions[name]; ok {
		return id
	}
	return ix.resolveType(name)
}

func heritageRelationships(entities []types.Entity, idx *nameIndex) []types.Relationship {
	var rels []types.Relationship
	for _, e := range entities {
		switch e.Kind {
		case types.EntityKindClass:
			if parent, _ := e.Metadata["extends"].(string); parent != "" {
				rels = append(rels, types.Relationship{
					Kind:     types.RelExtends,
					Source:   e.ID,
					Target:   idx.resolveType(parent),
					Metadata: map[string]interface{}{"parent": parent},
				})
			}
			for _, iface := range stringSliceMeta(e.Metadata["implements"]) {
				rels = append(rels, types.Relationship{
					Kind:     types.RelImplements,
					Source:   e.ID,
					Target:   idx.resolveType(iface),
					Metadata: map[string]interface{}{"interface": iface},
				})
			}
		case types.EntityKindInterface:
			for _, parent := range stringSliceMeta(e.Metadata["extends"]) {
				rels = append(rels, types.Relationship{
					Kind:     types.RelExtends,
					Source:   e.ID,
					Target:   idx.resolveType(parent),
					Metadata: map[string]interface{}{"parent": parent},
				})
			}
		}
	}
	return rels
}

// callRelationships links a function to every known function its body
// invokes as a call expression. Declaration sites and method accesses do
// not count, and each callee is reported once per caller.
func callRelationships(entities []types.Entity, idx *nameIndex) []types.Relationship {
	var rels []types.Relationship
	for _, e := range entities {
		if e.Kind != types.EntityKindFunction {
			continue
		}
		seen := map[string]bool{}
		for _, name := range callExpressionNames(e.Content) {
			if name == e.Name || seen[name] {
				continue
			}
			target, known := idx.functions[name]
			if !known {
				continue
			}
			seen[name] = true
			rels = append(rels, types.Relationship{
				Kind:     types.RelCalls,
				Source:   e.ID,
				Target:   target,
				Metadata: map[string]interface{}{"callee": name},
			})
		}
	}
	return rels
}

// callExpressionNames scans source text for identifier-then-paren call
// sites, skipping strings, comments, declaration keywords, and property
// accesses.
func callExpressionNames(src string) []string {
	var names []string
	i := 0
	for i < len(src) {
		switch c := src[i]; {
		case c == '\'' || c == '"' || c == '`':
			i = skipString(src, i)
		case c == '/':
			if next := skipComment(src, i); next != i {
				i = next
			} else {
				i++
			}
		case isIdentStart(c):
			j := i
			for j < len(src) && isIdentChar(src[j]) {
				j++
			}
			name := src[i:j]
			k := j
			for k < len(src) && (src[k] == ' ' || src[k] == '\t') {
				k++
			}
			if k < len(src) && src[k] == '(' && !precededByDeclaration(src, i) {
				names = append(names, name)
			}
			i = j
		default:
			i++
		}
	}
	return names
}

// precededByDeclaration reports whether the identifier at offset follows a
// "function" keyword or a property access dot.
func precededByDeclaration(src string, offset int) bool {
	i := offset - 1
	for i >= 0 && (src[i] == ' ' || src[i] == '\t' || src[i] == '*') {
		i--
	}
	if i >= 0 && src[i] == '.' {
		return true
	}
	end := i + 1
	for i >= 0 && isIdentChar(src[i]) {
		i--
	}
	switch src[i+1 : end] {
	case "function", "class", "new":
		return true
	}
	return false
}

// importRelationships links local imports to the entities they bring in.
// Bare side-effect imports depend on the module path itself.
func importRelationships(entities []types.Entity, idx *nameIndex) []types.Relationship {
	var rels []types.Relationship
	for _, e := range entities {
		if e.Kind != types.EntityKindImport {
			continue
		}
		local, _ := e.Metadata["isLocal"].(bool)
		if !local {
			continue
		}
		source, _ := e.Metadata["source"].(string)

		var imported []string
		imported = append(imported, stringSliceMeta(e.Metadata["imports"])...)
		if def, _ := e.Metadata["defaultImport"].(string); def != "" {
			imported = append(imported, def)
		}
		if ns, _ := e.Metadata["namespace"].(string); ns != "" {
			imported = append(imported, ns)
		}

		if len(imported) == 0 {
			rels = append(rels, types.Relationship{
				Kind:     types.RelDependsOn,
				Source:   e.ID,
				Target:   source,
				Metadata: map[string]interface{}{"source": source},
			})
			continue
		}
		for _, name := range imported {
			rels = append(rels, types.Relationship{
				Kind:     types.RelDependsOn,
				Source:   e.ID,
				Target:   idx.resolveAny(name),
				Metadata: map[string]interface{}{"source": source, "imported": name},
			})
		}
	}
	return rels
}

// stringSliceMeta reads a metadata value as a string slice, tolerating the
// []interface{} shape JSON decoding produces.
func stringSliceMeta(v interface{}) []string {
	switch t := v.(type) {
	case []string:
		return t
	case []interface{}:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
