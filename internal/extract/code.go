package extract

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/loupelabs/loupe/pkg/types"
)

var (
	funcHeadRe  = regexp.MustCompile(`(?m)^[ \t]*(export[ \t]+)?(default[ \t]+)?(async[ \t]+)?function[ \t]*\*?[ \t]*([A-Za-z_$][\w$]*)`)
	arrowHeadRe = regexp.MustCompile(`(?m)^[ \t]*(export[ \t]+)?(?:const|let|var)[ \t]+([A-Za-z_$][\w$]*)[ \t]*(?::[^=\n]+)?=[ \t]*(async[ \t]+)?`)
	classHeadRe = regexp.MustCompile(`(?m)^[ \t]*(export[ \t]+)?(default[ \t]+)?(abstract[ \t]+)?class[ \t]+([A-Za-z_$][\w$]*)`)
	ifaceHeadRe = regexp.MustCompile(`(?m)^[ \t]*(export[ \t]+)?interface[ \t]+([A-Za-z_$][\w$]*)`)
	aliasHeadRe = regexp.MustCompile(`(?m)^[ \t]*(export[ \t]+)?type[ \t]+([A-Za-z_$][\w$]*)`)
	enumHeadRe  = regexp.MustCompile(`(?m)^[ \t]*(export[ \t]+)?(const[ \t]+)?enum[ \t]+([A-Za-z_$][\w$]*)[ \t]*\{`)
	nsHeadRe    = regexp.MustCompile(`(?m)^[ \t]*(export[ \t]+)?(?:declare[ \t]+)?namespace[ \t]+([A-Za-z_$][\w$.]*)[ \t]*\{`)

	importFromRe = regexp.MustCompile(`(?m)^[ \t]*import[ \t]+(type[ \t]+)?([^;\n]+?)[ \t]+from[ \t]+['"]([^'"]+)['"]`)
	importBareRe = regexp.MustCompile(`(?m)^[ \t]*import[ \t]+['"]([^'"]+)['"]`)
	requireRe    = regexp.MustCompile(`(?m)^[ \t]*(?:export[ \t]+)?(?:const|let|var)[ \t]+(\{[^}]*\}|[A-Za-z_$][\w$]*)[ \t]*=[ \t]*require\([ \t]*['"]([^'"]+)['"][ \t]*\)`)

	exportNamedRe     = regexp.MustCompile(`(?m)^[ \t]*export[ \t]+(type[ \t]+)?\{([^}]*)\}(?:[ \t]+from[ \t]+['"]([^'"]+)['"])?`)
	exportStarRe      = regexp.MustCompile(`(?m)^[ \t]*export[ \t]+\*(?:[ \t]+as[ \t]+([A-Za-z_$][\w$]*))?[ \t]+from[ \t]+['"]([^'"]+)['"]`)
	exportDefaultIdRe = regexp.MustCompile(`(?m)^[ \t]*export[ \t]+default[ \t]+([A-Za-z_$][\w$]*)[ \t]*;?[ \t]*$`)

	memberMethodRe = regexp.MustCompile(`^[ \t]*(?:(public|private|protected)[ \t]+)?(?:(static)[ \t]+)?(?:(abstract)[ \t]+)?(?:(async)[ \t]+)?(?:(get|set)[ \t]+)?(constructor|[A-Za-z_$][\w$]*)[ \t]*(?:<[^>]*>)?[ \t]*\(`)
	memberPropRe   = regexp.MustCompile(`^[ \t]*(?:(public|private|protected)[ \t]+)?(?:(static)[ \t]+)?(?:(readonly)[ \t]+)?([A-Za-z_$][\w$]*)[ \t]*[?!]?[ \t]*(?::[ \t]*([^;=\n]+))?[:=]?`)
)

// CodeAdapter extracts TypeScript/JavaScript declarations: functions, classes,
// interfaces, type aliases, enums, namespaces, and import/export statements.
// It composes the fallback baseline, so its output always starts with the
// document/paragraph structure, and layers code entities on top.
//
// The scanner is regex and delimiter based, not a parser: it tolerates any
// input, and truncated or invalid syntax degrades to partial entities plus a
// diagnostic entity.
type CodeAdapter struct {
	fallback *FallbackAdapter
}

// NewCodeAdapter creates a code adapter around the given fallback extractor.
func NewCodeAdapter(fallback *FallbackAdapter) *CodeAdapter {
	if fallback == nil {
		fallback = NewFallbackAdapter()
	}
	return &CodeAdapter{fallback: fallback}
}

// Name implements Adapter.
func (a *CodeAdapter) Name() string { return "code" }

// Extensions implements Adapter.
func (a *CodeAdapter) Extensions() []string {
	return []string{".ts", ".tsx", ".js", ".jsx", ".mjs", ".cjs"}
}

// Extract implements Adapter: fallback baseline first, then declarations.
func (a *CodeAdapter) Extract(content string, meta types.FileMetadata) []types.Entity {
	entities := a.fallback.Extract(content, meta)
	entities = append(entities, a.extractDeclarations(content, originKey(meta))...)
	return entities
}

// extractDeclarations scans the source for code entities. A panic anywhere
// in the scan degrades to a diagnostic entity, keeping extraction total.
func (a *CodeAdapter) extractDeclarations(src, origin string) (entities []types.Entity) {
	defer func() {
		if r := recover(); r != nil {
			entities = append(entities, diagnosticEntity(origin, "extraction-panic",
				fmt.Sprintf("declaration scan aborted: %v", r), nil))
		}
	}()

	sc := &codeScanner{
		src:    src,
		origin: origin,
		lines:  newLineIndex(src),
		docs:   collectJSDocBlocks(src),
	}

	entities = append(entities, sc.functions()...)
	entities = append(entities, sc.arrowFunctions()...)
	entities = append(entities, sc.classes()...)
	entities = append(entities, sc.interfaces()...)
	entities = append(entities, sc.typeAliases()...)
	entities = append(entities, sc.enums()...)
	entities = append(entities, sc.namespaces()...)
	entities = append(entities, sc.imports()...)
	entities = append(entities, sc.exports()...)

	if braces, parens, brackets := delimiterBalance(src); braces != 0 || parens != 0 || brackets != 0 {
		entities = append(entities, diagnosticEntity(origin, "unbalanced-delimiters",
			"source has unbalanced delimiters, declarations may be incomplete",
			map[string]interface{}{
				"braces":   braces,
				"parens":   parens,
				"brackets": brackets,
			}))
	}
	return entities
}

// codeScanner holds per-extraction scan state.
type codeScanner struct {
	src    string
	origin string
	lines  *lineIndex
	docs   []jsDocBlock
}

func (s *codeScanner) functions() []types.Entity {
	var out []types.Entity
	for _, m := range funcHeadRe.FindAllStringSubmatchIndex(s.src, -1) {
		start := m[0]
		name := s.src[m[8]:m[9]]
		generics, pos := s.parseGenerics(m[9])
		params, pos, ok := s.parseParams(pos)
		if !ok {
			continue
		}
		returnType, pos := s.parseReturnType(pos, false)
		end := s.declEnd(pos)

		out = append(out, s.functionEntity(name, start, end, functionDetail{
			params:     params,
			returnType: returnType,
			generics:   generics,
			async:      m[6] >= 0,
			exported:   m[2] >= 0,
			isDefault:  m[4] >= 0,
		}))
	}
	return out
}

func (s *codeScanner) arrowFunctions() []types.Entity {
	var out []types.Entity
	for _, m := range arrowHeadRe.FindAllStringSubmatchIndex(s.src, -1) {
		start := m[0]
		name := s.src[m[4]:m[5]]
		async := m[6] >= 0
		i := skipSpace(s.src, m[1])
		if i >= len(s.src) {
			continue
		}

		var params []string
		var returnType string
		arrow := true

		switch {
		case s.src[i] == '(':
			p, after, ok := s.parseParams(i)
			if !ok {
				continue
			}
			params = p
			returnType, after = s.parseReturnType(after, true)
			i = skipSpace(s.src, after)
		case isIdentStart(s.src[i]):
			j := i
			for j < len(s.src) && isIdentChar(s.src[j]) {
				j++
			}
			word := s.src[i:j]
			if word == "function" {
				// Function expression assigned to a binding.
				arrow = false
				p, after, ok := s.parseParams(j)
				if !ok {
					continue
				}
				params = p
				returnType, after = s.parseReturnType(after, false)
				i = after
			} else {
				params = []string{word}
				i = skipSpace(s.src, j)
			}
		default:
			continue
		}

		if arrow {
			if !strings.HasPrefix(s.src[i:], "=>") {
				continue
			}
			i += 2
		}

		end := s.declEnd(i)
		detail := functionDetail{
			params:     params,
			returnType: returnType,
			async:      async,
			exported:   m[2] >= 0,
			arrow:      arrow,
		}
		out = append(out, s.functionEntity(name, start, end, detail))
	}
	return out
}

// functionDetail carries the parsed attributes of one function declaration.
type functionDetail struct {
	params     []string
	returnType string
	generics   []string
	async      bool
	exported   bool
	isDefault  bool
	arrow      bool
}

func (s *codeScanner) functionEntity(name string, start, end int, d functionDetail) types.Entity {
	startLine := s.lines.lineOf(start)
	meta := map[string]interface{}{
		"entityType": "function",
		"parameters": paramsOrEmpty(d.params),
		"returnType": d.returnType,
		"async":      d.async,
		"exported":   d.exported,
		"startLine":  startLine,
		"endLine":    s.lines.lineOf(maxInt(start, end-1)),
	}
	if len(d.generics) > 0 {
		meta["genericTypes"] = d.generics
	}
	if d.isDefault {
		meta["default"] = true
	}
	if d.arrow {
		meta["arrow"] = true
	}
	if doc := jsDocBefore(s.src, s.docs, start); doc != nil {
		meta["jsDoc"] = doc
	}
	return types.Entity{
		ID:       entityID("fn", s.origin, name, startLine),
		Kind:     types.EntityKindFunction,
		Name:     name,
		Content:  s.src[start:end],
		Metadata: meta,
	}
}

func (s *codeScanner) classes() []types.Entity {
	var out []types.Entity
	for _, m := range classHeadRe.FindAllStringSubmatchIndex(s.src, -1) {
		start := m[0]
		name := s.src[m[8]:m[9]]
		generics, pos := s.parseGenerics(m[9])

		rel := strings.IndexByte(s.src[pos:], '{')
		if rel < 0 {
			continue
		}
		bodyOpen := pos + rel
		parent, implements := parseClassHeritage(s.src[pos:bodyOpen])

		end, closed := matchDelimiter(s.src, bodyOpen)
		if !closed {
			end = len(s.src)
		}
		body := s.src[minInt(bodyOpen+1, end):maxInt(bodyOpen+1, end-1)]
		methods, properties := parseClassMembers(body)

		startLine := s.lines.lineOf(start)
		meta := map[string]interface{}{
			"entityType": "class",
			"abstract":   m[6] >= 0,
			"exported":   m[2] >= 0,
			"methods":    methods,
			"properties": properties,
			"startLine":  startLine,
			"endLine":    s.lines.lineOf(maxInt(start, end-1)),
		}
		if parent != "" {
			meta["extends"] = parent
		}
		if len(implements) > 0 {
			meta["implements"] = implements
		}
		if len(generics) > 0 {
			meta["genericTypes"] = generics
		}
		if m[4] >= 0 {
			meta["default"] = true
		}
		if doc := jsDocBefore(s.src, s.docs, start); doc != nil {
			meta["jsDoc"] = doc
		}

		out = append(out, types.Entity{
			ID:       entityID("class", s.origin, name, startLine),
			Kind:     types.EntityKindClass,
			Name:     name,
			Content:  s.src[start:end],
			Metadata: meta,
		})
	}
	return out
}

func (s *codeScanner) interfaces() []types.Entity {
	var out []types.Entity
	for _, m := range ifaceHeadRe.FindAllStringSubmatchIndex(s.src, -1) {
		start := m[0]
		name := s.src[m[4]:m[5]]
		generics, pos := s.parseGenerics(m[5])

		rel := strings.IndexByte(s.src[pos:], '{')
		if rel < 0 {
			continue
		}
		bodyOpen := pos + rel
		extends := parseInterfaceHeritage(s.src[pos:bodyOpen])

		end, closed := matchDelimiter(s.src, bodyOpen)
		if !closed {
			end = len(s.src)
		}
		body := s.src[minInt(bodyOpen+1, end):maxInt(bodyOpen+1, end-1)]
		methods, properties := parseInterfaceMembers(body)

		startLine := s.lines.lineOf(start)
		meta := map[string]interface{}{
			"entityType": "interface",
			"exported":   m[2] >= 0,
			"methods":    methods,
			"properties": properties,
			"startLine":  startLine,
			"endLine":    s.lines.lineOf(maxInt(start, end-1)),
		}
		if len(extends) > 0 {
			meta["extends"] = extends
		}
		if len(generics) > 0 {
			meta["genericTypes"] = generics
		}
		if doc := jsDocBefore(s.src, s.docs, start); doc != nil {
			meta["jsDoc"] = doc
		}

		out = append(out, types.Entity{
			ID:       entityID("iface", s.origin, name, startLine),
			Kind:     types.EntityKindInterface,
			Name:     name,
			Content:  s.src[start:end],
			Metadata: meta,
		})
	}
	return out
}

func (s *codeScanner) typeAliases() []types.Entity {
	var out []types.Entity
	for _, m := range aliasHeadRe.FindAllStringSubmatchIndex(s.src, -1) {
		start := m[0]
		name := s.src[m[4]:m[5]]
		generics, pos := s.parseGenerics(m[5])

		i := skipSpace(s.src, pos)
		if i >= len(s.src) || s.src[i] != '=' {
			continue
		}
		aliased, end := s.scanTypeExpr(i+1, false)

		startLine := s.lines.lineOf(start)
		meta := map[string]interface{}{
			"entityType":  "type-alias",
			"aliasedType": aliased,
			"exported":    m[2] >= 0,
			"startLine":   startLine,
		}
		if len(generics) > 0 {
			meta["genericTypes"] = generics
		}

		out = append(out, types.Entity{
			ID:       entityID("alias", s.origin, name, startLine),
			Kind:     types.EntityKindTypeAlias,
			Name:     name,
			Content:  strings.TrimRight(s.src[start:minInt(end+1, len(s.src))], "\n"),
			Metadata: meta,
		})
	}
	return out
}

func (s *codeScanner) enums() []types.Entity {
	var out []types.Entity
	for _, m := range enumHeadRe.FindAllStringSubmatchIndex(s.src, -1) {
		start := m[0]
		name := s.src[m[6]:m[7]]
		bodyOpen := m[1] - 1

		end, closed := matchDelimiter(s.src, bodyOpen)
		if !closed {
			end = len(s.src)
		}
		body := s.src[minInt(bodyOpen+1, end):maxInt(bodyOpen+1, end-1)]

		var values []string
		for _, part := range splitTopLevel(body, ',') {
			value := strings.TrimSpace(part)
			if eq := strings.IndexByte(value, '='); eq >= 0 {
				value = strings.TrimSpace(value[:eq])
			}
			if value != "" {
				values = append(values, value)
			}
		}

		startLine := s.lines.lineOf(start)
		out = append(out, types.Entity{
			ID:      entityID("enum", s.origin, name, startLine),
			Kind:    types.EntityKindEnum,
			Name:    name,
			Content: s.src[start:end],
			Metadata: map[string]interface{}{
				"entityType": "enum",
				"values":     values,
				"constEnum":  m[4] >= 0,
				"exported":   m[2] >= 0,
				"startLine":  startLine,
			},
		})
	}
	return out
}

func (s *codeScanner) namespaces() []types.Entity {
	var out []types.Entity
	for _, m := range nsHeadRe.FindAllStringSubmatchIndex(s.src, -1) {
		start := m[0]
		name := s.src[m[4]:m[5]]
		bodyOpen := m[1] - 1

		end, closed := matchDelimiter(s.src, bodyOpen)
		if !closed {
			end = len(s.src)
		}

		startLine := s.lines.lineOf(start)
		out = append(out, types.Entity{
			ID:      entityID("ns", s.origin, name, startLine),
			Kind:    types.EntityKindNamespace,
			Name:    name,
			Content: s.src[start:end],
			Metadata: map[string]interface{}{
				"entityType": "namespace",
				"exported":   m[2] >= 0,
				"startLine":  startLine,
				"endLine":    s.lines.lineOf(maxInt(start, end-1)),
			},
		})
	}
	return out
}

func (s *codeScanner) imports() []types.Entity {
	var out []types.Entity
	ordinal := 0

	emit := func(kind, source string, start int, build func(meta map[string]interface{})) {
		ordinal++
		meta := map[string]interface{}{
			"entityType": "import",
			"importKind": kind,
			"source":     source,
			"isLocal":    strings.HasPrefix(source, "."),
			"line":       s.lines.lineOf(start),
		}
		if build != nil {
			build(meta)
		}
		out = append(out, types.Entity{
			ID:       entityID("imp", s.origin, ordinal),
			Kind:     types.EntityKindImport,
			Name:     source,
			Content:  s.lineText(start),
			Metadata: meta,
		})
	}

	for _, m := range importFromRe.FindAllStringSubmatchIndex(s.src, -1) {
		clause := strings.TrimSpace(s.src[m[4]:m[5]])
		source := s.src[m[6]:m[7]]
		typeOnly := m[2] >= 0

		kind, defaultImport, namespace, names := parseImportClause(clause)
		emit(kind, source, m[0], func(meta map[string]interface{}) {
			meta["typeOnly"] = typeOnly
			if defaultImport != "" {
				meta["defaultImport"] = defaultImport
			}
			if namespace != "" {
				meta["namespace"] = namespace
			}
			if len(names) > 0 {
				meta["imports"] = names
			}
		})
	}

	for _, m := range importBareRe.FindAllStringSubmatchIndex(s.src, -1) {
		source := s.src[m[2]:m[3]]
		emit("named", source, m[0], func(meta map[string]interface{}) {
			meta["typeOnly"] = false
			meta["sideEffect"] = true
		})
	}

	for _, m := range requireRe.FindAllStringSubmatchIndex(s.src, -1) {
		binding := s.src[m[2]:m[3]]
		source := s.src[m[4]:m[5]]
		emit("commonjs", source, m[0], func(meta map[string]interface{}) {
			meta["typeOnly"] = false
			if strings.HasPrefix(binding, "{") {
				meta["imports"] = specifierNames(strings.Trim(binding, "{}"))
			} else {
				meta["defaultImport"] = binding
			}
		})
	}
	return out
}

func (s *codeScanner) exports() []types.Entity {
	var out []types.Entity
	ordinal := 0

	emit := func(name, exportKind string, start int, build func(meta map[string]interface{})) {
		ordinal++
		meta := map[string]interface{}{
			"entityType": "export",
			"exportKind": exportKind,
			"line":       s.lines.lineOf(start),
		}
		if build != nil {
			build(meta)
		}
		out = append(out, types.Entity{
			ID:       entityID("exp", s.origin, ordinal),
			Kind:     types.EntityKindExport,
			Name:     name,
			Content:  s.lineText(start),
			Metadata: meta,
		})
	}

	for _, m := range exportNamedRe.FindAllStringSubmatchIndex(s.src, -1) {
		names := specifierNames(s.src[m[4]:m[5]])
		source := ""
		if m[6] >= 0 {
			source = s.src[m[6]:m[7]]
		}
		emit(strings.Join(names, ", "), "named", m[0], func(meta map[string]interface{}) {
			meta["names"] = names
			meta["typeOnly"] = m[2] >= 0
			if source != "" {
				meta["source"] = source
			}
		})
	}

	for _, m := range exportStarRe.FindAllStringSubmatchIndex(s.src, -1) {
		source := s.src[m[4]:m[5]]
		emit(source, "star", m[0], func(meta map[string]interface{}) {
			meta["source"] = source
			if m[2] >= 0 {
				meta["alias"] = s.src[m[2]:m[3]]
			}
		})
	}

	for _, m := range exportDefaultIdRe.FindAllStringSubmatchIndex(s.src, -1) {
		name := s.src[m[2]:m[3]]
		emit(name, "default", m[0], func(meta map[string]interface{}) {
			meta["names"] = []string{name}
		})
	}
	return out
}

// parseGenerics reads an optional <...> group after pos.
func (s *codeScanner) parseGenerics(pos int) ([]string, int) {
	i := skipSpace(s.src, pos)
	if i >= len(s.src) || s.src[i] != '<' {
		return nil, pos
	}
	end, ok := matchDelimiter(s.src, i)
	if !ok {
		return nil, pos
	}
	return splitTopLevel(s.src[i+1:end-1], ','), end
}

// parseParams reads the (...) group after pos, returning raw parameter
// strings split on top-level commas.
func (s *codeScanner) parseParams(pos int) ([]string, int, bool) {
	i := skipSpace(s.src, pos)
	if i >= len(s.src) || s.src[i] != '(' {
		return nil, pos, false
	}
	end, ok := matchDelimiter(s.src, i)
	if !ok {
		return nil, pos, false
	}
	return splitTopLevel(s.src[i+1:end-1], ','), end, true
}

// parseReturnType reads an optional ": T" annotation after pos. stopAtArrow
// makes a top-level "=>" end the expression, which arrow heads need to find
// their own arrow token.
func (s *codeScanner) parseReturnType(pos int, stopAtArrow bool) (string, int) {
	i := skipSpace(s.src, pos)
	if i >= len(s.src) || s.src[i] != ':' {
		return "", i
	}
	return s.scanTypeExpr(i+1, stopAtArrow)
}

// scanTypeExpr reads a type expression starting at pos, stopping at the
// statement or body boundary: a newline or semicolon at depth zero, or a
// body brace. Bracketed groups are consumed whole, and a line ending in a
// type operator continues onto the next line.
func (s *codeScanner) scanTypeExpr(pos int, stopAtArrow bool) (string, int) {
	start := pos
	i := pos
	for i < len(s.src) {
		switch c := s.src[i]; c {
		case '<', '(', '[':
			end, ok := matchDelimiter(s.src, i)
			if !ok {
				return strings.TrimSpace(s.src[start:]), len(s.src)
			}
			i = end
			continue
		case '{':
			if typeContinues(s.src[start:i]) {
				end, ok := matchDelimiter(s.src, i)
				if !ok {
					return strings.TrimSpace(s.src[start:]), len(s.src)
				}
				i = end
				continue
			}
			return strings.TrimSpace(s.src[start:i]), i
		case '\n', ';':
			if c == '\n' && typeContinues(s.src[start:i]) {
				i++
				continue
			}
			return strings.TrimSpace(s.src[start:i]), i
		case '=':
			if stopAtArrow && i+1 < len(s.src) && s.src[i+1] == '>' {
				return strings.TrimSpace(s.src[start:i]), i
			}
		}
		i++
	}
	return strings.TrimSpace(s.src[start:]), len(s.src)
}

// typeContinues reports whether a partial type expression must extend
// further, e.g. because it is empty or ends in a type operator.
func typeContinues(partial string) bool {
	t := strings.TrimSpace(partial)
	if t == "" {
		return true
	}
	switch t[len(t)-1] {
	case '|', '&', ',', ':', '<', '(', '=':
		return true
	}
	return strings.HasSuffix(t, "extends") || strings.HasSuffix(t, "keyof") || strings.HasSuffix(t, "=>")
}

// declEnd consumes a declaration tail starting at pos: a brace-delimited
// body when present, otherwise the rest of the statement.
func (s *codeScanner) declEnd(pos int) int {
	i := skipSpace(s.src, pos)
	if i < len(s.src) && s.src[i] == '{' {
		end, ok := matchDelimiter(s.src, i)
		if !ok {
			return len(s.src)
		}
		return end
	}
	return s.statementEnd(i)
}

// statementEnd finds the end of an expression statement: a semicolon or
// newline at depth zero.
func (s *codeScanner) statementEnd(pos int) int {
	depth := 0
	i := pos
	for i < len(s.src) {
		switch c := s.src[i]; c {
		case '\'', '"', '`':
			i = skipString(s.src, i)
			continue
		case '(', '{', '[':
			depth++
		case ')', '}', ']':
			depth--
		case ';', '\n':
			if depth <= 0 {
				return i
			}
		}
		i++
	}
	return len(s.src)
}

// lineText returns the full source line containing offset.
func (s *codeScanner) lineText(offset int) string {
	start := offset
	for start > 0 && s.src[start-1] != '\n' {
		start--
	}
	end := offset
	for end < len(s.src) && s.src[end] != '\n' {
		end++
	}
	return strings.TrimSpace(s.src[start:end])
}

// parseClassHeritage reads "extends Base implements A, B" between the class
// name and the body brace.
func parseClassHeritage(heritage string) (parent string, implements []string) {
	if idx := indexWord(heritage, "extends"); idx >= 0 {
		rest := heritage[idx+len("extends"):]
		if imp := indexWord(rest, "implements"); imp >= 0 {
			rest = rest[:imp]
		}
		parent = bareTypeName(rest)
	}
	if idx := indexWord(heritage, "implements"); idx >= 0 {
		for _, part := range splitTopLevel(heritage[idx+len("implements"):], ',') {
			if name := bareTypeName(part); name != "" {
				implements = append(implements, name)
			}
		}
	}
	return parent, implements
}

// parseInterfaceHeritage reads "extends A, B" between the interface name and
// the body brace.
func parseInterfaceHeritage(heritage string) []string {
	idx := indexWord(heritage, "extends")
	if idx < 0 {
		return nil
	}
	var out []string
	for _, part := range splitTopLevel(heritage[idx+len("extends"):], ',') {
		if name := bareTypeName(part); name != "" {
			out = append(out, name)
		}
	}
	return out
}

// parseClassMembers reads methods and properties from a class body. Members
// sit at depth zero of the body; anything nested deeper belongs to a member
// body and is skipped.
func parseClassMembers(body string) (methods, properties []map[string]interface{}) {
	methods = []map[string]interface{}{}
	properties = []map[string]interface{}{}

	depths := depthAtLineStarts(body)
	for i, line := range strings.Split(body, "\n") {
		if i >= len(depths) || depths[i] != 0 {
			continue
		}
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "//") || strings.HasPrefix(trimmed, "*") ||
			strings.HasPrefix(trimmed, "/*") || strings.HasPrefix(trimmed, "@") ||
			closingOnly(trimmed) {
			continue
		}

		if m := memberMethodRe.FindStringSubmatch(line); m != nil {
			method := map[string]interface{}{
				"name":        m[6],
				"visibility":  defaultVisibility(m[1]),
				"static":      m[2] != "",
				"constructor": m[6] == "constructor",
			}
			if m[3] != "" {
				method["abstract"] = true
			}
			if m[4] != "" {
				method["async"] = true
			}
			if m[5] != "" {
				method["accessor"] = m[5]
			}
			methods = append(methods, method)
			continue
		}

		if m := memberPropRe.FindStringSubmatch(line); m != nil && m[4] != "" && !isReservedMemberWord(m[4]) {
			prop := map[string]interface{}{
				"name":       m[4],
				"visibility": defaultVisibility(m[1]),
				"static":     m[2] != "",
				"readonly":   m[3] != "",
			}
			if t := strings.TrimSpace(m[5]); t != "" {
				prop["type"] = strings.TrimRight(t, " =")
			}
			properties = append(properties, prop)
		}
	}
	return methods, properties
}

// parseInterfaceMembers reads member signatures from an interface body,
// methods and properties as raw signature strings.
func parseInterfaceMembers(body string) (methods, properties []string) {
	methods = []string{}
	properties = []string{}

	depths := depthAtLineStarts(body)
	for i, line := range strings.Split(body, "\n") {
		if i >= len(depths) || depths[i] != 0 {
			continue
		}
		sig := strings.TrimSpace(strings.TrimRight(strings.TrimSpace(line), ",;"))
		if sig == "" || strings.HasPrefix(sig, "//") || strings.HasPrefix(sig, "*") || strings.HasPrefix(sig, "/*") {
			continue
		}

		paren := strings.IndexByte(sig, '(')
		colon := strings.IndexByte(sig, ':')
		if paren >= 0 && (colon < 0 || paren < colon) {
			methods = append(methods, sig)
		} else if colon >= 0 {
			properties = append(properties, sig)
		}
	}
	return methods, properties
}

// parseImportClause classifies the clause between "import" and "from".
func parseImportClause(clause string) (kind, defaultImport, namespace string, names []string) {
	switch {
	case strings.HasPrefix(clause, "*"):
		kind = "namespace"
		if idx := indexWord(clause, "as"); idx >= 0 {
			namespace = strings.TrimSpace(clause[idx+2:])
		}
	case strings.HasPrefix(clause, "{"):
		kind = "named"
		names = specifierNames(strings.Trim(clause, "{}"))
	default:
		kind = "default"
		rest := clause
		if comma := strings.IndexByte(clause, ','); comma >= 0 {
			rest = clause[:comma]
			tail := strings.TrimSpace(clause[comma+1:])
			if strings.HasPrefix(tail, "{") {
				names = specifierNames(strings.Trim(tail, "{}"))
			} else if strings.HasPrefix(tail, "*") {
				if idx := indexWord(tail, "as"); idx >= 0 {
					namespace = strings.TrimSpace(tail[idx+2:])
				}
			}
		}
		defaultImport = strings.TrimSpace(rest)
	}
	return kind, defaultImport, namespace, names
}

// specifierNames splits an import/export specifier list, keeping the
// original (pre-alias) names.
func specifierNames(inner string) []string {
	var out []string
	for _, part := range strings.Split(inner, ",") {
		name := strings.TrimSpace(part)
		if name == "" {
			continue
		}
		name = strings.TrimPrefix(name, "type ")
		if idx := indexWord(name, "as"); idx >= 0 {
			name = strings.TrimSpace(name[:idx])
		}
		if name != "" {
			out = append(out, name)
		}
	}
	return out
}

// indexWord finds word in s at identifier boundaries, or -1.
func indexWord(s, word string) int {
	for from := 0; ; {
		idx := strings.Index(s[from:], word)
		if idx < 0 {
			return -1
		}
		abs := from + idx
		beforeOK := abs == 0 || !isIdentChar(s[abs-1])
		afterOK := abs+len(word) >= len(s) || !isIdentChar(s[abs+len(word)])
		if beforeOK && afterOK {
			return abs
		}
		from = abs + len(word)
	}
}

// bareTypeName extracts the identifier from a heritage clause entry,
// dropping generic arguments.
func bareTypeName(s string) string {
	s = strings.TrimSpace(s)
	if idx := strings.IndexByte(s, '<'); idx >= 0 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}

func defaultVisibility(v string) string {
	if v == "" {
		return "public"
	}
	return v
}

// isReservedMemberWord rejects statement keywords that the property regex
// would otherwise accept on malformed lines.
func isReservedMemberWord(w string) bool {
	switch w {
	case "if", "for", "while", "switch", "return", "case", "default", "else", "new", "throw", "try", "catch":
		return true
	}
	return false
}

// closingOnly reports lines that are only closing delimiters.
func closingOnly(s string) bool {
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '}', ')', ']', ';', ',', ' ', '\t':
		default:
			return false
		}
	}
	return true
}

func skipSpace(src string, i int) int {
	for i < len(src) && (src[i] == ' ' || src[i] == '\t' || src[i] == '\n' || src[i] == '\r') {
		i++
	}
	return i
}

func isIdentStart(c byte) bool {
	return c == '_' || c == '$' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func paramsOrEmpty(params []string) []string {
	if params == nil {
		return []string{}
	}
	return params
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
