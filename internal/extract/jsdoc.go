package extract

import (
	"regexp"
	"strings"
)

var (
	jsDocBlockRe = regexp.MustCompile(`(?s)/\*\*(.*?)\*/`)
	jsDocParamRe = regexp.MustCompile(`^@param\s+(?:\{([^}]*)\}\s+)?(\[?[A-Za-z_$][\w$.]*\]?)\s*-?\s*(.*)$`)
	jsDocRetRe   = regexp.MustCompile(`^@returns?\s+(?:\{([^}]*)\}\s*)?(.*)$`)
)

// jsDocBlock is one /** ... */ comment with its byte span in the source.
type jsDocBlock struct {
	start int
	end   int
	text  string
}

// collectJSDocBlocks finds every JSDoc comment in the source.
func collectJSDocBlocks(src string) []jsDocBlock {
	var blocks []jsDocBlock
	for _, m := range jsDocBlockRe.FindAllStringSubmatchIndex(src, -1) {
		blocks = append(blocks, jsDocBlock{
			start: m[0],
			end:   m[1],
			text:  src[m[2]:m[3]],
		})
	}
	return blocks
}

// jsDocBefore returns the parsed JSDoc block immediately preceding the
// declaration at declStart: only whitespace may separate the block from the
// declaration. Returns nil when no block is attached.
func jsDocBefore(src string, blocks []jsDocBlock, declStart int) map[string]interface{} {
	for i := len(blocks) - 1; i >= 0; i-- {
		b := blocks[i]
		if b.end > declStart {
			continue
		}
		if strings.TrimSpace(src[b.end:declStart]) != "" {
			return nil
		}
		return parseJSDoc(b.text)
	}
	return nil
}

// parseJSDoc parses a JSDoc comment body into description, params, and
// returns. Unknown tags are ignored.
func parseJSDoc(raw string) map[string]interface{} {
	var descLines []string
	var params []map[string]interface{}
	returns := ""

	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "*"))
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if m := jsDocParamRe.FindStringSubmatch(line); m != nil {
			param := map[string]interface{}{
				"name": strings.Trim(m[2], "[]"),
			}
			if m[1] != "" {
				param["type"] = m[1]
			}
			if m[3] != "" {
				param["description"] = m[3]
			}
			params = append(params, param)
			continue
		}
		if m := jsDocRetRe.FindStringSubmatch(line); m != nil {
			returns = strings.TrimSpace(m[2])
			if returns == "" {
				returns = m[1]
			}
			continue
		}
		if strings.HasPrefix(line, "@") {
			continue
		}
		if len(params) == 0 && returns == "" {
			descLines = append(descLines, line)
		}
	}

	doc := map[string]interface{}{
		"description": strings.Join(descLines, " "),
	}
	if len(params) > 0 {
		doc["params"] = params
	}
	if returns != "" {
		doc["returns"] = returns
	}
	return doc
}
