// Package template implements the `{{path}}` substitution engine used to
// render strategy step inputs against the workflow's variable context.
//
// Render is a pure function of (template, context): no I/O, safe to call
// concurrently from multiple research iterations.
package template

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var tokenPattern = regexp.MustCompile(`\{\{\s*([^{}]+?)\s*\}\}`)

// Render substitutes every `{{path}}` (optionally `{{path | filter:arg}}`)
// token in tmpl with its resolved value from ctx. Resolution failures
// (missing key, index out of range, wrong type) leave the literal token
// unchanged and append a warning; Render never returns an error.
func Render(tmpl string, ctx map[string]any) (string, []string) {
	var warnings []string

	out := tokenPattern.ReplaceAllStringFunc(tmpl, func(match string) string {
		inner := tokenPattern.FindStringSubmatch(match)[1]
		path, filterName, filterArg, hasFilter := splitFilter(inner)

		val, ok := resolvePath(ctx, path)
		if !ok {
			warnings = append(warnings, fmt.Sprintf("template: unresolved path %q", path))
			return match
		}

		if hasFilter {
			rendered, applied := applyFilter(filterName, filterArg, val)
			if !applied {
				warnings = append(warnings, fmt.Sprintf("template: filter %q not applicable to path %q", filterName, path))
				return match
			}
			return rendered
		}

		return coerceString(val)
	})

	return out, warnings
}

// splitFilter splits "path | filter:arg" into its parts. hasFilter is false
// when no pipe is present.
func splitFilter(inner string) (path, filterName, filterArg string, hasFilter bool) {
	parts := strings.SplitN(inner, "|", 2)
	path = strings.TrimSpace(parts[0])
	if len(parts) == 1 {
		return path, "", "", false
	}

	filterExpr := strings.TrimSpace(parts[1])
	nameArg := strings.SplitN(filterExpr, ":", 2)
	filterName = strings.TrimSpace(nameArg[0])
	if len(nameArg) == 2 {
		filterArg = strings.TrimSpace(nameArg[1])
	}
	return path, filterName, filterArg, true
}

// applyFilter applies a named filter to val. Returns (rendered, true) on
// success, or ("", false) when the filter's input contract rejects val.
func applyFilter(name, arg string, val any) (string, bool) {
	switch name {
	case "shortlist":
		n, err := strconv.Atoi(arg)
		if err != nil || n < 0 {
			return "", false
		}
		seq, ok := asSequence(val)
		if !ok {
			return "", false
		}
		if n < len(seq) {
			seq = seq[:n]
		}
		parts := make([]string, len(seq))
		for i, v := range seq {
			parts[i] = coerceString(v)
		}
		return strings.Join(parts, ", "), true
	default:
		return "", false
	}
}

// asSequence normalizes the handful of slice shapes Render's callers
// plausibly produce (template contexts come from JSON-decoded LLM output
// and Go-native vars) into []any.
func asSequence(val any) ([]any, bool) {
	switch v := val.(type) {
	case []any:
		return v, true
	case []string:
		seq := make([]any, len(v))
		for i, s := range v {
			seq[i] = s
		}
		return seq, true
	default:
		return nil, false
	}
}

func coerceString(val any) string {
	switch v := val.(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}

// resolvePath walks identifier(.identifier|[integer])* against ctx.
func resolvePath(ctx map[string]any, path string) (any, bool) {
	segments, ok := parseSegments(path)
	if !ok || len(segments) == 0 {
		return nil, false
	}

	root, ok := segments[0].(string)
	if !ok {
		return nil, false
	}

	cur, ok := ctx[root]
	if !ok {
		return nil, false
	}

	for _, seg := range segments[1:] {
		switch s := seg.(type) {
		case string:
			m, ok := cur.(map[string]any)
			if !ok {
				return nil, false
			}
			cur, ok = m[s]
			if !ok {
				return nil, false
			}
		case int:
			seq, ok := asSequence(cur)
			if !ok || s < 0 || s >= len(seq) {
				return nil, false
			}
			cur = seq[s]
		}
	}

	return cur, true
}

// parseSegments splits "a.b[2].c" into ["a", "b", 2, "c"].
func parseSegments(path string) ([]any, bool) {
	if path == "" {
		return nil, false
	}

	var segments []any
	var ident strings.Builder

	flushIdent := func() {
		if ident.Len() > 0 {
			segments = append(segments, ident.String())
			ident.Reset()
		}
	}

	i := 0
	for i < len(path) {
		c := path[i]
		switch {
		case c == '.':
			flushIdent()
			i++
		case c == '[':
			flushIdent()
			end := strings.IndexByte(path[i:], ']')
			if end < 0 {
				return nil, false
			}
			idxStr := path[i+1 : i+end]
			idx, err := strconv.Atoi(idxStr)
			if err != nil {
				return nil, false
			}
			segments = append(segments, idx)
			i += end + 1
		default:
			ident.WriteByte(c)
			i++
		}
	}
	flushIdent()

	return segments, true
}
