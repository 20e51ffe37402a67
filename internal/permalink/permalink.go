// Package permalink builds canonical document URLs from per-type rules such
// as "/blog/<id>/".
package permalink

import (
	"fmt"
	"net/url"
	"strings"
)

const idVar = "id"

// Rule is a parsed URL pattern whose only variable is <id>.
type Rule struct {
	pattern string
	parts   []string
}

// Parse parses pattern. Variables are written <name>; only <id> is known.
func Parse(pattern string) (Rule, error) {
	if !strings.HasPrefix(pattern, "/") {
		return Rule{}, fmt.Errorf("permalink %q: must start with /", pattern)
	}
	var parts []string
	rest := pattern
	for {
		open := strings.IndexByte(rest, '<')
		if open < 0 {
			parts = append(parts, rest)
			break
		}
		end := strings.IndexByte(rest[open:], '>')
		if end < 0 {
			return Rule{}, fmt.Errorf("permalink %q: unterminated variable", pattern)
		}
		name := rest[open+1 : open+end]
		// werkzeug-style converters, e.g. <string:id>
		if i := strings.IndexByte(name, ':'); i >= 0 {
			name = name[i+1:]
		}
		if name != idVar {
			return Rule{}, fmt.Errorf("permalink %q: unknown variable %q", pattern, name)
		}
		parts = append(parts, rest[:open], "")
		rest = rest[open+end+1:]
	}
	return Rule{pattern: pattern, parts: parts}, nil
}

func (r Rule) Pattern() string { return r.pattern }

// Build substitutes id into the rule. Odd parts are variable slots.
func (r Rule) Build(id string) string {
	var sb strings.Builder
	for i, p := range r.parts {
		if i%2 == 1 {
			sb.WriteString(url.PathEscape(id))
			continue
		}
		sb.WriteString(p)
	}
	return sb.String()
}

// Rules maps document types to their permalink rule.
type Rules map[string]Rule

// FromPatterns parses a doc type to pattern table.
func FromPatterns(patterns map[string]string) (Rules, error) {
	rules := make(Rules, len(patterns))
	for docType, pattern := range patterns {
		r, err := Parse(pattern)
		if err != nil {
			return nil, fmt.Errorf("type %s: %w", docType, err)
		}
		rules[docType] = r
	}
	return rules, nil
}

// URL returns the permalink for id under docType's rule, if one is registered.
func (rs Rules) URL(docType, id string) (string, bool) {
	r, ok := rs[docType]
	if !ok {
		return "", false
	}
	return r.Build(id), true
}
