package render

import (
	"regexp"
	"sort"
	"strings"
)

// Matches {{ identifier }} and {{ identifier | filter }} forms.
var tokenPattern = regexp.MustCompile(`\{\{\s*([A-Za-z_][A-Za-z0-9_]*)\s*(?:\||\}\})`)

// ExtractVariables returns the sorted set of substitution tokens used in a
// template's subject and body. Templates store this on every write so the
// ingest preview can show which columns a campaign will use.
func ExtractVariables(subject, body string) []string {
	seen := make(map[string]bool)
	for _, src := range []string{subject, body} {
		for _, m := range tokenPattern.FindAllStringSubmatch(src, -1) {
			name := m[1]
			if isLiquidKeyword(name) {
				continue
			}
			seen[name] = true
		}
	}

	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// isLiquidKeyword reports whether a name is a Liquid control keyword rather
// than a substitution variable.
func isLiquidKeyword(name string) bool {
	keywords := map[string]bool{
		"if": true, "elsif": true, "else": true, "endif": true,
		"unless": true, "endunless": true,
		"case": true, "when": true, "endcase": true,
		"for": true, "endfor": true, "break": true, "continue": true,
		"capture": true, "endcapture": true,
		"comment": true, "endcomment": true,
		"raw": true, "endraw": true,
		"assign": true, "increment": true, "decrement": true,
		"forloop": true, "limit": true, "offset": true, "reversed": true,
		"empty": true, "true": true, "false": true, "nil": true, "null": true,
		"and": true, "or": true, "not": true, "contains": true, "in": true,
	}
	return keywords[strings.ToLower(name)]
}
