// Package variables substitutes tenant template variables into outbound text.
package variables

import "regexp"

var (
	// singlePattern matches {key}.
	singlePattern = regexp.MustCompile(`\{([A-Za-z0-9_.\-]+)\}`)
	// doublePattern matches {{key}}, optionally padded with spaces.
	doublePattern = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_.\-]+)\s*\}\}`)
)

// Resolve replaces every {key} in text with vars[key]. Unknown keys become
// the empty string; braces that do not enclose a key are left as they are.
func Resolve(text string, vars map[string]string) string {
	if text == "" {
		return text
	}
	return replace(singlePattern, text, vars)
}

// ResolveAll is Resolve extended with {{key}} placeholders, which are
// substituted first so that their outer braces are consumed.
func ResolveAll(text string, vars map[string]string) string {
	if text == "" {
		return text
	}
	return Resolve(replace(doublePattern, text, vars), vars)
}

func replace(pattern *regexp.Regexp, text string, vars map[string]string) string {
	return pattern.ReplaceAllStringFunc(text, func(match string) string {
		sub := pattern.FindStringSubmatch(match)
		if len(sub) < 2 {
			return match
		}
		return vars[sub[1]]
	})
}

// Merge returns a new map with the entries of each map applied in order.
func Merge(maps ...map[string]string) map[string]string {
	out := make(map[string]string)
	for _, m := range maps {
		for k, v := range m {
			out[k] = v
		}
	}
	return out
}
