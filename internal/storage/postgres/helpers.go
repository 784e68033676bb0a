package postgres

import "strings"

// escapeILIKEPattern neutralizes LIKE wildcards in user-supplied search text
// so a search for "100%" matches the literal string. Backslash goes first.
func escapeILIKEPattern(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}
