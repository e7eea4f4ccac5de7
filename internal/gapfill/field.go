package gapfill

import "regexp"

var (
	namedQueryPattern     = regexp.MustCompile(`query\s*(?:\w+)?\s*(?:\([^)]*\))?\s*\{\s*(\w+)`)
	shorthandQueryPattern = regexp.MustCompile(`^\s*\{\s*(\w+)`)
)

// fieldFromQuery returns the root field of a query document, or "".
func fieldFromQuery(query string) string {
	if m := namedQueryPattern.FindStringSubmatch(query); len(m) == 2 {
		return m[1]
	}
	if m := shorthandQueryPattern.FindStringSubmatch(query); len(m) == 2 {
		return m[1]
	}
	return ""
}
