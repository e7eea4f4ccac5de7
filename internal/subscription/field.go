package subscription

import "regexp"

// subscriptionFieldPattern matches the first field selected in a
// subscription operation: `subscription Name($v: T) { field(...) {`.
var subscriptionFieldPattern = regexp.MustCompile(`subscription\s*(?:\w+)?\s*(?:\([^)]*\))?\s*\{\s*(\w+)`)

// FieldFromQuery returns the root field of a subscription document, or ""
// when the document does not look like a subscription. The document is
// not parsed or validated.
func FieldFromQuery(query string) string {
	m := subscriptionFieldPattern.FindStringSubmatch(query)
	if len(m) < 2 {
		return ""
	}
	return m[1]
}
