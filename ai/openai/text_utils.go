package openai

import "strings"

// collapseWhitespace folds runs of whitespace, including newlines, into
// single spaces and trims the ends.
func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
