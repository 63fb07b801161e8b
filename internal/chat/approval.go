package chat

import (
	"strings"
	"unicode"
)

// approvalWords publish the pending draft
var approvalWords = map[string]bool{
	"post": true,
	"yes":  true,
	"go":   true,
	"ship": true,
}

// IsApproval reports whether text approves the pending draft.
// Matching ignores case and surrounding whitespace or punctuation, so "Ship it" does not count but "ship!" does.
func IsApproval(text string) bool {
	word := strings.TrimFunc(text, func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsPunct(r) || unicode.IsSymbol(r)
	})
	return approvalWords[strings.ToLower(word)]
}
