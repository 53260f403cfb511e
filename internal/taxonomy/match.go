package taxonomy

import (
	"strings"
	"unicode"
)

// Normalize lowercases text and collapses every run of non-alphanumeric
// characters into a single space.
func Normalize(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	space := true
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			space = false
			continue
		}
		if !space {
			b.WriteByte(' ')
			space = true
		}
	}
	return strings.TrimSpace(b.String())
}

// Tokens splits normalized text into words.
func Tokens(normalized string) []string {
	return strings.Fields(normalized)
}

// CountPhrase counts whole-word occurrences of phrase in tokens.
func CountPhrase(tokens []string, phrase string) int {
	words := Tokens(Normalize(phrase))
	if len(words) == 0 || len(words) > len(tokens) {
		return 0
	}
	count := 0
	for i := 0; i+len(words) <= len(tokens); i++ {
		match := true
		for j, w := range words {
			if tokens[i+j] != w {
				match = false
				break
			}
		}
		if match {
			count++
		}
	}
	return count
}

// ContainsAny reports whether any phrase occurs in tokens.
func ContainsAny(tokens []string, phrases []string) bool {
	for _, p := range phrases {
		if CountPhrase(tokens, p) > 0 {
			return true
		}
	}
	return false
}
