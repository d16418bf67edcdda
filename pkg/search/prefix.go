package search

import (
	"sort"
	"strings"
	"unicode"
)

// minPrefixLength is the shortest prefix worth indexing.
const minPrefixLength = 3

// SplitWords breaks free text into index tokens: whitespace and punctuation
// separate words, and CamelCase words additionally split on case boundaries
// so PaperButton yields paper and button too.
func SplitWords(text string) []string {
	var words []string
	for _, word := range strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		words = append(words, strings.ToLower(word))
		for _, part := range splitCamelCase(word) {
			if part != strings.ToLower(word) {
				words = append(words, part)
			}
		}
	}
	return words
}

func splitCamelCase(word string) []string {
	var parts []string
	start := 0
	runes := []rune(word)
	for i := 1; i < len(runes); i++ {
		if unicode.IsUpper(runes[i]) && !unicode.IsUpper(runes[i-1]) {
			parts = append(parts, strings.ToLower(string(runes[start:i])))
			start = i
		}
	}
	if start > 0 {
		parts = append(parts, strings.ToLower(string(runes[start:])))
	}
	return parts
}

// Prefixes expands words into every prefix of at least three characters,
// deduplicated and sorted so identical inputs always produce identical
// documents.
func Prefixes(words []string) []string {
	seen := map[string]bool{}
	for _, word := range words {
		for length := minPrefixLength; length <= len(word); length++ {
			seen[word[:length]] = true
		}
	}

	prefixes := make([]string, 0, len(seen))
	for prefix := range seen {
		prefixes = append(prefixes, prefix)
	}
	sort.Strings(prefixes)
	return prefixes
}
