package generate

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	minKeywordLen = 2
	maxKeywordLen = 14
)

// ParseKeywords splits free text into keywords: runs of letters between 2
// and 14 characters long, each with its first letter upper-cased. Verses
// start with a capital, so keywords do too.
func ParseKeywords(text string) []string {
	title := cases.Title(language.Finnish, cases.NoLower)

	var keywords []string
	for _, word := range strings.FieldsFunc(text, func(r rune) bool { return !unicode.IsLetter(r) }) {
		n := utf8.RuneCountInString(word)
		if n < minKeywordLen || n > maxKeywordLen {
			continue
		}
		keywords = append(keywords, title.String(word))
	}
	return keywords
}
