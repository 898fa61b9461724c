package ngram

import (
	"regexp"
	"strings"

	"github.com/Paranoid-AF/runo/verse"
)

var (
	trailingSpace = regexp.MustCompile(`(?m)[ \t]+$`)
	blankRuns     = regexp.MustCompile(`\n{3,}`)
)

// NormalizeCorpus prepares raw verse text for training: it drops a byte
// order mark and carriage returns, strips trailing whitespace from every
// line, folds runs of blank lines into a single blank line and trims line
// breaks from both ends.
func NormalizeCorpus(text string) string {
	text = strings.TrimPrefix(text, "\ufeff")
	text = strings.ReplaceAll(text, "\r", "")
	text = trailingSpace.ReplaceAllString(text, "")
	text = blankRuns.ReplaceAllString(text, "\n\n")
	return strings.Trim(text, "\n")
}

// BuildVocabulary assigns token ids to the distinct characters of text in
// order of first appearance. Line break and space always get ids 0 and 1.
func BuildVocabulary(text string) (*verse.Vocabulary, error) {
	char2idx := map[string]int{"\n": 0, " ": 1}
	for _, r := range text {
		if _, ok := char2idx[string(r)]; !ok {
			char2idx[string(r)] = len(char2idx)
		}
	}
	return verse.NewVocabulary(char2idx)
}
