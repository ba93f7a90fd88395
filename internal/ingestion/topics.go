package ingestion

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/jdkato/prose/v2"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/instant-tutor/backend/internal/kg/builder"
)

var topicStopWords = map[string]bool{
	"thing": true, "things": true, "way": true, "lot": true, "lots": true,
	"today": true, "time": true, "something": true, "anything": true,
	"everything": true, "example": true, "examples": true, "video": true,
	"lecture": true, "class": true, "okay": true, "kind": true, "part": true,
}

// LabelTopic names the subject of a chunk by its most frequent noun.
// Ties go to the noun seen first. Text without a usable noun is labelled
// builder.DefaultTopic.
func LabelTopic(text string) string {
	if strings.TrimSpace(text) == "" {
		return builder.DefaultTopic
	}

	doc, err := prose.NewDocument(text,
		prose.WithSegmentation(false),
		prose.WithExtraction(false),
	)
	if err != nil {
		return builder.DefaultTopic
	}

	counts := make(map[string]int)
	var order []string
	for _, tok := range doc.Tokens() {
		if !strings.HasPrefix(tok.Tag, "NN") {
			continue
		}
		word := strings.ToLower(strings.TrimFunc(tok.Text, func(r rune) bool {
			return !unicode.IsLetter(r)
		}))
		if utf8.RuneCountInString(word) < 3 || topicStopWords[word] || !isAlpha(word) {
			continue
		}
		if counts[word] == 0 {
			order = append(order, word)
		}
		counts[word]++
	}

	best, bestCount := "", 0
	for _, w := range order {
		if counts[w] > bestCount {
			best, bestCount = w, counts[w]
		}
	}
	if best == "" {
		return builder.DefaultTopic
	}
	return cases.Title(language.English).String(best)
}

func isAlpha(s string) bool {
	for _, r := range s {
		if !unicode.IsLetter(r) && r != '-' {
			return false
		}
	}
	return true
}
