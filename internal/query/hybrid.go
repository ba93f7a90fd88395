package query

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/instant-tutor/backend/internal/storage/models"
	"github.com/instant-tutor/backend/internal/vector"
)

var stopWords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "are": {}, "but": {}, "not": {}, "you": {}, "all": {},
	"any": {}, "can": {}, "had": {}, "her": {}, "was": {}, "one": {}, "our": {}, "out": {},
	"has": {}, "his": {}, "how": {}, "its": {}, "may": {}, "who": {}, "did": {}, "does": {},
	"what": {}, "when": {}, "where": {}, "which": {}, "why": {}, "with": {}, "this": {},
	"that": {}, "these": {}, "those": {}, "from": {}, "into": {}, "about": {}, "your": {},
	"have": {}, "there": {}, "their": {}, "they": {}, "them": {}, "then": {}, "than": {},
	"will": {}, "would": {}, "should": {}, "could": {}, "explain": {}, "please": {},
	"tell": {}, "between": {}, "some": {}, "more": {}, "also": {}, "been": {}, "being": {},
}

// Terms returns the distinct lowercase words of question that carry
// meaning: at least three characters and not a stop word.
func Terms(question string) []string {
	fields := strings.FieldsFunc(strings.ToLower(question), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	seen := make(map[string]struct{}, len(fields))
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		if utf8.RuneCountInString(f) < 3 {
			continue
		}
		if _, stop := stopWords[f]; stop {
			continue
		}
		if _, dup := seen[f]; dup {
			continue
		}
		seen[f] = struct{}{}
		terms = append(terms, f)
	}
	return terms
}

// KeywordScore is the fraction of terms found in text.
func KeywordScore(terms []string, text string) float64 {
	if len(terms) == 0 {
		return 0
	}
	lower := strings.ToLower(text)
	hits := 0
	for _, t := range terms {
		if strings.Contains(lower, t) {
			hits++
		}
	}
	return float64(hits) / float64(len(terms))
}

// Blend weights the semantic score by alpha and the keyword score by
// 1-alpha. Alpha 1 is pure semantic ranking, alpha 0 pure keyword.
func Blend(alpha, semantic, keyword float64) float64 {
	return clamp01(alpha*clamp01(semantic) + (1-alpha)*clamp01(keyword))
}

// Rank merges semantic hits and keyword candidates, scores every distinct
// chunk and returns the best topK.
func Rank(semantic []vector.Match, keyword []models.ContentChunk, terms []string, alpha float64, topK int) []Passage {
	byID := make(map[string]*Passage, len(semantic)+len(keyword))
	order := make([]string, 0, len(semantic)+len(keyword))

	for _, m := range semantic {
		id := m.ChunkID
		if id == "" {
			id = m.MediaLocator + "#" + m.Text
		}
		if p, ok := byID[id]; ok {
			if m.Score > p.SemanticScore {
				p.SemanticScore = m.Score
			}
			continue
		}
		byID[id] = &Passage{
			ChunkID:       id,
			Text:          m.Text,
			MediaLocator:  m.MediaLocator,
			Start:         m.StartTime,
			End:           m.EndTime,
			Topic:         m.Topic,
			SemanticScore: m.Score,
		}
		order = append(order, id)
	}

	for _, ch := range keyword {
		if _, ok := byID[ch.ID]; ok {
			continue
		}
		byID[ch.ID] = &Passage{
			ChunkID:      ch.ID,
			Text:         ch.Text,
			MediaLocator: ch.MediaLocator,
			Start:        ch.StartTime,
			End:          ch.EndTime,
			Topic:        ch.Topic,
		}
		order = append(order, ch.ID)
	}

	passages := make([]Passage, 0, len(order))
	for _, id := range order {
		p := byID[id]
		p.SemanticScore = clamp01(p.SemanticScore)
		p.KeywordScore = KeywordScore(terms, p.Text)
		p.Score = Blend(alpha, p.SemanticScore, p.KeywordScore)
		passages = append(passages, *p)
	}

	sort.SliceStable(passages, func(i, j int) bool {
		if passages[i].Score != passages[j].Score {
			return passages[i].Score > passages[j].Score
		}
		return passages[i].SemanticScore > passages[j].SemanticScore
	})

	if topK > 0 && len(passages) > topK {
		passages = passages[:topK]
	}
	return passages
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
