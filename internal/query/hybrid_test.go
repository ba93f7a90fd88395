package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/instant-tutor/backend/internal/storage/models"
	"github.com/instant-tutor/backend/internal/vector"
)

func TestTermsDropsStopWordsAndDuplicates(t *testing.T) {
	terms := Terms("What is the derivative of a derivative, and why?")
	assert.Equal(t, []string{"derivative"}, terms)

	terms = Terms("Explain Newton's second law of motion")
	assert.Equal(t, []string{"newton", "second", "law", "motion"}, terms)
}

func TestKeywordScore(t *testing.T) {
	terms := []string{"derivative", "power", "rule"}

	assert.InDelta(t, 1.0, KeywordScore(terms, "The POWER rule gives the derivative"), 1e-9)
	assert.InDelta(t, 1.0/3, KeywordScore(terms, "a derivative"), 1e-9)
	assert.Zero(t, KeywordScore(terms, "unrelated"))
	assert.Zero(t, KeywordScore(nil, "anything"))
}

func TestBlendExtremes(t *testing.T) {
	assert.Equal(t, 0.8, Blend(1, 0.8, 0.1))
	assert.Equal(t, 0.1, Blend(0, 0.8, 0.1))
	assert.InDelta(t, 0.45, Blend(0.5, 0.8, 0.1), 1e-9)
}

func TestRankMergesAndOrders(t *testing.T) {
	semantic := []vector.Match{
		{ChunkID: "a", Text: "limits and continuity", Score: 0.9, Topic: "Limits"},
		{ChunkID: "b", Text: "the derivative power rule", Score: 0.6, Topic: "Derivatives"},
	}
	keyword := []models.ContentChunk{
		{ID: "b", Text: "the derivative power rule"},
		{ID: "c", Text: "derivative of a power", Topic: "Derivatives"},
	}
	terms := []string{"derivative", "power"}

	passages := Rank(semantic, keyword, terms, 0.5, 3)
	require.Len(t, passages, 3)

	assert.Equal(t, "b", passages[0].ChunkID)
	assert.InDelta(t, 0.8, passages[0].Score, 1e-9)
	assert.Equal(t, "c", passages[1].ChunkID)
	assert.InDelta(t, 0.5, passages[1].Score, 1e-9)
	assert.Equal(t, "a", passages[2].ChunkID)
	assert.InDelta(t, 0.45, passages[2].Score, 1e-9)
}

func TestRankPureSemanticKeepsVectorOrder(t *testing.T) {
	semantic := []vector.Match{
		{ChunkID: "a", Text: "x", Score: 0.9},
		{ChunkID: "b", Text: "derivative", Score: 0.5},
	}
	passages := Rank(semantic, nil, []string{"derivative"}, 1, 1)

	require.Len(t, passages, 1)
	assert.Equal(t, "a", passages[0].ChunkID)
}

func TestRankScoresStayInUnitInterval(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(0, 10).Draw(t, "n")
		alpha := rapid.Float64Range(0, 1).Draw(t, "alpha")

		semantic := make([]vector.Match, n)
		for i := range semantic {
			semantic[i] = vector.Match{
				ChunkID: rapid.StringMatching(`[a-f]{1,3}`).Draw(t, "id"),
				Text:    rapid.String().Draw(t, "text"),
				Score:   rapid.Float64Range(-2, 2).Draw(t, "score"),
			}
		}

		passages := Rank(semantic, nil, []string{"derivative"}, alpha, 3)
		if len(passages) > 3 {
			t.Fatalf("got %d passages, want at most 3", len(passages))
		}
		for i, p := range passages {
			if p.Score < 0 || p.Score > 1 {
				t.Fatalf("score %v outside [0,1]", p.Score)
			}
			if i > 0 && passages[i-1].Score < p.Score {
				t.Fatalf("passages not sorted by score")
			}
		}
	})
}
