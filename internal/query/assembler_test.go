package query

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

var defaultScoring = Scoring{MaxConfidence: 0.95, FallbackPenalty: 0.7, FallbackFloor: 0.3}

func TestBaseConfidence(t *testing.T) {
	assert.Zero(t, BaseConfidence(nil, 0.95))

	passages := []Passage{{Score: 0.8}, {Score: 0.6}}
	assert.InDelta(t, 0.7, BaseConfidence(passages, 0.95), 1e-9)

	high := []Passage{{Score: 1}, {Score: 1}}
	assert.Equal(t, 0.95, BaseConfidence(high, 0.95))
}

func TestFallbackConfidence(t *testing.T) {
	assert.Equal(t, 0.3, defaultScoring.FallbackConfidence(0))
	assert.InDelta(t, 0.63, defaultScoring.FallbackConfidence(0.9), 1e-9)
	assert.Equal(t, 0.3, defaultScoring.FallbackConfidence(0.2))
}

func TestFallbackConfidenceNeverExceedsMax(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		s := Scoring{
			MaxConfidence:   rapid.Float64Range(0, 1).Draw(t, "max"),
			FallbackPenalty: rapid.Float64Range(0, 2).Draw(t, "penalty"),
			FallbackFloor:   rapid.Float64Range(0, 1).Draw(t, "floor"),
		}
		base := rapid.Float64Range(0, 1).Draw(t, "base")

		c := s.FallbackConfidence(base)
		if c < 0 || c > s.MaxConfidence {
			t.Fatalf("confidence %v outside [0,%v]", c, s.MaxConfidence)
		}
	})
}

func TestFallbackAnswerWithPassages(t *testing.T) {
	long := strings.Repeat("a", 600)
	passages := []Passage{
		{Text: long, Topic: "Derivatives"},
		{Text: "second", Topic: "Chain Rule"},
	}

	answer := FallbackAnswer("q?", passages)

	assert.True(t, strings.HasPrefix(answer,
		"Based on the course material, here's what I found related to your question:\n\n"+strings.Repeat("a", 400)+"..."))
	assert.True(t, strings.HasSuffix(answer,
		"\n\nAdditionally, you might want to review the section that discusses: Chain Rule"))
}

func TestFallbackAnswerSinglePassageUnlabelled(t *testing.T) {
	answer := FallbackAnswer("q?", []Passage{{Text: "short"}})
	assert.Equal(t, "Based on the course material, here's what I found related to your question:\n\nshort...", answer)
}

func TestFallbackAnswerWithoutPassages(t *testing.T) {
	answer := FallbackAnswer("What is entropy?", nil)
	assert.Equal(t, "I couldn't find specific information about 'What is entropy?' in the current course materials. "+
		"Please try rephrasing your question or contact your instructor for clarification.", answer)
}

func TestFormatSources(t *testing.T) {
	passages := []Passage{
		{Text: strings.Repeat("é", 200), MediaLocator: "v1.mp4", Start: 1, End: 2, Score: 0.123456, Topic: "Limits"},
		{Text: "short", MediaLocator: "v2.mp4", Score: 0.5},
		{Text: "third", Score: 0.4},
		{Text: "fourth", Score: 0.3},
	}

	sources := FormatSources(passages)
	require.Len(t, sources, 3)

	assert.Equal(t, 1, sources[0].ID)
	assert.Equal(t, strings.Repeat("é", 150)+"...", sources[0].ContentPreview)
	assert.Equal(t, "v1.mp4", sources[0].VideoPath)
	assert.Equal(t, Timestamp{Start: 1, End: 2}, sources[0].Timestamp)
	assert.Equal(t, 0.1235, sources[0].RelevanceScore)
	assert.Equal(t, "Limits", sources[0].Topic)

	assert.Equal(t, "short", sources[1].ContentPreview)
	assert.Equal(t, "General", sources[1].Topic)
	assert.Equal(t, 3, sources[2].ID)
}

func TestWithRelatedTopic(t *testing.T) {
	full := []string{"a", "b", "c"}
	got := WithRelatedTopic(full, "Derivatives", "Limits")
	assert.Equal(t, []string{"a", "b", "How does Derivatives relate to Limits?"}, got)
	assert.Equal(t, "c", full[2], "input must not be modified")

	short := WithRelatedTopic([]string{"a"}, "Derivatives", "Limits")
	assert.Equal(t, []string{"a", "How does Derivatives relate to Limits?"}, short)

	assert.Equal(t, full, WithRelatedTopic(full, "Derivatives", ""))
}
