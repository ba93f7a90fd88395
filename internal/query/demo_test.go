package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDemoAnswerMatchesTopicTables(t *testing.T) {
	tests := []struct {
		question   string
		topic      string
		confidence float64
		contains   string
	}{
		{"What is the derivative of x squared?", "Derivatives", 0.95, "The derivative of x² is 2x."},
		{"Explain CALCULUS limits", "Derivatives", 0.95, "power rule"},
		{"State Newton's second law", "Newton's Laws", 0.90, "F = ma"},
		{"What is a net force?", "Newton's Laws", 0.90, "F = ma"},
		{"How is the periodic table organised?", "Periodic Table", 0.88, "atomic number"},
		{"Which element is a noble gas?", "Periodic Table", 0.88, "valence electron"},
	}

	for _, tt := range tests {
		t.Run(tt.question, func(t *testing.T) {
			resp := DemoAnswer(tt.question, "COURSE_1")

			require.Len(t, resp.Sources, 1)
			assert.Equal(t, tt.topic, resp.Sources[0].Topic)
			assert.Equal(t, tt.confidence, resp.Confidence)
			assert.Contains(t, resp.Answer, tt.contains)
			assert.Len(t, resp.SuggestedFollowups, 3)
		})
	}
}

func TestDemoAnswerPrefersEarlierTable(t *testing.T) {
	resp := DemoAnswer("derivative of the force function", "PHYS_1")
	assert.Equal(t, "Derivatives", resp.Sources[0].Topic)
}

func TestDemoAnswerGenericTemplate(t *testing.T) {
	resp := DemoAnswer("Tell me about photosynthesis", "BIO_201")

	assert.Contains(t, resp.Answer, "Based on your question about 'Tell me about photosynthesis' in course BIO_201")
	assert.Equal(t, 0.75, resp.Confidence)
	require.Len(t, resp.Sources, 1)
	assert.Equal(t, "demo_video.mp4", resp.Sources[0].VideoPath)
	assert.Equal(t, "General", resp.Sources[0].Topic)
	assert.Equal(t, Timestamp{Start: 0, End: 300}, resp.Sources[0].Timestamp)
}

func TestDemoAnswerReturnsIndependentFollowups(t *testing.T) {
	first := DemoAnswer("derivative", "M")
	first.SuggestedFollowups[0] = "changed"

	second := DemoAnswer("derivative", "M")
	assert.Equal(t, "What is the derivative of x³?", second.SuggestedFollowups[0])
}
