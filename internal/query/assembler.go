package query

import (
	"fmt"
	"math"
	"strings"

	"github.com/instant-tutor/backend/internal/kg/builder"
	"github.com/instant-tutor/backend/internal/llm"
)

const (
	fallbackExcerptLength = 400
	previewLength         = 150
	maxSources            = 3
	maxFollowups          = 3
)

var fallbackFollowups = []string{
	"Can you provide more details about this topic?",
	"What are some practical examples of this concept?",
	"How does this relate to other topics in the course?",
}

// Scoring bounds the confidence the assembler reports.
type Scoring struct {
	MaxConfidence   float64
	FallbackPenalty float64
	FallbackFloor   float64
}

// BaseConfidence is the mean blended score of the passages, capped at
// maxConfidence. It is 0 when nothing matched.
func BaseConfidence(passages []Passage, maxConfidence float64) float64 {
	if len(passages) == 0 {
		return 0
	}
	sum := 0.0
	for _, p := range passages {
		sum += clamp01(p.Score)
	}
	return math.Min(sum/float64(len(passages)), clamp01(maxConfidence))
}

// FallbackConfidence discounts base for a template answer, never dropping
// below floor nor exceeding maxConfidence.
func (s Scoring) FallbackConfidence(base float64) float64 {
	maxConf := clamp01(s.MaxConfidence)
	c := math.Max(base*s.FallbackPenalty, s.FallbackFloor)
	return math.Min(clamp01(c), maxConf)
}

// FallbackAnswer quotes the top passage when generation is unavailable.
func FallbackAnswer(question string, passages []Passage) string {
	if len(passages) == 0 {
		return fmt.Sprintf("I couldn't find specific information about '%s' in the current course materials. "+
			"Please try rephrasing your question or contact your instructor for clarification.", question)
	}

	var b strings.Builder
	b.WriteString("Based on the course material, here's what I found related to your question:\n\n")
	b.WriteString(llm.Truncate(passages[0].Text, fallbackExcerptLength))
	b.WriteString("...")

	if len(passages) > 1 {
		b.WriteString("\n\nAdditionally, you might want to review the section that discusses: ")
		b.WriteString(topicOrDefault(passages[1].Topic))
	}
	return b.String()
}

// FallbackFollowups returns a fresh copy of the generic suggestions.
func FallbackFollowups() []string {
	return append([]string(nil), fallbackFollowups...)
}

// FormatSources cites up to three passages.
func FormatSources(passages []Passage) []Source {
	n := len(passages)
	if n > maxSources {
		n = maxSources
	}

	sources := make([]Source, 0, n)
	for i := 0; i < n; i++ {
		p := passages[i]
		preview := p.Text
		if len([]rune(preview)) > previewLength {
			preview = llm.Truncate(preview, previewLength) + "..."
		}
		sources = append(sources, Source{
			ID:             i + 1,
			ContentPreview: preview,
			VideoPath:      p.MediaLocator,
			Timestamp:      Timestamp{Start: p.Start, End: p.End},
			RelevanceScore: round(clamp01(p.Score), 4),
			Topic:          topicOrDefault(p.Topic),
		})
	}
	return sources
}

// WithRelatedTopic puts a question linking topic to related into the last
// follow-up slot, keeping at most three entries.
func WithRelatedTopic(followups []string, topic, related string) []string {
	if topic == "" || related == "" {
		return followups
	}
	q := fmt.Sprintf("How does %s relate to %s?", topic, related)

	out := append([]string(nil), followups...)
	if len(out) > maxFollowups {
		out = out[:maxFollowups]
	}
	if len(out) == maxFollowups {
		out[maxFollowups-1] = q
	} else {
		out = append(out, q)
	}
	return out
}

func topicOrDefault(topic string) string {
	if strings.TrimSpace(topic) == "" {
		return builder.DefaultTopic
	}
	return topic
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
