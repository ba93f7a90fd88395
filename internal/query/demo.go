package query

import (
	"fmt"
	"strings"
)

type demoEntry struct {
	keywords   []string
	answer     string
	confidence float64
	source     Source
	followups  []string
}

// demoTable is checked in order; the first entry with a keyword contained
// in the lowercased question wins.
var demoTable = []demoEntry{
	{
		keywords:   []string{"derivative", "calculus", "x²", "x squared"},
		answer:     "The derivative of x² is 2x. This follows from the power rule: d/dx(x^n) = nx^(n-1). For x², we get 2x^(2-1) = 2x. This is a fundamental concept in calculus that you'll use throughout your studies.",
		confidence: 0.95,
		source: Source{
			ID:             1,
			ContentPreview: "Power rule for derivatives: d/dx(x^n) = nx^(n-1)...",
			VideoPath:      "lectures/derivatives.mp4",
			Timestamp:      Timestamp{Start: 120, End: 180},
			RelevanceScore: 0.92,
			Topic:          "Derivatives",
		},
		followups: []string{
			"What is the derivative of x³?",
			"How do I find the derivative of more complex functions?",
			"What is the chain rule in calculus?",
		},
	},
	{
		keywords:   []string{"newton", "force", "physics", "f=ma"},
		answer:     "Newton's second law states that F = ma, where F is force, m is mass, and a is acceleration. This fundamental law relates the motion of an object to the forces acting upon it.",
		confidence: 0.90,
		source: Source{
			ID:             1,
			ContentPreview: "Newton's laws of motion form the foundation of classical mechanics...",
			VideoPath:      "lectures/newton_laws.mp4",
			Timestamp:      Timestamp{Start: 45, End: 120},
			RelevanceScore: 0.88,
			Topic:          "Newton's Laws",
		},
		followups: []string{
			"What are Newton's other laws?",
			"How do I apply F=ma to solve problems?",
			"What is the difference between mass and weight?",
		},
	},
	{
		keywords:   []string{"periodic", "table", "chemistry", "element"},
		answer:     "The periodic table is organized by atomic number and shows periodic trends in properties. Elements in the same group have similar chemical properties due to their valence electron configuration.",
		confidence: 0.88,
		source: Source{
			ID:             1,
			ContentPreview: "The periodic table arranges elements by atomic number and reveals periodic trends...",
			VideoPath:      "lectures/periodic_table.mp4",
			Timestamp:      Timestamp{Start: 30, End: 90},
			RelevanceScore: 0.85,
			Topic:          "Periodic Table",
		},
		followups: []string{
			"What are the main groups in the periodic table?",
			"How do atomic radius and electronegativity change across periods?",
			"What is the significance of valence electrons?",
		},
	},
}

const demoGenericConfidence = 0.75

var demoGenericFollowups = []string{
	"Can you provide more details about this topic?",
	"What are some practical examples?",
	"How does this relate to other concepts in the course?",
}

// DemoAnswer answers from the fixed lookup table. ResponseTime is left to
// the caller.
func DemoAnswer(question, courseID string) *Response {
	lower := strings.ToLower(question)

	for _, entry := range demoTable {
		for _, kw := range entry.keywords {
			if strings.Contains(lower, kw) {
				return &Response{
					Answer:             entry.answer,
					Sources:            []Source{entry.source},
					Confidence:         entry.confidence,
					SuggestedFollowups: append([]string(nil), entry.followups...),
				}
			}
		}
	}

	return &Response{
		Answer: fmt.Sprintf("Based on your question about '%s' in course %s, here's what I found: "+
			"This is a demo response showing how the AI tutor would provide instant, intelligent answers to your questions. "+
			"In the full implementation, this would be powered by vector database search and advanced AI models.",
			question, courseID),
		Sources: []Source{{
			ID:             1,
			ContentPreview: fmt.Sprintf("Demo content related to '%s' in %s...", question, courseID),
			VideoPath:      "demo_video.mp4",
			Timestamp:      Timestamp{Start: 0, End: 300},
			RelevanceScore: 0.70,
			Topic:          "General",
		}},
		Confidence:         demoGenericConfidence,
		SuggestedFollowups: append([]string(nil), demoGenericFollowups...),
	}
}
