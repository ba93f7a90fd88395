package llm

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const passagePromptLimit = 500

const answerPromptTemplate = `You are an AI tutor helping students understand course material. Based on the provided context from course videos, answer the student's question clearly and concisely.

Student Question: %s

Course Context:
%s

Instructions:
1. Provide a clear, educational answer based on the context
2. If the context doesn't contain enough information, say so honestly
3. Include specific references to the course material when possible
4. Keep the answer focused and helpful for learning
5. Suggest related topics the student might want to explore

Answer:`

// BuildAnswerPrompt renders the tutor prompt with at most three passages,
// each cut to 500 characters.
func BuildAnswerPrompt(question string, passages []string) string {
	if len(passages) > 3 {
		passages = passages[:3]
	}

	parts := make([]string, 0, len(passages))
	for i, p := range passages {
		parts = append(parts, fmt.Sprintf("Content %d: %s...", i+1, Truncate(p, passagePromptLimit)))
	}

	return fmt.Sprintf(answerPromptTemplate, question, strings.Join(parts, "\n\n"))
}

func BuildFollowupPrompt(question, answer string) string {
	return fmt.Sprintf("Based on the question '%s' and this answer: '%s', suggest 3 related follow-up questions a student might ask:", question, answer)
}

// ParseFollowups splits a model reply into lines and strips list markers.
// Blank lines are dropped and at most limit entries are returned.
func ParseFollowups(content string, limit int) []string {
	var out []string
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimLeft(line, "1234567890.-)*• ")
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		out = append(out, line)
		if len(out) == limit {
			break
		}
	}
	return out
}

// Truncate cuts s to at most n runes.
func Truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}
