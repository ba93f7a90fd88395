// Package evaluation replays a labelled question set through the query
// engine and scores the answers against reference answers.
package evaluation

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"go.uber.org/zap"

	"github.com/instant-tutor/backend/internal/query"
	"github.com/instant-tutor/backend/pkg/logger"
)

const (
	Irrelevant    = "irrelevant"
	Moderate      = "moderate"
	FullyRelevant = "fully_relevant"

	moderateThreshold = 0.5
	relevantThreshold = 0.8
)

type Answerer interface {
	Answer(ctx context.Context, req query.Request) (*query.Response, error)
}

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type Evaluator struct {
	engine   Answerer
	embedder Embedder
}

type Dataset struct {
	Items []DatasetItem `json:"items"`
}

type DatasetItem struct {
	Query          string `json:"query"`
	CourseID       string `json:"course_id"`
	ExpectedAnswer string `json:"expected_answer"`
	ExpectedTopic  string `json:"expected_topic,omitempty"`
}

// Result scores one answered item.
type Result struct {
	Query          string  `json:"query"`
	Similarity     float64 `json:"similarity"`
	Confidence     float64 `json:"confidence"`
	TopicHit       bool    `json:"topic_hit"`
	Classification string  `json:"classification"`
	Error          string  `json:"error,omitempty"`
}

type Report struct {
	TotalQueries            int      `json:"total_queries"`
	FailedQueries           int      `json:"failed_queries"`
	IrrelevantCount         int      `json:"irrelevant_count"`
	ModerateCount           int      `json:"moderate_count"`
	FullyRelevantCount      int      `json:"fully_relevant_count"`
	TopicHits               int      `json:"topic_hits"`
	AvgSimilarity           float64  `json:"avg_similarity"`
	AvgConfidence           float64  `json:"avg_confidence"`
	IrrelevantPercentage    float64  `json:"irrelevant_percentage"`
	ModeratePercentage      float64  `json:"moderate_percentage"`
	FullyRelevantPercentage float64  `json:"fully_relevant_percentage"`
	Results                 []Result `json:"results"`
}

// NewEvaluator scores with embedding cosine similarity when an embedder is
// given and with term overlap otherwise.
func NewEvaluator(engine Answerer, embedder Embedder) *Evaluator {
	return &Evaluator{
		engine:   engine,
		embedder: embedder,
	}
}

func LoadDataset(data []byte) (*Dataset, error) {
	var dataset Dataset
	if err := json.Unmarshal(data, &dataset); err != nil {
		return nil, fmt.Errorf("failed to unmarshal dataset: %w", err)
	}
	if len(dataset.Items) == 0 {
		return nil, fmt.Errorf("dataset has no items")
	}
	return &dataset, nil
}

// Run answers every item in order. Items whose query fails count as
// failed and irrelevant; Run only returns an error when ctx ends.
func (e *Evaluator) Run(ctx context.Context, dataset *Dataset) (*Report, error) {
	logger.Info("Running dataset evaluation", zap.Int("items", len(dataset.Items)))

	report := &Report{TotalQueries: len(dataset.Items)}
	var totalSimilarity, totalConfidence float64

	for i, item := range dataset.Items {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		res := e.evaluate(ctx, item)
		if res.Error != "" {
			logger.Warn("Evaluation item failed", zap.Int("index", i), zap.String("error", res.Error))
			report.FailedQueries++
		}

		switch res.Classification {
		case Irrelevant:
			report.IrrelevantCount++
		case Moderate:
			report.ModerateCount++
		case FullyRelevant:
			report.FullyRelevantCount++
		}
		if res.TopicHit {
			report.TopicHits++
		}

		totalSimilarity += res.Similarity
		totalConfidence += res.Confidence
		report.Results = append(report.Results, res)
	}

	if n := float64(report.TotalQueries); n > 0 {
		report.AvgSimilarity = totalSimilarity / n
		report.AvgConfidence = totalConfidence / n
		report.IrrelevantPercentage = float64(report.IrrelevantCount) / n * 100
		report.ModeratePercentage = float64(report.ModerateCount) / n * 100
		report.FullyRelevantPercentage = float64(report.FullyRelevantCount) / n * 100
	}

	logger.Info("Dataset evaluation completed",
		zap.Int("total", report.TotalQueries),
		zap.Int("irrelevant", report.IrrelevantCount),
		zap.Int("moderate", report.ModerateCount),
		zap.Int("fully_relevant", report.FullyRelevantCount),
	)

	return report, nil
}

func (e *Evaluator) evaluate(ctx context.Context, item DatasetItem) Result {
	res := Result{Query: item.Query, Classification: Irrelevant}

	resp, err := e.engine.Answer(ctx, query.Request{Query: item.Query, CourseID: item.CourseID})
	if err != nil {
		res.Error = err.Error()
		return res
	}

	res.Confidence = resp.Confidence
	if item.ExpectedTopic != "" && len(resp.Sources) > 0 {
		res.TopicHit = strings.EqualFold(resp.Sources[0].Topic, item.ExpectedTopic)
	}

	res.Similarity, err = e.similarity(ctx, resp.Answer, item.ExpectedAnswer)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	res.Classification = classify(res.Similarity)
	return res
}

func (e *Evaluator) similarity(ctx context.Context, answer, expected string) (float64, error) {
	if e.embedder == nil {
		return termOverlap(answer, expected), nil
	}

	a, err := e.embedder.Embed(ctx, answer)
	if err != nil {
		return 0, fmt.Errorf("failed to embed answer: %w", err)
	}
	b, err := e.embedder.Embed(ctx, expected)
	if err != nil {
		return 0, fmt.Errorf("failed to embed reference answer: %w", err)
	}
	return cosineSimilarity(a, b), nil
}

func classify(similarity float64) string {
	switch {
	case similarity >= relevantThreshold:
		return FullyRelevant
	case similarity >= moderateThreshold:
		return Moderate
	default:
		return Irrelevant
	}
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

// termOverlap is the Jaccard index of the content terms of a and b.
func termOverlap(a, b string) float64 {
	ta, tb := query.Terms(a), query.Terms(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}

	set := make(map[string]struct{}, len(ta))
	for _, t := range ta {
		set[t] = struct{}{}
	}
	shared := 0
	for _, t := range tb {
		if _, ok := set[t]; ok {
			shared++
		}
	}
	return float64(shared) / float64(len(ta)+len(tb)-shared)
}

func FormatReport(report *Report) string {
	return fmt.Sprintf(`
Evaluation Report
=================

Total Queries: %d (failed: %d)

Classifications:
- Irrelevant: %d (%.1f%%)
- Moderately Relevant: %d (%.1f%%)
- Fully Relevant: %d (%.1f%%)

Top Source Topic Hits: %d
Average Similarity: %.3f
Average Confidence: %.3f
`,
		report.TotalQueries, report.FailedQueries,
		report.IrrelevantCount, report.IrrelevantPercentage,
		report.ModerateCount, report.ModeratePercentage,
		report.FullyRelevantCount, report.FullyRelevantPercentage,
		report.TopicHits,
		report.AvgSimilarity,
		report.AvgConfidence,
	)
}
