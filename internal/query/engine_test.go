package query

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/instant-tutor/backend/internal/apperr"
	"github.com/instant-tutor/backend/internal/storage/models"
	"github.com/instant-tutor/backend/internal/vector"
	"github.com/instant-tutor/backend/pkg/config"
)

type fakeEmbedder struct {
	calls int
	err   error
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

type fakeSearcher struct {
	matches []vector.Match
	err     error
	calls   int
	course  string
}

func (f *fakeSearcher) Search(ctx context.Context, embedding []float32, courseID string, topK int) ([]vector.Match, error) {
	f.calls++
	f.course = courseID
	if f.err != nil {
		return nil, f.err
	}
	return f.matches, nil
}

type fakeGenerator struct {
	answer      string
	err         error
	followups   []string
	followupErr error
	passages    []string
}

func (f *fakeGenerator) GenerateAnswer(ctx context.Context, question string, passages []string) (string, error) {
	f.passages = passages
	if f.err != nil {
		return "", f.err
	}
	return f.answer, nil
}

func (f *fakeGenerator) SuggestFollowups(ctx context.Context, question, answer string) ([]string, error) {
	if f.followupErr != nil {
		return nil, f.followupErr
	}
	return f.followups, nil
}

type fakeChunks struct {
	chunks []models.ContentChunk
	err    error
}

func (f *fakeChunks) SearchChunksByTerms(ctx context.Context, courseID string, terms []string, limit int) ([]models.ContentChunk, error) {
	return f.chunks, f.err
}

type fakeLogs struct {
	logs []models.QueryLog
	err  error
}

func (f *fakeLogs) InsertQueryLog(ctx context.Context, log *models.QueryLog) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.logs = append(f.logs, *log)
	return int64(len(f.logs)), nil
}

type fakeCache struct {
	answers    map[string][]byte
	embeddings map[string][]float32
}

func newFakeCache() *fakeCache {
	return &fakeCache{answers: map[string][]byte{}, embeddings: map[string][]float32{}}
}

func (f *fakeCache) GetAnswer(ctx context.Context, courseID, key string, out any) (bool, error) {
	data, ok := f.answers[courseID+":"+key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(data, out)
}

func (f *fakeCache) SetAnswer(ctx context.Context, courseID, key string, answer any, ttl time.Duration) error {
	data, err := json.Marshal(answer)
	if err != nil {
		return err
	}
	f.answers[courseID+":"+key] = data
	return nil
}

func (f *fakeCache) GetEmbedding(ctx context.Context, textHash string) ([]float32, bool, error) {
	emb, ok := f.embeddings[textHash]
	return emb, ok, nil
}

func (f *fakeCache) SetEmbedding(ctx context.Context, textHash string, embedding []float32, ttl time.Duration) error {
	f.embeddings[textHash] = embedding
	return nil
}

type fakeGraph struct {
	related []string
}

func (f *fakeGraph) RelatedTopics(ctx context.Context, courseID, topic string, limit int) ([]string, error) {
	return f.related, nil
}

func integratedDeps() Deps {
	return Deps{
		Mode:    config.ModeIntegrated,
		Scoring: defaultScoring,
		TopK:    3,
		Alpha:   0.75,
	}
}

var derivativeMatches = []vector.Match{
	{ChunkID: "c1", Text: "The power rule says the derivative of x^n is n x^(n-1).", MediaLocator: "lec1.mp4", StartTime: 10, EndTime: 70, Topic: "Derivatives", Score: 0.9},
	{ChunkID: "c2", Text: "Limits describe behaviour near a point.", MediaLocator: "lec1.mp4", StartTime: 70, EndTime: 130, Topic: "Limits", Score: 0.7},
}

func TestAnswerDemoDerivativeExample(t *testing.T) {
	logs := &fakeLogs{}
	engine := NewEngine(Deps{Mode: config.ModeDemo, Logs: logs})

	resp, err := engine.Answer(context.Background(), Request{
		Query:    "What is the derivative of x squared?",
		CourseID: "MATH_101",
	})
	require.NoError(t, err)

	assert.Contains(t, resp.Answer, "derivative of x²")
	require.NotEmpty(t, resp.Sources)
	assert.Equal(t, "Derivatives", resp.Sources[0].Topic)
	assert.Equal(t, int64(1), resp.QueryID)

	require.Len(t, logs.logs, 1)
	assert.Equal(t, "MATH_101", logs.logs[0].CourseID)
	assert.Equal(t, config.ModeDemo, logs.logs[0].Mode)
	assert.Equal(t, resp.Answer, logs.logs[0].ResponseText)
}

func TestAnswerRejectsInvalidRequests(t *testing.T) {
	engine := NewEngine(Deps{Mode: config.ModeDemo})

	tests := []struct {
		name string
		req  Request
	}{
		{"short query", Request{Query: "abcd", CourseID: "C"}},
		{"long query", Request{Query: strings.Repeat("q", 501), CourseID: "C"}},
		{"missing course", Request{Query: "valid question"}},
		{"long course", Request{Query: "valid question", CourseID: strings.Repeat("c", 101)}},
		{"null bytes do not count", Request{Query: "ab\x00\x00\x00", CourseID: "C"}},
		{"blank query", Request{Query: "   \x00   ", CourseID: "C"}},
		{"alpha out of range", Request{Query: "valid question", CourseID: "C", Context: map[string]any{"alpha": 1.5}}},
		{"alpha not a number", Request{Query: "valid question", CourseID: "C", Context: map[string]any{"alpha": "high"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := engine.Answer(context.Background(), tt.req)
			require.Error(t, err)
			assert.True(t, apperr.Is(err, apperr.KindValidation))
		})
	}
}

func TestAnswerCountsSurroundingWhitespace(t *testing.T) {
	logs := &fakeLogs{}
	engine := NewEngine(Deps{Mode: config.ModeDemo, Logs: logs})

	_, err := engine.Answer(context.Background(), Request{Query: "  abcd ", CourseID: "C"})
	require.NoError(t, err)
	require.Len(t, logs.logs, 1)
	assert.Equal(t, "abcd", logs.logs[0].QueryText)
}

func TestAnswerQueryLengthBoundary(t *testing.T) {
	engine := NewEngine(Deps{Mode: config.ModeDemo})

	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(0, 600).Draw(t, "length")
		q := strings.Repeat("ü", n)

		_, err := engine.Answer(context.Background(), Request{Query: q, CourseID: "C"})
		valid := n >= 5 && n <= 500
		if valid && err != nil {
			t.Fatalf("length %d rejected: %v", n, err)
		}
		if !valid && !apperr.Is(err, apperr.KindValidation) {
			t.Fatalf("length %d: want validation error, got %v", n, err)
		}
	})
}

func TestAnswerIntegratedGenerates(t *testing.T) {
	deps := integratedDeps()
	searcher := &fakeSearcher{matches: derivativeMatches}
	gen := &fakeGenerator{answer: "Use the power rule.", followups: []string{"f1", "f2", "f3"}}
	logs := &fakeLogs{}
	deps.Embedder = &fakeEmbedder{}
	deps.Searcher = searcher
	deps.Generator = gen
	deps.Logs = logs

	resp, err := NewEngine(deps).Answer(context.Background(), Request{
		Query:    "How does the power rule for derivatives work?",
		CourseID: "MATH_101",
		UserID:   "student-1",
	})
	require.NoError(t, err)

	assert.Equal(t, "MATH_101", searcher.course)
	assert.Equal(t, "Use the power rule.", resp.Answer)
	assert.Equal(t, []string{"f1", "f2", "f3"}, resp.SuggestedFollowups)
	require.Len(t, resp.Sources, 2)
	assert.Equal(t, "Derivatives", resp.Sources[0].Topic)
	assert.Equal(t, "lec1.mp4", resp.Sources[0].VideoPath)
	assert.Len(t, gen.passages, 2)
	assert.Greater(t, resp.Confidence, 0.0)
	assert.LessOrEqual(t, resp.Confidence, 0.95)
	assert.Equal(t, int64(1), resp.QueryID)
	assert.Equal(t, "student-1", logs.logs[0].UserID)
	assert.Equal(t, config.ModeIntegrated, logs.logs[0].Mode)
}

func TestAnswerIntegratedFallsBackWhenGenerationFails(t *testing.T) {
	deps := integratedDeps()
	deps.Embedder = &fakeEmbedder{}
	deps.Searcher = &fakeSearcher{matches: derivativeMatches}
	deps.Generator = &fakeGenerator{err: errors.New("service down")}

	resp, err := NewEngine(deps).Answer(context.Background(), Request{
		Query:    "How does the power rule for derivatives work?",
		CourseID: "MATH_101",
	})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(resp.Answer, "Based on the course material, here's what I found related to your question:"))
	assert.Contains(t, resp.Answer, "discusses: Limits")
	assert.Equal(t, FallbackFollowups(), resp.SuggestedFollowups)
	assert.GreaterOrEqual(t, resp.Confidence, 0.3)
	assert.LessOrEqual(t, resp.Confidence, 0.95)
}

func TestAnswerIntegratedKeepsAnswerWhenFollowupsFail(t *testing.T) {
	deps := integratedDeps()
	deps.Embedder = &fakeEmbedder{}
	deps.Searcher = &fakeSearcher{matches: derivativeMatches}
	deps.Generator = &fakeGenerator{answer: "generated", followupErr: errors.New("timeout")}

	resp, err := NewEngine(deps).Answer(context.Background(), Request{Query: "power rule please", CourseID: "M"})
	require.NoError(t, err)

	assert.Equal(t, "generated", resp.Answer)
	assert.Equal(t, FallbackFollowups(), resp.SuggestedFollowups)
}

func TestAnswerIntegratedWithoutMatches(t *testing.T) {
	deps := integratedDeps()
	gen := &fakeGenerator{answer: "should not be used"}
	deps.Embedder = &fakeEmbedder{}
	deps.Searcher = &fakeSearcher{}
	deps.Generator = gen

	resp, err := NewEngine(deps).Answer(context.Background(), Request{Query: "What is entropy?", CourseID: "PHY"})
	require.NoError(t, err)

	assert.Equal(t, FallbackAnswer("What is entropy?", nil), resp.Answer)
	assert.Equal(t, 0.3, resp.Confidence)
	assert.Empty(t, resp.Sources)
	assert.Nil(t, gen.passages)
}

func TestAnswerIntegratedWithoutVectorStore(t *testing.T) {
	resp, err := NewEngine(integratedDeps()).Answer(context.Background(), Request{Query: "What is entropy?", CourseID: "PHY"})
	require.NoError(t, err)

	assert.Contains(t, resp.Answer, "couldn't find specific information")
	assert.Empty(t, resp.Sources)
}

func TestAnswerIntegratedUpstreamFailures(t *testing.T) {
	t.Run("search", func(t *testing.T) {
		deps := integratedDeps()
		deps.Embedder = &fakeEmbedder{}
		deps.Searcher = &fakeSearcher{err: errors.New("connection refused")}

		_, err := NewEngine(deps).Answer(context.Background(), Request{Query: "What is entropy?", CourseID: "PHY"})
		assert.True(t, apperr.Is(err, apperr.KindUpstream))
	})

	t.Run("embedding", func(t *testing.T) {
		deps := integratedDeps()
		deps.Embedder = &fakeEmbedder{err: errors.New("quota")}
		deps.Searcher = &fakeSearcher{}

		_, err := NewEngine(deps).Answer(context.Background(), Request{Query: "What is entropy?", CourseID: "PHY"})
		assert.True(t, apperr.Is(err, apperr.KindUpstream))
	})
}

func TestAnswerKeywordCandidatesAndAlpha(t *testing.T) {
	deps := integratedDeps()
	deps.Embedder = &fakeEmbedder{}
	deps.Searcher = &fakeSearcher{matches: []vector.Match{
		{ChunkID: "sem", Text: "unrelated words", Topic: "Other", Score: 0.9},
	}}
	deps.Chunks = &fakeChunks{chunks: []models.ContentChunk{
		{ID: "kw", Text: "entropy measures disorder", Topic: "Entropy"},
	}}

	resp, err := NewEngine(deps).Answer(context.Background(), Request{
		Query:    "What is entropy?",
		CourseID: "PHY",
		Context:  map[string]any{"alpha": 0.0},
	})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Sources)
	assert.Equal(t, "Entropy", resp.Sources[0].Topic)

	resp, err = NewEngine(deps).Answer(context.Background(), Request{
		Query:    "What is entropy?",
		CourseID: "PHY",
		Context:  map[string]any{"alpha": 1.0},
	})
	require.NoError(t, err)
	assert.Equal(t, "Other", resp.Sources[0].Topic)
}

func TestAnswerKeywordLookupFailureIsIgnored(t *testing.T) {
	deps := integratedDeps()
	deps.Embedder = &fakeEmbedder{}
	deps.Searcher = &fakeSearcher{matches: derivativeMatches}
	deps.Chunks = &fakeChunks{err: errors.New("db locked")}

	resp, err := NewEngine(deps).Answer(context.Background(), Request{Query: "power rule please", CourseID: "M"})
	require.NoError(t, err)
	assert.Len(t, resp.Sources, 2)
}

func TestAnswerUsesCache(t *testing.T) {
	deps := integratedDeps()
	embedder := &fakeEmbedder{}
	searcher := &fakeSearcher{matches: derivativeMatches}
	logs := &fakeLogs{}
	deps.Embedder = embedder
	deps.Searcher = searcher
	deps.Generator = &fakeGenerator{answer: "cached answer", followups: []string{"a"}}
	deps.Cache = newFakeCache()
	deps.AnswerTTL = time.Hour
	deps.Logs = logs

	engine := NewEngine(deps)
	first, err := engine.Answer(context.Background(), Request{Query: "Power rule please", CourseID: "M"})
	require.NoError(t, err)

	second, err := engine.Answer(context.Background(), Request{Query: "  power   RULE please ", CourseID: "M"})
	require.NoError(t, err)

	assert.Equal(t, 1, searcher.calls)
	assert.Equal(t, 1, embedder.calls)
	assert.Equal(t, first.Answer, second.Answer)
	assert.Equal(t, first.Sources, second.Sources)
	assert.Equal(t, int64(1), first.QueryID)
	assert.Equal(t, int64(2), second.QueryID)
	assert.Len(t, logs.logs, 2)

	_, err = engine.Answer(context.Background(), Request{Query: "Power rule please", CourseID: "OTHER"})
	require.NoError(t, err)
	assert.Equal(t, 2, searcher.calls)
}

func TestAnswerRelatedTopicFollowup(t *testing.T) {
	deps := integratedDeps()
	deps.Embedder = &fakeEmbedder{}
	deps.Searcher = &fakeSearcher{matches: derivativeMatches}
	deps.Generator = &fakeGenerator{answer: "a", followups: []string{"f1", "f2", "f3"}}
	deps.Graph = &fakeGraph{related: []string{"Chain Rule"}}

	resp, err := NewEngine(deps).Answer(context.Background(), Request{Query: "power rule please", CourseID: "M"})
	require.NoError(t, err)

	assert.Equal(t, []string{"f1", "f2", "How does Derivatives relate to Chain Rule?"}, resp.SuggestedFollowups)
}

func TestAnswerLogFailureDoesNotFailRequest(t *testing.T) {
	engine := NewEngine(Deps{Mode: config.ModeDemo, Logs: &fakeLogs{err: errors.New("disk full")}})

	resp, err := engine.Answer(context.Background(), Request{Query: "derivative please", CourseID: "M"})
	require.NoError(t, err)
	assert.Zero(t, resp.QueryID)
}

func TestAnswerConfidenceBounds(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(0, 6).Draw(t, "matches")
		matches := make([]vector.Match, n)
		for i := range matches {
			matches[i] = vector.Match{
				ChunkID: rapid.StringMatching(`c[0-9]{1,2}`).Draw(t, "id"),
				Text:    "entropy " + rapid.StringMatching(`[a-z ]{0,40}`).Draw(t, "text"),
				Score:   rapid.Float64Range(-1, 2).Draw(t, "score"),
			}
		}

		deps := integratedDeps()
		deps.Embedder = &fakeEmbedder{}
		deps.Searcher = &fakeSearcher{matches: matches}
		if rapid.Bool().Draw(t, "generate") {
			deps.Generator = &fakeGenerator{answer: "a", followups: []string{"f"}}
		}

		resp, err := NewEngine(deps).Answer(context.Background(), Request{
			Query:    "What is entropy?",
			CourseID: "PHY",
			Context:  map[string]any{"alpha": rapid.Float64Range(0, 1).Draw(t, "alpha")},
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if resp.Confidence < 0 || resp.Confidence > 0.95 {
			t.Fatalf("confidence %v outside [0,0.95]", resp.Confidence)
		}
	})
}
