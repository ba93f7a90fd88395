package query

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/instant-tutor/backend/internal/apperr"
	"github.com/instant-tutor/backend/internal/metrics"
	"github.com/instant-tutor/backend/internal/middleware/validation"
	"github.com/instant-tutor/backend/internal/storage/models"
	"github.com/instant-tutor/backend/internal/vector"
	"github.com/instant-tutor/backend/pkg/config"
	"github.com/instant-tutor/backend/pkg/logger"
	"github.com/instant-tutor/backend/pkg/utils"
)

const (
	embeddingTTL  = 24 * time.Hour
	relatedLimit  = 1
	keywordFactor = 2
)

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type Generator interface {
	GenerateAnswer(ctx context.Context, question string, passages []string) (string, error)
	SuggestFollowups(ctx context.Context, question, answer string) ([]string, error)
}

type Searcher interface {
	Search(ctx context.Context, embedding []float32, courseID string, topK int) ([]vector.Match, error)
}

type ChunkFinder interface {
	SearchChunksByTerms(ctx context.Context, courseID string, terms []string, limit int) ([]models.ContentChunk, error)
}

type QueryLogger interface {
	InsertQueryLog(ctx context.Context, log *models.QueryLog) (int64, error)
}

type AnswerCache interface {
	GetAnswer(ctx context.Context, courseID, key string, out any) (bool, error)
	SetAnswer(ctx context.Context, courseID, key string, answer any, ttl time.Duration) error
	GetEmbedding(ctx context.Context, textHash string) ([]float32, bool, error)
	SetEmbedding(ctx context.Context, textHash string, embedding []float32, ttl time.Duration) error
}

type TopicGraph interface {
	RelatedTopics(ctx context.Context, courseID, topic string, limit int) ([]string, error)
}

// Deps wires the engine. Nil collaborators disable the step they serve.
type Deps struct {
	Mode          string
	Scoring       Scoring
	TopK          int
	Candidates    int
	Alpha         float64
	AnswerTTL     time.Duration
	VectorTimeout time.Duration

	Embedder  Embedder
	Generator Generator
	Searcher  Searcher
	Chunks    ChunkFinder
	Logs      QueryLogger
	Cache     AnswerCache
	Graph     TopicGraph
}

type Engine struct {
	deps Deps
	now  func() time.Time
}

// DepsFromConfig fills the tunables of Deps from configuration.
func DepsFromConfig(cfg *config.Config) Deps {
	return Deps{
		Mode: cfg.Mode,
		Scoring: Scoring{
			MaxConfidence:   cfg.Retrieval.MaxConfidence,
			FallbackPenalty: cfg.Retrieval.FallbackPenalty,
			FallbackFloor:   cfg.Retrieval.FallbackFloor,
		},
		TopK:          cfg.Retrieval.TopK,
		Candidates:    cfg.Retrieval.Candidates,
		Alpha:         cfg.Retrieval.Alpha,
		AnswerTTL:     time.Duration(cfg.Redis.AnswerTTL) * time.Second,
		VectorTimeout: time.Duration(cfg.Vector.TimeoutSec) * time.Second,
	}
}

func NewEngine(deps Deps) *Engine {
	if deps.Mode == "" {
		deps.Mode = config.ModeDemo
	}
	if deps.TopK <= 0 {
		deps.TopK = 3
	}
	if deps.Candidates < deps.TopK {
		deps.Candidates = deps.TopK
	}
	if deps.Scoring == (Scoring{}) {
		deps.Scoring = Scoring{MaxConfidence: 0.95, FallbackPenalty: 0.7, FallbackFloor: 0.3}
	}
	if deps.VectorTimeout <= 0 {
		deps.VectorTimeout = 10 * time.Second
	}
	return &Engine{deps: deps, now: time.Now}
}

func (e *Engine) Mode() string {
	return e.deps.Mode
}

// Answer validates req, answers it and logs the exchange.
func (e *Engine) Answer(ctx context.Context, req Request) (*Response, error) {
	start := e.now()

	// query length is checked before trimming: "  abcd " is six characters
	req.Query = validation.StripNull(req.Query)
	req.CourseID = validation.Sanitize(req.CourseID)
	req.UserID = validation.Sanitize(req.UserID)
	if err := validation.Struct(req); err != nil {
		metrics.QueryTotal.WithLabelValues("invalid").Inc()
		return nil, err
	}
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		metrics.QueryTotal.WithLabelValues("invalid").Inc()
		return nil, apperr.Validation("query must not be blank")
	}

	alpha, err := e.alphaFor(req.Context)
	if err != nil {
		metrics.QueryTotal.WithLabelValues("invalid").Inc()
		return nil, err
	}

	logger.Info("Processing query",
		zap.String("course_id", req.CourseID),
		zap.String("mode", e.deps.Mode),
		zap.Int("query_length", len(req.Query)),
	)

	var resp *Response
	if e.deps.Mode == config.ModeIntegrated {
		resp, err = e.answerIntegrated(ctx, req, alpha)
	} else {
		resp = DemoAnswer(req.Query, req.CourseID)
	}
	if err != nil {
		metrics.QueryTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	resp.Confidence = clamp01(resp.Confidence)
	resp.ResponseTime = e.now().Sub(start).Milliseconds()
	resp.QueryID = e.logQuery(ctx, req, resp)

	metrics.QueryDuration.WithLabelValues(e.deps.Mode).Observe(e.now().Sub(start).Seconds())
	metrics.QueryTotal.WithLabelValues("success").Inc()
	metrics.ConfidenceScore.Observe(resp.Confidence)

	logger.Info("Query answered",
		zap.Int64("query_id", resp.QueryID),
		zap.Float64("confidence", resp.Confidence),
		zap.Int64("response_time_ms", resp.ResponseTime),
	)

	return resp, nil
}

func (e *Engine) answerIntegrated(ctx context.Context, req Request, alpha float64) (*Response, error) {
	cacheKey := utils.HashParts(req.CourseID, normalize(req.Query), strconv.FormatFloat(alpha, 'f', -1, 64))
	if cached := e.cachedAnswer(ctx, req.CourseID, cacheKey); cached != nil {
		return cached, nil
	}

	passages, err := e.retrieve(ctx, req, alpha)
	if err != nil {
		return nil, err
	}
	metrics.RetrievedPassages.Observe(float64(len(passages)))

	resp := e.assemble(ctx, req, passages)

	if e.deps.Cache != nil && e.deps.AnswerTTL > 0 {
		if err := e.deps.Cache.SetAnswer(ctx, req.CourseID, cacheKey, resp, e.deps.AnswerTTL); err != nil {
			logger.Warn("Failed to cache answer", zap.Error(err))
		}
	}

	return resp, nil
}

func (e *Engine) cachedAnswer(ctx context.Context, courseID, key string) *Response {
	if e.deps.Cache == nil {
		return nil
	}

	var cached Response
	hit, err := e.deps.Cache.GetAnswer(ctx, courseID, key, &cached)
	if err != nil {
		logger.Warn("Answer cache lookup failed", zap.Error(err))
		return nil
	}
	if !hit {
		metrics.CacheMisses.WithLabelValues("answer").Inc()
		return nil
	}

	metrics.CacheHits.WithLabelValues("answer").Inc()
	cached.QueryID = 0
	return &cached
}

// retrieve gathers semantic and keyword candidates and ranks them.
func (e *Engine) retrieve(ctx context.Context, req Request, alpha float64) ([]Passage, error) {
	var semantic []vector.Match
	if e.deps.Searcher != nil && e.deps.Embedder != nil {
		embedding, err := e.embed(ctx, req.Query)
		if err != nil {
			logger.Error("Question embedding failed", zap.Error(err))
			return nil, apperr.Upstream("embedding service failed", err)
		}

		searchCtx, cancel := context.WithTimeout(ctx, e.deps.VectorTimeout)
		semantic, err = e.deps.Searcher.Search(searchCtx, embedding, req.CourseID, e.deps.Candidates)
		cancel()
		if err != nil && !errors.Is(err, vector.ErrNotConfigured) {
			logger.Error("Vector search failed", zap.String("course_id", req.CourseID), zap.Error(err))
			return nil, apperr.Upstream("vector search failed", err)
		}
	}

	terms := Terms(req.Query)
	var keyword []models.ContentChunk
	if e.deps.Chunks != nil && len(terms) > 0 && alpha < 1 {
		var err error
		keyword, err = e.deps.Chunks.SearchChunksByTerms(ctx, req.CourseID, terms, e.deps.Candidates*keywordFactor)
		if err != nil {
			logger.Warn("Keyword candidate lookup failed", zap.Error(err))
			keyword = nil
		}
	}

	passages := Rank(semantic, keyword, terms, alpha, e.deps.TopK)
	logger.Debug("Passages ranked",
		zap.Int("semantic", len(semantic)),
		zap.Int("keyword", len(keyword)),
		zap.Int("used", len(passages)),
	)
	return passages, nil
}

func (e *Engine) embed(ctx context.Context, text string) ([]float32, error) {
	hash := utils.HashString(text)
	if e.deps.Cache != nil {
		emb, hit, err := e.deps.Cache.GetEmbedding(ctx, hash)
		switch {
		case err != nil:
			logger.Warn("Embedding cache lookup failed", zap.Error(err))
		case hit:
			metrics.CacheHits.WithLabelValues("embedding").Inc()
			return emb, nil
		default:
			metrics.CacheMisses.WithLabelValues("embedding").Inc()
		}
	}

	emb, err := e.deps.Embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	if e.deps.Cache != nil {
		if err := e.deps.Cache.SetEmbedding(ctx, hash, emb, embeddingTTL); err != nil {
			logger.Warn("Failed to cache embedding", zap.Error(err))
		}
	}
	return emb, nil
}

// assemble turns ranked passages into a response, generating when possible
// and falling back to templates otherwise.
func (e *Engine) assemble(ctx context.Context, req Request, passages []Passage) *Response {
	scoring := e.deps.Scoring
	base := BaseConfidence(passages, scoring.MaxConfidence)

	resp := &Response{Sources: FormatSources(passages)}

	reason := ""
	switch {
	case len(passages) == 0:
		reason = "no_matches"
	case e.deps.Generator == nil:
		reason = "no_generator"
	}

	if reason == "" {
		texts := make([]string, len(passages))
		for i, p := range passages {
			texts[i] = p.Text
		}

		answer, err := e.deps.Generator.GenerateAnswer(ctx, req.Query, texts)
		if err != nil {
			logger.Warn("Answer generation failed, using fallback", zap.Error(err))
			reason = "generation_error"
		} else {
			resp.Answer = answer
			resp.Confidence = base
			followups, err := e.deps.Generator.SuggestFollowups(ctx, req.Query, answer)
			if err != nil || len(followups) == 0 {
				if err != nil {
					logger.Warn("Follow-up generation failed", zap.Error(err))
				}
				followups = FallbackFollowups()
			}
			resp.SuggestedFollowups = followups
		}
	}

	if reason != "" {
		metrics.FallbackAnswers.WithLabelValues(reason).Inc()
		resp.Answer = FallbackAnswer(req.Query, passages)
		resp.Confidence = scoring.FallbackConfidence(base)
		resp.SuggestedFollowups = FallbackFollowups()
	}

	if len(passages) > 0 {
		resp.SuggestedFollowups = e.withRelated(ctx, req.CourseID, passages[0].Topic, resp.SuggestedFollowups)
	}
	return resp
}

func (e *Engine) withRelated(ctx context.Context, courseID, topic string, followups []string) []string {
	if e.deps.Graph == nil || topic == "" {
		return followups
	}

	related, err := e.deps.Graph.RelatedTopics(ctx, courseID, topic, relatedLimit)
	if err != nil {
		logger.Warn("Related topic lookup failed", zap.String("topic", topic), zap.Error(err))
		return followups
	}
	if len(related) == 0 {
		return followups
	}
	return WithRelatedTopic(followups, topic, related[0])
}

// logQuery stores the exchange and returns its id, or 0 when nothing was
// stored.
func (e *Engine) logQuery(ctx context.Context, req Request, resp *Response) int64 {
	if e.deps.Logs == nil {
		return 0
	}

	id, err := e.deps.Logs.InsertQueryLog(ctx, &models.QueryLog{
		UserID:         req.UserID,
		CourseID:       req.CourseID,
		QueryText:      req.Query,
		ResponseText:   resp.Answer,
		Confidence:     resp.Confidence,
		ResponseTimeMS: resp.ResponseTime,
		Mode:           e.deps.Mode,
		CreatedAt:      e.now(),
	})
	if err != nil {
		logger.Error("Failed to log query", zap.String("course_id", req.CourseID), zap.Error(err))
		return 0
	}
	return id
}

// alphaFor reads the keyword/semantic weight from the request context,
// falling back to the configured default.
func (e *Engine) alphaFor(ctx map[string]any) (float64, error) {
	raw, ok := ctx["alpha"]
	if !ok || raw == nil {
		return e.deps.Alpha, nil
	}

	var alpha float64
	switch v := raw.(type) {
	case float64:
		alpha = v
	case float32:
		alpha = float64(v)
	case int:
		alpha = float64(v)
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, apperr.Validation("context.alpha must be a number within [0,1]")
		}
		alpha = f
	default:
		return 0, apperr.Validation("context.alpha must be a number within [0,1]")
	}

	if alpha < 0 || alpha > 1 {
		return 0, apperr.Validation("context.alpha must be a number within [0,1]")
	}
	return alpha, nil
}

func normalize(q string) string {
	return strings.Join(strings.Fields(strings.ToLower(q)), " ")
}
