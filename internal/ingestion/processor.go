package ingestion

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/instant-tutor/backend/internal/kg/builder"
	"github.com/instant-tutor/backend/internal/llm"
	"github.com/instant-tutor/backend/internal/metrics"
	"github.com/instant-tutor/backend/internal/storage/models"
	"github.com/instant-tutor/backend/internal/vector"
	"github.com/instant-tutor/backend/pkg/logger"
	"github.com/instant-tutor/backend/pkg/utils"
)

const defaultEmbedBatchSize = 100

type Transcriber interface {
	Transcribe(ctx context.Context, path string) ([]llm.Segment, error)
}

type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

type ChunkStore interface {
	UpsertChunks(ctx context.Context, chunks []models.ContentChunk) error
}

type GraphWriter interface {
	WriteCourseGraph(ctx context.Context, courseID string, graph builder.Graph) error
}

type CacheInvalidator interface {
	InvalidateCourse(ctx context.Context, courseID string) error
}

// ProcessorDeps wires the pipeline. Chunks, Graph and Cache are optional.
type ProcessorDeps struct {
	Fetcher        *Fetcher
	Audio          *AudioExtractor
	Transcriber    Transcriber
	Embedder       Embedder
	Vectors        vector.Store
	Chunks         ChunkStore
	Graph          GraphWriter
	Cache          CacheInvalidator
	Chunker        Chunker
	EmbedBatchSize int
	TempDir        string
}

type Processor struct {
	deps ProcessorDeps
}

// ItemResult describes one successfully ingested media item.
type ItemResult struct {
	Locator string
	Chunks  int
	Labels  []builder.LabelledChunk
}

func NewProcessor(deps ProcessorDeps) *Processor {
	if deps.Fetcher == nil {
		deps.Fetcher = NewFetcher(deps.TempDir, 0)
	}
	if deps.EmbedBatchSize <= 0 {
		deps.EmbedBatchSize = defaultEmbedBatchSize
	}
	return &Processor{deps: deps}
}

// Run ingests every locator of job in order, updating its counters and
// calling report after each item. A failing item is recorded and the batch
// continues. Run only returns an error when ctx ends.
func (p *Processor) Run(ctx context.Context, job *models.IngestionJob, report func(*models.IngestionJob)) error {
	var (
		labels   []builder.LabelledChunk
		failures []string
	)

	for _, locator := range job.Locators {
		if err := ctx.Err(); err != nil {
			return err
		}

		res, err := p.ProcessItem(ctx, job.CourseID, locator)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Error("Media item failed",
				zap.String("job_id", job.ID),
				zap.String("locator", locator),
				zap.Error(err),
			)
			job.FailedItems++
			failures = append(failures, fmt.Sprintf("%s: %v", locator, err))
		} else {
			job.ProcessedItems++
			job.ChunkCount += res.Chunks
			labels = append(labels, res.Labels...)
		}

		job.Error = strings.Join(failures, "; ")
		job.UpdatedAt = time.Now()
		if report != nil {
			report(job)
		}
	}

	if job.ChunkCount > 0 {
		p.afterIngest(ctx, job.CourseID, labels)
	}
	return nil
}

// afterIngest refreshes the topic graph and drops stale cached answers.
// Failures here do not fail the job.
func (p *Processor) afterIngest(ctx context.Context, courseID string, labels []builder.LabelledChunk) {
	if p.deps.Graph != nil {
		graph := builder.Build(labels)
		if len(graph.Topics) > 0 {
			if err := p.deps.Graph.WriteCourseGraph(ctx, courseID, graph); err != nil {
				logger.Warn("Failed to write topic graph", zap.String("course_id", courseID), zap.Error(err))
			}
		}
	}

	if p.deps.Cache != nil {
		if err := p.deps.Cache.InvalidateCourse(ctx, courseID); err != nil {
			logger.Warn("Failed to invalidate answer cache", zap.String("course_id", courseID), zap.Error(err))
		}
	}
}

// ProcessItem fetches, transcribes, chunks, embeds and stores one media
// item.
func (p *Processor) ProcessItem(ctx context.Context, courseID, locator string) (*ItemResult, error) {
	if p.deps.Vectors == nil {
		return nil, vector.ErrNotConfigured
	}
	if p.deps.Embedder == nil {
		return nil, errors.New("embedding service not configured")
	}

	logger.Info("Processing media item", zap.String("course_id", courseID), zap.String("locator", locator))

	src, err := p.deps.Fetcher.Fetch(ctx, locator)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	segments, err := p.transcript(ctx, src)
	if err != nil {
		return nil, err
	}

	pieces := p.deps.Chunker.Chunk(segments)
	if len(pieces) == 0 {
		return nil, errors.New("no content chunks produced")
	}

	texts := make([]string, len(pieces))
	for i, pc := range pieces {
		texts[i] = pc.Text
	}

	embeddings, err := p.embed(ctx, texts)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	vectors := make([]vector.Chunk, len(pieces))
	rows := make([]models.ContentChunk, len(pieces))
	labels := make([]builder.LabelledChunk, len(pieces))

	for i, pc := range pieces {
		id := ChunkID(courseID, locator, pc.Window, pc.Index)
		topic := LabelTopic(pc.Text)

		vectors[i] = vector.Chunk{
			ID:           id,
			Embedding:    embeddings[i],
			Text:         pc.Text,
			CourseID:     courseID,
			MediaLocator: locator,
			ChunkIndex:   pc.Index,
			StartTime:    pc.Start,
			EndTime:      pc.End,
			Topic:        topic,
		}
		rows[i] = models.ContentChunk{
			ID:           id,
			CourseID:     courseID,
			MediaLocator: locator,
			ChunkIndex:   pc.Index,
			Text:         pc.Text,
			StartTime:    pc.Start,
			EndTime:      pc.End,
			Topic:        topic,
			CreatedAt:    now,
		}
		labels[i] = builder.LabelledChunk{MediaLocator: locator, Topic: topic}
	}

	if err := p.deps.Vectors.Upsert(ctx, vectors); err != nil {
		return nil, fmt.Errorf("failed to upsert vectors: %w", err)
	}

	if p.deps.Chunks != nil {
		if err := p.deps.Chunks.UpsertChunks(ctx, rows); err != nil {
			return nil, fmt.Errorf("failed to store chunks: %w", err)
		}
	}

	metrics.ChunksIngested.Add(float64(len(pieces)))
	logger.Info("Media item ingested",
		zap.String("course_id", courseID),
		zap.String("locator", locator),
		zap.Int("segments", len(segments)),
		zap.Int("chunks", len(pieces)),
	)

	return &ItemResult{Locator: locator, Chunks: len(pieces), Labels: labels}, nil
}

func (p *Processor) transcript(ctx context.Context, src *Source) ([]llm.Segment, error) {
	if src.IsTranscript() {
		return ReadTranscript(src)
	}

	if p.deps.Transcriber == nil {
		return nil, errors.New("speech-to-text not configured")
	}

	path := src.Path
	if p.deps.Audio.Enabled() {
		audio, cleanup, err := p.deps.Audio.Extract(ctx, src.Path, p.deps.TempDir)
		if err != nil {
			return nil, err
		}
		defer cleanup()
		path = audio
	}

	segments, err := p.deps.Transcriber.Transcribe(ctx, path)
	if err != nil {
		return nil, err
	}
	if len(segments) == 0 {
		return nil, errors.New("transcription returned no speech")
	}
	return segments, nil
}

func (p *Processor) embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for i := 0; i < len(texts); i += p.deps.EmbedBatchSize {
		end := i + p.deps.EmbedBatchSize
		if end > len(texts) {
			end = len(texts)
		}

		batch, err := p.deps.Embedder.EmbedBatch(ctx, texts[i:end])
		if err != nil {
			return nil, fmt.Errorf("failed to embed chunks: %w", err)
		}
		if len(batch) != end-i {
			return nil, fmt.Errorf("embedding count mismatch: got %d, expected %d", len(batch), end-i)
		}
		out = append(out, batch...)
	}
	return out, nil
}

// ChunkID is stable for a course, locator and chunk position, so
// re-ingesting the same media overwrites its chunks.
func ChunkID(courseID, locator string, window, index int) string {
	return utils.HashParts(courseID, locator, strconv.Itoa(window), strconv.Itoa(index))
}
