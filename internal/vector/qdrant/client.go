package qdrant

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"

	"github.com/instant-tutor/backend/internal/vector"
	"github.com/instant-tutor/backend/pkg/logger"
)

const upsertBatchSize = 100

// pointNamespace derives qdrant point uuids from chunk ids, which are hex
// digests and not valid point ids themselves.
var pointNamespace = uuid.MustParse("6f1c7a52-3c1e-4b8e-9a43-5b7d0e2f9c11")

type Config struct {
	Host           string
	Port           int
	APIKey         string
	UseTLS         bool
	CollectionName string
	VectorDim      int
}

type Client struct {
	client         *qdrant.Client
	collectionName string
	vectorDim      int
}

func NewClient(cfg Config) (*Client, error) {
	c, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to qdrant: %w", err)
	}

	logger.Info("Qdrant client initialized",
		zap.String("host", cfg.Host),
		zap.Int("port", cfg.Port),
		zap.String("collection", cfg.CollectionName),
	)

	return &Client{client: c, collectionName: cfg.CollectionName, vectorDim: cfg.VectorDim}, nil
}

func (q *Client) Name() string {
	return "qdrant"
}

func (q *Client) Close() error {
	return q.client.Close()
}

func (q *Client) Ping(ctx context.Context) error {
	if _, err := q.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("qdrant unreachable: %w", err)
	}
	return nil
}

func (q *Client) EnsureCollection(ctx context.Context) error {
	exists, err := q.client.CollectionExists(ctx, q.collectionName)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}
	if exists {
		logger.Info("Collection already exists", zap.String("collection", q.collectionName))
		return nil
	}

	err = q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: q.collectionName,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(q.vectorDim),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	_, err = q.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
		CollectionName: q.collectionName,
		FieldName:      "course_id",
		FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
	})
	if err != nil {
		return fmt.Errorf("failed to index course_id: %w", err)
	}

	logger.Info("Collection created", zap.String("collection", q.collectionName))
	return nil
}

// PointID maps a chunk id to its stable point uuid.
func PointID(chunkID string) string {
	return uuid.NewSHA1(pointNamespace, []byte(chunkID)).String()
}

func toPoint(ch vector.Chunk) *qdrant.PointStruct {
	return &qdrant.PointStruct{
		Id:      qdrant.NewID(PointID(ch.ID)),
		Vectors: qdrant.NewVectorsDense(ch.Embedding),
		Payload: map[string]*qdrant.Value{
			"chunk_id":      qdrant.NewValueString(ch.ID),
			"text":          qdrant.NewValueString(ch.Text),
			"course_id":     qdrant.NewValueString(ch.CourseID),
			"media_locator": qdrant.NewValueString(ch.MediaLocator),
			"chunk_index":   qdrant.NewValueInt(int64(ch.ChunkIndex)),
			"start_time":    qdrant.NewValueDouble(ch.StartTime),
			"end_time":      qdrant.NewValueDouble(ch.EndTime),
			"topic":         qdrant.NewValueString(ch.Topic),
		},
	}
}

func (q *Client) Upsert(ctx context.Context, chunks []vector.Chunk) error {
	points := make([]*qdrant.PointStruct, 0, len(chunks))
	for _, ch := range chunks {
		points = append(points, toPoint(ch))
	}

	for i := 0; i < len(points); i += upsertBatchSize {
		end := i + upsertBatchSize
		if end > len(points) {
			end = len(points)
		}

		_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: q.collectionName,
			Wait:           qdrant.PtrOf(true),
			Points:         points[i:end],
		})
		if err != nil {
			return fmt.Errorf("failed to upsert points (batch %d-%d): %w", i, end, err)
		}
	}

	logger.Info("Chunks upserted into vector DB", zap.Int("count", len(chunks)))
	return nil
}

func (q *Client) Search(ctx context.Context, embedding []float32, courseID string, topK int) ([]vector.Match, error) {
	results, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.collectionName,
		Query:          qdrant.NewQueryDense(embedding),
		Filter: &qdrant.Filter{
			Must: []*qdrant.Condition{
				qdrant.NewMatch("course_id", courseID),
			},
		},
		Limit:       qdrant.PtrOf(uint64(topK)),
		WithPayload: qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	matches := make([]vector.Match, 0, len(results))
	for _, r := range results {
		matches = append(matches, fromPayload(r.GetPayload(), float64(r.GetScore())))
	}

	logger.Debug("Vector search completed",
		zap.Int("topK", topK),
		zap.Int("results", len(matches)),
		zap.String("course_id", courseID),
	)

	return matches, nil
}

func fromPayload(payload map[string]*qdrant.Value, score float64) vector.Match {
	m := vector.Match{Score: score}
	if payload == nil {
		return m
	}

	m.ChunkID = payload["chunk_id"].GetStringValue()
	m.Text = payload["text"].GetStringValue()
	m.CourseID = payload["course_id"].GetStringValue()
	m.MediaLocator = payload["media_locator"].GetStringValue()
	m.ChunkIndex = int(payload["chunk_index"].GetIntegerValue())
	m.StartTime = payload["start_time"].GetDoubleValue()
	m.EndTime = payload["end_time"].GetDoubleValue()
	m.Topic = payload["topic"].GetStringValue()
	return m
}
