package milvus

import (
	"context"
	"fmt"
	"strings"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"go.uber.org/zap"

	"github.com/instant-tutor/backend/internal/vector"
	"github.com/instant-tutor/backend/pkg/logger"
)

var outputFields = []string{
	"chunk_id", "text", "course_id", "media_locator", "chunk_index", "start_time", "end_time", "topic",
}

type Client struct {
	client         client.Client
	collectionName string
	vectorDim      int
}

func NewClient(ctx context.Context, endpoint, apiKey, collectionName string, vectorDim int) (*Client, error) {
	c, err := client.NewClient(ctx, client.Config{
		Address: endpoint,
		APIKey:  apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create milvus client: %w", err)
	}

	logger.Info("Milvus client initialized",
		zap.String("endpoint", endpoint),
		zap.String("collection", collectionName),
	)

	return &Client{
		client:         c,
		collectionName: collectionName,
		vectorDim:      vectorDim,
	}, nil
}

func (m *Client) Name() string {
	return "milvus"
}

func (m *Client) Close() error {
	return m.client.Close()
}

func (m *Client) Ping(ctx context.Context) error {
	if _, err := m.client.HasCollection(ctx, m.collectionName); err != nil {
		return fmt.Errorf("milvus unreachable: %w", err)
	}
	return nil
}

func varchar(name string, maxLength int) *entity.Field {
	return &entity.Field{
		Name:     name,
		DataType: entity.FieldTypeVarChar,
		TypeParams: map[string]string{
			"max_length": fmt.Sprintf("%d", maxLength),
		},
	}
}

func (m *Client) EnsureCollection(ctx context.Context) error {
	has, err := m.client.HasCollection(ctx, m.collectionName)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}

	if has {
		logger.Info("Collection already exists", zap.String("collection", m.collectionName))
		return m.client.LoadCollection(ctx, m.collectionName, false)
	}

	chunkID := varchar("chunk_id", 64)
	chunkID.PrimaryKey = true

	schema := &entity.Schema{
		CollectionName: m.collectionName,
		Description:    "Course transcript embeddings",
		Fields: []*entity.Field{
			chunkID,
			{
				Name:     "embedding",
				DataType: entity.FieldTypeFloatVector,
				TypeParams: map[string]string{
					"dim": fmt.Sprintf("%d", m.vectorDim),
				},
			},
			varchar("text", 8192),
			varchar("course_id", 128),
			varchar("media_locator", 1024),
			{Name: "chunk_index", DataType: entity.FieldTypeInt64},
			{Name: "start_time", DataType: entity.FieldTypeDouble},
			{Name: "end_time", DataType: entity.FieldTypeDouble},
			varchar("topic", 128),
		},
	}

	if err := m.client.CreateCollection(ctx, schema, entity.DefaultShardNumber); err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	idx, err := entity.NewIndexIvfFlat(entity.COSINE, 1024)
	if err != nil {
		return fmt.Errorf("failed to build index params: %w", err)
	}
	if err := m.client.CreateIndex(ctx, m.collectionName, "embedding", idx, false); err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	if err := m.client.LoadCollection(ctx, m.collectionName, false); err != nil {
		return fmt.Errorf("failed to load collection: %w", err)
	}

	logger.Info("Collection created and loaded", zap.String("collection", m.collectionName))
	return nil
}

func (m *Client) Upsert(ctx context.Context, chunks []vector.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	var (
		ids        = make([]string, len(chunks))
		embeddings = make([][]float32, len(chunks))
		texts      = make([]string, len(chunks))
		courses    = make([]string, len(chunks))
		locators   = make([]string, len(chunks))
		indexes    = make([]int64, len(chunks))
		starts     = make([]float64, len(chunks))
		ends       = make([]float64, len(chunks))
		topics     = make([]string, len(chunks))
	)

	for i, ch := range chunks {
		ids[i] = ch.ID
		embeddings[i] = ch.Embedding
		texts[i] = ch.Text
		courses[i] = ch.CourseID
		locators[i] = ch.MediaLocator
		indexes[i] = int64(ch.ChunkIndex)
		starts[i] = ch.StartTime
		ends[i] = ch.EndTime
		topics[i] = ch.Topic
	}

	_, err := m.client.Upsert(
		ctx,
		m.collectionName,
		"",
		entity.NewColumnVarChar("chunk_id", ids),
		entity.NewColumnFloatVector("embedding", m.vectorDim, embeddings),
		entity.NewColumnVarChar("text", texts),
		entity.NewColumnVarChar("course_id", courses),
		entity.NewColumnVarChar("media_locator", locators),
		entity.NewColumnInt64("chunk_index", indexes),
		entity.NewColumnDouble("start_time", starts),
		entity.NewColumnDouble("end_time", ends),
		entity.NewColumnVarChar("topic", topics),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert chunks: %w", err)
	}

	if err := m.client.Flush(ctx, m.collectionName, false); err != nil {
		return fmt.Errorf("failed to flush: %w", err)
	}

	logger.Info("Chunks upserted into vector DB", zap.Int("count", len(chunks)))
	return nil
}

func (m *Client) Search(ctx context.Context, embedding []float32, courseID string, topK int) ([]vector.Match, error) {
	expr := courseFilter(courseID)

	sp, err := entity.NewIndexIvfFlatSearchParam(16)
	if err != nil {
		return nil, fmt.Errorf("failed to build search params: %w", err)
	}

	searchResult, err := m.client.Search(
		ctx,
		m.collectionName,
		[]string{},
		expr,
		outputFields,
		[]entity.Vector{entity.FloatVector(embedding)},
		"embedding",
		entity.COSINE,
		topK,
		sp,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	results := make([]vector.Match, 0, topK)
	for _, sr := range searchResult {
		for i := 0; i < sr.ResultCount; i++ {
			results = append(results, vector.Match{
				ChunkID:      stringAt(sr.Fields.GetColumn("chunk_id"), i),
				Text:         stringAt(sr.Fields.GetColumn("text"), i),
				CourseID:     stringAt(sr.Fields.GetColumn("course_id"), i),
				MediaLocator: stringAt(sr.Fields.GetColumn("media_locator"), i),
				ChunkIndex:   int(int64At(sr.Fields.GetColumn("chunk_index"), i)),
				StartTime:    floatAt(sr.Fields.GetColumn("start_time"), i),
				EndTime:      floatAt(sr.Fields.GetColumn("end_time"), i),
				Topic:        stringAt(sr.Fields.GetColumn("topic"), i),
				Score:        float64(sr.Scores[i]),
			})
		}
	}

	logger.Debug("Vector search completed",
		zap.Int("topK", topK),
		zap.Int("results", len(results)),
		zap.String("filter", expr),
	)

	return results, nil
}

// courseFilter builds a boolean expression matching one course id.
func courseFilter(courseID string) string {
	escaped := strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(courseID)
	return fmt.Sprintf(`course_id == "%s"`, escaped)
}

func stringAt(col entity.Column, i int) string {
	if col == nil {
		return ""
	}
	v, err := col.Get(i)
	if err != nil {
		return ""
	}
	s, _ := v.(string)
	return s
}

func int64At(col entity.Column, i int) int64 {
	if col == nil {
		return 0
	}
	v, err := col.Get(i)
	if err != nil {
		return 0
	}
	n, _ := v.(int64)
	return n
}

func floatAt(col entity.Column, i int) float64 {
	if col == nil {
		return 0
	}
	v, err := col.Get(i)
	if err != nil {
		return 0
	}
	f, _ := v.(float64)
	return f
}
