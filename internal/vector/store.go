// Package vector defines the course content vector store. Backends live in
// the milvus and qdrant subpackages.
package vector

import (
	"context"
	"errors"
)

// ErrNotConfigured is returned by the nil store used when no backend is set.
var ErrNotConfigured = errors.New("vector store not configured")

// Chunk is one transcript window with its embedding.
type Chunk struct {
	ID           string
	Embedding    []float32
	Text         string
	CourseID     string
	MediaLocator string
	ChunkIndex   int
	StartTime    float64
	EndTime      float64
	Topic        string
}

// Match is a search hit. Score is the backend's cosine similarity.
type Match struct {
	ChunkID      string
	Text         string
	CourseID     string
	MediaLocator string
	ChunkIndex   int
	StartTime    float64
	EndTime      float64
	Topic        string
	Score        float64
}

type Store interface {
	// EnsureCollection creates the collection when it does not exist.
	EnsureCollection(ctx context.Context) error
	// Upsert writes chunks, replacing any with the same id.
	Upsert(ctx context.Context, chunks []Chunk) error
	// Search returns the topK nearest chunks of one course.
	Search(ctx context.Context, embedding []float32, courseID string, topK int) ([]Match, error)
	// Ping checks the backend is reachable.
	Ping(ctx context.Context) error
	Name() string
	Close() error
}
