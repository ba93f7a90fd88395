package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/instant-tutor/backend/internal/api/handlers"
	"github.com/instant-tutor/backend/internal/cache/redis"
	"github.com/instant-tutor/backend/internal/ingestion"
	"github.com/instant-tutor/backend/internal/kg/neo4j"
	"github.com/instant-tutor/backend/internal/llm"
	"github.com/instant-tutor/backend/internal/query"
	"github.com/instant-tutor/backend/internal/storage/sqldb"
	"github.com/instant-tutor/backend/internal/vector"
	"github.com/instant-tutor/backend/internal/vector/milvus"
	"github.com/instant-tutor/backend/internal/vector/qdrant"
	"github.com/instant-tutor/backend/pkg/config"
	appLogger "github.com/instant-tutor/backend/pkg/logger"
)

// components holds the process-wide clients. Any of them may be nil when
// the corresponding service is not configured.
type components struct {
	cfg     *config.Config
	store   *sqldb.Client
	vectors vector.Store
	llm     *llm.Client
	cache   *redis.Client
	graph   *neo4j.Client
	engine  *query.Engine
	queue   *ingestion.Queue
}

// bootstrap connects to the configured services. The retrieval and
// ingestion stack is only built when integrated is true.
func bootstrap(ctx context.Context, cfg *config.Config, integrated bool) (*components, error) {
	c := &components{cfg: cfg}

	if cfg.Database.DSN != "" {
		if err := ensureSQLiteDir(cfg.Database); err != nil {
			return nil, err
		}
		store, err := sqldb.NewClient(cfg.Database.Driver, cfg.Database.DSN)
		if err != nil {
			return nil, err
		}
		c.store = store
		if err := store.InitSchema(ctx); err != nil {
			c.close(ctx)
			return nil, err
		}
	}

	if integrated {
		if err := c.connectIntegrated(ctx); err != nil {
			c.close(ctx)
			return nil, err
		}
	}

	c.engine = query.NewEngine(c.engineDeps())
	if integrated {
		c.queue = ingestion.NewQueue(c.jobStore(), ingestion.NewProcessor(c.processorDeps()),
			cfg.Ingestion.QueueSize, cfg.Ingestion.Workers)
	}

	return c, nil
}

func (c *components) connectIntegrated(ctx context.Context) error {
	cfg := c.cfg

	if cfg.LLM.APIKey != "" {
		c.llm = llm.NewClient(cfg.LLM)
	} else {
		appLogger.Warn("No LLM API key configured; answers fall back to templates")
	}

	switch cfg.Vector.Backend {
	case "milvus":
		m, err := milvus.NewClient(ctx, cfg.Vector.Milvus.Endpoint, cfg.Vector.Milvus.APIKey,
			cfg.Vector.Milvus.CollectionName, cfg.Vector.Milvus.VectorDim)
		if err != nil {
			return err
		}
		c.vectors = m
	case "qdrant":
		q, err := qdrant.NewClient(qdrant.Config{
			Host:           cfg.Vector.Qdrant.Host,
			Port:           cfg.Vector.Qdrant.Port,
			APIKey:         cfg.Vector.Qdrant.APIKey,
			UseTLS:         cfg.Vector.Qdrant.UseTLS,
			CollectionName: cfg.Vector.Qdrant.CollectionName,
			VectorDim:      cfg.Vector.Qdrant.VectorDim,
		})
		if err != nil {
			return err
		}
		c.vectors = q
	case "", "none":
		appLogger.Warn("No vector store configured; semantic search disabled")
	default:
		return fmt.Errorf("unknown vector backend %q", cfg.Vector.Backend)
	}

	if c.vectors != nil {
		if err := c.vectors.EnsureCollection(ctx); err != nil {
			return fmt.Errorf("failed to prepare %s collection: %w", c.vectors.Name(), err)
		}
	}

	if cfg.Redis.Enabled {
		cache, err := redis.NewClient(ctx, cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			appLogger.Warn("Redis unavailable; caching disabled", zap.Error(err))
		} else {
			c.cache = cache
		}
	}

	if cfg.Neo4j.Enabled {
		graph, err := neo4j.NewClient(ctx, cfg.Neo4j.URI, cfg.Neo4j.Username, cfg.Neo4j.Password, cfg.Neo4j.Database)
		if err != nil {
			appLogger.Warn("Neo4j unavailable; topic graph disabled", zap.Error(err))
		} else {
			c.graph = graph
		}
	}

	return nil
}

// engineDeps leaves interface fields nil for missing clients so the engine
// skips those steps.
func (c *components) engineDeps() query.Deps {
	deps := query.DepsFromConfig(c.cfg)
	if c.store != nil {
		deps.Logs = c.store
		deps.Chunks = c.store
	}
	if c.llm != nil {
		deps.Embedder = c.llm
		deps.Generator = c.llm
	}
	if c.vectors != nil {
		deps.Searcher = c.vectors
	}
	if c.cache != nil {
		deps.Cache = c.cache
	}
	if c.graph != nil {
		deps.Graph = c.graph
	}
	return deps
}

func (c *components) processorDeps() ingestion.ProcessorDeps {
	cfg := c.cfg.Ingestion
	deps := ingestion.ProcessorDeps{
		Fetcher: ingestion.NewFetcher(cfg.TempDir, 0),
		Audio:   ingestion.NewAudioExtractor(cfg.FFmpegPath),
		Vectors: c.vectors,
		Chunker: ingestion.Chunker{
			Size:            cfg.ChunkSize,
			Overlap:         cfg.ChunkOverlap,
			MinLength:       cfg.MinChunkLength,
			SegmentDuration: float64(cfg.SegmentDuration),
		},
		EmbedBatchSize: cfg.EmbedBatchSize,
		TempDir:        cfg.TempDir,
	}
	if c.llm != nil {
		deps.Transcriber = c.llm
		deps.Embedder = c.llm
	}
	if c.store != nil {
		deps.Chunks = c.store
	}
	if c.graph != nil {
		deps.Graph = c.graph
	}
	if c.cache != nil {
		deps.Cache = c.cache
	}
	return deps
}

func (c *components) jobStore() ingestion.JobStore {
	if c.store != nil {
		return c.store
	}
	return ingestion.NewMemoryJobStore()
}

// routerDeps exposes the components to the HTTP layer.
func (c *components) routerDeps() handlers.RouterDeps {
	deps := handlers.RouterDeps{
		Config:   c.cfg,
		Engine:   c.engine,
		Services: c.healthServices(),
	}
	if c.store != nil {
		deps.Courses = c.store
		deps.Feedback = c.store
		deps.Analytics = c.store
	}
	if c.queue != nil {
		deps.Jobs = c.queue
	}
	return deps
}

func (c *components) healthServices() []handlers.Service {
	services := []handlers.Service{
		{Name: "database"},
		{Name: "vector_db", DemoOnly: true},
		{Name: "llm", DemoOnly: true},
		{Name: "cache"},
		{Name: "topic_graph"},
	}
	if c.store != nil {
		services[0].Pinger = c.store
	}
	if c.vectors != nil {
		services[1].Pinger = c.vectors
	}
	if c.llm != nil {
		services[2].Pinger = c.llm
	}
	if c.cache != nil {
		services[3].Pinger = c.cache
	}
	if c.graph != nil {
		services[4].Pinger = c.graph
	}
	return services
}

func (c *components) close(ctx context.Context) {
	if c.graph != nil {
		if err := c.graph.Close(ctx); err != nil {
			appLogger.Warn("Failed to close neo4j", zap.Error(err))
		}
	}
	if c.cache != nil {
		if err := c.cache.Close(); err != nil {
			appLogger.Warn("Failed to close redis", zap.Error(err))
		}
	}
	if c.vectors != nil {
		if err := c.vectors.Close(); err != nil {
			appLogger.Warn("Failed to close vector store", zap.Error(err))
		}
	}
	if c.store != nil {
		if err := c.store.Close(); err != nil {
			appLogger.Warn("Failed to close database", zap.Error(err))
		}
	}
}

// ensureSQLiteDir creates the parent directory of a sqlite database file.
func ensureSQLiteDir(cfg config.DatabaseConfig) error {
	switch cfg.Driver {
	case "", "sqlite3", "sqlite":
	default:
		return nil
	}
	if cfg.DSN == ":memory:" || strings.HasPrefix(cfg.DSN, "file:") {
		return nil
	}
	dir := filepath.Dir(cfg.DSN)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create database directory %s: %w", dir, err)
	}
	return nil
}
