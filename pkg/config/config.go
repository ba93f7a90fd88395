package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

const (
	ModeDemo       = "demo"
	ModeIntegrated = "integrated"
)

type Config struct {
	Server    ServerConfig
	Mode      string
	Auth      AuthConfig
	Database  DatabaseConfig
	Vector    VectorConfig
	LLM       LLMConfig
	Redis     RedisConfig
	Neo4j     Neo4jConfig
	Retrieval RetrievalConfig
	Ingestion IngestionConfig
	RateLimit RateLimitConfig
	Logging   LoggingConfig
}

type ServerConfig struct {
	Host           string
	Port           int
	ReadTimeout    int
	WriteTimeout   int
	BodyLimit      int
	AllowedOrigins []string
	Development    bool
}

// AuthConfig selects the bearer verifier. Tokens and secrets have no
// defaults and must come from the config file or the environment.
type AuthConfig struct {
	Mode      string
	Tokens    []string
	JWTSecret string
	JWTIssuer string
}

type DatabaseConfig struct {
	Driver string
	DSN    string
}

type VectorConfig struct {
	Backend    string
	TimeoutSec int
	Milvus     MilvusConfig
	Qdrant     QdrantConfig
}

type MilvusConfig struct {
	Endpoint       string
	APIKey         string
	CollectionName string
	VectorDim      int
}

type QdrantConfig struct {
	Host           string
	Port           int
	APIKey         string
	UseTLS         bool
	CollectionName string
	VectorDim      int
}

type LLMConfig struct {
	APIKey                  string
	BaseURL                 string
	Model                   string
	EmbeddingModel          string
	TranscriptionModel      string
	Temperature             float32
	MaxTokens               int
	TimeoutSec              int
	TranscriptionTimeoutSec int
}

type RedisConfig struct {
	Enabled   bool
	Host      string
	Port      int
	Password  string
	DB        int
	AnswerTTL int
}

type Neo4jConfig struct {
	Enabled  bool
	URI      string
	Username string
	Password string
	Database string
}

type RetrievalConfig struct {
	TopK            int
	Candidates      int
	Alpha           float64
	FallbackPenalty float64
	FallbackFloor   float64
	MaxConfidence   float64
}

type IngestionConfig struct {
	Workers         int
	QueueSize       int
	ChunkSize       int
	ChunkOverlap    int
	MinChunkLength  int
	SegmentDuration int
	FFmpegPath      string
	TempDir         string
	EmbedBatchSize  int
}

type RateLimitConfig struct {
	RequestsPerMinute int
}

type LoggingConfig struct {
	Level      string
	Format     string
	OutputPath string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// IsDemo reports whether answers come from the fixed lookup table.
func (c *Config) IsDemo() bool {
	return c.Mode != ModeIntegrated
}

// Load reads config.yaml (if present) and TUTOR_* environment variables.
// An explicit path overrides the search locations.
func Load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/instant-tutor")
	}

	v.SetEnvPrefix("TUTOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	bindSecrets(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) validate() error {
	switch c.Mode {
	case ModeDemo, ModeIntegrated:
	default:
		return fmt.Errorf("invalid mode %q: want %q or %q", c.Mode, ModeDemo, ModeIntegrated)
	}

	switch c.Auth.Mode {
	case "static", "jwt":
	default:
		return fmt.Errorf("invalid auth mode %q", c.Auth.Mode)
	}
	if c.Auth.Mode == "jwt" && c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwtSecret is required when auth.mode is jwt")
	}

	if c.Retrieval.Alpha < 0 || c.Retrieval.Alpha > 1 {
		return fmt.Errorf("retrieval.alpha must be within [0,1], got %v", c.Retrieval.Alpha)
	}
	if c.Ingestion.ChunkOverlap >= c.Ingestion.ChunkSize {
		return fmt.Errorf("ingestion.chunkOverlap must be smaller than ingestion.chunkSize")
	}

	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.readTimeout", 30)
	v.SetDefault("server.writeTimeout", 60)
	v.SetDefault("server.bodyLimit", 1048576)
	v.SetDefault("server.allowedOrigins", []string{"http://localhost:3000", "http://localhost:3001"})
	v.SetDefault("server.development", false)

	v.SetDefault("mode", ModeDemo)

	v.SetDefault("auth.mode", "static")

	v.SetDefault("database.driver", "sqlite3")
	v.SetDefault("database.dsn", "./data/instant_tutor.db")

	v.SetDefault("vector.backend", "none")
	v.SetDefault("vector.timeoutSec", 10)
	v.SetDefault("vector.milvus.endpoint", "localhost:19530")
	v.SetDefault("vector.milvus.collectionName", "course_content")
	v.SetDefault("vector.milvus.vectorDim", 1536)
	v.SetDefault("vector.qdrant.host", "localhost")
	v.SetDefault("vector.qdrant.port", 6334)
	v.SetDefault("vector.qdrant.collectionName", "course_content")
	v.SetDefault("vector.qdrant.vectorDim", 1536)

	v.SetDefault("llm.model", "gpt-3.5-turbo")
	v.SetDefault("llm.embeddingModel", "text-embedding-3-small")
	v.SetDefault("llm.transcriptionModel", "whisper-1")
	v.SetDefault("llm.temperature", 0.7)
	v.SetDefault("llm.maxTokens", 500)
	v.SetDefault("llm.timeoutSec", 30)
	v.SetDefault("llm.transcriptionTimeoutSec", 600)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.answerTTL", 3600)

	v.SetDefault("neo4j.enabled", false)
	v.SetDefault("neo4j.uri", "bolt://localhost:7687")
	v.SetDefault("neo4j.username", "neo4j")
	v.SetDefault("neo4j.database", "neo4j")

	v.SetDefault("retrieval.topK", 3)
	v.SetDefault("retrieval.candidates", 10)
	v.SetDefault("retrieval.alpha", 0.75)
	v.SetDefault("retrieval.fallbackPenalty", 0.7)
	v.SetDefault("retrieval.fallbackFloor", 0.3)
	v.SetDefault("retrieval.maxConfidence", 0.95)

	v.SetDefault("ingestion.workers", 2)
	v.SetDefault("ingestion.queueSize", 64)
	v.SetDefault("ingestion.chunkSize", 1000)
	v.SetDefault("ingestion.chunkOverlap", 200)
	v.SetDefault("ingestion.minChunkLength", 50)
	v.SetDefault("ingestion.segmentDuration", 300)
	v.SetDefault("ingestion.tempDir", "")
	v.SetDefault("ingestion.embedBatchSize", 100)

	v.SetDefault("rateLimit.requestsPerMinute", 120)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.outputPath", "stdout")
	v.SetDefault("logging.maxSizeMB", 100)
	v.SetDefault("logging.maxBackups", 5)
	v.SetDefault("logging.maxAgeDays", 30)
}

// bindSecrets registers keys that intentionally have no default so that
// Unmarshal still sees their environment values.
func bindSecrets(v *viper.Viper) {
	for _, key := range []string{
		"auth.tokens",
		"auth.jwtSecret",
		"auth.jwtIssuer",
		"llm.apiKey",
		"llm.baseURL",
		"vector.milvus.apiKey",
		"vector.qdrant.apiKey",
		"redis.password",
		"neo4j.password",
		"ingestion.ffmpegPath",
	} {
		_ = v.BindEnv(key)
	}
}
