package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env  string
	Port string

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	CorpusDir string

	OllamaURL          string
	EmbeddingModel     string
	EmbeddingDimension int
	CompletionModel    string

	RerankerEnabled bool
	RerankerURL     string
	RerankerModel   string

	ExtractorURL string

	ChunkSize    int
	ChunkOverlap int

	TopK                 int
	SimilarityThreshold  float64
	RerankPoolMultiplier int
	GroundingThreshold   float64
	ContextMaxChars      int

	Temperature     float64
	AnswerMaxTokens int

	ExtractionWorkers  int
	InsertBatchSize    int
	EmbedRatePerSecond float64
	TokenEncoding      string

	WatcherEnabled  bool
	WatcherDebounce time.Duration

	HTTPClientTimeout time.Duration
	OTelEnabled       bool
}

// Load reads configuration from the environment, with a .env file as an
// optional overlay for local development.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Env:  getEnv("ENV", "development"),
		Port: getEnv("PORT", "9020"),

		DBHost:     getEnv("DB_HOST", "compass-db"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "compass_user"),
		DBPassword: getSecret("DB_PASSWORD", "DB_PASSWORD_FILE", "compass_password"),
		DBName:     getEnv("DB_NAME", "compass_db"),

		CorpusDir: getEnv("CORPUS_DIR", "data/documents"),

		OllamaURL:          getEnv("OLLAMA_URL", "http://ollama:11434"),
		EmbeddingModel:     getEnv("EMBEDDING_MODEL", "embeddinggemma"),
		EmbeddingDimension: getEnvInt("EMBEDDING_DIMENSION", 768),
		CompletionModel:    getEnv("COMPLETION_MODEL", "gemma3:4b"),

		RerankerEnabled: getEnvBool("RERANKER_ENABLED", true),
		RerankerURL:     getEnv("RERANKER_URL", "http://reranker:8001"),
		RerankerModel:   getEnv("RERANKER_MODEL", "bge-reranker-v2-m3"),

		ExtractorURL: getEnv("EXTRACTOR_URL", "http://extractor:8002"),

		ChunkSize:    getEnvInt("CHUNK_SIZE", 500),
		ChunkOverlap: getEnvInt("CHUNK_OVERLAP", 50),

		TopK:                 getEnvInt("TOP_K_RESULTS", 5),
		SimilarityThreshold:  getEnvFloat("SIMILARITY_THRESHOLD", 0),
		RerankPoolMultiplier: getEnvInt("RERANK_POOL_MULTIPLIER", 2),
		GroundingThreshold:   getEnvFloat("GROUNDING_THRESHOLD", 0.2),
		ContextMaxChars:      getEnvInt("CONTEXT_MAX_CHARS", 3000),

		Temperature:     getEnvFloat("LLM_TEMPERATURE", 0.3),
		AnswerMaxTokens: getEnvInt("LLM_MAX_TOKENS", 1000),

		ExtractionWorkers:  getEnvInt("EXTRACTION_WORKERS", 4),
		InsertBatchSize:    getEnvInt("INSERT_BATCH_SIZE", 100),
		EmbedRatePerSecond: getEnvFloat("EMBED_RATE_PER_SECOND", 8),
		TokenEncoding:      getEnv("TOKEN_ENCODING", "cl100k_base"),

		WatcherEnabled:  getEnvBool("WATCHER_ENABLED", true),
		WatcherDebounce: getEnvDuration("WATCHER_DEBOUNCE", 5*time.Second),

		HTTPClientTimeout: getEnvDuration("HTTP_CLIENT_TIMEOUT", 120*time.Second),
		OTelEnabled:       getEnvBool("OTEL_ENABLED", false),
	}
}

// DatabaseURL assembles the pgx connection string.
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName)
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getSecret(envKey, fileEnvKey, fallback string) string {
	if value, ok := os.LookupEnv(envKey); ok {
		return value
	}
	if filePath, ok := os.LookupEnv(fileEnvKey); ok {
		content, err := os.ReadFile(filePath)
		if err == nil {
			return strings.TrimSpace(string(content))
		}
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return fallback
}
