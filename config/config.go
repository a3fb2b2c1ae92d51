package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
)

type Config struct {
	ListenAddr  string
	PostgresDSN string

	OllamaHost    string
	OpenAIAPIKey  string
	OpenAIBaseURL string

	Embeddings EmbeddingsConfig
	LLM        LLMConfig
	Chat       ChatConfig
	Ingestion  IngestionConfig
}

type EmbeddingsConfig struct {
	Provider  string
	Model     string
	Dimension int
}

type LLMConfig struct {
	Provider string
	Model    string
}

type ChatConfig struct {
	// TopK and SimilarityFloor bound vector retrieval for RAG turns.
	TopK            int
	SimilarityFloor float64
	// MemoryWindow is the number of conversation messages retained per
	// conversation id. Older messages are evicted first.
	MemoryWindow   int
	RewriteQueries bool
	RequestTimeout time.Duration
}

type IngestionConfig struct {
	ChunkSize    int
	ChunkOverlap int
	// SeedDir, when set, is ingested on startup if the vector store is empty.
	SeedDir string
}

func Load() Config {
	_ = godotenv.Load()

	return Config{
		ListenAddr:    getEnv("LISTEN_ADDR", ":8080"),
		PostgresDSN:   getEnv("POSTGRES_DSN", "postgres://localhost:5432/ragserver?sslmode=disable"),
		OllamaHost:    getEnv("OLLAMA_HOST", "http://localhost:11434"),
		OpenAIAPIKey:  getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL: getEnv("OPENAI_BASE_URL", ""),
		Embeddings: EmbeddingsConfig{
			Provider:  getEnv("EMBEDDINGS_PROVIDER", ProviderOpenAI),
			Model:     getEnv("EMBEDDINGS_MODEL", "text-embedding-3-small"),
			Dimension: getEnvInt("EMBEDDINGS_DIMENSION", 1536),
		},
		LLM: LLMConfig{
			Provider: getEnv("LLM_PROVIDER", ProviderOpenAI),
			Model:    getEnv("LLM_MODEL", "gpt-4o-mini"),
		},
		Chat: ChatConfig{
			TopK:            getEnvInt("CHAT_TOP_K", 5),
			SimilarityFloor: getEnvFloat("CHAT_SIMILARITY_FLOOR", 0.5),
			MemoryWindow:    getEnvInt("CHAT_MEMORY_WINDOW", 20),
			RewriteQueries:  getEnvBool("CHAT_REWRITE_QUERIES", true),
			RequestTimeout:  getEnvDuration("CHAT_REQUEST_TIMEOUT", 120*time.Second),
		},
		Ingestion: IngestionConfig{
			ChunkSize:    getEnvInt("INGEST_CHUNK_SIZE", 800),
			ChunkOverlap: getEnvInt("INGEST_CHUNK_OVERLAP", 120),
			SeedDir:      getEnv("INGEST_SEED_DIR", ""),
		},
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return fallback
}
