package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App         AppConfig
	Database    DatabaseConfig
	Keys        APIKeys
	Ai          AIConfig
	Rag         RagConfig
	Memory      MemoryConfig
	VectorStore VectorStoreConfig
	Tracing     TracingConfig
}

type AppConfig struct {
	Port               string
	Environment        string
	LogFilePath        string
	TraceLogFilePath   string
	CorsAllowedOrigins string
	NatsURL            string
	RedisURL           string
	JwtSecret          string
}

type DatabaseConfig struct {
	Connection      string
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
	SlowThreshold   time.Duration
	LogLevel        string // "silent", "error", "warn" or "info"
}

type APIKeys struct {
	GoogleGemini string
	OpenAI       string
	Anthropic    string
}

type AIConfig struct {
	EmbeddingProvider   string // "ollama", "gemini" or "openai"
	EmbeddingModel      string
	EmbeddingDimensions int
	OllamaBaseURL       string
	OpenAIBaseURL       string
	LLMProvider         string // "ollama", "openai" or "anthropic"
	LLMModel            string
	LLMTemperature      float64
	SystemPrompt        string
}

type RagConfig struct {
	Enabled           bool
	SearchK           int
	MaxResults        int
	QualityFloor      float64
	ConfidenceFloor   float64
	SimilarityWeight  float64
	QualityWeight     float64
	FingerprintEdge   int
	FingerprintLength int
	TokenBudget       int
	ChunkSize         int
	ChunkOverlap      int
	MinIngestQuality  float64
	KeywordBoost      float64
	IngestTopic       string
}

type MemoryConfig struct {
	WindowCapacity         int
	ConsolidationThreshold int
	SummaryMaxLength       int
	SummarizeTimeout       time.Duration
	SummarizeAttempts      int
	SessionTTL             time.Duration
	Persistence            string // "none", "postgres" or "redis"
	LongTermMemory         bool
}

type VectorStoreConfig struct {
	Backend    string // "pgvector" or "sqlite"
	SqlitePath string
}

type TracingConfig struct {
	Enabled     bool
	Endpoint    string // host:port of an OTLP/HTTP collector
	Insecure    bool
	ServiceName string
}

const defaultSystemPrompt = "You are a helpful assistant. Answer using the provided knowledge when it is relevant, " +
	"say so when it is not, and keep answers concise."

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, usage system environment")
	}

	return &Config{
		App: AppConfig{
			Port:               getEnv("APP_PORT", "3000"),
			Environment:        getEnv("GO_ENV", "development"),
			LogFilePath:        getEnv("LOG_FILE_PATH", "logs/app.log"),
			TraceLogFilePath:   getEnv("TRACE_LOG_FILE_PATH", "logs/rag_trace.log"),
			CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),
			NatsURL:            getEnv("NATS_URL", ""),
			RedisURL:           getEnv("REDIS_URL", "redis://localhost:6379"),
			JwtSecret:          getEnv("JWT_SECRET", ""),
		},
		Database: DatabaseConfig{
			Connection:      getEnv("DB_CONNECTION_STRING", ""),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 10),
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 100),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", time.Hour),
			SlowThreshold:   getEnvAsDuration("DB_SLOW_QUERY_THRESHOLD", time.Second),
			LogLevel:        strings.ToLower(getEnv("DB_LOG_LEVEL", "warn")),
		},
		Keys: APIKeys{
			GoogleGemini: getEnv("GOOGLE_GEMINI_API_KEY", ""),
			OpenAI:       getEnv("OPENAI_API_KEY", ""),
			Anthropic:    getEnv("ANTHROPIC_API_KEY", ""),
		},
		Ai: AIConfig{
			EmbeddingProvider:   getEnv("EMBEDDING_PROVIDER", "ollama"),
			EmbeddingModel:      getEnv("EMBEDDING_MODEL", "nomic-embed-text"),
			EmbeddingDimensions: getEnvAsInt("EMBEDDING_DIMENSIONS", 768),
			OllamaBaseURL:       getEnv("OLLAMA_BASE_URL", "http://localhost:11434"),
			OpenAIBaseURL:       getEnv("OPENAI_BASE_URL", ""),
			LLMProvider:         getEnv("LLM_PROVIDER", "ollama"),
			LLMModel:            getEnv("LLM_MODEL", "llama3"),
			LLMTemperature:      getEnvAsFloat("LLM_TEMPERATURE", 0.7),
			SystemPrompt:        getEnv("SYSTEM_PROMPT", defaultSystemPrompt),
		},
		Rag: RagConfig{
			Enabled:           getEnvAsBool("RAG_ENABLED", true),
			SearchK:           getEnvAsInt("RAG_SEARCH_K", 10),
			MaxResults:        getEnvAsInt("RAG_MAX_RESULTS", 5),
			QualityFloor:      getEnvAsFloat("RAG_QUALITY_FLOOR", 0.3),
			ConfidenceFloor:   getEnvAsFloat("RAG_CONFIDENCE_FLOOR", 0.7),
			SimilarityWeight:  getEnvAsFloat("RAG_SIMILARITY_WEIGHT", 0.6),
			QualityWeight:     getEnvAsFloat("RAG_QUALITY_WEIGHT", 0.4),
			FingerprintEdge:   getEnvAsInt("RAG_FINGERPRINT_EDGE", 50),
			FingerprintLength: getEnvAsInt("RAG_FINGERPRINT_LENGTH", 16),
			TokenBudget:       getEnvAsInt("RAG_TOKEN_BUDGET", 4000),
			ChunkSize:         getEnvAsInt("RAG_CHUNK_SIZE", 1000),
			ChunkOverlap:      getEnvAsInt("RAG_CHUNK_OVERLAP", 200),
			MinIngestQuality:  getEnvAsFloat("MIN_INGEST_QUALITY", 0),
			KeywordBoost:      getEnvAsFloat("RAG_KEYWORD_BOOST", 0.3),
			IngestTopic:       getEnv("KNOWLEDGE_INGEST_TOPIC", "KNOWLEDGE_INGEST"),
		},
		Memory: MemoryConfig{
			WindowCapacity:         getEnvAsInt("MAX_CONTEXT_MESSAGES", 10),
			ConsolidationThreshold: getEnvAsInt("MEMORY_CONSOLIDATION_THRESHOLD", 10),
			SummaryMaxLength:       getEnvAsInt("SUMMARY_MAX_LENGTH", 500),
			SummarizeTimeout:       getEnvAsDuration("SUMMARIZE_TIMEOUT", 15*time.Second),
			SummarizeAttempts:      getEnvAsInt("SUMMARIZE_ATTEMPTS", 3),
			SessionTTL:             getEnvAsDuration("SESSION_TTL", time.Hour),
			Persistence:            strings.ToLower(getEnv("SESSION_PERSISTENCE", "none")),
			LongTermMemory:         getEnvAsBool("ENABLE_LONG_TERM_MEMORY", true),
		},
		VectorStore: VectorStoreConfig{
			Backend:    strings.ToLower(getEnv("VECTOR_BACKEND", "sqlite")),
			SqlitePath: getEnv("SQLITE_PATH", "data/knowledge.db"),
		},
		Tracing: TracingConfig{
			Enabled:     getEnvAsBool("OTEL_ENABLED", false),
			Endpoint:    getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318"),
			Insecure:    getEnvAsBool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getEnv("OTEL_SERVICE_NAME", "zero-entropy-backend"),
		},
	}
}

func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	strValue := getEnv(key, "")
	if value, err := strconv.Atoi(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsFloat(key string, fallback float64) float64 {
	strValue := getEnv(key, "")
	if value, err := strconv.ParseFloat(strValue, 64); err == nil {
		return value
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	strValue := getEnv(key, "")
	if value, err := strconv.ParseBool(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	strValue := getEnv(key, "")
	if value, err := time.ParseDuration(strValue); err == nil {
		return value
	}
	return fallback
}
