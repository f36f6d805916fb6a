package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	APIPort           string
	WorkerMetricsPort string
	LogLevel          string

	LLMProvider      string
	OllamaURL        string
	OllamaGenModel   string
	OllamaEmbedModel string
	OpenAIBaseURL    string
	OpenAIAPIKey     string
	OpenAIModel      string
	LLMTimeout       time.Duration

	QdrantURL        string
	QdrantCollection string

	RerankerURL     string
	RerankerModel   string
	RerankerTimeout time.Duration

	RAGDenseTopK           int
	RAGLexicalTopK         int
	RAGLexicalSnapshotSize int
	RAGLexicalRefresh      time.Duration
	RAGFusionRRFK          int
	RAGFusionTopK          int
	RAGRerankThreshold     float64
	RAGRerankFinalCount    int
	RAGExpansionCount      int
	RAGRetrieverTimeout    time.Duration
	RAGRetrieverParallel   int
	RAGAccessAttribute     string
	RAGHistoryWindow       int

	EmbedCacheSize int
	EmbedCacheTTL  time.Duration

	SessionBackend    string
	RedisURL          string
	SessionScanTTL    time.Duration
	SessionHistoryCap int
	SessionIdleTTL    time.Duration
	SessionLockTTL    time.Duration

	PostgresDSN string

	NATSURL     string
	NATSSubject string

	VocabularyPath string

	APIAuthToken               string
	APIRateLimitRPS            float64
	APIRateLimitBurst          int
	APIBackpressureMaxInFlight int64
	APIBackpressureWait        time.Duration
	APIRequestTimeout          time.Duration

	ResilienceRetryMaxAttempts    int
	ResilienceRetryInitialBackoff time.Duration
	ResilienceRetryMaxBackoff     time.Duration
	ResilienceBreakerEnabled      bool
	ResilienceBreakerMinRequests  int
	ResilienceBreakerFailureRatio float64
	ResilienceBreakerOpenTimeout  time.Duration
}

func Load() Config {
	return Config{
		APIPort:           mustEnv("API_PORT", "8080"),
		WorkerMetricsPort: mustEnv("WORKER_METRICS_PORT", "9090"),
		LogLevel:          mustEnv("LOG_LEVEL", "info"),

		LLMProvider:      strings.ToLower(mustEnv("LLM_PROVIDER", "ollama")),
		OllamaURL:        mustEnv("OLLAMA_URL", "http://localhost:11434"),
		OllamaGenModel:   mustEnv("OLLAMA_GEN_MODEL", "qwen2.5:7b"),
		OllamaEmbedModel: mustEnv("OLLAMA_EMBED_MODEL", "bge-m3"),
		OpenAIBaseURL:    mustEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		OpenAIAPIKey:     mustEnv("OPENAI_API_KEY", ""),
		OpenAIModel:      mustEnv("OPENAI_MODEL", "gpt-4o-mini"),
		LLMTimeout:       mustEnvSeconds("LLM_TIMEOUT_SECONDS", 60*time.Second),

		QdrantURL:        mustEnv("QDRANT_URL", "http://localhost:6333"),
		QdrantCollection: mustEnv("QDRANT_COLLECTION", "dishes"),

		RerankerURL:     mustEnv("RERANKER_URL", ""),
		RerankerModel:   mustEnv("RERANKER_MODEL", "BAAI/bge-reranker-v2-m3"),
		RerankerTimeout: mustEnvSeconds("RERANKER_TIMEOUT_SECONDS", 10*time.Second),

		RAGDenseTopK:           mustEnvInt("RAG_DENSE_TOP_K", 10),
		RAGLexicalTopK:         mustEnvInt("RAG_LEXICAL_TOP_K", 10),
		RAGLexicalSnapshotSize: mustEnvInt("RAG_LEXICAL_SNAPSHOT_LIMIT", 10000),
		RAGLexicalRefresh:      mustEnvSeconds("RAG_LEXICAL_REFRESH_SECONDS", 0),
		RAGFusionRRFK:          mustEnvInt("RAG_FUSION_RRF_K", 60),
		RAGFusionTopK:          mustEnvInt("RAG_FUSION_TOP_K", 20),
		RAGRerankThreshold:     mustEnvFloat("RAG_RERANK_THRESHOLD", 0.8),
		RAGRerankFinalCount:    mustEnvInt("RAG_RERANK_FINAL_COUNT", 5),
		RAGExpansionCount:      mustEnvInt("RAG_EXPANSION_COUNT", 3),
		RAGRetrieverTimeout:    mustEnvMillis("RAG_RETRIEVER_TIMEOUT_MS", 8*time.Second),
		RAGRetrieverParallel:   mustEnvInt("RAG_RETRIEVER_MAX_PARALLEL", 0),
		RAGAccessAttribute:     mustEnv("RAG_ACCESS_ATTRIBUTE", "department_id"),
		RAGHistoryWindow:       mustEnvInt("RAG_HISTORY_WINDOW", 4),

		EmbedCacheSize: mustEnvInt("EMBED_CACHE_SIZE", 1024),
		EmbedCacheTTL:  mustEnvSeconds("EMBED_CACHE_TTL_SECONDS", 30*time.Minute),

		SessionBackend:    strings.ToLower(mustEnv("SESSION_BACKEND", "memory")),
		RedisURL:          mustEnv("REDIS_URL", "redis://localhost:6379/0"),
		SessionScanTTL:    mustEnvSeconds("SESSION_SCAN_TTL_SECONDS", 600*time.Second),
		SessionHistoryCap: mustEnvInt("SESSION_HISTORY_CAP", 10),
		SessionIdleTTL:    mustEnvSeconds("SESSION_IDLE_TTL_SECONDS", 0),
		SessionLockTTL:    mustEnvMillis("SESSION_LOCK_TTL_MS", 120*time.Second),

		PostgresDSN: mustEnv("POSTGRES_DSN", ""),

		NATSURL:     mustEnv("NATS_URL", "nats://localhost:4222"),
		NATSSubject: mustEnv("NATS_SCAN_SUBJECT", "scans.detected"),

		VocabularyPath: mustEnv("VOCABULARY_PATH", ""),

		APIAuthToken:               mustEnv("API_AUTH_TOKEN", ""),
		APIRateLimitRPS:            mustEnvFloat("API_RATE_LIMIT_RPS", 20),
		APIRateLimitBurst:          mustEnvInt("API_RATE_LIMIT_BURST", 40),
		APIBackpressureMaxInFlight: int64(mustEnvInt("API_BACKPRESSURE_MAX_IN_FLIGHT", 32)),
		APIBackpressureWait:        mustEnvMillis("API_BACKPRESSURE_WAIT_MS", 250*time.Millisecond),
		APIRequestTimeout:          mustEnvSeconds("API_REQUEST_TIMEOUT_SECONDS", 90*time.Second),

		ResilienceRetryMaxAttempts:    mustEnvInt("RESILIENCE_RETRY_MAX_ATTEMPTS", 2),
		ResilienceRetryInitialBackoff: mustEnvMillis("RESILIENCE_RETRY_INITIAL_BACKOFF_MS", 100*time.Millisecond),
		ResilienceRetryMaxBackoff:     mustEnvMillis("RESILIENCE_RETRY_MAX_BACKOFF_MS", 400*time.Millisecond),
		ResilienceBreakerEnabled:      mustEnvBool("RESILIENCE_BREAKER_ENABLED", true),
		ResilienceBreakerMinRequests:  mustEnvInt("RESILIENCE_BREAKER_MIN_REQUESTS", 10),
		ResilienceBreakerFailureRatio: mustEnvFloat("RESILIENCE_BREAKER_FAILURE_RATIO", 0.5),
		ResilienceBreakerOpenTimeout:  mustEnvSeconds("RESILIENCE_BREAKER_OPEN_TIMEOUT_SECONDS", 30*time.Second),
	}
}

func mustEnv(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func mustEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func mustEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return parsed
}

func mustEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func mustEnvSeconds(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return fallback
	}
	return time.Duration(n) * time.Second
}

func mustEnvMillis(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return fallback
	}
	return time.Duration(n) * time.Millisecond
}
