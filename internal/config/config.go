package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	APIPort  string
	APIKey   string
	LogLevel string

	PostgresDSN          string
	CorpusStyleCacheSize int
	CorpusStyleCacheTTL  time.Duration
	CorpusDefaultID      string
	// CorpusStyles is a static "corpus=style,corpus=style" map used when
	// PostgresDSN is empty.
	CorpusStyles map[string]string

	NATSURL              string
	NATSRetrievalSubject string
	NATSQueueGroup       string

	OllamaURL        string
	OllamaGenModel   string
	OllamaEmbedModel string

	QdrantURL        string
	QdrantCollection string
	QdrantDistance   string

	RetrievalTopK                     int
	RetrievalMaxTopK                  int
	RetrievalEnableMultihop           bool
	RetrievalEnableHyDE               bool
	RetrievalEnableFallback           bool
	RetrievalHyDEWeight               float64
	RetrievalRRFK                     int
	RetrievalBoostTwoSources          float64
	RetrievalBoostThreeSources        float64
	RetrievalFallbackThreshold        float64
	RetrievalFallbackImprovementRatio float64
	RetrievalCallTimeout              time.Duration
	RetrievalRequestTimeout           time.Duration
	RetrievalMaxParallel              int
	RetrievalCuesFile                 string
	RetrievalContextTopN              int

	APIRateLimitRPS   float64
	APIRateLimitBurst int
	APIMaxInFlight    int
	APIQueueWait      time.Duration

	ResilienceRetryMaxAttempts        int
	ResilienceRetryInitialBackoff     time.Duration
	ResilienceRetryMaxBackoff         time.Duration
	ResilienceRetryMultiplier         float64
	ResilienceBreakerEnabled          bool
	ResilienceBreakerMinRequests      int
	ResilienceBreakerFailureRatio     float64
	ResilienceBreakerOpenTimeout      time.Duration
	ResilienceBreakerHalfOpenMaxCalls int

	WorkerMetricsPort string
}

func Load() Config {
	return Config{
		APIPort:  mustEnv("API_PORT", "8080"),
		APIKey:   mustEnv("API_KEY", ""),
		LogLevel: mustEnv("LOG_LEVEL", "info"),

		PostgresDSN:          mustEnv("POSTGRES_DSN", ""),
		CorpusStyleCacheSize: mustEnvInt("CORPUS_STYLE_CACHE_SIZE", 256),
		CorpusStyleCacheTTL:  mustEnvDuration("CORPUS_STYLE_CACHE_TTL", 5*time.Minute),
		CorpusDefaultID:      mustEnv("CORPUS_DEFAULT_ID", ""),
		CorpusStyles:         mustEnvMap("CORPUS_STYLES", nil),

		NATSURL:              mustEnv("NATS_URL", "nats://localhost:4222"),
		NATSRetrievalSubject: mustEnv("NATS_RETRIEVAL_SUBJECT", "retrieval.requests"),
		NATSQueueGroup:       mustEnv("NATS_QUEUE_GROUP", "retrieval-workers"),

		OllamaURL:        mustEnv("OLLAMA_URL", "http://localhost:11434"),
		OllamaGenModel:   mustEnv("OLLAMA_GEN_MODEL", "llama3.1:8b"),
		OllamaEmbedModel: mustEnv("OLLAMA_EMBED_MODEL", "nomic-embed-text"),

		QdrantURL:        mustEnv("QDRANT_URL", "http://localhost:6333"),
		QdrantCollection: mustEnv("QDRANT_COLLECTION", "normative_chunks"),
		QdrantDistance:   mustEnv("QDRANT_DISTANCE", ""),

		RetrievalTopK:                     mustEnvInt("RETRIEVAL_TOP_K", 10),
		RetrievalMaxTopK:                  mustEnvInt("RETRIEVAL_MAX_TOP_K", 100),
		RetrievalEnableMultihop:           mustEnvBool("RETRIEVAL_ENABLE_MULTIHOP", true),
		RetrievalEnableHyDE:               mustEnvBool("RETRIEVAL_ENABLE_HYDE", true),
		RetrievalEnableFallback:           mustEnvBool("RETRIEVAL_ENABLE_FALLBACK", true),
		RetrievalHyDEWeight:               mustEnvFloat("RETRIEVAL_HYDE_WEIGHT", 0.7),
		RetrievalRRFK:                     mustEnvInt("RETRIEVAL_RRF_K", 60),
		RetrievalBoostTwoSources:          mustEnvFloat("RETRIEVAL_BOOST_TWO_SOURCES", 1.3),
		RetrievalBoostThreeSources:        mustEnvFloat("RETRIEVAL_BOOST_THREE_SOURCES", 1.5),
		RetrievalFallbackThreshold:        mustEnvFloat("RETRIEVAL_FALLBACK_THRESHOLD", 0.30),
		RetrievalFallbackImprovementRatio: mustEnvFloat("RETRIEVAL_FALLBACK_IMPROVEMENT_RATIO", 1.2),
		RetrievalCallTimeout:              mustEnvDuration("RETRIEVAL_CALL_TIMEOUT", 8*time.Second),
		RetrievalRequestTimeout:           mustEnvDuration("RETRIEVAL_REQUEST_TIMEOUT", 30*time.Second),
		RetrievalMaxParallel:              mustEnvInt("RETRIEVAL_MAX_PARALLEL", 4),
		RetrievalCuesFile:                 mustEnv("RETRIEVAL_CUES_FILE", ""),
		RetrievalContextTopN:              mustEnvInt("RETRIEVAL_CONTEXT_TOP_N", 5),

		APIRateLimitRPS:   mustEnvFloat("API_RATE_LIMIT_RPS", 20),
		APIRateLimitBurst: mustEnvInt("API_RATE_LIMIT_BURST", 40),
		APIMaxInFlight:    mustEnvInt("API_MAX_IN_FLIGHT", 32),
		APIQueueWait:      mustEnvDuration("API_QUEUE_WAIT", 250*time.Millisecond),

		ResilienceRetryMaxAttempts:        mustEnvInt("RESILIENCE_RETRY_MAX_ATTEMPTS", 2),
		ResilienceRetryInitialBackoff:     mustEnvDuration("RESILIENCE_RETRY_INITIAL_BACKOFF", 50*time.Millisecond),
		ResilienceRetryMaxBackoff:         mustEnvDuration("RESILIENCE_RETRY_MAX_BACKOFF", 200*time.Millisecond),
		ResilienceRetryMultiplier:         mustEnvFloat("RESILIENCE_RETRY_MULTIPLIER", 2.0),
		ResilienceBreakerEnabled:          mustEnvBool("RESILIENCE_BREAKER_ENABLED", true),
		ResilienceBreakerMinRequests:      mustEnvInt("RESILIENCE_BREAKER_MIN_REQUESTS", 10),
		ResilienceBreakerFailureRatio:     mustEnvFloat("RESILIENCE_BREAKER_FAILURE_RATIO", 0.5),
		ResilienceBreakerOpenTimeout:      mustEnvDuration("RESILIENCE_BREAKER_OPEN_TIMEOUT", 30*time.Second),
		ResilienceBreakerHalfOpenMaxCalls: mustEnvInt("RESILIENCE_BREAKER_HALF_OPEN_MAX_CALLS", 2),

		WorkerMetricsPort: mustEnv("WORKER_METRICS_PORT", "9090"),
	}
}

func mustEnv(key, fallback string) string {
	v := os.Getenv(key)
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

func mustEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return parsed
}

// mustEnvMap parses "k=v,k=v"; malformed pairs are skipped.
func mustEnvMap(key string, fallback map[string]string) map[string]string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	out := make(map[string]string)
	for _, pair := range strings.Split(v, ",") {
		k, val, ok := strings.Cut(pair, "=")
		k, val = strings.TrimSpace(k), strings.TrimSpace(val)
		if !ok || k == "" || val == "" {
			continue
		}
		out[k] = val
	}
	return out
}
