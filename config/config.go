// Package config centralizes the environment-variable surface described
// in SPEC_FULL.md §6.2. The teacher reads os.Getenv ad hoc per package;
// this module's much larger config surface is collected here once so
// every package constructs its dependencies from a single resolved
// struct instead of re-parsing env vars in a dozen places.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	DBURL string

	RedisURL string
	BusURL   string

	S3Endpoint  string
	S3Bucket    string
	S3Key       string
	S3Secret    string
	S3Region    string
	S3UseSSL    bool

	EmbedProvider    string
	EmbedDim         int
	EmbedBatchSize   int
	RemoteEmbedURL   string
	RemoteEmbedToken string

	LLMProvider    string
	LLMModel       string
	LLMTimeout     time.Duration
	LLMMaxTokens   int
	LLMTemperature float64

	TopKDefault   int
	TopKMax       int
	MaxCtxTokens  int
	MaxCtxCap     int
	MaxCtxChunks  int

	RerankEnabled bool
	RerankURL     string
	RerankToken   string

	IVFFlatLists   int
	IVFFlatProbes  int

	MaxAttempts   int
	BackoffBaseMS int
	BackoffMaxMS  int

	RateLimitPerMin int
	DailyTokenQuota int

	AnswerCacheTTL        time.Duration
	AnswerContentFilter   bool

	WSBufferLimit int
	PingInterval  time.Duration
	PingTimeout   time.Duration

	AuthSecret  string
	RequireAuth bool

	MaxUploadBytes int64
	MaxTableRows   int
}

func getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getint(key string, def int) int {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getint64(key string, def int64) int64 {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return def
}

func getfloat(key string, def float64) float64 {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			return n
		}
	}
	return def
}

func getbool(key string, def bool) bool {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getduration(key string, def time.Duration) time.Duration {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return time.Duration(n) * time.Second
		}
	}
	return def
}

// Load reads the process environment into a Config, applying the
// defaults named throughout spec.md §4. Callers that need a .env file
// loaded first should call godotenv.Load before Load.
func Load() (*Config, error) {
	c := &Config{
		DBURL: getenv("DB_URL", "sqlite://rag.db"),

		RedisURL: getenv("REDIS_URL", ""),
		BusURL:   getenv("BUS_URL", ""),

		S3Endpoint: getenv("S3_ENDPOINT", "localhost:9000"),
		S3Bucket:   getenv("S3_BUCKET", "rag-documents"),
		S3Key:      getenv("S3_KEY", ""),
		S3Secret:   getenv("S3_SECRET", ""),
		S3Region:   getenv("S3_REGION", "us-east-1"),
		S3UseSSL:   getbool("S3_USE_SSL", false),

		EmbedProvider:    getenv("EMBED_PROVIDER", "local"),
		EmbedDim:         getint("EMBED_DIM", 384),
		EmbedBatchSize:   getint("EMBED_BATCH_SIZE", 32),
		RemoteEmbedURL:   getenv("REMOTE_EMBED_URL", ""),
		RemoteEmbedToken: getenv("REMOTE_EMBED_TOKEN", ""),

		LLMProvider:    getenv("LLM_PROVIDER", "openai-compatible"),
		LLMModel:       getenv("LLM_MODEL", "gpt-oss-120b"),
		LLMTimeout:     getduration("LLM_TIMEOUT", 30*time.Second),
		LLMMaxTokens:   getint("LLM_MAX_TOKENS", 512),
		LLMTemperature: getfloat("LLM_TEMPERATURE", 0.2),

		TopKDefault:  getint("TOP_K_DEFAULT", 5),
		TopKMax:      getint("TOP_K_MAX", 50),
		MaxCtxTokens: getint("MAX_CTX_TOKENS", 1200),
		MaxCtxCap:    getint("MAX_CTX_CAP", 4096),
		MaxCtxChunks: getint("MAX_CTX_CHUNKS", 6),

		RerankEnabled: getbool("RERANK_ENABLED", false),
		RerankURL:     getenv("RERANK_URL", ""),
		RerankToken:   getenv("RERANK_TOKEN", ""),

		IVFFlatLists:  getint("IVFFLAT_LISTS", 100),
		IVFFlatProbes: getint("IVFFLAT_PROBES", 10),

		MaxAttempts:   getint("MAX_ATTEMPTS", 5),
		BackoffBaseMS: getint("BACKOFF_BASE_MS", 500),
		BackoffMaxMS:  getint("BACKOFF_MAX_MS", 30000),

		RateLimitPerMin: getint("RATE_LIMIT_PER_MIN", 60),
		DailyTokenQuota: getint("DAILY_TOKEN_QUOTA", 200000),

		AnswerCacheTTL:      getduration("ANSWER_CACHE_TTL", 3600*time.Second),
		AnswerContentFilter: getbool("ANSWER_CONTENT_FILTER", false),

		WSBufferLimit: getint("WS_BUFFER_LIMIT", 256),
		PingInterval:  getduration("PING_INTERVAL", 30*time.Second),
		PingTimeout:   getduration("PING_TIMEOUT", 10*time.Second),

		AuthSecret:  getenv("AUTH_SECRET", ""),
		RequireAuth: getbool("REQUIRE_AUTH", true),

		MaxUploadBytes: getint64("MAX_UPLOAD_BYTES", 50<<20),
		MaxTableRows:   getint("MAX_TABLE_ROWS", 500),
	}

	if c.RequireAuth && strings.TrimSpace(c.AuthSecret) == "" {
		return nil, fmt.Errorf("config: AUTH_SECRET is required when REQUIRE_AUTH is true")
	}
	if c.EmbedProvider != "local" && c.EmbedProvider != "remote" {
		return nil, fmt.Errorf("config: EMBED_PROVIDER must be local or remote, got %q", c.EmbedProvider)
	}
	if c.EmbedProvider == "remote" && strings.TrimSpace(c.RemoteEmbedURL) == "" {
		return nil, fmt.Errorf("config: REMOTE_EMBED_URL is required when EMBED_PROVIDER=remote")
	}

	return c, nil
}
