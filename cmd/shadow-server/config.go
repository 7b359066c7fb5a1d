package main

import (
	"os"
	"strconv"
	"time"
)

// config is read entirely from the environment, mirroring oasis/cmd/sandbox's
// loadConfig: static file-based configuration is out of scope (§1), so there
// is no config file parser here, only env lookups with defaults.
type config struct {
	addr string

	postgresDSN string
	qdrantDSN   string

	anthropicAPIKey  string
	anthropicModel   string
	anthropicBaseURL string
	openaiAPIKey     string
	openaiModel      string
	openaiBaseURL    string

	embeddingAPIKey string
	embeddingModel  string
	embeddingDims   int

	webhookSecret string

	summarizerModel string
	wikiModel       string

	rpmLimit int
	tpmLimit int

	confirmToolCalls bool
	suspendTTL       time.Duration

	otelEnabled bool
}

func loadConfig() config {
	cfg := config{
		addr:            ":8080",
		anthropicModel:  "claude-sonnet-4",
		openaiModel:     "gpt-5-mini",
		embeddingModel:  "text-embedding-3-small",
		embeddingDims:   1536,
		summarizerModel: "gpt-5-mini",
		wikiModel:       "gpt-5-mini",
		rpmLimit:        60,
		tpmLimit:        150_000,
		suspendTTL:      30 * time.Minute,
	}

	if v := os.Getenv("SHADOW_ADDR"); v != "" {
		cfg.addr = v
	}
	cfg.postgresDSN = os.Getenv("SHADOW_POSTGRES_DSN")
	cfg.qdrantDSN = os.Getenv("SHADOW_QDRANT_DSN")

	cfg.anthropicAPIKey = os.Getenv("SHADOW_ANTHROPIC_API_KEY")
	if v := os.Getenv("SHADOW_ANTHROPIC_MODEL"); v != "" {
		cfg.anthropicModel = v
	}
	cfg.anthropicBaseURL = os.Getenv("SHADOW_ANTHROPIC_BASE_URL")

	cfg.openaiAPIKey = os.Getenv("SHADOW_OPENAI_API_KEY")
	if v := os.Getenv("SHADOW_OPENAI_MODEL"); v != "" {
		cfg.openaiModel = v
	}
	cfg.openaiBaseURL = os.Getenv("SHADOW_OPENAI_BASE_URL")

	cfg.embeddingAPIKey = os.Getenv("SHADOW_EMBEDDING_API_KEY")
	if v := os.Getenv("SHADOW_EMBEDDING_MODEL"); v != "" {
		cfg.embeddingModel = v
	}
	if v := os.Getenv("SHADOW_EMBEDDING_DIMENSIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.embeddingDims = n
		}
	}

	cfg.webhookSecret = os.Getenv("SHADOW_GITHUB_WEBHOOK_SECRET")

	if v := os.Getenv("SHADOW_SUMMARIZER_MODEL"); v != "" {
		cfg.summarizerModel = v
	}
	if v := os.Getenv("SHADOW_WIKI_MODEL"); v != "" {
		cfg.wikiModel = v
	}

	if v := os.Getenv("SHADOW_PROVIDER_RPM"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.rpmLimit = n
		}
	}
	if v := os.Getenv("SHADOW_PROVIDER_TPM"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.tpmLimit = n
		}
	}

	cfg.confirmToolCalls = os.Getenv("SHADOW_CONFIRM_TOOL_CALLS") == "true"
	if v := os.Getenv("SHADOW_SUSPEND_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.suspendTTL = d
		}
	}

	cfg.otelEnabled = os.Getenv("SHADOW_OTEL_DISABLED") != "true"

	return cfg
}
