package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port string

	// Auth
	SDMakerAPIKey string

	// Groq inference
	GroqAPIKey  string
	GroqBaseURL string
	FastModel   string
	HeavyModel  string

	// Session files
	TemplatePath      string
	KnowledgeBasePath string

	// Upload limits
	MaxUploadBytes int64

	// Fast-tier prompt truncation
	ValidationSnippet int
	GapSnippet        int

	// Run state
	RunTTL time.Duration
}

func Load() Config {
	cfg := Config{
		Port: envOr("PORT", "8090"),

		SDMakerAPIKey: os.Getenv("SDMAKER_API_KEY"),

		GroqAPIKey:  os.Getenv("GROQ_API_KEY"),
		GroqBaseURL: envOr("GROQ_BASE_URL", "https://api.groq.com/openai/v1"),
		FastModel:   envOr("GROQ_FAST_MODEL", "llama-3.1-8b-instant"),
		HeavyModel:  envOr("GROQ_HEAVY_MODEL", "llama-3.3-70b-versatile"),

		TemplatePath:      envOr("TEMPLATE_PATH", "template.xml"),
		KnowledgeBasePath: envOr("KNOWLEDGE_BASE_PATH", "knowledge_base.json"),

		MaxUploadBytes: envInt64("MAX_UPLOAD_BYTES", 52428800), // 50MB

		ValidationSnippet: envInt("VALIDATION_SNIPPET_CHARS", 4000),
		GapSnippet:        envInt("GAP_SNIPPET_CHARS", 3000),

		RunTTL: envDuration("RUN_TTL", 2*time.Hour),
	}

	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 52428800
	}
	if cfg.ValidationSnippet <= 0 {
		cfg.ValidationSnippet = 4000
	}
	if cfg.GapSnippet <= 0 {
		cfg.GapSnippet = 3000
	}
	if cfg.RunTTL <= 0 {
		cfg.RunTTL = 2 * time.Hour
	}

	return cfg
}

func (c Config) Validate() error {
	if c.SDMakerAPIKey == "" {
		return fmt.Errorf("SDMAKER_API_KEY is required")
	}
	if c.GroqAPIKey == "" {
		return fmt.Errorf("GROQ_API_KEY is required")
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
