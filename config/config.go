package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is read once at startup. Mode switches (analyzer, auth, stores) are
// resolved here into concrete implementations; nothing re-checks them at
// call sites.
type Config struct {
	Port    string `json:"port"`
	DataDir string `json:"data_dir"`

	// Analyzer strategy: "demo" runs the bundled local dataset with simulated
	// stage timing, "remote" delegates to an external analysis service.
	AnalyzerMode string `json:"analyzer_mode"`
	AnalyzerURL  string `json:"analyzer_url"`

	// Auth strategy: "none" (always authenticated) or "token" (static bearer
	// tokens, comma separated in AUTH_TOKENS).
	AuthMode   string   `json:"auth_mode"`
	AuthTokens []string `json:"auth_tokens"`

	// Results persistence: "memory" or "postgres".
	ResultStore string `json:"result_store"`
	DatabaseURL string `json:"database_url"`

	// Moment index backend: "memory", "pgvector" or "milvus".
	MomentIndex      string `json:"moment_index"`
	MilvusAddr       string `json:"milvus_addr"`
	MilvusUsername   string `json:"milvus_username"`
	MilvusPassword   string `json:"milvus_password"`
	MilvusAPIKey     string `json:"milvus_api_key"`
	MilvusCollection string `json:"milvus_collection"`

	// OpenAI-compatible endpoint for embeddings and answer synthesis.
	APIKey         string `json:"api_key"`
	BaseURL        string `json:"base_url"`
	EmbeddingModel string `json:"embedding_model"`
	ChatModel      string `json:"chat_model"`

	// Client-side polling defaults.
	PollIntervalMS  int `json:"poll_interval_ms"`
	CompleteGraceMS int `json:"complete_grace_ms"`

	LogLevel string `json:"log_level"`
}

var globalConfig *Config

// LoadConfig loads .env, then config.json if present, then applies
// environment overrides. Subsequent calls return the cached value.
func LoadConfig() (*Config, error) {
	if globalConfig != nil {
		return globalConfig, nil
	}

	_ = godotenv.Load()

	cfg := defaults()
	if data, err := os.ReadFile("config.json"); err == nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config.json: %w", err)
		}
	}
	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	globalConfig = cfg
	return globalConfig, nil
}

// Reset clears the cached config. Tests only.
func Reset() { globalConfig = nil }

func defaults() *Config {
	return &Config{
		Port:             "8080",
		DataDir:          "./data",
		AnalyzerMode:     "demo",
		AuthMode:         "none",
		ResultStore:      "memory",
		MomentIndex:      "memory",
		MilvusAddr:       "localhost:19530",
		MilvusCollection: "transcript_moments",
		EmbeddingModel:   "text-embedding-3-small",
		ChatModel:        "gpt-4o-mini",
		PollIntervalMS:   3000,
		CompleteGraceMS:  500,
		LogLevel:         "info",
	}
}

func applyEnv(cfg *Config) {
	setString(&cfg.Port, "PORT")
	setString(&cfg.DataDir, "DATA_DIR")
	setString(&cfg.AnalyzerMode, "ANALYZER_MODE")
	setString(&cfg.AnalyzerURL, "ANALYZER_URL")
	setString(&cfg.AuthMode, "AUTH_MODE")
	setString(&cfg.ResultStore, "RESULT_STORE")
	setString(&cfg.DatabaseURL, "DATABASE_URL")
	setString(&cfg.MomentIndex, "MOMENT_INDEX")
	setString(&cfg.MilvusAddr, "MILVUS_ADDR")
	setString(&cfg.MilvusUsername, "MILVUS_USERNAME")
	setString(&cfg.MilvusPassword, "MILVUS_PASSWORD")
	setString(&cfg.MilvusAPIKey, "MILVUS_API_KEY")
	setString(&cfg.MilvusCollection, "MILVUS_COLLECTION")
	setString(&cfg.APIKey, "API_KEY")
	setString(&cfg.BaseURL, "BASE_URL")
	setString(&cfg.EmbeddingModel, "EMBEDDING_MODEL")
	setString(&cfg.ChatModel, "CHAT_MODEL")
	setString(&cfg.LogLevel, "LOG_LEVEL")
	setInt(&cfg.PollIntervalMS, "POLL_INTERVAL_MS")
	setInt(&cfg.CompleteGraceMS, "COMPLETE_GRACE_MS")

	if v := os.Getenv("AUTH_TOKENS"); v != "" {
		tokens := strings.Split(v, ",")
		cfg.AuthTokens = cfg.AuthTokens[:0]
		for _, t := range tokens {
			if t = strings.TrimSpace(t); t != "" {
				cfg.AuthTokens = append(cfg.AuthTokens, t)
			}
		}
	}
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

// Validate rejects mode selections that cannot be wired at startup.
func (c *Config) Validate() error {
	var errs []string

	switch c.AnalyzerMode {
	case "demo":
	case "remote":
		if strings.TrimSpace(c.AnalyzerURL) == "" {
			errs = append(errs, "ANALYZER_URL is required when ANALYZER_MODE=remote")
		}
	default:
		errs = append(errs, fmt.Sprintf("unknown analyzer mode %q", c.AnalyzerMode))
	}

	switch c.AuthMode {
	case "none":
	case "token":
		if len(c.AuthTokens) == 0 {
			errs = append(errs, "AUTH_TOKENS is required when AUTH_MODE=token")
		}
	default:
		errs = append(errs, fmt.Sprintf("unknown auth mode %q", c.AuthMode))
	}

	switch c.ResultStore {
	case "memory", "postgres":
	default:
		errs = append(errs, fmt.Sprintf("unknown result store %q", c.ResultStore))
	}

	switch c.MomentIndex {
	case "memory", "pgvector", "milvus":
	default:
		errs = append(errs, fmt.Sprintf("unknown moment index %q", c.MomentIndex))
	}

	if c.PollIntervalMS <= 0 {
		errs = append(errs, "poll interval must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// HasValidAPI reports whether the OpenAI-compatible endpoint is usable.
// Embedding-backed stores fall back to the memory index without it.
func (c *Config) HasValidAPI() bool {
	return strings.TrimSpace(c.APIKey) != ""
}

// PollInterval returns the client polling interval.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMS) * time.Millisecond
}

// CompleteGrace returns the delay between seeing a complete status and
// firing the completion callback, so a full progress bar gets one render.
func (c *Config) CompleteGrace() time.Duration {
	return time.Duration(c.CompleteGraceMS) * time.Millisecond
}
