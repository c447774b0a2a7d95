// Package config provides configuration loading for Kestrel.
//
// Configuration is read from a YAML file, then overridden by KESTREL_*
// environment variables. All components receive a Config value through
// their constructors; there is no global configuration state.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"gopkg.in/yaml.v3"

	kerrors "github.com/kestrelsearch/kestrel/internal/errors"
)

// DefaultAPIVersion is the managed search service wire version.
const DefaultAPIVersion = "2025-05-01-preview"

// Default traversal excludes applied by the file processor.
var DefaultExcludes = []string{".git", "node_modules", "__pycache__", "venv", ".venv", "dist", "build"}

// Config is the complete Kestrel configuration.
type Config struct {
	// Endpoint is the managed search service base URL.
	Endpoint string `yaml:"endpoint"`

	// APIKey is the admin key for write operations. Never logged.
	APIKey string `yaml:"api_key"`

	// APIVersion is the wire version (default 2025-05-01-preview).
	APIVersion string `yaml:"api_version"`

	// IndexName is the default index for single-index workflows.
	IndexName string `yaml:"index_name"`

	Embedding EmbeddingConfig `yaml:"embedding"`
	Upload    UploadConfig    `yaml:"upload"`
	Retry     RetryConfig     `yaml:"retry"`
	Processor ProcessorConfig `yaml:"processor"`
	Search    SearchConfig    `yaml:"search"`
	LogLevel  string          `yaml:"log_level"`
}

// EmbeddingConfig configures the embedding provider.
type EmbeddingConfig struct {
	// Provider selects the embedding backend: "azure_openai" or "" (none).
	Provider string `yaml:"provider"`

	// Endpoint is the embedding service base URL.
	Endpoint string `yaml:"endpoint"`

	// APIKey authenticates embedding requests.
	APIKey string `yaml:"api_key"`

	// Deployment is the embedding model deployment name.
	Deployment string `yaml:"deployment"`

	// Dimensions is the expected vector length (1536 or 3072).
	Dimensions int `yaml:"dimensions"`

	// CacheTTL is the embedding cache time-to-live (default 3600s).
	CacheTTL time.Duration `yaml:"cache_ttl"`

	// CacheSize is the maximum number of cached embeddings.
	CacheSize int `yaml:"cache_size"`
}

// UploadConfig configures bulk document upload.
type UploadConfig struct {
	// BatchSize is the default bulk upload batch size (max 1000).
	BatchSize int `yaml:"batch_size"`

	// RateLimitDelay is the minimum inter-call delay for cleanup and
	// export loops.
	RateLimitDelay time.Duration `yaml:"rate_limit_delay"`

	// MaxConcurrentRequests bounds concurrent HTTP calls to the service.
	MaxConcurrentRequests int `yaml:"max_concurrent_requests"`
}

// RetryConfig configures the REST client retry policy.
type RetryConfig struct {
	// Attempts is the total number of attempts including the first.
	Attempts int `yaml:"attempts"`

	// Delay is the initial backoff delay; doubles per retry.
	Delay time.Duration `yaml:"delay"`

	// RequestTimeout bounds a single HTTP request.
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// ProcessorConfig configures repository traversal.
type ProcessorConfig struct {
	// RespectGitignore enables .gitignore parsing (default true).
	RespectGitignore *bool `yaml:"respect_gitignore"`

	// Excludes replaces the default directory exclude set when non-empty.
	Excludes []string `yaml:"excludes"`

	// AllowExternalRoots permits indexing roots inside excluded
	// ancestor directories.
	AllowExternalRoots bool `yaml:"allow_external_roots"`

	// MaxFileSize is the largest file the processor will read, in bytes.
	MaxFileSize int64 `yaml:"max_file_size"`
}

// SearchConfig configures hybrid search defaults.
type SearchConfig struct {
	// SemanticWeight, KeywordWeight, VectorWeight are fusion weights.
	SemanticWeight float64 `yaml:"semantic_weight"`
	KeywordWeight  float64 `yaml:"keyword_weight"`
	VectorWeight   float64 `yaml:"vector_weight"`

	// ExactBoost is the additive boost for exact-term hits.
	ExactBoost float64 `yaml:"exact_boost"`

	// Deadline bounds a single hybrid search across all channels.
	Deadline time.Duration `yaml:"deadline"`

	// ExcludedPathPrefixes removes documents whose file_path starts with
	// any prefix from repository-scoped queries (e.g. "venv/").
	ExcludedPathPrefixes []string `yaml:"excluded_path_prefixes"`
}

// Default returns a Config populated with defaults. Endpoint, APIKey,
// and IndexName must still be supplied by file or environment.
func Default() Config {
	respect := true
	return Config{
		APIVersion: DefaultAPIVersion,
		LogLevel:   "info",
		Embedding: EmbeddingConfig{
			Dimensions: 1536,
			CacheTTL:   time.Hour,
			CacheSize:  10000,
		},
		Upload: UploadConfig{
			BatchSize:             1000,
			RateLimitDelay:        100 * time.Millisecond,
			MaxConcurrentRequests: 10,
		},
		Retry: RetryConfig{
			Attempts:       3,
			Delay:          time.Second,
			RequestTimeout: 30 * time.Second,
		},
		Processor: ProcessorConfig{
			RespectGitignore: &respect,
			MaxFileSize:      10 * 1024 * 1024,
		},
		Search: SearchConfig{
			SemanticWeight: 0.4,
			KeywordWeight:  0.2,
			VectorWeight:   0.4,
			ExactBoost:     0.35,
			Deadline:       10 * time.Second,
		},
	}
}

// Load reads configuration from path (optional), applies environment
// overrides, and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, kerrors.New(kerrors.ErrCodeConfigMissing,
				fmt.Sprintf("cannot read config file %s", path), err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, kerrors.ConfigError(fmt.Sprintf("invalid YAML in %s", path), err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// applyEnv overrides config fields from KESTREL_* environment variables.
func applyEnv(cfg *Config) {
	if v := os.Getenv("KESTREL_ENDPOINT"); v != "" {
		cfg.Endpoint = v
	}
	if v := os.Getenv("KESTREL_API_KEY"); v != "" {
		cfg.APIKey = v
	}
	if v := os.Getenv("KESTREL_API_VERSION"); v != "" {
		cfg.APIVersion = v
	}
	if v := os.Getenv("KESTREL_INDEX_NAME"); v != "" {
		cfg.IndexName = v
	}
	if v := os.Getenv("KESTREL_EMBEDDING_PROVIDER"); v != "" {
		cfg.Embedding.Provider = v
	}
	if v := os.Getenv("KESTREL_EMBEDDING_ENDPOINT"); v != "" {
		cfg.Embedding.Endpoint = v
	}
	if v := os.Getenv("KESTREL_EMBEDDING_API_KEY"); v != "" {
		cfg.Embedding.APIKey = v
	}
	if v := os.Getenv("KESTREL_EMBEDDING_DIMENSIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Embedding.Dimensions = n
		}
	}
	if v := os.Getenv("KESTREL_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Upload.BatchSize = n
		}
	}
	if v := os.Getenv("KESTREL_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
}

// Validate checks the configuration against the closed option set.
func (c Config) Validate() error {
	err := validation.ValidateStruct(&c,
		validation.Field(&c.Endpoint, validation.Required, is.URL),
		validation.Field(&c.APIKey, validation.Required),
		validation.Field(&c.APIVersion, validation.Required),
		validation.Field(&c.LogLevel, validation.In("debug", "info", "warn", "warning", "error")),
	)
	if err != nil {
		return kerrors.ConfigError(err.Error(), err)
	}

	if c.Embedding.Provider != "" && c.Embedding.Provider != "azure_openai" {
		return kerrors.ConfigError(
			fmt.Sprintf("unknown embedding provider %q", c.Embedding.Provider), nil).
			WithSuggestion(`use "azure_openai" or leave empty to disable embeddings`)
	}
	if d := c.Embedding.Dimensions; d != 1536 && d != 3072 {
		return kerrors.ConfigError(
			fmt.Sprintf("embedding.dimensions must be 1536 or 3072, got %d", d), nil)
	}
	if c.Upload.BatchSize < 1 || c.Upload.BatchSize > 1000 {
		return kerrors.ConfigError(
			fmt.Sprintf("upload.batch_size must be 1-1000, got %d", c.Upload.BatchSize), nil)
	}
	if !strings.HasPrefix(c.Endpoint, "https://") && !strings.HasPrefix(c.Endpoint, "http://") {
		return kerrors.ConfigError("endpoint must be an http(s) URL", nil)
	}
	return nil
}

// RespectGitignoreEnabled resolves the gitignore toggle (default true).
func (p ProcessorConfig) RespectGitignoreEnabled() bool {
	if p.RespectGitignore == nil {
		return true
	}
	return *p.RespectGitignore
}

// ExcludeSet resolves the directory exclude set.
func (p ProcessorConfig) ExcludeSet() []string {
	if len(p.Excludes) > 0 {
		return p.Excludes
	}
	return DefaultExcludes
}
