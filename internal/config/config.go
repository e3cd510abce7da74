// Package config provides configuration loading and structs for kotae.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug      bool             `yaml:"debug"`
	Server     ServerConfig     `yaml:"server"`
	Storage    StorageConfig    `yaml:"storage"`
	LLM        LLMConfig        `yaml:"llm"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Retrieval  RetrievalConfig  `yaml:"retrieval"`
	Rerank     RerankConfig     `yaml:"rerank"`
	WebSearch  WebSearchConfig  `yaml:"web_search"`
	Pipeline   PipelineConfig   `yaml:"pipeline"`
	Resilience ResilienceConfig `yaml:"resilience"`
	Ingest     IngestConfig     `yaml:"ingest"`
	Watch      WatchConfig      `yaml:"watch"`
}

// WatchConfig holds directory watch settings.
type WatchConfig struct {
	Directories []string `yaml:"directories"`
	Extensions  []string `yaml:"extensions"`
	Recursive   *bool    `yaml:"recursive"`
}

// RecursiveOrDefault returns whether to watch recursively; defaults to true when unset.
func (w *WatchConfig) RecursiveOrDefault() bool {
	if w.Recursive != nil {
		return *w.Recursive
	}
	return true
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StorageConfig holds the path of the document database.
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// LLMConfig holds the model endpoint used for refinement, scoring, summarization and answers.
type LLMConfig struct {
	BaseURL     string        `yaml:"base_url"`
	Model       string        `yaml:"model"`
	Temperature float64       `yaml:"temperature"`
	Timeout     time.Duration `yaml:"timeout"`
}

// EmbeddingConfig holds embedder settings. Provider is "ollama" or "hash".
type EmbeddingConfig struct {
	Provider   string        `yaml:"provider"`
	BaseURL    string        `yaml:"base_url"`
	Model      string        `yaml:"model"`
	Dimensions int           `yaml:"dimensions"`
	CacheSize  int           `yaml:"cache_size"`
	Timeout    time.Duration `yaml:"timeout"`
}

// RetrievalWeights are the fusion weights of the two sub-retrievers.
type RetrievalWeights struct {
	Dense  float64 `yaml:"dense"`
	Sparse float64 `yaml:"sparse"`
}

// RetrievalConfig holds hybrid retrieval settings.
type RetrievalConfig struct {
	TopK    int              `yaml:"top_k_retrieve"`
	Weights RetrievalWeights `yaml:"retrieval_weights"`
	RRFK    int              `yaml:"rrf_k"`
}

// RerankConfig holds cross-scorer settings. Provider is "http" or "lexical".
type RerankConfig struct {
	Provider string        `yaml:"provider"`
	Endpoint string        `yaml:"endpoint"`
	Model    string        `yaml:"model"`
	TopN     int           `yaml:"top_n_rerank"`
	Timeout  time.Duration `yaml:"timeout"`
}

// WebSearchConfig holds fallback web search settings. Provider is "duckduckgo" or "bing".
type WebSearchConfig struct {
	Provider      string        `yaml:"provider"`
	Endpoint      string        `yaml:"endpoint"`
	APIKey        string        `yaml:"api_key"`
	NumResults    int           `yaml:"num_results"`
	Timeout       time.Duration `yaml:"timeout"`
	RatePerSecond float64       `yaml:"rate_per_second"`
}

// Fallback modes.
const (
	FallbackSummarize = "summarize"
	FallbackDirect    = "direct"
)

// PipelineConfig holds the decision settings of the answer pipeline.
type PipelineConfig struct {
	RelevanceThreshold   *float64      `yaml:"relevance_threshold"`
	MaxRefinementRetries int           `yaml:"max_refinement_retries"`
	FallbackMode         string        `yaml:"fallback_mode"`
	RetryOnLowRelevance  bool          `yaml:"retry_on_low_relevance"`
	RequestTimeout       time.Duration `yaml:"request_timeout"`
}

// Threshold returns the relevance cutoff; defaults to 0.5 when unset.
func (p *PipelineConfig) Threshold() float64 {
	if p.RelevanceThreshold != nil {
		return *p.RelevanceThreshold
	}
	return DefaultRelevanceThreshold
}

// ResilienceConfig holds retry and circuit breaker settings for model calls.
type ResilienceConfig struct {
	RetryMaxAttempts    int           `yaml:"retry_max_attempts"`
	RetryInitialBackoff time.Duration `yaml:"retry_initial_backoff"`
	RetryMaxBackoff     time.Duration `yaml:"retry_max_backoff"`
	RetryMultiplier     float64       `yaml:"retry_multiplier"`
	BreakerEnabled      *bool         `yaml:"breaker_enabled"`
	BreakerMinRequests  uint32        `yaml:"breaker_min_requests"`
	BreakerFailureRatio float64       `yaml:"breaker_failure_ratio"`
	BreakerOpenTimeout  time.Duration `yaml:"breaker_open_timeout"`
}

// BreakerEnabledOrDefault returns whether the circuit breaker is on; defaults to true when unset.
func (r *ResilienceConfig) BreakerEnabledOrDefault() bool {
	if r.BreakerEnabled != nil {
		return *r.BreakerEnabled
	}
	return true
}

// IngestConfig holds chunking settings (in words).
type IngestConfig struct {
	ChunkSize    int `yaml:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap"`
}

// Load reads and parses the config file at path, expands paths, applies defaults and validates.
// Returns an error if the file cannot be read or parsed, or holds invalid values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	configDir := filepath.Dir(path)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	for i := range cfg.Watch.Directories {
		cfg.Watch.Directories[i] = expandPath(cfg.Watch.Directories[i], configDir)
	}

	return &cfg, nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Validate rejects values the pipeline cannot run with.
func (c *Config) Validate() error {
	if t := c.Pipeline.Threshold(); t < 0 || t > 1 {
		return fmt.Errorf("invalid config: relevance_threshold %v not in [0,1]", t)
	}
	if c.Pipeline.MaxRefinementRetries < 1 {
		return fmt.Errorf("invalid config: max_refinement_retries must be >= 1")
	}
	if c.Retrieval.TopK < 1 {
		return fmt.Errorf("invalid config: top_k_retrieve must be >= 1")
	}
	if c.Rerank.TopN < 1 {
		return fmt.Errorf("invalid config: top_n_rerank must be >= 1")
	}
	w := c.Retrieval.Weights
	if w.Dense < 0 || w.Sparse < 0 || w.Dense+w.Sparse == 0 {
		return fmt.Errorf("invalid config: retrieval_weights must be non-negative and not both zero")
	}
	switch c.Pipeline.FallbackMode {
	case FallbackSummarize, FallbackDirect:
	default:
		return fmt.Errorf("invalid config: unknown fallback_mode %q", c.Pipeline.FallbackMode)
	}
	if c.Ingest.ChunkOverlap >= c.Ingest.ChunkSize {
		return fmt.Errorf("invalid config: chunk_overlap must be smaller than chunk_size")
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory. ":memory:" is kept as-is.
func expandPath(path string, configDir string) string {
	if path == ":memory:" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, strings.TrimPrefix(path, "~/"))
	}
	return path
}
