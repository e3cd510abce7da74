package config

import "time"

// DefaultRelevanceThreshold is the branch cutoff used when none is configured.
const DefaultRelevanceThreshold = 0.5

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/kotae/data/db/documents.db"
	}
	if cfg.LLM.BaseURL == "" {
		cfg.LLM.BaseURL = "http://localhost:11434"
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = "llama3.1"
	}
	if cfg.LLM.Timeout == 0 {
		cfg.LLM.Timeout = 60 * time.Second
	}
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = "ollama"
	}
	if cfg.Embedding.BaseURL == "" {
		cfg.Embedding.BaseURL = cfg.LLM.BaseURL
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = "all-minilm"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 384
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if cfg.Embedding.Timeout == 0 {
		cfg.Embedding.Timeout = 30 * time.Second
	}
	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = 20
	}
	if cfg.Retrieval.Weights.Dense == 0 && cfg.Retrieval.Weights.Sparse == 0 {
		cfg.Retrieval.Weights = RetrievalWeights{Dense: 0.5, Sparse: 0.5}
	}
	if cfg.Retrieval.RRFK == 0 {
		cfg.Retrieval.RRFK = 60
	}
	if cfg.Rerank.Provider == "" {
		if cfg.Rerank.Endpoint != "" {
			cfg.Rerank.Provider = "http"
		} else {
			cfg.Rerank.Provider = "lexical"
		}
	}
	if cfg.Rerank.Model == "" {
		cfg.Rerank.Model = "cross-encoder/ms-marco-MiniLM-L-6-v2"
	}
	if cfg.Rerank.TopN == 0 {
		cfg.Rerank.TopN = 5
	}
	if cfg.Rerank.Timeout == 0 {
		cfg.Rerank.Timeout = 30 * time.Second
	}
	if cfg.WebSearch.Provider == "" {
		cfg.WebSearch.Provider = "duckduckgo"
	}
	if cfg.WebSearch.NumResults == 0 {
		cfg.WebSearch.NumResults = 5
	}
	if cfg.WebSearch.Timeout == 0 {
		cfg.WebSearch.Timeout = 15 * time.Second
	}
	if cfg.WebSearch.RatePerSecond == 0 {
		cfg.WebSearch.RatePerSecond = 1
	}
	if cfg.Pipeline.RelevanceThreshold == nil {
		t := DefaultRelevanceThreshold
		cfg.Pipeline.RelevanceThreshold = &t
	}
	if cfg.Pipeline.MaxRefinementRetries == 0 {
		cfg.Pipeline.MaxRefinementRetries = 5
	}
	if cfg.Pipeline.FallbackMode == "" {
		cfg.Pipeline.FallbackMode = FallbackSummarize
	}
	if cfg.Pipeline.RequestTimeout == 0 {
		cfg.Pipeline.RequestTimeout = 2 * time.Minute
	}
	if cfg.Resilience.RetryMaxAttempts == 0 {
		cfg.Resilience.RetryMaxAttempts = 3
	}
	if cfg.Resilience.RetryInitialBackoff == 0 {
		cfg.Resilience.RetryInitialBackoff = 200 * time.Millisecond
	}
	if cfg.Resilience.RetryMaxBackoff == 0 {
		cfg.Resilience.RetryMaxBackoff = 2 * time.Second
	}
	if cfg.Resilience.RetryMultiplier == 0 {
		cfg.Resilience.RetryMultiplier = 2
	}
	if cfg.Resilience.BreakerMinRequests == 0 {
		cfg.Resilience.BreakerMinRequests = 10
	}
	if cfg.Resilience.BreakerFailureRatio == 0 {
		cfg.Resilience.BreakerFailureRatio = 0.5
	}
	if cfg.Resilience.BreakerOpenTimeout == 0 {
		cfg.Resilience.BreakerOpenTimeout = 30 * time.Second
	}
	if cfg.Ingest.ChunkSize == 0 {
		cfg.Ingest.ChunkSize = 200
	}
	if cfg.Ingest.ChunkOverlap == 0 {
		cfg.Ingest.ChunkOverlap = 40
	}
	if cfg.Watch.Extensions == nil {
		cfg.Watch.Extensions = []string{".txt", ".md", ".rst", ".pdf", ".docx", ".xlsx"}
	}
	// Recursive defaults to true when unset (nil).
	if len(cfg.Watch.Directories) > 0 && cfg.Watch.Recursive == nil {
		t := true
		cfg.Watch.Recursive = &t
	}
}

// Default returns a config with every default applied.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}
