package embedding

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hyperjump/kotae/internal/llm"
	"github.com/hyperjump/kotae/pkg/utils"
)

// OllamaEmbedder calls the Ollama embed API.
type OllamaEmbedder struct {
	baseURL    string
	model      string
	dimensions int
	httpClient *http.Client
	executor   *llm.Executor
}

// NewOllamaEmbedder creates an embedder for model at baseURL. A nil executor gets defaults.
func NewOllamaEmbedder(baseURL, model string, dimensions int, timeout time.Duration, exec *llm.Executor) *OllamaEmbedder {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if exec == nil {
		exec = llm.NewExecutor(llm.DefaultExecutorConfig(), nil)
	}
	return &OllamaEmbedder{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		dimensions: dimensions,
		httpClient: &http.Client{Timeout: timeout},
		executor:   exec,
	}
}

// Embed returns the normalized embedding of text.
func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch embeds texts in one request.
func (e *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	request := map[string]any{
		"model": e.model,
		"input": texts,
	}
	var response struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	err := e.executor.Execute(ctx, "ollama:embed", func(ctx context.Context) error {
		return llm.PostJSON(ctx, e.httpClient, e.baseURL+"/api/embed", request, &response, "ollama embed")
	}, llm.ClassifyHTTPError)
	if err != nil {
		return nil, llm.WrapTemporary("ollama embed", err)
	}
	if len(response.Embeddings) != len(texts) {
		return nil, fmt.Errorf("ollama embed: got %d embeddings for %d texts", len(response.Embeddings), len(texts))
	}
	for i, v := range response.Embeddings {
		if e.dimensions > 0 && len(v) != e.dimensions {
			return nil, fmt.Errorf("ollama embed: dimension %d, expected %d", len(v), e.dimensions)
		}
		utils.NormalizeL2(response.Embeddings[i])
	}
	return response.Embeddings, nil
}

// Dimensions returns the configured embedding dimension.
func (e *OllamaEmbedder) Dimensions() int {
	return e.dimensions
}

// Close is a no-op.
func (e *OllamaEmbedder) Close() error {
	return nil
}
