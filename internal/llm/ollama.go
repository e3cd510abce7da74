package llm

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/hyperjump/kotae/pkg/utils"
	"go.uber.org/zap"
)

// OllamaClient talks to the Ollama chat API.
type OllamaClient struct {
	baseURL     string
	model       string
	temperature float64
	httpClient  *http.Client
	executor    *Executor
	logger      *zap.Logger
}

// OllamaOption configures an OllamaClient.
type OllamaOption func(*OllamaClient)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) OllamaOption {
	return func(c *OllamaClient) { c.logger = l }
}

// WithExecutor routes calls through the given retry/breaker executor.
func WithExecutor(e *Executor) OllamaOption {
	return func(c *OllamaClient) { c.executor = e }
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) OllamaOption {
	return func(c *OllamaClient) { c.httpClient = hc }
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) OllamaOption {
	return func(c *OllamaClient) { c.temperature = t }
}

// NewOllamaClient creates a chat client for baseURL and model.
func NewOllamaClient(baseURL, model string, timeout time.Duration, opts ...OllamaOption) *OllamaClient {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	c := &OllamaClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = utils.LoggerOrNop(c.logger)
	if c.executor == nil {
		c.executor = NewExecutor(DefaultExecutorConfig(), c.logger)
	}
	return c
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string         `json:"model"`
	Messages []chatMessage  `json:"messages"`
	Stream   bool           `json:"stream"`
	Format   any            `json:"format,omitempty"`
	Options  map[string]any `json:"options,omitempty"`
}

type chatResponse struct {
	Message chatMessage `json:"message"`
}

// Complete implements Client.
func (c *OllamaClient) Complete(ctx context.Context, prompt string) (Result, error) {
	text, err := c.chat(ctx, "complete", prompt, nil)
	if err != nil {
		return nil, err
	}
	return RawResult{Text: text}, nil
}

// CompleteStructured implements Client. Ollama constrains the reply to the JSON schema.
func (c *OllamaClient) CompleteStructured(ctx context.Context, prompt string, schema Schema) (Result, error) {
	op := "structured"
	if schema.Name != "" {
		op = "structured:" + schema.Name
	}
	text, err := c.chat(ctx, op, prompt, schema.JSONSchema())
	if err != nil {
		return nil, err
	}
	return ParseStructured(text, schema), nil
}

func (c *OllamaClient) chat(ctx context.Context, operation, prompt string, format any) (string, error) {
	req := chatRequest{
		Model:    c.model,
		Messages: []chatMessage{{Role: "user", Content: prompt}},
		Stream:   false,
		Format:   format,
		Options:  map[string]any{"temperature": c.temperature},
	}
	var resp chatResponse
	start := time.Now()
	err := c.executor.Execute(ctx, "ollama:"+operation, func(ctx context.Context) error {
		resp = chatResponse{}
		return PostJSON(ctx, c.httpClient, c.baseURL+"/api/chat", req, &resp, "ollama chat")
	}, ClassifyHTTPError)
	if err != nil {
		return "", WrapTemporary("ollama chat", err)
	}
	c.logger.Debug("model call",
		zap.String("operation", operation),
		zap.Duration("duration", time.Since(start)),
		zap.Int("response_len", len(resp.Message.Content)))
	return strings.TrimSpace(resp.Message.Content), nil
}
