package generate

import (
	"context"
	"fmt"
	"strings"

	"github.com/hyperjump/kotae/internal/llm"
	"github.com/hyperjump/kotae/pkg/utils"
	"go.uber.org/zap"
)

const summaryTemplate = `Summarize the following text into a clear, cohesive explanation suitable for answering a user's question.

Text:
%s`

// SummaryOutput is the structured reply of the summarization call.
type SummaryOutput struct {
	Summary string `json:"summary"`
}

// SummarySchema is the structured-output contract for summarization.
var SummarySchema = llm.Schema{
	Name: "summary",
	Fields: []llm.Field{{
		Name:        "summary",
		Types:       []llm.FieldType{llm.TypeString},
		Description: "Concise summary of the input text",
	}},
	New: func() any { return &SummaryOutput{} },
}

// Summarizer condenses text.
type Summarizer struct {
	client llm.Client
	logger *zap.Logger
}

// NewSummarizer creates a Summarizer. A nil logger is replaced by a no-op logger.
func NewSummarizer(client llm.Client, logger *zap.Logger) *Summarizer {
	return &Summarizer{client: client, logger: utils.LoggerOrNop(logger)}
}

// Summarize returns a summary of text. Empty input returns "" without a model call.
func (s *Summarizer) Summarize(ctx context.Context, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", nil
	}
	res, err := s.client.CompleteStructured(ctx, fmt.Sprintf(summaryTemplate, text), SummarySchema)
	if err != nil {
		return "", fmt.Errorf("summarize: %w", err)
	}
	summary := strings.TrimSpace(llm.ExtractString(res, "summary"))
	if summary == "" {
		return "", fmt.Errorf("summarize: empty summary")
	}
	return summary, nil
}
