// Package generate writes grounded answers and condenses web snippets.
package generate

import (
	"context"
	"fmt"
	"strings"

	"github.com/hyperjump/kotae/internal/llm"
	"github.com/hyperjump/kotae/pkg/utils"
	"go.uber.org/zap"
)

// InsufficientContext is returned when the context cannot answer the query.
const InsufficientContext = "The provided document does not contain enough information to answer this question."

const answerTemplate = `You answer user queries using only the information in the document context below.

Instructions:
- Read the document carefully.
- Answer accurately using only information from the document.
- If the document does not contain enough information to answer, reply exactly:
  "` + InsufficientContext + `"
- Do not include reasoning unless asked.

Document context:
%s

User query:
%s

Answer:`

// Generator produces the final answer from a context.
type Generator struct {
	client llm.Client
	logger *zap.Logger
}

// NewGenerator creates a Generator. A nil logger is replaced by a no-op logger.
func NewGenerator(client llm.Client, logger *zap.Logger) *Generator {
	return &Generator{client: client, logger: utils.LoggerOrNop(logger)}
}

// Generate answers query from docContext. The answer is read from an "answer" or
// "response" field, then the raw text. It never returns an empty string:
// model failure or empty output yields InsufficientContext.
func (g *Generator) Generate(ctx context.Context, query, docContext string) string {
	res, err := g.client.Complete(ctx, fmt.Sprintf(answerTemplate, docContext, query))
	if err != nil {
		g.logger.Warn("answer generation failed", zap.Error(err))
		return InsufficientContext
	}
	answer := strings.TrimSpace(llm.ExtractString(res, "answer"))
	if answer == "" {
		answer = strings.TrimSpace(llm.ExtractString(res, "response"))
	}
	if answer == "" && res != nil {
		answer = strings.TrimSpace(res.Raw())
	}
	if answer == "" {
		g.logger.Warn("empty answer from model")
		return InsufficientContext
	}
	return answer
}
