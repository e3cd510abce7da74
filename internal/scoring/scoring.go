// Package scoring judges how relevant retrieved text is to a query.
package scoring

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/hyperjump/kotae/internal/llm"
	"github.com/hyperjump/kotae/pkg/utils"
	"go.uber.org/zap"
)

const promptTemplate = `You judge how useful a document is for answering a user's query.
Score from 0 to 1: 0 means not relevant at all, 1 means highly relevant and directly helpful.

User query:
%s

Retrieved document:
%s

Return only the relevance score as a number between 0 and 1.`

// Schema is the structured-output contract for scoring. The score may come back as text.
var Schema = llm.Schema{
	Name: "relevance_score",
	Fields: []llm.Field{{
		Name:        "score",
		Types:       []llm.FieldType{llm.TypeString, llm.TypeNumber},
		Description: "Relevance score between 0 and 1",
	}},
}

// Scorer asks the model for a relevance score.
type Scorer struct {
	client llm.Client
	logger *zap.Logger
}

// New creates a Scorer. A nil logger is replaced by a no-op logger.
func New(client llm.Client, logger *zap.Logger) *Scorer {
	return &Scorer{client: client, logger: utils.LoggerOrNop(logger)}
}

// Score returns a relevance score in [0,1]. Empty text scores 0 without a model call.
// Failures and unparseable output also score 0.
func (s *Scorer) Score(ctx context.Context, query, documentText string) float64 {
	if strings.TrimSpace(documentText) == "" {
		return 0
	}
	res, err := s.client.CompleteStructured(ctx, fmt.Sprintf(promptTemplate, query, documentText), Schema)
	if err != nil {
		s.logger.Warn("relevance scoring failed", zap.Error(err))
		return 0
	}
	v := llm.ExtractValue(res, "score")
	score, ok := ParseScore(v)
	if !ok {
		s.logger.Warn("unparseable relevance score", zap.Any("value", v))
	}
	return score
}

var numberPattern = regexp.MustCompile(`[-+]?\d*\.?\d+(?:[eE][-+]?\d+)?`)

// ratioPattern matches "x/y" and "x out of y" scores.
var ratioPattern = regexp.MustCompile(`([-+]?\d*\.?\d+)\s*(?:/|out of)\s*(\d*\.?\d+)`)

// ParseScore converts model output to a score clamped to [0,1].
// Strings with a ratio are divided out ("8/10" and "4 out of 5" give 0.8); otherwise the
// first number is used. ok is false when nothing parses.
func ParseScore(v any) (score float64, ok bool) {
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case float32:
		f = float64(x)
	case int:
		f = float64(x)
	case int64:
		f = float64(x)
	case json.Number:
		n, err := x.Float64()
		if err != nil {
			return 0, false
		}
		f = n
	case string:
		if r, ok := parseRatio(x); ok {
			return utils.Clamp01(r), true
		}
		m := numberPattern.FindString(x)
		if m == "" {
			return 0, false
		}
		n, err := strconv.ParseFloat(m, 64)
		if err != nil {
			return 0, false
		}
		f = n
	default:
		return 0, false
	}
	return utils.Clamp01(f), true
}

// parseRatio reads the first "x/y" in s as x divided by y.
func parseRatio(s string) (float64, bool) {
	m := ratioPattern.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	num, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	den, err := strconv.ParseFloat(m[2], 64)
	if err != nil || den <= 0 {
		return 0, false
	}
	return num / den, true
}
