// Package refine rewrites the user query into a more precise retrieval query.
package refine

import (
	"context"
	"fmt"
	"strings"

	"github.com/hyperjump/kotae/internal/llm"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/pkg/utils"
	"go.uber.org/zap"
)

const promptTemplate = `You rewrite search queries so they retrieve better documents from a knowledge base, keeping the user's intent.

Make the query more descriptive, clarify ambiguous terms, and add keywords a relevant document would contain.

Original query:
%s

Return only the refined query.`

// Output is the structured reply of the refinement call.
type Output struct {
	RefinedQuery string `json:"refined_query"`
}

// Schema is the structured-output contract for refinement.
var Schema = llm.Schema{
	Name: "query_refinement",
	Fields: []llm.Field{{
		Name:        "refined_query",
		Types:       []llm.FieldType{llm.TypeString},
		Description: "A refined query that helps retrieve relevant documents.",
	}},
	New: func() any { return &Output{} },
}

// Refiner produces a refined query from the current state.
type Refiner struct {
	client llm.Client
	logger *zap.Logger
}

// New creates a Refiner. A nil logger is replaced by a no-op logger.
func New(client llm.Client, logger *zap.Logger) *Refiner {
	return &Refiner{client: client, logger: utils.LoggerOrNop(logger)}
}

// Refine returns a delta with the refined query and the incremented refinement count.
// The count increments even when the model call fails; the raw query is then used.
func (r *Refiner) Refine(ctx context.Context, state models.QueryState) models.StateDelta {
	input := state.RefinedQuery
	if strings.TrimSpace(input) == "" {
		input = utils.NormalizeQuery(state.OriginalQuery)
	}
	delta := models.StateDelta{RefinementCount: models.Ptr(state.RefinementCount + 1)}

	refined := ""
	res, err := r.client.CompleteStructured(ctx, fmt.Sprintf(promptTemplate, input), Schema)
	if err != nil {
		r.logger.Warn("refinement failed", zap.String("query", input), zap.Error(err))
	} else {
		refined = strings.TrimSpace(llm.ExtractString(res, "refined_query"))
	}
	if refined == "" {
		refined = state.OriginalQuery
	}
	delta.RefinedQuery = models.Ptr(refined)
	r.logger.Debug("query refined",
		zap.String("input", input),
		zap.String("refined", refined),
		zap.Int("count", *delta.RefinementCount))
	return delta
}
