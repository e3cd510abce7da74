package mcpserver

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/hyperjump/kotae/internal/models"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubAnswerer struct{ last string }

func (s *stubAnswerer) Answer(_ context.Context, query string) (*models.Answer, error) {
	s.last = query
	return &models.Answer{Response: "LLMs are large language models.", RefinedQuery: "Explain LLM", Score: 0.9, RefinementCount: 1}, nil
}

type stubIndexer struct{ inputs []*models.DocumentInput }

func (s *stubIndexer) IndexDocuments(_ context.Context, inputs []*models.DocumentInput) ([]string, error) {
	s.inputs = append(s.inputs, inputs...)
	return []string{"generated-id"}, nil
}

func callRequest(name string, args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, res)
	require.Len(t, res.Content, 1)
	text, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok, "content is %T", res.Content[0])
	return text.Text
}

func TestHandleAnswer(t *testing.T) {
	answerer := &stubAnswerer{}
	h := NewHandlers(answerer, nil, nil)

	res, err := h.HandleAnswer(context.Background(), callRequest("answer", map[string]any{"query": "Explain llm"}))
	require.NoError(t, err)
	assert.False(t, res.IsError)
	assert.Equal(t, "Explain llm", answerer.last)

	var ans models.Answer
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &ans))
	assert.Equal(t, "Explain LLM", ans.RefinedQuery)
	assert.False(t, ans.UsedFallback)
}

func TestHandleAnswer_MissingQuery(t *testing.T) {
	h := NewHandlers(&stubAnswerer{}, nil, nil)
	res, err := h.HandleAnswer(context.Background(), callRequest("answer", map[string]any{}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestHandleIndexDocument(t *testing.T) {
	idx := &stubIndexer{}
	h := NewHandlers(&stubAnswerer{}, idx, nil)

	res, err := h.HandleIndexDocument(context.Background(), callRequest("index_document", map[string]any{
		"content": "Go is a compiled language.",
		"title":   "Go",
	}))
	require.NoError(t, err)
	assert.False(t, res.IsError)
	require.Len(t, idx.inputs, 1)
	assert.Equal(t, "Go", idx.inputs[0].Title)
	assert.Empty(t, idx.inputs[0].ID)
	assert.Contains(t, resultText(t, res), "generated-id")
}

func TestNewServer(t *testing.T) {
	assert.NotNil(t, NewServer(NewHandlers(&stubAnswerer{}, &stubIndexer{}, nil), "test"))
}
