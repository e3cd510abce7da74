// Package mcpserver exposes the answer pipeline as Model Context Protocol tools over stdio.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/pkg/utils"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"
)

// Answerer runs the answer pipeline.
type Answerer interface {
	Answer(ctx context.Context, query string) (*models.Answer, error)
}

// DocumentIndexer publishes documents into the corpus.
type DocumentIndexer interface {
	IndexDocuments(ctx context.Context, inputs []*models.DocumentInput) ([]string, error)
}

// Handlers implements the MCP tools.
type Handlers struct {
	answerer Answerer
	indexer  DocumentIndexer
	logger   *zap.Logger
}

// NewHandlers creates tool handlers. indexer may be nil, which leaves the ingest tool out.
func NewHandlers(answerer Answerer, indexer DocumentIndexer, logger *zap.Logger) *Handlers {
	return &Handlers{answerer: answerer, indexer: indexer, logger: utils.LoggerOrNop(logger)}
}

// NewServer builds an MCP server with the answer tool and, when an indexer is set, the
// index_document tool.
func NewServer(h *Handlers, version string) *server.MCPServer {
	s := server.NewMCPServer("kotae", version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions("Answers questions from the local document corpus, falling back to web search when the corpus is not relevant."),
	)
	s.AddTool(mcp.NewTool("answer",
		mcp.WithDescription("Answer a natural-language question using the indexed documents, or web search when they are not relevant enough."),
		mcp.WithString("query", mcp.Required(), mcp.Description("The question to answer.")),
	), h.HandleAnswer)

	if h.indexer != nil {
		s.AddTool(mcp.NewTool("index_document",
			mcp.WithDescription("Add or replace a document in the corpus."),
			mcp.WithString("content", mcp.Required(), mcp.Description("Document text.")),
			mcp.WithString("title", mcp.Description("Optional title.")),
			mcp.WithString("id", mcp.Description("Optional stable ID; an existing document with this ID is replaced.")),
		), h.HandleIndexDocument)
	}
	return s
}

// ServeStdio serves the MCP server on stdin and stdout until the client disconnects.
func ServeStdio(s *server.MCPServer) error {
	return server.ServeStdio(s)
}

// HandleAnswer runs one query and returns the answer as JSON text.
func (h *Handlers) HandleAnswer(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	answer, err := h.answerer.Answer(ctx, query)
	if err != nil {
		h.logger.Warn("mcp answer failed", zap.String("query", query), zap.Error(err))
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(answer)
}

// HandleIndexDocument ingests one document.
func (h *Handlers) HandleIndexDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	input := &models.DocumentInput{
		ID:      req.GetString("id", ""),
		Title:   req.GetString("title", ""),
		Content: content,
	}
	ids, err := h.indexer.IndexDocuments(ctx, []*models.DocumentInput{input})
	if err != nil {
		h.logger.Warn("mcp index failed", zap.Error(err))
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(map[string]interface{}{"ids": ids, "status": "indexed"})
}

func jsonResult(v interface{}) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}
