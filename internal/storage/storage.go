// Package storage persists documents and their chunks, including chunk embeddings.
package storage

import (
	"context"

	"github.com/hyperjump/kotae/internal/models"
)

// Storage defines document and chunk persistence operations.
type Storage interface {
	// ReplaceDocuments upserts docs and replaces all of their chunks in one transaction.
	ReplaceDocuments(ctx context.Context, docs []*models.Document, chunks []*models.Chunk) error
	// DeleteDocument removes a document and its chunks. Missing ids yield models.ErrNotFound.
	DeleteDocument(ctx context.Context, id string) error
	GetDocument(ctx context.Context, id string) (*models.Document, error)
	ListDocuments(ctx context.Context, offset, limit int) ([]*models.Document, error)

	// ListChunks returns every stored chunk ordered by document and chunk index.
	ListChunks(ctx context.Context) ([]*models.Chunk, error)
	GetChunksByDocumentID(ctx context.Context, docID string) ([]*models.Chunk, error)

	CountDocuments(ctx context.Context) (int64, error)
	CountChunks(ctx context.Context) (int64, error)

	Close() error
}
