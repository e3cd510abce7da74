// Package indexer turns documents into chunks and publishes them to storage and the served corpus.
package indexer

import (
	"fmt"
	"strings"

	"github.com/hyperjump/kotae/internal/models"
)

// Chunker splits text into overlapping word windows.
type Chunker struct {
	chunkSize    int
	chunkOverlap int
}

// NewChunker creates a chunker with the given size and overlap, both in words.
// Overlap is clamped below size.
func NewChunker(chunkSize, chunkOverlap int) *Chunker {
	if chunkSize < 1 {
		chunkSize = 1
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		chunkOverlap = 0
	}
	return &Chunker{chunkSize: chunkSize, chunkOverlap: chunkOverlap}
}

// ChunkID is the deterministic ID of the index-th chunk of a document.
func ChunkID(docID string, index int) string {
	return fmt.Sprintf("%s_%d", docID, index)
}

// Chunk splits text into chunks of doc. The same input always yields the same chunks.
func (c *Chunker) Chunk(doc *models.Document, text string) []*models.Chunk {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	step := c.chunkSize - c.chunkOverlap
	chunks := make([]*models.Chunk, 0, len(words)/step+1)
	for start := 0; ; start += step {
		end := min(start+c.chunkSize, len(words))
		index := len(chunks)
		chunks = append(chunks, &models.Chunk{
			ID:         ChunkID(doc.ID, index),
			DocumentID: doc.ID,
			Content:    strings.Join(words[start:end], " "),
			ChunkIndex: index,
			Metadata:   chunkMetadata(doc),
		})
		if end >= len(words) {
			break
		}
	}
	return chunks
}

func chunkMetadata(doc *models.Document) map[string]interface{} {
	if doc.Title == "" {
		return nil
	}
	return map[string]interface{}{"title": doc.Title}
}
