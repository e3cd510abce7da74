package models

// Candidate is a transient retrieval hit produced by the hybrid retriever.
// LexicalRank and DenseRank are 1-based; zero means the source did not return the chunk.
type Candidate struct {
	Chunk        *Chunk
	LexicalScore float64
	DenseScore   float64
	LexicalRank  int
	DenseRank    int
	// Score is the fused retrieval signal.
	Score float64
}

// RankedChunk is a chunk with its cross-scorer score.
type RankedChunk struct {
	Chunk *Chunk  `json:"chunk"`
	Score float64 `json:"score"`
}

// RerankedList is ordered by Score descending; equal scores keep candidate order.
type RerankedList []RankedChunk

// Chunks returns the chunks in ranked order.
func (l RerankedList) Chunks() []*Chunk {
	out := make([]*Chunk, len(l))
	for i, rc := range l {
		out[i] = rc.Chunk
	}
	return out
}
