package vector

import (
	"container/heap"
	"context"
	"fmt"
	"sync"
)

// cancelCheckEvery is how many rows Search scans between context checks.
const cancelCheckEvery = 4096

// MemoryIndex is a brute-force inner-product index over a flat row-major matrix.
// Rows keep insertion order, which is the tie-break for equal scores.
type MemoryIndex struct {
	dimensions int
	ids        []string
	positions  map[string]int
	matrix     []float32
	mu         sync.RWMutex
}

// NewMemoryIndex creates an in-memory vector index with the given dimension.
func NewMemoryIndex(dimensions int) (*MemoryIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	return &MemoryIndex{
		dimensions: dimensions,
		positions:  make(map[string]int),
	}, nil
}

// Add appends one row per id. The batch is rejected as a whole on a width mismatch or duplicate id.
func (m *MemoryIndex) Add(ctx context.Context, ids []string, vectors [][]float32) error {
	if len(ids) != len(vectors) {
		return fmt.Errorf("ids and vectors length mismatch")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := make(map[string]struct{}, len(ids))
	for i, id := range ids {
		if len(vectors[i]) != m.dimensions {
			return fmt.Errorf("vector dimension mismatch for %s: got %d, expected %d", id, len(vectors[i]), m.dimensions)
		}
		if _, dup := m.positions[id]; dup {
			return fmt.Errorf("duplicate vector id %s", id)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("duplicate vector id %s", id)
		}
		seen[id] = struct{}{}
	}
	m.matrix = append(m.matrix, make([]float32, len(ids)*m.dimensions)...)
	base := len(m.ids)
	for i, id := range ids {
		row := base + i
		copy(m.matrix[row*m.dimensions:(row+1)*m.dimensions], vectors[i])
		m.positions[id] = row
		m.ids = append(m.ids, id)
	}
	return nil
}

// Search returns the top-k rows by inner product, which is cosine similarity for normalized vectors.
func (m *MemoryIndex) Search(ctx context.Context, query []float32, k int) ([]*Result, error) {
	if len(query) != m.dimensions {
		return nil, fmt.Errorf("query dimension mismatch: got %d, expected %d", len(query), m.dimensions)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := len(m.ids)
	if k <= 0 || n == 0 {
		return nil, nil
	}
	k = min(k, n)

	top := make(rowHeap, 0, k)
	for row := range n {
		if row%cancelCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		s := InnerProduct(query, m.matrix[row*m.dimensions:(row+1)*m.dimensions])
		hit := rowScore{row: row, score: s}
		if len(top) < k {
			heap.Push(&top, hit)
		} else if hit.better(top[0]) {
			top[0] = hit
			heap.Fix(&top, 0)
		}
	}

	result := make([]*Result, len(top))
	for i := len(top) - 1; i >= 0; i-- {
		hit := heap.Pop(&top).(rowScore)
		result[i] = &Result{ID: m.ids[hit.row], Score: hit.score}
	}
	return result, nil
}

// Size returns the number of vectors in the index.
func (m *MemoryIndex) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.ids)
}

// Dimensions returns the vector width.
func (m *MemoryIndex) Dimensions() int {
	return m.dimensions
}

type rowScore struct {
	row   int
	score float64
}

// better orders by score descending, then by earlier row.
func (a rowScore) better(b rowScore) bool {
	if a.score != b.score {
		return a.score > b.score
	}
	return a.row < b.row
}

// rowHeap is a min-heap on rank: the root is the worst of the kept hits.
type rowHeap []rowScore

func (h rowHeap) Len() int           { return len(h) }
func (h rowHeap) Less(i, j int) bool { return h[j].better(h[i]) }
func (h rowHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *rowHeap) Push(x any)        { *h = append(*h, x.(rowScore)) }
func (h *rowHeap) Pop() any {
	old := *h
	x := old[len(old)-1]
	*h = old[:len(old)-1]
	return x
}
