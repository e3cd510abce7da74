package keyword

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	blevequery "github.com/blevesearch/bleve/v2/search/query"
	"github.com/hyperjump/kotae/internal/models"
)

// BleveIndex implements Index with an in-memory Bleve index.
type BleveIndex struct {
	index bleve.Index
	opts  SearchOptions
	// order maps chunk ID to its position in the indexed sequence.
	order map[string]int
}

type chunkDoc struct {
	Content    string `json:"content"`
	DocumentID string `json:"document_id"`
}

// NewBleveIndex creates an empty memory-only Bleve index.
func NewBleveIndex(opts *SearchOptions) (*BleveIndex, error) {
	index, err := bleve.NewMemOnly(newChunkMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	o := DefaultSearchOptions()
	if opts != nil {
		o = *opts
		if o.Fuzziness <= 0 {
			o.Fuzziness = 1
		}
	}
	return &BleveIndex{index: index, opts: o, order: make(map[string]int)}, nil
}

func newChunkMapping() mapping.IndexMapping {
	im := bleve.NewIndexMapping()
	docMapping := bleve.NewDocumentMapping()
	// Standard analyzer: lowercase + tokenize, no stemming.
	textFieldMapping := bleve.NewTextFieldMapping()
	textFieldMapping.Analyzer = standard.Name
	docMapping.AddFieldMappingsAt("content", textFieldMapping)
	keywordFieldMapping := bleve.NewKeywordFieldMapping()
	keywordFieldMapping.Store = false
	docMapping.AddFieldMappingsAt("document_id", keywordFieldMapping)
	im.AddDocumentMapping("chunk", docMapping)
	im.DefaultType = "chunk"
	im.DefaultMapping = docMapping
	im.DefaultAnalyzer = standard.Name
	return im
}

// IndexChunks indexes chunks in one batch.
func (b *BleveIndex) IndexChunks(ctx context.Context, chunks []*models.Chunk) error {
	batch := b.index.NewBatch()
	for _, c := range chunks {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, ok := b.order[c.ID]; !ok {
			b.order[c.ID] = len(b.order)
		}
		if err := batch.Index(c.ID, chunkDoc{Content: c.Content, DocumentID: c.DocumentID}); err != nil {
			return fmt.Errorf("failed to batch chunk %s: %w", c.ID, err)
		}
	}
	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("failed to index chunks: %w", err)
	}
	return nil
}

// Search runs a match query over chunk content and returns up to limit hits.
// When the exact query finds nothing and fuzzy retry is enabled, a fuzzy disjunction is tried.
// Equal scores are ordered by index position.
func (b *BleveIndex) Search(ctx context.Context, query string, limit int) ([]*Result, error) {
	if strings.TrimSpace(query) == "" || limit <= 0 {
		return nil, nil
	}
	mq := bleve.NewMatchQuery(query)
	mq.SetField("content")
	out, err := b.run(ctx, mq, limit)
	if err != nil {
		return nil, err
	}
	if len(out) > 0 || !b.opts.FuzzyRetry {
		return out, nil
	}
	fq := buildFuzzyQuery(query, b.opts.Fuzziness, "content")
	if fq == nil {
		return out, nil
	}
	return b.run(ctx, fq, limit)
}

func (b *BleveIndex) run(ctx context.Context, q blevequery.Query, limit int) ([]*Result, error) {
	// Fetch past limit so ties at the cut are resolved by position, not by Bleve's internal order.
	req := bleve.NewSearchRequest(q)
	req.Size = limit * 2
	if req.Size < 50 {
		req.Size = 50
	}
	results, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("Bleve search failed: %w", err)
	}
	out := make([]*Result, len(results.Hits))
	for i, hit := range results.Hits {
		out[i] = &Result{ID: hit.ID, Score: hit.Score}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return b.order[out[i].ID] < b.order[out[j].ID]
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// tokenizeQuery splits query into lowercase letter/digit terms.
func tokenizeQuery(query string) []string {
	return strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// buildFuzzyQuery creates a disjunction of FuzzyQueries, one per query term.
// Returns nil when the query has no terms.
func buildFuzzyQuery(queryStr string, fuzziness int, field string) blevequery.Query {
	terms := tokenizeQuery(queryStr)
	if len(terms) == 0 {
		return nil
	}
	queries := make([]blevequery.Query, 0, len(terms))
	for _, term := range terms {
		fq := bleve.NewFuzzyQuery(term)
		fq.SetFuzziness(fuzziness)
		if field != "" {
			fq.SetField(field)
		}
		queries = append(queries, fq)
	}
	if len(queries) == 1 {
		return queries[0]
	}
	return bleve.NewDisjunctionQuery(queries...)
}

// DocCount returns the number of indexed chunks.
func (b *BleveIndex) DocCount() (uint64, error) {
	return b.index.DocCount()
}

// Close closes the Bleve index.
func (b *BleveIndex) Close() error {
	return b.index.Close()
}
