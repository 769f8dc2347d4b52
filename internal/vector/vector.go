// Package vector defines the similarity index used for public knowledge.
package vector

import (
	"context"

	"github.com/bank-assistant/backend/internal/storage/models"
)

type Record struct {
	Chunk     models.DocumentChunk
	Embedding []float32
}

type SearchResult struct {
	Chunk models.DocumentChunk
	Score float32
}

// Searcher answers language-filtered nearest-neighbour queries. Results are
// ordered best match first.
type Searcher interface {
	Search(ctx context.Context, embedding []float32, language string, topN int) ([]SearchResult, error)
}

// Store is a Searcher that can also be populated.
type Store interface {
	Searcher
	Insert(ctx context.Context, records []Record) error
	Count(ctx context.Context) (int64, error)
	// Reset drops every record and leaves an empty, usable index.
	Reset(ctx context.Context) error
}
