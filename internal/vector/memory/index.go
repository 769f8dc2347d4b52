// Package memory is an in-process vector.Store using cosine similarity.
// It suits development setups and tests; production uses the Milvus store.
package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/bank-assistant/backend/internal/vector"
)

type Index struct {
	mu      sync.RWMutex
	records []vector.Record
	ids     map[string]int
}

func New() *Index {
	return &Index{ids: make(map[string]int)}
}

func (x *Index) Insert(_ context.Context, records []vector.Record) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	batch := make(map[string]struct{}, len(records))
	for _, r := range records {
		_, indexed := x.ids[r.Chunk.ID]
		_, repeated := batch[r.Chunk.ID]
		if indexed || repeated {
			return fmt.Errorf("chunk %q already indexed", r.Chunk.ID)
		}
		batch[r.Chunk.ID] = struct{}{}
	}
	for _, r := range records {
		x.ids[r.Chunk.ID] = len(x.records)
		x.records = append(x.records, r)
	}
	return nil
}

func (x *Index) Count(context.Context) (int64, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return int64(len(x.records)), nil
}

func (x *Index) Reset(context.Context) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.records = nil
	x.ids = make(map[string]int)
	return nil
}

func (x *Index) Search(ctx context.Context, embedding []float32, language string, topN int) ([]vector.SearchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if topN <= 0 {
		return nil, nil
	}

	x.mu.RLock()
	defer x.mu.RUnlock()

	var results []vector.SearchResult
	for _, r := range x.records {
		if language != "" && r.Chunk.Language != language {
			continue
		}
		if len(r.Embedding) != len(embedding) {
			return nil, fmt.Errorf("dimension mismatch: query %d, chunk %q %d", len(embedding), r.Chunk.ID, len(r.Embedding))
		}
		results = append(results, vector.SearchResult{Chunk: r.Chunk, Score: cosine(embedding, r.Embedding)})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if len(results) > topN {
		results = results[:topN]
	}
	return results, nil
}

func cosine(a, b []float32) float32 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}
