// Package retrieval looks up public bank knowledge for a question.
package retrieval

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/bank-assistant/backend/internal/embedding"
	"github.com/bank-assistant/backend/internal/metrics"
	"github.com/bank-assistant/backend/internal/vector"
	"github.com/bank-assistant/backend/pkg/logger"
)

// NoPublicContext stands in for the public context whenever lookup fails or
// nothing matches.
const NoPublicContext = "No public context found."

const DefaultTopN = 2

type Retriever struct {
	embedder embedding.Embedder
	index    vector.Searcher
	topN     int
}

func New(embedder embedding.Embedder, index vector.Searcher, topN int) *Retriever {
	if topN <= 0 {
		topN = DefaultTopN
	}
	return &Retriever{embedder: embedder, index: index, topN: topN}
}

// RetrievePublic returns the content of the best matching chunks in the
// given language, one per line, best first. topN <= 0 uses the configured
// default. It never fails: errors and empty results yield NoPublicContext.
func (r *Retriever) RetrievePublic(ctx context.Context, question, language string, topN int) string {
	if topN <= 0 {
		topN = r.topN
	}
	log := logger.GetLogger().With(zap.String("language", language), zap.Int("top_n", topN))

	query, err := r.embedder.Embed(ctx, question)
	if err != nil {
		log.Warn("Failed to embed question", zap.Error(err))
		metrics.RetrievalResults.WithLabelValues(language, "error").Inc()
		return NoPublicContext
	}

	results, err := r.index.Search(ctx, query, language, topN)
	if err != nil {
		log.Warn("Failed to search knowledge index", zap.Error(err))
		metrics.RetrievalResults.WithLabelValues(language, "error").Inc()
		return NoPublicContext
	}

	texts := make([]string, 0, len(results))
	for _, res := range results {
		texts = append(texts, res.Chunk.Content)
	}
	if len(texts) == 0 {
		metrics.RetrievalResults.WithLabelValues(language, "miss").Inc()
		return NoPublicContext
	}

	ids := make([]string, len(results))
	for i, res := range results {
		ids[i] = res.Chunk.ID
	}
	log.Debug("Public context retrieved", zap.Strings("chunks", ids))
	metrics.RetrievalResults.WithLabelValues(language, "hit").Inc()

	return strings.Join(texts, "\n")
}
