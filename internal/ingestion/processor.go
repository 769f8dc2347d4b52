// Package ingestion loads the source tables and builds the public knowledge
// index from per-language chunk manifests.
package ingestion

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/bank-assistant/backend/internal/embedding"
	"github.com/bank-assistant/backend/internal/metrics"
	"github.com/bank-assistant/backend/internal/storage/models"
	"github.com/bank-assistant/backend/internal/vector"
	"github.com/bank-assistant/backend/pkg/circuitbreaker"
	"github.com/bank-assistant/backend/pkg/logger"
)

var ErrDuplicateIDs = errors.New("duplicate chunk ids")

const duplicateSampleSize = 10

type DuplicateIDsError struct {
	Count  int
	Sample []string
}

func (e *DuplicateIDsError) Error() string {
	return fmt.Sprintf("%d duplicate chunk ids, first: %s", e.Count, strings.Join(e.Sample, ", "))
}

func (e *DuplicateIDsError) Is(target error) bool {
	return target == ErrDuplicateIDs
}

// FindDuplicates returns every id that appears more than once, in order of
// second appearance.
func FindDuplicates(chunks []models.DocumentChunk) []string {
	seen := make(map[string]int, len(chunks))
	var dups []string
	for _, c := range chunks {
		seen[c.ID]++
		if seen[c.ID] == 2 {
			dups = append(dups, c.ID)
		}
	}
	return dups
}

type BuildOptions struct {
	// Rebuild drops an existing non-empty index instead of reusing it.
	Rebuild bool
}

type BuildReport struct {
	Reused      bool
	Indexed     int
	PerLanguage map[string]int
	Duration    time.Duration
}

type IndexBuilder struct {
	embedder  embedding.Embedder
	store     vector.Store
	batchSize int
	breaker   *circuitbreaker.Breaker
}

func NewIndexBuilder(embedder embedding.Embedder, store vector.Store, batchSize int) *IndexBuilder {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &IndexBuilder{
		embedder:  embedder,
		store:     store,
		batchSize: batchSize,
		breaker: circuitbreaker.New("embeddings", circuitbreaker.Config{
			FailureThreshold: 3,
			Cooldown:         30 * time.Second,
			Logger:           logger.GetLogger(),
		}),
	}
}

// Build embeds and inserts chunks. Duplicate ids across the combined list
// abort the build before anything is written.
func (b *IndexBuilder) Build(ctx context.Context, chunks []models.DocumentChunk, opts BuildOptions) (BuildReport, error) {
	start := time.Now()
	report := BuildReport{PerLanguage: map[string]int{}}

	if dups := FindDuplicates(chunks); len(dups) > 0 {
		sample := dups
		if len(sample) > duplicateSampleSize {
			sample = sample[:duplicateSampleSize]
		}
		err := &DuplicateIDsError{Count: len(dups), Sample: sample}
		logger.Error("Refusing to index chunks", zap.Error(err))
		return report, err
	}

	count, err := b.store.Count(ctx)
	if err != nil {
		return report, fmt.Errorf("failed to count indexed chunks: %w", err)
	}
	if count > 0 {
		if !opts.Rebuild {
			logger.Info("Reusing existing index", zap.Int64("chunks", count))
			report.Reused = true
			report.Duration = time.Since(start)
			return report, nil
		}
		logger.Info("Rebuilding index", zap.Int64("dropping", count))
		if err := b.store.Reset(ctx); err != nil {
			return report, fmt.Errorf("failed to reset index: %w", err)
		}
	}

	for offset := 0; offset < len(chunks); offset += b.batchSize {
		end := offset + b.batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[offset:end]

		if err := b.indexBatch(ctx, batch); err != nil {
			return report, fmt.Errorf("batch at offset %d: %w", offset, err)
		}

		for _, c := range batch {
			report.PerLanguage[c.Language]++
			metrics.ChunksIndexed.WithLabelValues(c.Language).Inc()
		}
		report.Indexed += len(batch)

		logger.Debug("Indexed batch",
			zap.Int("offset", offset),
			zap.Int("size", len(batch)),
		)
	}

	report.Duration = time.Since(start)
	logger.Info("Index built",
		zap.Int("chunks", report.Indexed),
		zap.Any("per_language", report.PerLanguage),
		zap.Duration("duration", report.Duration),
	)
	return report, nil
}

func (b *IndexBuilder) indexBatch(ctx context.Context, batch []models.DocumentChunk) error {
	texts := make([]string, len(batch))
	for i, c := range batch {
		texts[i] = c.Content
	}

	var embeddings [][]float32
	err := b.breaker.Execute(func() error {
		var err error
		embeddings, err = b.embedder.EmbedBatch(ctx, texts)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to generate embeddings: %w", err)
	}
	if len(embeddings) != len(batch) {
		return fmt.Errorf("embedding count mismatch: got %d, expected %d", len(embeddings), len(batch))
	}

	records := make([]vector.Record, len(batch))
	for i, c := range batch {
		records[i] = vector.Record{Chunk: c, Embedding: embeddings[i]}
	}
	if err := b.store.Insert(ctx, records); err != nil {
		return fmt.Errorf("failed to insert into vector index: %w", err)
	}
	return nil
}

// LoadManifests reads every configured manifest, languages in sorted order.
func LoadManifests(manifests map[string]string) ([]models.DocumentChunk, error) {
	langs := make([]string, 0, len(manifests))
	for lang := range manifests {
		langs = append(langs, lang)
	}
	sort.Strings(langs)

	var all []models.DocumentChunk
	for _, lang := range langs {
		chunks, err := ReadManifestFile(manifests[lang], lang)
		if err != nil {
			return nil, err
		}
		all = append(all, chunks...)
	}
	return all, nil
}
