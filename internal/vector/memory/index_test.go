package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bank-assistant/backend/internal/storage/models"
	"github.com/bank-assistant/backend/internal/vector"
)

func rec(id, lang string, emb ...float32) vector.Record {
	return vector.Record{
		Chunk:     models.DocumentChunk{ID: id, Language: lang, Content: "content " + id},
		Embedding: emb,
	}
}

func seeded(t *testing.T) *Index {
	t.Helper()
	x := New()
	require.NoError(t, x.Insert(context.Background(), []vector.Record{
		rec("en_1", "en", 1, 0, 0),
		rec("en_2", "en", 0.9, 0.1, 0),
		rec("en_3", "en", 0, 1, 0),
		rec("fr_1", "fr", 1, 0, 0),
		rec("nl_1", "nl", 1, 0, 0),
	}))
	return x
}

func TestSearchFiltersByLanguageAndRanks(t *testing.T) {
	x := seeded(t)

	results, err := x.Search(context.Background(), []float32{1, 0, 0}, "en", 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "en_1", results[0].Chunk.ID)
	assert.Equal(t, "en_2", results[1].Chunk.ID)
	assert.InDelta(t, 1.0, results[0].Score, 1e-6)

	results, err = x.Search(context.Background(), []float32{1, 0, 0}, "fr", 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "fr_1", results[0].Chunk.ID)
}

func TestSearchUnknownLanguageIsEmpty(t *testing.T) {
	x := seeded(t)

	results, err := x.Search(context.Background(), []float32{1, 0, 0}, "de", 2)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearchDimensionMismatch(t *testing.T) {
	x := seeded(t)

	_, err := x.Search(context.Background(), []float32{1, 0}, "en", 2)
	assert.Error(t, err)
}

func TestInsertRejectsDuplicateIDs(t *testing.T) {
	x := seeded(t)

	err := x.Insert(context.Background(), []vector.Record{rec("en_4", "en", 1, 1, 1), rec("en_1", "en", 1, 1, 1)})
	require.Error(t, err)

	n, err := x.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)
}

func TestReset(t *testing.T) {
	x := seeded(t)
	ctx := context.Background()

	require.NoError(t, x.Reset(ctx))
	n, err := x.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, x.Insert(ctx, []vector.Record{rec("en_1", "en", 1)}))
}
