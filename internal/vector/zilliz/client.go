package zilliz

import (
	"context"
	"fmt"
	"strconv"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"go.uber.org/zap"

	"github.com/bank-assistant/backend/internal/storage/models"
	"github.com/bank-assistant/backend/internal/vector"
	"github.com/bank-assistant/backend/pkg/logger"
)

const (
	fieldID        = "chunk_id"
	fieldEmbedding = "embedding"
	fieldLanguage  = "language"
	fieldTitle     = "title"
	fieldURL       = "url"
	fieldNumber    = "chunk_number"
	fieldText      = "text"
)

var outputFields = []string{fieldID, fieldLanguage, fieldTitle, fieldURL, fieldNumber, fieldText}

type Client struct {
	client         client.Client
	collectionName string
	vectorDim      int
}

func NewClient(ctx context.Context, endpoint, apiKey, collectionName string, vectorDim int) (*Client, error) {
	c, err := client.NewClient(ctx, client.Config{
		Address: endpoint,
		APIKey:  apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create milvus client: %w", err)
	}

	logger.Info("Zilliz/Milvus client initialized",
		zap.String("endpoint", endpoint),
		zap.String("collection", collectionName),
	)

	return New(c, collectionName, vectorDim), nil
}

// New wraps an established milvus connection.
func New(c client.Client, collectionName string, vectorDim int) *Client {
	return &Client{
		client:         c,
		collectionName: collectionName,
		vectorDim:      vectorDim,
	}
}

// Open connects and makes sure the collection exists and is loaded, so a
// fresh deployment can be searched and populated right away.
func Open(ctx context.Context, endpoint, apiKey, collectionName string, vectorDim int) (*Client, error) {
	z, err := NewClient(ctx, endpoint, apiKey, collectionName, vectorDim)
	if err != nil {
		return nil, err
	}
	if err := z.CreateCollection(ctx); err != nil {
		_ = z.Close()
		return nil, err
	}
	return z, nil
}

func (z *Client) Close() error {
	return z.client.Close()
}

func varchar(name string, maxLen int) *entity.Field {
	return &entity.Field{
		Name:       name,
		DataType:   entity.FieldTypeVarChar,
		TypeParams: map[string]string{"max_length": strconv.Itoa(maxLen)},
	}
}

// CreateCollection creates and loads the chunk collection if it is missing.
func (z *Client) CreateCollection(ctx context.Context) error {
	has, err := z.client.HasCollection(ctx, z.collectionName)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}

	if has {
		logger.Info("Collection already exists", zap.String("collection", z.collectionName))
		return z.client.LoadCollection(ctx, z.collectionName, false)
	}

	id := varchar(fieldID, 128)
	id.PrimaryKey = true

	schema := &entity.Schema{
		CollectionName: z.collectionName,
		Description:    "Public bank knowledge chunks",
		Fields: []*entity.Field{
			id,
			{
				Name:       fieldEmbedding,
				DataType:   entity.FieldTypeFloatVector,
				TypeParams: map[string]string{"dim": strconv.Itoa(z.vectorDim)},
			},
			varchar(fieldLanguage, 8),
			varchar(fieldTitle, 512),
			varchar(fieldURL, 1024),
			{Name: fieldNumber, DataType: entity.FieldTypeInt64},
			varchar(fieldText, 8192),
		},
	}

	if err := z.client.CreateCollection(ctx, schema, entity.DefaultShardNumber); err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	idx, err := entity.NewIndexIvfFlat(entity.COSINE, 1024)
	if err != nil {
		return fmt.Errorf("failed to build index params: %w", err)
	}
	if err := z.client.CreateIndex(ctx, z.collectionName, fieldEmbedding, idx, false); err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	if err := z.client.LoadCollection(ctx, z.collectionName, false); err != nil {
		return fmt.Errorf("failed to load collection: %w", err)
	}

	logger.Info("Collection created and loaded", zap.String("collection", z.collectionName))
	return nil
}

func (z *Client) Insert(ctx context.Context, records []vector.Record) error {
	if len(records) == 0 {
		return nil
	}

	ids := make([]string, len(records))
	embeddings := make([][]float32, len(records))
	languages := make([]string, len(records))
	titles := make([]string, len(records))
	urls := make([]string, len(records))
	numbers := make([]int64, len(records))
	texts := make([]string, len(records))

	for i, r := range records {
		if len(r.Embedding) != z.vectorDim {
			return fmt.Errorf("chunk %q has dimension %d, collection expects %d", r.Chunk.ID, len(r.Embedding), z.vectorDim)
		}
		ids[i] = r.Chunk.ID
		embeddings[i] = r.Embedding
		languages[i] = r.Chunk.Language
		titles[i] = r.Chunk.Title
		urls[i] = r.Chunk.URL
		numbers[i] = int64(r.Chunk.Number)
		texts[i] = r.Chunk.Content
	}

	_, err := z.client.Insert(
		ctx,
		z.collectionName,
		"",
		entity.NewColumnVarChar(fieldID, ids),
		entity.NewColumnFloatVector(fieldEmbedding, z.vectorDim, embeddings),
		entity.NewColumnVarChar(fieldLanguage, languages),
		entity.NewColumnVarChar(fieldTitle, titles),
		entity.NewColumnVarChar(fieldURL, urls),
		entity.NewColumnInt64(fieldNumber, numbers),
		entity.NewColumnVarChar(fieldText, texts),
	)
	if err != nil {
		return fmt.Errorf("failed to insert chunks: %w", err)
	}

	if err := z.client.Flush(ctx, z.collectionName, false); err != nil {
		return fmt.Errorf("failed to flush: %w", err)
	}

	logger.Info("Chunks inserted into vector DB", zap.Int("count", len(records)))
	return nil
}

func (z *Client) Count(ctx context.Context) (int64, error) {
	has, err := z.client.HasCollection(ctx, z.collectionName)
	if err != nil {
		return 0, fmt.Errorf("failed to check collection: %w", err)
	}
	if !has {
		return 0, nil
	}

	stats, err := z.client.GetCollectionStatistics(ctx, z.collectionName)
	if err != nil {
		return 0, fmt.Errorf("failed to get collection statistics: %w", err)
	}

	n, err := strconv.ParseInt(stats["row_count"], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("unexpected row_count %q: %w", stats["row_count"], err)
	}
	return n, nil
}

func (z *Client) Reset(ctx context.Context) error {
	has, err := z.client.HasCollection(ctx, z.collectionName)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}
	if has {
		if err := z.client.DropCollection(ctx, z.collectionName); err != nil {
			return fmt.Errorf("failed to drop collection: %w", err)
		}
		logger.Info("Collection dropped", zap.String("collection", z.collectionName))
	}
	return z.CreateCollection(ctx)
}

func languageExpr(language string) string {
	if language == "" {
		return ""
	}
	return fmt.Sprintf("%s == %s", fieldLanguage, strconv.Quote(language))
}

func (z *Client) Search(ctx context.Context, embedding []float32, language string, topN int) ([]vector.SearchResult, error) {
	if topN <= 0 {
		return nil, nil
	}

	sp, err := entity.NewIndexIvfFlatSearchParam(16)
	if err != nil {
		return nil, fmt.Errorf("failed to build search params: %w", err)
	}

	expr := languageExpr(language)
	searchResult, err := z.client.Search(
		ctx,
		z.collectionName,
		[]string{},
		expr,
		outputFields,
		[]entity.Vector{entity.FloatVector(embedding)},
		fieldEmbedding,
		entity.COSINE,
		topN,
		sp,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	results := make([]vector.SearchResult, 0, topN)
	for _, sr := range searchResult {
		if sr.Err != nil {
			return nil, fmt.Errorf("search shard failed: %w", sr.Err)
		}
		for i := 0; i < sr.ResultCount; i++ {
			chunk, err := chunkAt(sr.Fields, i)
			if err != nil {
				return nil, err
			}
			results = append(results, vector.SearchResult{Chunk: chunk, Score: sr.Scores[i]})
		}
	}

	logger.Debug("Vector search completed",
		zap.Int("top_n", topN),
		zap.Int("results", len(results)),
		zap.String("filter", expr),
	)

	return results, nil
}

func chunkAt(fields client.ResultSet, i int) (models.DocumentChunk, error) {
	values := make(map[string]interface{}, len(outputFields))
	for _, name := range outputFields {
		col := fields.GetColumn(name)
		if col == nil {
			return models.DocumentChunk{}, fmt.Errorf("search result missing field %q", name)
		}
		v, err := col.Get(i)
		if err != nil {
			return models.DocumentChunk{}, fmt.Errorf("failed to read field %q: %w", name, err)
		}
		values[name] = v
	}

	chunk := models.DocumentChunk{}
	chunk.ID, _ = values[fieldID].(string)
	chunk.Language, _ = values[fieldLanguage].(string)
	chunk.Title, _ = values[fieldTitle].(string)
	chunk.URL, _ = values[fieldURL].(string)
	chunk.Content, _ = values[fieldText].(string)
	if n, ok := values[fieldNumber].(int64); ok {
		chunk.Number = int(n)
	}
	return chunk, nil
}
