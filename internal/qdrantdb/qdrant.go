// Package qdrantdb stores a document's chunks in a dedicated Qdrant collection.
package qdrantdb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"

	"pdf-rag/internal/embedding"
	"pdf-rag/internal/helper"
	"pdf-rag/internal/models"
)

const (
	collectionPrefix = "chunks_"
	upsertBatch      = 100
)

// ErrUnreachable is returned when the startup health check never succeeds.
var ErrUnreachable = errors.New("qdrant unreachable")

// Builder owns the client connection and creates one collection per document.
type Builder struct {
	client   *qdrant.Client
	embedder embeddings.Embedder
}

// NewBuilder connects over gRPC and waits for Qdrant to report healthy.
func NewBuilder(ctx context.Context, host string, port int, embedder embeddings.Embedder) (*Builder, error) {
	client, err := qdrant.NewClient(&qdrant.Config{Host: host, Port: port})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}
	b := &Builder{client: client, embedder: embedder}
	if err := b.healthCheckWithRetry(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	return b, nil
}

func (b *Builder) healthCheckWithRetry(ctx context.Context) error {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = 500 * time.Millisecond
	exp.MaxInterval = 10 * time.Second
	exp.MaxElapsedTime = 30 * time.Second
	return backoff.Retry(func() error { return b.Health(ctx) }, backoff.WithContext(exp, ctx))
}

// Health performs a single health check.
func (b *Builder) Health(ctx context.Context) error {
	result, err := b.client.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	if result == nil || result.Title == "" {
		return fmt.Errorf("health check returned invalid response")
	}
	return nil
}

func (b *Builder) Close() error {
	return b.client.Close()
}

// Index is a Qdrant collection holding the chunks of one document.
type Index struct {
	client     *qdrant.Client
	collection string
	count      int
	embedder   embeddings.Embedder
}

func (b *Builder) Build(ctx context.Context, chunks []models.Chunk) (*Index, error) {
	vectors, err := embedding.EmbedChunks(ctx, b.embedder, chunks)
	if err != nil {
		return nil, err
	}

	idx := &Index{client: b.client, collection: collectionPrefix + helper.ShortID(), embedder: b.embedder}
	if len(chunks) == 0 {
		return idx, nil
	}

	err = b.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: idx.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(len(vectors[0])),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create collection: %w", err)
	}

	for start := 0; start < len(chunks); start += upsertBatch {
		end := min(start+upsertBatch, len(chunks))
		points := make([]*qdrant.PointStruct, 0, end-start)
		for i := start; i < end; i++ {
			c := chunks[i]
			points = append(points, &qdrant.PointStruct{
				Id:      qdrant.NewIDUUID(uuid.NewString()),
				Vectors: qdrant.NewVectors(vectors[i]...),
				Payload: qdrant.NewValueMap(map[string]any{
					"chunk_id": c.ID,
					"position": c.Meta.Position,
					"content":  c.Content,
					"meta":     c.MetaJSON(),
				}),
			})
		}
		_, err := b.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: idx.collection,
			Wait:           qdrant.PtrOf(true),
			Points:         points,
		})
		if err != nil {
			_ = b.client.DeleteCollection(context.Background(), idx.collection)
			return nil, fmt.Errorf("%w: failed to upsert batch %d-%d: %v", models.ErrEmbeddingFailed, start, end, err)
		}
	}
	idx.count = len(chunks)

	log.Debug().Str("collection", idx.collection).Int("points", idx.count).Msg("Built qdrant index")
	return idx, nil
}

func (i *Index) Search(ctx context.Context, query string, k int) ([]models.ScoredChunk, error) {
	if i.count == 0 || k <= 0 {
		return nil, nil
	}
	vec, err := embedding.EmbedQuery(ctx, i.embedder, query)
	if err != nil {
		return nil, err
	}

	results, err := i.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: i.collection,
		Query:          qdrant.NewQuery(vec...),
		Limit:          qdrant.PtrOf(uint64(k)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search chunks: %w", err)
	}

	scored := make([]models.ScoredChunk, 0, len(results))
	for _, r := range results {
		payload := r.Payload
		meta, err := models.ParseMeta(payload["meta"].GetStringValue())
		if err != nil {
			log.Warn().Err(err).Msg("Ignoring unreadable chunk metadata")
		}
		scored = append(scored, models.ScoredChunk{
			Chunk: models.Chunk{
				ID:      payload["chunk_id"].GetStringValue(),
				Content: payload["content"].GetStringValue(),
				Meta:    meta,
			},
			Score: r.Score,
		})
	}
	return scored, nil
}

func (i *Index) Len() int { return i.count }

// Close deletes the collection.
func (i *Index) Close() error {
	if i.count == 0 {
		return nil
	}
	return i.client.DeleteCollection(context.Background(), i.collection)
}
