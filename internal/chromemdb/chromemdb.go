package chromemdb

import (
	"context"
	"fmt"
	"runtime"
	"strconv"

	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"

	"pdf-rag/internal/embedding"
	"pdf-rag/internal/helper"
	"pdf-rag/internal/models"
)

const collectionPrefix = "chunks_"

// Builder creates a fresh in-memory chromem collection per document.
type Builder struct {
	embedder    embeddings.Embedder
	concurrency int
}

func NewBuilder(embedder embeddings.Embedder, concurrency int) *Builder {
	if concurrency <= 0 {
		concurrency = runtime.NumCPU()
	}
	return &Builder{embedder: embedder, concurrency: concurrency}
}

// Index is an immutable in-memory vector store over the chunks of one document.
type Index struct {
	db         *chromem.DB
	collection *chromem.Collection
	chunks     map[string]models.Chunk
	embedder   embeddings.Embedder
}

// Build embeds all chunks and loads them into a new collection.
func (b *Builder) Build(ctx context.Context, chunks []models.Chunk) (*Index, error) {
	vectors, err := embedding.EmbedChunks(ctx, b.embedder, chunks)
	if err != nil {
		return nil, err
	}

	db := chromem.NewDB()
	name := collectionPrefix + helper.ShortID()
	c, err := db.GetOrCreateCollection(name, nil, b.embedFunc())
	if err != nil {
		return nil, fmt.Errorf("failed to create/get collection: %v", err)
	}

	idx := &Index{
		db:         db,
		collection: c,
		chunks:     make(map[string]models.Chunk, len(chunks)),
		embedder:   b.embedder,
	}
	if len(chunks) == 0 {
		return idx, nil
	}

	docs := make([]chromem.Document, len(chunks))
	for i, chunk := range chunks {
		idx.chunks[chunk.ID] = chunk
		docs[i] = chromem.Document{
			ID:      chunk.ID,
			Content: chunk.Content,
			Metadata: map[string]string{
				"source":   chunk.Meta.Source,
				"position": strconv.Itoa(chunk.Meta.Position),
			},
			Embedding: vectors[i],
		}
	}

	if err := c.AddDocuments(ctx, docs, b.concurrency); err != nil {
		return nil, fmt.Errorf("%w: failed to add documents: %v", models.ErrEmbeddingFailed, err)
	}
	log.Debug().Str("collection", name).Int("documents", c.Count()).Msg("Built chromem index")
	return idx, nil
}

// chromem only calls this for documents without a precomputed embedding
func (b *Builder) embedFunc() chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		return b.embedder.EmbedQuery(ctx, text)
	}
}

// Search returns up to k chunks ordered by cosine similarity, best first.
func (i *Index) Search(ctx context.Context, query string, k int) ([]models.ScoredChunk, error) {
	n := min(k, i.collection.Count())
	if n <= 0 {
		return nil, nil
	}

	vec, err := embedding.EmbedQuery(ctx, i.embedder, query)
	if err != nil {
		return nil, err
	}

	results, err := i.collection.QueryWithOptions(ctx, chromem.QueryOptions{
		QueryEmbedding: vec,
		NResults:       n,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query by similarity: %v", err)
	}

	scored := make([]models.ScoredChunk, 0, len(results))
	for _, r := range results {
		chunk, ok := i.chunks[r.ID]
		if !ok {
			continue
		}
		scored = append(scored, models.ScoredChunk{Chunk: chunk, Score: r.Similarity})
	}
	return scored, nil
}

func (i *Index) Len() int { return i.collection.Count() }

// Close drops the collection.
func (i *Index) Close() error {
	if err := i.db.DeleteCollection(i.collection.Name); err != nil {
		return fmt.Errorf("failed to drop collection: %v", err)
	}
	return nil
}
