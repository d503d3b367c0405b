package qdrantdb

import (
	"context"
	"os"
	"strconv"
	"testing"
	"time"

	"pdf-rag/internal/embedding"
	"pdf-rag/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildSearchAndClose(t *testing.T) {
	host := os.Getenv("QDRANT_HOST")
	if host == "" {
		t.Skip("QDRANT_HOST not set")
	}
	port := 6334
	if p := os.Getenv("QDRANT_PORT"); p != "" {
		port, _ = strconv.Atoi(p)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	b, err := NewBuilder(ctx, host, port, embedding.NewHashEmbedder(64))
	require.NoError(t, err)
	defer b.Close()

	chunks := []models.Chunk{
		{ID: "a", Content: "Revenue, 2023 = 100", Meta: models.ChunkMeta{Items: []models.DocItem{{
			Label: "text", Prov: []models.Provenance{{PageNo: 1}},
		}}}},
		{ID: "b", Content: "Employees, 2023 = 250", Meta: models.ChunkMeta{Position: 1}},
	}
	idx, err := b.Build(ctx, chunks)
	require.NoError(t, err)
	defer idx.Close()

	results, err := idx.Search(ctx, "revenue", 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].Chunk.ID)
	assert.Equal(t, chunks[0].Meta, results[0].Chunk.Meta)
}

func TestEmptyIndexSearch(t *testing.T) {
	idx := &Index{}
	results, err := idx.Search(context.Background(), "x", 5)
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.NoError(t, idx.Close())
}
