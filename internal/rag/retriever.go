package rag

import (
	"context"
	"fmt"
	"strings"
	"time"

	"pdf-rag/internal/metrics"
	"pdf-rag/internal/models"
)

const DefaultTopK = 5

// Retriever runs similarity search against whatever index is active.
type Retriever struct {
	state   *State
	k       int
	metrics *metrics.Metrics
}

func NewRetriever(state *State, k int, m *metrics.Metrics) *Retriever {
	if k <= 0 {
		k = DefaultTopK
	}
	return &Retriever{state: state, k: k, metrics: m}
}

func (r *Retriever) K() int { return r.k }

// Retrieve returns the top k chunks best first and one reference per chunk in the same order.
func (r *Retriever) Retrieve(ctx context.Context, query string) ([]models.ScoredChunk, []models.Reference, error) {
	return r.RetrieveK(ctx, query, r.k)
}

func (r *Retriever) RetrieveK(ctx context.Context, query string, k int) ([]models.ScoredChunk, []models.Reference, error) {
	defer r.metrics.ObserveStage(metrics.StageRetrieve, time.Now())

	chunks, err := r.state.Search(ctx, query, k)
	if err != nil {
		return nil, nil, err
	}
	return chunks, models.NewReferences(chunks), nil
}

// JoinContext concatenates chunk contents for the system prompt.
func JoinContext(chunks []models.ScoredChunk) string {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Chunk.Content
	}
	return strings.Join(texts, models.ContextSeparator)
}

// SerializeTool renders chunks the way the retrieve tool reports them to the model.
func SerializeTool(chunks []models.ScoredChunk) string {
	parts := make([]string, len(chunks))
	for i, c := range chunks {
		parts[i] = fmt.Sprintf(models.ToolResultTemplate, c.Chunk.MetaJSON(), c.Chunk.Content)
	}
	return strings.Join(parts, models.ToolSeparator)
}
