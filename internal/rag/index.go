package rag

import (
	"context"
	"sync"
	"time"

	"pdf-rag/internal/models"
)

// Index is the searchable form of one document. Implementations are immutable once built.
type Index interface {
	Search(ctx context.Context, query string, k int) ([]models.ScoredChunk, error)
	Len() int
	Close() error
}

// BuildFunc turns chunks into a fresh Index.
type BuildFunc func(ctx context.Context, chunks []models.Chunk) (Index, error)

// Builder adapts a backend's concrete Build method to a BuildFunc.
func Builder[T Index](build func(context.Context, []models.Chunk) (T, error)) BuildFunc {
	return func(ctx context.Context, chunks []models.Chunk) (Index, error) {
		idx, err := build(ctx, chunks)
		if err != nil {
			return nil, err
		}
		return idx, nil
	}
}

// IndexInfo describes the active index.
type IndexInfo struct {
	Ready   bool      `json:"ready"`
	Source  string    `json:"source,omitempty"`
	Chunks  int       `json:"chunks"`
	BuiltAt time.Time `json:"built_at,omitempty"`
}

// State holds the single active Index. Searches run under the read lock, so once
// Swap returns no search can still be using the previous index.
type State struct {
	mu      sync.RWMutex
	active  Index
	source  string
	builtAt time.Time
}

// Swap installs idx and returns the index it replaced, which the caller should close.
func (s *State) Swap(idx Index, source string) Index {
	s.mu.Lock()
	defer s.mu.Unlock()
	old := s.active
	s.active = idx
	s.source = source
	s.builtAt = time.Now()
	return old
}

func (s *State) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active != nil
}

func (s *State) Search(ctx context.Context, query string, k int) ([]models.ScoredChunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.active == nil {
		return nil, models.ErrIndexNotReady
	}
	return s.active.Search(ctx, query, k)
}

func (s *State) Info() IndexInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.active == nil {
		return IndexInfo{}
	}
	return IndexInfo{Ready: true, Source: s.source, Chunks: s.active.Len(), BuiltAt: s.builtAt}
}

// Close releases the active index.
func (s *State) Close() error {
	if old := s.Swap(nil, ""); old != nil {
		return old.Close()
	}
	return nil
}
