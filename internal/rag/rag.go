package rag

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"time"

	"pdf-rag/internal/config"
	"pdf-rag/internal/helper"
	"pdf-rag/internal/metrics"
	"pdf-rag/internal/models"
	"pdf-rag/internal/session"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
)

// DocumentParser converts a staged file into chunks.
type DocumentParser interface {
	Parse(filePath string) ([]models.Chunk, error)
}

type Options struct {
	Parser    DocumentParser
	Build     BuildFunc
	LLM       llms.Model
	Sessions  *session.Store
	Metrics   *metrics.Metrics
	UploadDir string
	TopK      int
	Mode      string
}

// RAG indexes one document at a time and answers questions about it.
type RAG struct {
	parser    DocumentParser
	build     BuildFunc
	state     *State
	sessions  *session.Store
	retriever *Retriever
	composer  *Composer
	agent     *Agent
	metrics   *metrics.Metrics
	uploadDir string
	mode      string

	// serializes uploads so at most one index is being built
	buildMu sync.Mutex
}

func NewRAG(opts Options) *RAG {
	if opts.Sessions == nil {
		opts.Sessions = session.New(session.DefaultHistoryLimit, 0, 0)
	}
	if opts.Mode == "" {
		opts.Mode = config.ModeDirect
	}
	state := &State{}
	retriever := NewRetriever(state, opts.TopK, opts.Metrics)
	return &RAG{
		parser:    opts.Parser,
		build:     opts.Build,
		state:     state,
		sessions:  opts.Sessions,
		retriever: retriever,
		composer:  NewComposer(opts.LLM, opts.Metrics),
		agent:     NewAgent(opts.LLM, retriever, opts.Metrics),
		metrics:   opts.Metrics,
		uploadDir: opts.UploadDir,
		mode:      opts.Mode,
	}
}

// Upload stages the file and makes it the active document.
func (r *RAG) Upload(ctx context.Context, filename string, body io.Reader) error {
	if helper.SecureFilename(filename) == "" {
		r.metrics.Upload("rejected")
		return fmt.Errorf("%w: %q", models.ErrNoFileProvided, filename)
	}

	r.buildMu.Lock()
	defer r.buildMu.Unlock()

	path, err := helper.SaveUpload(r.uploadDir, filename, body)
	if err != nil {
		r.metrics.Upload("failed")
		return err
	}
	return r.indexLocked(ctx, path)
}

// IndexFile makes an existing file the active document.
func (r *RAG) IndexFile(ctx context.Context, path string) error {
	r.buildMu.Lock()
	defer r.buildMu.Unlock()
	return r.indexLocked(ctx, path)
}

func (r *RAG) indexLocked(ctx context.Context, path string) error {
	start := time.Now()
	chunks, err := r.parser.Parse(path)
	r.metrics.ObserveStage(metrics.StageConvert, start)
	if err != nil {
		r.metrics.Upload("conversion_failed")
		return err
	}

	start = time.Now()
	idx, err := r.build(ctx, chunks)
	r.metrics.ObserveStage(metrics.StageEmbed, start)
	if err != nil {
		r.metrics.Upload("embedding_failed")
		if !errors.Is(err, models.ErrEmbeddingFailed) {
			err = fmt.Errorf("%w: %v", models.ErrEmbeddingFailed, err)
		}
		return err
	}

	if old := r.state.Swap(idx, filepath.Base(path)); old != nil {
		if err := old.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to release previous index")
		}
	}
	r.metrics.SetIndexedChunks(idx.Len())
	r.metrics.Upload("success")
	log.Info().Str("file", path).Int("chunks", idx.Len()).Msg("Document indexed")
	return nil
}

// Query answers query within the thread's conversation and records the exchange.
func (r *RAG) Query(ctx context.Context, query, threadID string) (models.Message, error) {
	if threadID == "" {
		threadID = config.DefaultThreadID
	}
	if !r.state.Ready() {
		r.metrics.Query("index_not_ready")
		return models.Message{}, models.ErrIndexNotReady
	}

	history := r.sessions.History(threadID)

	var (
		answer string
		refs   []models.Reference
		err    error
	)
	switch r.mode {
	case config.ModeTools:
		answer, refs, err = r.agent.Run(ctx, query, history)
	default:
		var chunks []models.ScoredChunk
		chunks, refs, err = r.retriever.Retrieve(ctx, query)
		if err == nil {
			answer, err = r.composer.Compose(ctx, query, chunks, history)
		}
	}
	if err != nil {
		r.metrics.Query(queryStatus(err))
		return models.Message{}, err
	}

	r.sessions.Append(threadID, query, answer)
	r.metrics.Query("success")
	log.Debug().Str("thread_id", threadID).Int("references", len(refs)).Msg("Answered query")
	return models.Message{Content: answer, References: refs}, nil
}

// Retrieve exposes the retriever with a caller chosen k.
func (r *RAG) Retrieve(ctx context.Context, query string, k int) ([]models.ScoredChunk, []models.Reference, error) {
	if k <= 0 {
		k = r.retriever.K()
	}
	return r.retriever.RetrieveK(ctx, query, k)
}

func (r *RAG) Status() IndexInfo { return r.state.Info() }

func (r *RAG) Sessions() *session.Store { return r.sessions }

func (r *RAG) Close() error { return r.state.Close() }

func queryStatus(err error) string {
	switch {
	case errors.Is(err, models.ErrIndexNotReady):
		return "index_not_ready"
	case errors.Is(err, models.ErrEmbeddingFailed):
		return "embedding_failed"
	case errors.Is(err, models.ErrModelInvocationFailed):
		return "model_failed"
	default:
		return "error"
	}
}
