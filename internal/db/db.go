package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	_ "github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"

	"pdf-rag/internal/config"
	"pdf-rag/internal/embedding"
	"pdf-rag/internal/helper"
	"pdf-rag/internal/models"
)

const (
	tablePrefix = "chunks_"
	insertBatch = 500
)

type Document struct {
	bun.BaseModel `bun:"table:documents,alias:d"`
	ID            string          `bun:"id,pk"`
	Position      int             `bun:"position,notnull"`
	Content       string          `bun:"content,notnull"`
	Meta          string          `bun:"meta,notnull"`
	Embedding     pgvector.Vector `bun:"embedding,notnull,type:vector"`
	Score         float32         `bun:"score,scanonly"`
}

func NewDB(sqldb *sql.DB, debug bool) *bun.DB {
	db := bun.NewDB(sqldb, pgdialect.New())
	if debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}
	return db
}

// ConnectDB opens the pool with bun's pgdriver, or lib/pq when driver is "pq".
func ConnectDB(cfg *config.DatabaseConfig) (*sql.DB, error) {
	if cfg.Driver == "pq" {
		return sql.Open("postgres", cfg.DSN)
	}
	opts := []pgdriver.Option{pgdriver.WithDSN(cfg.DSN)}
	if cfg.Password != "" {
		opts = append(opts, pgdriver.WithPassword(cfg.Password))
	}
	return sql.OpenDB(pgdriver.NewConnector(opts...)), nil
}

// WaitReady pings the database with exponential backoff, then enables pgvector.
func WaitReady(ctx context.Context, db *bun.DB) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	b.MaxElapsedTime = 30 * time.Second

	if err := backoff.Retry(func() error { return db.PingContext(ctx) }, backoff.WithContext(b, ctx)); err != nil {
		return fmt.Errorf("database unreachable: %w", err)
	}
	_, err := db.ExecContext(ctx, "CREATE EXTENSION IF NOT EXISTS vector")
	return err
}

// Builder writes every document into its own table.
type Builder struct {
	db       *bun.DB
	embedder embeddings.Embedder
}

func NewBuilder(db *bun.DB, embedder embeddings.Embedder) *Builder {
	return &Builder{db: db, embedder: embedder}
}

// Index is a pgvector table holding the chunks of one document.
type Index struct {
	db       *bun.DB
	table    string
	count    int
	embedder embeddings.Embedder
}

func (b *Builder) Build(ctx context.Context, chunks []models.Chunk) (*Index, error) {
	vectors, err := embedding.EmbedChunks(ctx, b.embedder, chunks)
	if err != nil {
		return nil, err
	}

	idx := &Index{db: b.db, table: tablePrefix + helper.ShortID(), embedder: b.embedder}
	if len(chunks) == 0 {
		return idx, nil
	}

	if err := InitTable(ctx, b.db, idx.table); err != nil {
		return nil, fmt.Errorf("failed to create table %s: %w", idx.table, err)
	}

	docs := make([]Document, len(chunks))
	for i, c := range chunks {
		docs[i] = Document{
			ID:        c.ID,
			Position:  c.Meta.Position,
			Content:   c.Content,
			Meta:      c.MetaJSON(),
			Embedding: pgvector.NewVector(vectors[i]),
		}
	}
	if err := StoreDocuments(ctx, b.db, idx.table, docs); err != nil {
		_ = DropTable(ctx, b.db, idx.table)
		return nil, fmt.Errorf("%w: %v", models.ErrEmbeddingFailed, err)
	}
	idx.count = len(docs)

	log.Debug().Str("table", idx.table).Int("documents", idx.count).Msg("Built pgvector index")
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

	docs, err := SearchDocuments(ctx, i.db, i.table, vec, k)
	if err != nil {
		return nil, err
	}

	scored := make([]models.ScoredChunk, 0, len(docs))
	for _, d := range docs {
		meta, err := models.ParseMeta(d.Meta)
		if err != nil {
			log.Warn().Err(err).Str("id", d.ID).Msg("Ignoring unreadable chunk metadata")
		}
		scored = append(scored, models.ScoredChunk{
			Chunk: models.Chunk{ID: d.ID, Content: d.Content, Meta: meta},
			Score: d.Score,
		})
	}
	return scored, nil
}

func (i *Index) Len() int { return i.count }

func (i *Index) Close() error {
	if i.count == 0 {
		return nil
	}
	return DropTable(context.Background(), i.db, i.table)
}

func InitTable(ctx context.Context, db *bun.DB, table string) error {
	_, err := db.NewCreateTable().
		Model((*Document)(nil)).
		ModelTableExpr("?", bun.Ident(table)).
		IfNotExists().
		Exec(ctx)
	return err
}

func StoreDocuments(ctx context.Context, db *bun.DB, table string, docs []Document) error {
	for start := 0; start < len(docs); start += insertBatch {
		end := min(start+insertBatch, len(docs))
		batch := docs[start:end]
		if _, err := db.NewInsert().Model(&batch).ModelTableExpr("?", bun.Ident(table)).Exec(ctx); err != nil {
			return err
		}
	}
	return nil
}

// SearchDocuments orders by cosine distance; score is cosine similarity.
func SearchDocuments(ctx context.Context, db *bun.DB, table string, queryEmbedding []float32, limit int) ([]Document, error) {
	vec := pgvector.NewVector(queryEmbedding)
	var docs []Document
	err := db.NewSelect().
		Model(&docs).
		ModelTableExpr("? AS d", bun.Ident(table)).
		Column("id", "position", "content", "meta").
		ColumnExpr("1 - (embedding <=> ?) AS score", vec).
		OrderExpr("embedding <=> ?", vec).
		Limit(limit).
		Scan(ctx)
	return docs, err
}

func DropTable(ctx context.Context, db *bun.DB, table string) error {
	_, err := db.NewDropTable().Table(table).IfExists().Exec(ctx)
	return err
}
