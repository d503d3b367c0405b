package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/tmc/langchaingo/embeddings"

	"pdf-rag/internal/chromemdb"
	"pdf-rag/internal/config"
	"pdf-rag/internal/db"
	"pdf-rag/internal/embedding"
	"pdf-rag/internal/helper"
	"pdf-rag/internal/llmservice"
	"pdf-rag/internal/metrics"
	"pdf-rag/internal/parser"
	"pdf-rag/internal/qdrantdb"
	"pdf-rag/internal/rag"
	"pdf-rag/internal/server"
	"pdf-rag/internal/session"
)

const (
	configFilePath  = "./configs/config.yaml"
	shutdownTimeout = 10 * time.Second
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "pdf-rag",
	Short:         "Question answering over an uploaded financial statement",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Starts the HTTP API with /upload and /query, plus /health, /metrics and /mcp.

Environment variables:
  AZURE_OPENAI_API_KEY   chat model key
  AZURE_OPENAI_ENDPOINT  chat model endpoint
  OPENAI_API_KEY         key for the openai provider
  TOKENIZERS_PARALLELISM set to false to embed with a single worker`,
	RunE: runServe,
}

var askCmd = &cobra.Command{
	Use:   "ask",
	Short: "Index a document and answer one question about it",
	RunE:  runAsk,
}

var parseCmd = &cobra.Command{
	Use:   "parse",
	Short: "Print the chunks a document converts into, without indexing",
	RunE:  runParse,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", configFilePath, "Path to the config file")

	askCmd.Flags().String("file", "", "Path to the document file")
	askCmd.Flags().String("query", "", "Question to be answered")
	askCmd.Flags().String("thread", config.DefaultThreadID, "Conversation thread id")
	_ = askCmd.MarkFlagRequired("file")
	_ = askCmd.MarkFlagRequired("query")

	parseCmd.Flags().String("file", "", "Path to the document file")
	_ = parseCmd.MarkFlagRequired("file")

	rootCmd.AddCommand(serveCmd, askCmd, parseCmd)
}

func main() {
	// .env is optional
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("Command failed")
		os.Exit(1)
	}
}

func setupLogging(cfg config.LogConfig) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "json" {
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Caller().Logger()
		return
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).With().Caller().Logger()
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return nil, fmt.Errorf("error loading config: %w", err)
	}
	setupLogging(cfg.Log)
	log.Debug().Str("path", configPath).Str("backend", cfg.Index.Backend).Str("mode", cfg.RAG.Mode).Msg("Loaded config")
	return cfg, nil
}

type app struct {
	rag     *rag.RAG
	metrics *metrics.Metrics
	closers []func() error
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	embedder, err := embedding.NewEmbedder(&cfg.EmbedLLM)
	if err != nil {
		return nil, fmt.Errorf("error initializing embedder: %w", err)
	}
	llm, err := llmservice.NewModel(&cfg.LLM)
	if err != nil {
		return nil, fmt.Errorf("error initializing chat model: %w", err)
	}

	a := &app{}
	build, err := a.indexBackend(ctx, cfg, embedder)
	if err != nil {
		a.close()
		return nil, err
	}

	sessions := session.New(cfg.RAG.HistoryLimit, cfg.Sessions.MaxSessions, cfg.Sessions.TTL)
	a.metrics = metrics.New(sessions.Len)
	a.rag = rag.NewRAG(rag.Options{
		Parser:    parser.New(cfg.RAG),
		Build:     build,
		LLM:       llm,
		Sessions:  sessions,
		Metrics:   a.metrics,
		UploadDir: cfg.Server.UploadDir,
		TopK:      cfg.RAG.TopK,
		Mode:      cfg.RAG.Mode,
	})
	a.closers = append(a.closers, a.rag.Close)
	return a, nil
}

// indexBackend connects the configured vector store and returns its build function.
func (a *app) indexBackend(ctx context.Context, cfg *config.Config, embedder embeddings.Embedder) (rag.BuildFunc, error) {
	switch cfg.Index.Backend {
	case config.BackendPgvector:
		sqldb, err := db.ConnectDB(&cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("error connecting to database: %w", err)
		}
		dbInstance := db.NewDB(sqldb, cfg.Database.Debug)
		a.closers = append(a.closers, dbInstance.Close)
		if err := db.WaitReady(ctx, dbInstance); err != nil {
			return nil, err
		}
		return rag.Builder(db.NewBuilder(dbInstance, embedder).Build), nil

	case config.BackendQdrant:
		b, err := qdrantdb.NewBuilder(ctx, cfg.Qdrant.Host, cfg.Qdrant.Port, embedder)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, b.Close)
		return rag.Builder(b.Build), nil

	default:
		return rag.Builder(chromemdb.NewBuilder(embedder, cfg.RAG.Concurrency).Build), nil
	}
}

// close releases resources in reverse order of acquisition.
func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			log.Warn().Err(err).Msg("Error releasing resource")
		}
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	srv := server.New(cfg.Server, a.rag, a.metrics).HTTPServer()
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Bool("mcp", cfg.Server.EnableMCP).Msg("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down")
	shutdownCtx, done := context.WithTimeout(context.Background(), shutdownTimeout)
	defer done()
	return srv.Shutdown(shutdownCtx)
}

func runAsk(cmd *cobra.Command, args []string) error {
	filePath, _ := cmd.Flags().GetString("file")
	query, _ := cmd.Flags().GetString("query")
	thread, _ := cmd.Flags().GetString("thread")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.rag.IndexFile(ctx, filePath); err != nil {
		return err
	}
	msg, err := a.rag.Query(ctx, query, thread)
	if err != nil {
		return err
	}

	log.Info().Msg("Query: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>")
	fmt.Printf("%s\n\n", query)
	log.Info().Msg("Answer: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>")
	fmt.Printf("%s\n\n", msg.Content)
	helper.PrettyPrint(msg.References)
	return nil
}

func runParse(cmd *cobra.Command, args []string) error {
	filePath, _ := cmd.Flags().GetString("file")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if !parser.Supported(filePath) {
		return fmt.Errorf("unsupported file format: %s", filePath)
	}

	chunks, err := parser.New(cfg.RAG).Parse(filePath)
	if err != nil {
		return err
	}
	helper.PrettyPrint(chunks)
	log.Info().Int("chunks", len(chunks)).Msg("Parsed document")
	return nil
}
