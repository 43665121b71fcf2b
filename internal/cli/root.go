// Package cli wires the cobra commands: serve, index, ask, version.
package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/mvp-joe/askcode/internal/config"
	"github.com/mvp-joe/askcode/internal/detect"
	"github.com/mvp-joe/askcode/internal/indexer"
	"github.com/mvp-joe/askcode/internal/ollama"
	"github.com/mvp-joe/askcode/internal/rag"
	"github.com/mvp-joe/askcode/internal/store"
)

var cfgFile string

// NewRootCommand builds the askcode command tree.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "askcode",
		Short: "Index a codebase and ask questions about it",
		Long: `askcode scans a source tree, chunks and embeds its files via an
Ollama-compatible model server, and answers natural-language questions
grounded in the most similar chunks.`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: askcode.yaml in . or ~/.askcode)")

	root.AddCommand(newServeCommand())
	root.AddCommand(newIndexCommand())
	root.AddCommand(newAskCommand())
	root.AddCommand(newVersionCommand())
	return root
}

// Execute runs the CLI.
func Execute() error {
	return NewRootCommand().Execute()
}

// app bundles the wired components behind every command.
type app struct {
	cfg       *config.Config
	logger    *zap.Logger
	store     store.Store
	models    ollama.Client
	detector  *detect.Detector
	indexer   *indexer.Indexer
	retriever *rag.Retriever

	closeStore func()
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}

	logger, err := newLogger(cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("building logger: %w", err)
	}

	models := ollama.New(cfg.Ollama.ClientConfig(), logger)

	var st store.Store
	closeStore := func() {}
	switch cfg.Store.Backend {
	case "postgres":
		pg, err := store.NewPostgresStore(ctx, cfg.Store.PostgresDSN,
			cfg.Ollama.FallbackEmbeddingDimension, logger)
		if err != nil {
			return nil, err
		}
		st = pg
		closeStore = pg.Close
	default:
		st = store.NewMemoryStore()
	}

	detector := detect.New(logger)
	ix := indexer.New(st, models, detector, indexer.Config{
		MaxParallelism:     cfg.Indexing.MaxParallelism,
		EmbeddingBatchSize: cfg.Indexing.EmbeddingBatchSize,
		IgnorePatterns:     cfg.Indexing.IgnorePatterns,
	}, logger)
	retriever := rag.New(st, models, rag.Config{}, logger)

	return &app{
		cfg:        cfg,
		logger:     logger,
		store:      st,
		models:     models,
		detector:   detector,
		indexer:    ix,
		retriever:  retriever,
		closeStore: closeStore,
	}, nil
}

func (a *app) close() {
	a.closeStore()
	a.logger.Sync()
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}
