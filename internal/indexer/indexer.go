// Package indexer coordinates the scan → chunk → embed → store
// pipeline. One job runs at a time; progress is observable through a
// status snapshot and cancellation is cooperative.
package indexer

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mvp-joe/askcode/internal/chunk"
	"github.com/mvp-joe/askcode/internal/crawler"
	"github.com/mvp-joe/askcode/internal/detect"
	"github.com/mvp-joe/askcode/internal/ollama"
	"github.com/mvp-joe/askcode/internal/store"
)

// Config bounds the indexing pipeline.
type Config struct {
	MaxParallelism     int      // concurrent file tasks, default NumCPU
	EmbeddingBatchSize int      // chunks per embed batch, default 50
	IgnorePatterns     []string // config-level glob ignores for the crawler
}

func (c *Config) applyDefaults() {
	if c.MaxParallelism <= 0 {
		c.MaxParallelism = runtime.NumCPU()
	}
	if c.EmbeddingBatchSize <= 0 {
		c.EmbeddingBatchSize = 50
	}
}

// Indexer runs indexing jobs against a store. Only one job is active
// at a time; a Start while indexing is a logged no-op.
type Indexer struct {
	store    store.Store
	models   ollama.Client
	detector *detect.Detector
	cfg      Config
	progress ProgressReporter
	logger   *zap.Logger

	tracker statusTracker

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

func New(st store.Store, models ollama.Client, detector *detect.Detector, cfg Config, logger *zap.Logger) *Indexer {
	cfg.applyDefaults()
	return &Indexer{
		store:    st,
		models:   models,
		detector: detector,
		cfg:      cfg,
		progress: NoOpProgressReporter{},
		logger:   logger,
	}
}

// SetProgressReporter replaces the progress sink. Call before Start.
func (ix *Indexer) SetProgressReporter(p ProgressReporter) {
	if p != nil {
		ix.progress = p
	}
}

// Status returns a consistent snapshot of the current job's progress.
func (ix *Indexer) Status() Status {
	return ix.tracker.snapshot()
}

// Start launches an indexing job for root and returns immediately. A
// second Start while a job is active has no effect. Surrounding quotes
// on root are tolerated (pasted Windows paths often carry them).
func (ix *Indexer) Start(root string, excludePatterns []string) {
	root = strings.Trim(strings.TrimSpace(root), `"'`)

	ix.mu.Lock()
	if ix.running {
		ix.mu.Unlock()
		ix.logger.Warn("indexing already in progress, ignoring start", zap.String("root", root))
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	ix.running = true
	ix.cancel = cancel
	ix.done = make(chan struct{})
	done := ix.done
	ix.mu.Unlock()

	ix.tracker.reset("Scanning files...")

	go func() {
		defer close(done)
		defer func() {
			ix.mu.Lock()
			ix.running = false
			ix.cancel = nil
			ix.mu.Unlock()
			cancel()
		}()
		ix.run(ctx, root, excludePatterns)
	}()
}

// Cancel signals the active job to stop. It is idempotent and a no-op
// when nothing is running. In-flight file tasks finish; the embedding
// loop stops at the next batch boundary.
func (ix *Indexer) Cancel() {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.cancel != nil {
		ix.logger.Info("cancelling indexing job")
		ix.cancel()
	}
}

// Wait blocks until the active job (if any) finishes. Used by the CLI
// and by tests; the HTTP surface never waits.
func (ix *Indexer) Wait() {
	ix.mu.Lock()
	done := ix.done
	ix.mu.Unlock()
	if done != nil {
		<-done
	}
}

// run executes one job. It never returns an error: every failure is
// surfaced through the status message or the log.
func (ix *Indexer) run(ctx context.Context, root string, excludePatterns []string) {
	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		ix.logger.Error("indexing root is not a directory", zap.String("root", root), zap.Error(err))
		ix.tracker.finish(fmt.Sprintf("Indexing failed: %s is not an accessible directory", root))
		return
	}

	projectType := ix.detector.Detect(root)
	ix.logger.Info("starting indexing",
		zap.String("root", root),
		zap.String("project_type", string(projectType)),
		zap.Int("parallelism", ix.cfg.MaxParallelism))

	cr := crawler.ForProject(projectType, ix.cfg.IgnorePatterns, ix.logger)

	ix.progress.OnScanStart(root)
	files, err := cr.Scan(root, excludePatterns)
	if err != nil {
		ix.logger.Error("scan failed", zap.String("root", root), zap.Error(err))
		ix.tracker.finish(fmt.Sprintf("Indexing failed: %v", err))
		return
	}
	ix.tracker.setTotalFiles(len(files))
	ix.tracker.setMessage(fmt.Sprintf("Processing %d files...", len(files)))
	ix.progress.OnScanComplete(len(files))

	collected := ix.processFiles(ctx, cr, files)

	embedded := ix.embedAndStore(ctx, collected)

	status := ix.tracker.snapshot()
	if ctx.Err() != nil {
		msg := fmt.Sprintf("Indexing cancelled after %d of %d files", status.ProcessedFiles, status.TotalFiles)
		ix.tracker.finish(msg)
		ix.logger.Info("indexing cancelled",
			zap.Int("processed", status.ProcessedFiles),
			zap.Int("total", status.TotalFiles))
		ix.progress.OnComplete(status.ProcessedFiles, embedded, true)
		return
	}

	msg := fmt.Sprintf("Indexing complete: %d files, %d chunks", status.ProcessedFiles, embedded)
	ix.tracker.finish(msg)
	ix.logger.Info("indexing complete",
		zap.Int("files", status.ProcessedFiles),
		zap.Int("chunks", embedded))
	ix.progress.OnComplete(status.ProcessedFiles, embedded, false)
}

// processFiles runs the per-file stage with bounded parallelism and
// returns the chunks awaiting embedding. Per-file errors are isolated.
func (ix *Indexer) processFiles(ctx context.Context, cr crawler.Crawler, files []string) []chunk.Chunk {
	var (
		collectMu sync.Mutex
		collected []chunk.Chunk
	)

	g := &errgroup.Group{}
	g.SetLimit(ix.cfg.MaxParallelism)

	total := len(files)
	for _, path := range files {
		// Cancellation stops scheduling new file tasks; in-flight
		// tasks run to completion.
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			chunks := ix.processFile(ctx, cr, path)
			if len(chunks) > 0 {
				collectMu.Lock()
				collected = append(collected, chunks...)
				collectMu.Unlock()
			}
			processed := ix.tracker.incrementProcessed()
			ix.progress.OnFileProcessed(path, processed, total)
			return nil
		})
	}
	g.Wait()

	return collected
}

// processFile applies the mtime skip rule, clears stale chunks, and
// chunks the file. Errors are logged, never propagated.
func (ix *Indexer) processFile(ctx context.Context, cr crawler.Crawler, path string) []chunk.Chunk {
	ix.tracker.setCurrentFile(path)

	info, err := os.Stat(path)
	if err != nil {
		ix.logger.Warn("stat failed", zap.String("path", path), zap.Error(err))
		return nil
	}
	fileMtime := info.ModTime().UTC()

	stored, err := ix.store.LastModified(ctx, path)
	if err != nil {
		ix.logger.Warn("last-modified lookup failed", zap.String("path", path), zap.Error(err))
	}
	if stored != nil {
		// Both sides UTC; only a strictly newer file is re-indexed.
		if !fileMtime.After(stored.UTC()) {
			return nil
		}
		// Stale version present: remove it before the new chunks land.
		if err := ix.store.DeleteFileChunks(ctx, path); err != nil {
			ix.logger.Warn("deleting stale chunks failed", zap.String("path", path), zap.Error(err))
			return nil
		}
	}

	chunks, err := cr.Process(path)
	if err != nil {
		ix.logger.Warn("chunking failed", zap.String("path", path), zap.Error(err))
		return nil
	}
	for i := range chunks {
		chunks[i].LastModified = fileMtime
	}
	return chunks
}

// embedAndStore embeds the collected chunks in batches and upserts
// each batch once its vectors are assigned, so readers never observe a
// partially-embedded chunk. Returns the number of chunks stored.
func (ix *Indexer) embedAndStore(ctx context.Context, chunks []chunk.Chunk) int {
	if len(chunks) == 0 {
		return 0
	}

	batchSize := ix.cfg.EmbeddingBatchSize
	total := len(chunks)
	ix.tracker.setMessage(fmt.Sprintf("Generating embeddings for %d chunks...", total))
	ix.progress.OnEmbeddingStart(total)

	stored := 0
	for start := 0; start < total; start += batchSize {
		// Cancellation takes effect at batch boundaries.
		select {
		case <-ctx.Done():
			return stored
		default:
		}

		end := start + batchSize
		if end > total {
			end = total
		}
		batch := chunks[start:end]

		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Content
		}

		vectors := ix.models.EmbedBatch(ctx, texts)
		if len(vectors) != len(batch) {
			ix.logger.Error("embedding batch size mismatch, skipping batch",
				zap.Int("expected", len(batch)), zap.Int("got", len(vectors)))
			continue
		}
		for i := range batch {
			batch[i].Embedding = vectors[i]
		}

		if err := ix.store.Upsert(ctx, batch); err != nil {
			ix.logger.Error("upsert failed, skipping batch",
				zap.Int("batch_start", start), zap.Error(err))
			continue
		}
		stored += len(batch)
		ix.progress.OnEmbeddingProgress(stored, total)
	}
	return stored
}
