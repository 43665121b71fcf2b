package cli

import (
	"fmt"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
)

// barReporter renders indexing progress as two consecutive terminal
// bars: one for file processing, one for embedding. Callbacks arrive
// from multiple goroutines, so updates are serialized.
type barReporter struct {
	mu  sync.Mutex
	bar *progressbar.ProgressBar
}

func newBarReporter() *barReporter {
	return &barReporter{}
}

func (r *barReporter) newBar(total int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionThrottle(65*time.Millisecond),
		progressbar.OptionSetRenderBlankState(true),
		progressbar.OptionOnCompletion(func() { fmt.Println() }),
	)
}

func (r *barReporter) OnScanStart(root string) {
	fmt.Printf("Scanning %s...\n", root)
}

func (r *barReporter) OnScanComplete(totalFiles int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bar = r.newBar(totalFiles, "Processing files")
}

func (r *barReporter) OnFileProcessed(path string, processed, total int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.bar != nil {
		r.bar.Set(processed)
	}
}

func (r *barReporter) OnEmbeddingStart(totalChunks int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bar = r.newBar(totalChunks, "Embedding chunks")
}

func (r *barReporter) OnEmbeddingProgress(processedChunks, totalChunks int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.bar != nil {
		r.bar.Set(processedChunks)
	}
}

func (r *barReporter) OnComplete(files, chunks int, cancelled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.bar != nil {
		r.bar.Finish()
		r.bar = nil
	}
	if cancelled {
		fmt.Printf("Cancelled after %d files (%d chunks stored)\n", files, chunks)
	}
}
