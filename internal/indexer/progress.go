package indexer

// ProgressReporter receives indexing lifecycle callbacks for real-time
// feedback (the CLI renders a progress bar; the server ignores them).
// Callbacks may arrive from multiple goroutines.
type ProgressReporter interface {
	OnScanStart(root string)
	OnScanComplete(totalFiles int)
	OnFileProcessed(path string, processed, total int)
	OnEmbeddingStart(totalChunks int)
	OnEmbeddingProgress(processedChunks, totalChunks int)
	OnComplete(files, chunks int, cancelled bool)
}

// NoOpProgressReporter ignores all callbacks.
type NoOpProgressReporter struct{}

func (NoOpProgressReporter) OnScanStart(string)               {}
func (NoOpProgressReporter) OnScanComplete(int)               {}
func (NoOpProgressReporter) OnFileProcessed(string, int, int) {}
func (NoOpProgressReporter) OnEmbeddingStart(int)             {}
func (NoOpProgressReporter) OnEmbeddingProgress(int, int)     {}
func (NoOpProgressReporter) OnComplete(int, int, bool)        {}
