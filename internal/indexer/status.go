package indexer

import "sync"

// Status is the observable progress record for the single indexing
// job. Readers get a best-effort snapshot; only the indexing goroutine
// writes.
type Status struct {
	IsIndexing     bool   `json:"is_indexing"`
	Message        string `json:"message"`
	TotalFiles     int    `json:"total_files"`
	ProcessedFiles int    `json:"processed_files"`
	CurrentFile    string `json:"current_file"`
}

// statusTracker guards the status record so multi-field snapshots are
// never torn.
type statusTracker struct {
	mu     sync.Mutex
	status Status
}

func (t *statusTracker) snapshot() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

func (t *statusTracker) reset(message string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status = Status{IsIndexing: true, Message: message}
}

func (t *statusTracker) setMessage(message string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status.Message = message
}

func (t *statusTracker) setTotalFiles(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status.TotalFiles = n
}

func (t *statusTracker) setCurrentFile(path string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status.CurrentFile = path
}

func (t *statusTracker) incrementProcessed() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status.ProcessedFiles++
	return t.status.ProcessedFiles
}

func (t *statusTracker) finish(message string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status.IsIndexing = false
	t.status.Message = message
	t.status.CurrentFile = ""
}
