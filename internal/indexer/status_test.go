package indexer

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusTracker_Lifecycle(t *testing.T) {
	t.Parallel()

	var tr statusTracker

	initial := tr.snapshot()
	assert.False(t, initial.IsIndexing)
	assert.Empty(t, initial.Message)

	tr.reset("Scanning files...")
	s := tr.snapshot()
	assert.True(t, s.IsIndexing)
	assert.Equal(t, "Scanning files...", s.Message)
	assert.Zero(t, s.TotalFiles)
	assert.Zero(t, s.ProcessedFiles)

	tr.setTotalFiles(3)
	tr.setCurrentFile("/src/a.cs")
	assert.Equal(t, 1, tr.incrementProcessed())
	assert.Equal(t, 2, tr.incrementProcessed())

	s = tr.snapshot()
	assert.Equal(t, 3, s.TotalFiles)
	assert.Equal(t, 2, s.ProcessedFiles)
	assert.Equal(t, "/src/a.cs", s.CurrentFile)

	tr.finish("Indexing complete: 3 files, 7 chunks")
	s = tr.snapshot()
	assert.False(t, s.IsIndexing)
	assert.Equal(t, "Indexing complete: 3 files, 7 chunks", s.Message)
	assert.Empty(t, s.CurrentFile, "finish clears the current file")
	assert.Equal(t, 3, s.TotalFiles, "counts survive completion")
}

func TestStatusTracker_ResetClearsPreviousJob(t *testing.T) {
	t.Parallel()

	var tr statusTracker
	tr.reset("first")
	tr.setTotalFiles(10)
	tr.incrementProcessed()
	tr.finish("done")

	tr.reset("second")
	s := tr.snapshot()
	assert.True(t, s.IsIndexing)
	assert.Equal(t, "second", s.Message)
	assert.Zero(t, s.TotalFiles)
	assert.Zero(t, s.ProcessedFiles)
	assert.Empty(t, s.CurrentFile)
}

func TestStatusTracker_ConcurrentSnapshotsAreConsistent(t *testing.T) {
	t.Parallel()

	var tr statusTracker
	tr.reset("working")
	tr.setTotalFiles(1000)

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 250; i++ {
				tr.incrementProcessed()
			}
		}()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 500; i++ {
			s := tr.snapshot()
			// A snapshot taken mid-job must be internally consistent.
			assert.LessOrEqual(t, s.ProcessedFiles, s.TotalFiles)
			assert.True(t, s.IsIndexing)
		}
	}()
	wg.Wait()
	<-done

	assert.Equal(t, 1000, tr.snapshot().ProcessedFiles)
}

func TestStatus_JSONFieldNames(t *testing.T) {
	t.Parallel()

	data, err := json.Marshal(Status{
		IsIndexing:     true,
		Message:        "Processing 2 files...",
		TotalFiles:     2,
		ProcessedFiles: 1,
		CurrentFile:    "/src/a.cs",
	})
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	for _, key := range []string{"is_indexing", "message", "total_files", "processed_files", "current_file"} {
		assert.Contains(t, decoded, key)
	}
}
