package indexer

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mvp-joe/askcode/internal/detect"
	"github.com/mvp-joe/askcode/internal/store"
)

// mockModels is a deterministic in-process model server: embeddings
// are derived from a content hash, so equal text embeds equally.
type mockModels struct {
	dim        int
	embedDelay time.Duration
	embedCalls atomic.Int32
}

func newMockModels() *mockModels {
	return &mockModels{dim: 8}
}

func (m *mockModels) Embed(ctx context.Context, text string) []float32 {
	m.embedCalls.Add(1)
	if m.embedDelay > 0 {
		time.Sleep(m.embedDelay)
	}
	hash := sha256.Sum256([]byte(text))
	vec := make([]float32, m.dim)
	for i := 0; i < m.dim; i++ {
		bits := binary.BigEndian.Uint32(hash[(i*4)%len(hash):])
		vec[i] = (float32(bits)/float32(1<<32))*2 - 1
	}
	return vec
}

func (m *mockModels) EmbedBatch(ctx context.Context, texts []string) [][]float32 {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = m.Embed(ctx, t)
	}
	return out
}

func (m *mockModels) Chat(ctx context.Context, userPrompt, systemPrompt string) string {
	return "mock answer"
}

func (m *mockModels) IsHealthy(ctx context.Context) bool { return true }

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func newTestIndexer(st store.Store, models *mockModels, cfg Config) *Indexer {
	return New(st, models, detect.New(zap.NewNop()), cfg, zap.NewNop())
}

func TestIndexer_HappyPath(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := writeFile(t, dir, "Greeter.cs",
		"public class Greeter\n{\n    public string Foo()\n    {\n        return \"hi\";\n    }\n}\n")

	st := store.NewMemoryStore()
	models := newMockModels()
	ix := newTestIndexer(st, models, Config{})

	ix.Start(dir, nil)
	ix.Wait()

	status := ix.Status()
	assert.False(t, status.IsIndexing)
	assert.Contains(t, status.Message, "complete")
	assert.Equal(t, 1, status.TotalFiles)
	assert.Equal(t, 1, status.ProcessedFiles)

	ctx := context.Background()
	n, err := st.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	results, err := st.Search(ctx, models.Embed(ctx, "anything"), 10)
	require.NoError(t, err)
	require.Len(t, results, 1)

	c := results[0].Chunk
	assert.Equal(t, "Foo", c.FunctionName)
	assert.Equal(t, "Greeter", c.ClassName)
	assert.Equal(t, "csharp", c.Language)
	assert.Equal(t, []string{"method"}, c.Tags)
	assert.NotEmpty(t, c.Embedding, "stored chunks must be embedded")

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.True(t, c.LastModified.Equal(info.ModTime().UTC()),
		"chunk must carry the file's UTC mtime")
}

func TestIndexer_UnchangedTreeIsIdempotent(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "a.txt", "alpha content")
	writeFile(t, dir, "b.txt", "beta content")

	st := store.NewMemoryStore()
	models := newMockModels()
	ix := newTestIndexer(st, models, Config{})

	ix.Start(dir, nil)
	ix.Wait()

	ctx := context.Background()
	firstCount, err := st.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, firstCount)
	callsAfterFirst := models.embedCalls.Load()

	ix.Start(dir, nil)
	ix.Wait()

	secondCount, err := st.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, firstCount, secondCount, "re-index of unchanged tree must not add chunks")
	assert.Equal(t, callsAfterFirst, models.embedCalls.Load(),
		"re-index of unchanged tree must not embed anything")
}

func TestIndexer_ModifiedFileIsReplaced(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := writeFile(t, dir, "a.txt", "version one")

	st := store.NewMemoryStore()
	models := newMockModels()
	ix := newTestIndexer(st, models, Config{})

	ix.Start(dir, nil)
	ix.Wait()

	// Advance the mtime past the stored value.
	require.NoError(t, os.WriteFile(path, []byte("version two"), 0o644))
	future := time.Now().Add(2 * time.Second)
	require.NoError(t, os.Chtimes(path, future, future))

	ix.Start(dir, nil)
	ix.Wait()

	ctx := context.Background()
	n, err := st.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "old chunks must be deleted before the new version lands")

	results, err := st.Search(ctx, models.Embed(ctx, "version"), 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "version two", results[0].Chunk.Content)
}

func TestIndexer_NonexistentRootFailsViaStatus(t *testing.T) {
	t.Parallel()

	st := store.NewMemoryStore()
	ix := newTestIndexer(st, newMockModels(), Config{})

	ix.Start(filepath.Join(t.TempDir(), "missing"), nil)
	ix.Wait()

	status := ix.Status()
	assert.False(t, status.IsIndexing)
	assert.Contains(t, status.Message, "failed")

	n, err := st.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n, "a failed job must not mutate the store")
}

func TestIndexer_TrimsQuotedRoot(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "a.txt", "content")

	st := store.NewMemoryStore()
	ix := newTestIndexer(st, newMockModels(), Config{})

	ix.Start(`"`+dir+`"`, nil)
	ix.Wait()

	n, err := st.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestIndexer_ExcludePatterns(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, filepath.Join("src", "keep.txt"), "keep")
	writeFile(t, dir, filepath.Join("generated", "skip.txt"), "skip")

	st := store.NewMemoryStore()
	ix := newTestIndexer(st, newMockModels(), Config{})

	ix.Start(dir, []string{"generated"})
	ix.Wait()

	files, err := st.AllFiles(context.Background())
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Contains(t, files[0], "keep.txt")
}

func TestIndexer_Cancellation(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	for i := 0; i < 30; i++ {
		writeFile(t, dir, fmt.Sprintf("f%02d.txt", i), fmt.Sprintf("file %d content", i))
	}

	st := store.NewMemoryStore()
	models := newMockModels()
	models.embedDelay = 20 * time.Millisecond
	ix := newTestIndexer(st, models, Config{EmbeddingBatchSize: 1})

	ix.Start(dir, nil)
	time.Sleep(50 * time.Millisecond)
	ix.Cancel()
	ix.Cancel() // idempotent
	ix.Wait()

	status := ix.Status()
	assert.False(t, status.IsIndexing)
	assert.Contains(t, status.Message, "cancelled")
	assert.LessOrEqual(t, status.ProcessedFiles, status.TotalFiles)

	// Whatever made it into the store must be fully embedded.
	results, err := st.Search(context.Background(), models.Embed(context.Background(), "file"), 100)
	require.NoError(t, err)
	n, err := st.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, n, len(results), "no partially-embedded chunks may be visible")
}

func TestIndexer_CancelWhenIdleIsNoOp(t *testing.T) {
	t.Parallel()

	ix := newTestIndexer(store.NewMemoryStore(), newMockModels(), Config{})
	ix.Cancel() // must not panic or block
	assert.False(t, ix.Status().IsIndexing)
}

func TestIndexer_StartWhileRunningIsIgnored(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	for i := 0; i < 10; i++ {
		writeFile(t, dir, fmt.Sprintf("f%d.txt", i), fmt.Sprintf("content %d", i))
	}
	other := t.TempDir()
	writeFile(t, other, "other.txt", "other tree")

	st := store.NewMemoryStore()
	models := newMockModels()
	models.embedDelay = 10 * time.Millisecond
	ix := newTestIndexer(st, models, Config{EmbeddingBatchSize: 1})

	ix.Start(dir, nil)
	ix.Start(other, nil) // ignored: a job is active
	ix.Wait()

	files, err := st.AllFiles(context.Background())
	require.NoError(t, err)
	for _, f := range files {
		assert.NotContains(t, f, "other.txt", "second start must have no effect")
	}
	assert.Len(t, files, 10)
}
