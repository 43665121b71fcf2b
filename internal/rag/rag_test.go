package rag

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mvp-joe/askcode/internal/chunk"
	"github.com/mvp-joe/askcode/internal/store"
)

// scriptedModels fakes the model server and records the prompts the
// retriever assembles.
type scriptedModels struct {
	healthy    bool
	embedVec   []float32
	reply      string
	embedCalls int

	lastUserPrompt   string
	lastSystemPrompt string
}

func (m *scriptedModels) Embed(ctx context.Context, text string) []float32 {
	m.embedCalls++
	return m.embedVec
}

func (m *scriptedModels) EmbedBatch(ctx context.Context, texts []string) [][]float32 {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = m.Embed(ctx, texts[i])
	}
	return out
}

func (m *scriptedModels) Chat(ctx context.Context, userPrompt, systemPrompt string) string {
	m.lastUserPrompt = userPrompt
	m.lastSystemPrompt = systemPrompt
	if m.reply == "" {
		return "scripted answer"
	}
	return m.reply
}

func (m *scriptedModels) IsHealthy(ctx context.Context) bool { return m.healthy }

func storeWithFiles(t *testing.T, paths ...string) *store.MemoryStore {
	t.Helper()
	s := store.NewMemoryStore()
	var chunks []chunk.Chunk
	for _, p := range paths {
		chunks = append(chunks, chunk.Chunk{
			ID:           chunk.NewID(),
			FilePath:     p,
			FileName:     p,
			Content:      "content of " + p,
			StartLine:    1,
			EndLine:      3,
			LastModified: time.Now().UTC(),
			Language:     "text",
			Embedding:    []float32{1, 0, 0, 0},
		})
	}
	require.NoError(t, s.Upsert(context.Background(), chunks))
	return s
}

func TestAsk_EmptyQuestionRejected(t *testing.T) {
	t.Parallel()

	r := New(store.NewMemoryStore(), &scriptedModels{healthy: true}, Config{}, zap.NewNop())
	_, err := r.Ask(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrEmptyQuestion)
}

func TestAsk_EmptyIndexSkipsEmbedding(t *testing.T) {
	t.Parallel()

	models := &scriptedModels{healthy: true, embedVec: []float32{1, 0}}
	r := New(store.NewMemoryStore(), models, Config{}, zap.NewNop())

	answer, err := r.Ask(context.Background(), "List files")
	require.NoError(t, err)
	assert.Equal(t, "scripted answer", answer)

	assert.Zero(t, models.embedCalls, "empty index must not embed the question")
	assert.Contains(t, models.lastSystemPrompt, "empty")
	assert.Contains(t, models.lastSystemPrompt, "indexing")
	assert.Equal(t, "List files", models.lastUserPrompt)
}

func TestAsk_UnhealthyEmbedderListsFiles(t *testing.T) {
	t.Parallel()

	var paths []string
	for i := 0; i < 60; i++ {
		paths = append(paths, fmt.Sprintf("/src/file%02d.cs", i))
	}
	s := storeWithFiles(t, paths...)
	models := &scriptedModels{healthy: false}
	r := New(s, models, Config{}, zap.NewNop())

	_, err := r.Ask(context.Background(), "what is here")
	require.NoError(t, err)

	assert.Zero(t, models.embedCalls, "unhealthy embedder must not be called")
	assert.Contains(t, models.lastSystemPrompt, "/src/file00.cs")
	assert.Contains(t, models.lastSystemPrompt, "/src/file49.cs")
	assert.NotContains(t, models.lastSystemPrompt, "/src/file50.cs", "degraded prompt lists at most 50 files")
	assert.Contains(t, models.lastSystemPrompt, "and 10 more")
	assert.Contains(t, models.lastSystemPrompt, "unavailable")
}

func TestAsk_ZeroQueryVectorDegrades(t *testing.T) {
	t.Parallel()

	s := storeWithFiles(t, "/src/a.cs")
	models := &scriptedModels{healthy: true, embedVec: make([]float32, 4)}
	r := New(s, models, Config{}, zap.NewNop())

	_, err := r.Ask(context.Background(), "anything")
	require.NoError(t, err)

	assert.Equal(t, 1, models.embedCalls)
	assert.Contains(t, models.lastSystemPrompt, "/src/a.cs")
	assert.Contains(t, models.lastSystemPrompt, "could not be converted into an embedding")
}

func TestAsk_NormalPathIncludesSnippets(t *testing.T) {
	t.Parallel()

	s := store.NewMemoryStore()
	require.NoError(t, s.Upsert(context.Background(), []chunk.Chunk{{
		ID:           chunk.NewID(),
		FilePath:     "/src/Greeter.cs",
		FileName:     "Greeter.cs",
		Content:      "public string Foo() { return \"hi\"; }",
		StartLine:    5,
		EndLine:      8,
		LastModified: time.Now().UTC(),
		Language:     "csharp",
		FunctionName: "Foo",
		Embedding:    []float32{1, 0, 0, 0},
	}}))

	models := &scriptedModels{healthy: true, embedVec: []float32{1, 0, 0, 0}}
	r := New(s, models, Config{}, zap.NewNop())

	answer, err := r.Ask(context.Background(), "what does Foo do")
	require.NoError(t, err)
	assert.Equal(t, "scripted answer", answer)

	prompt := models.lastSystemPrompt
	assert.Contains(t, prompt, "contains 1 files")
	assert.Contains(t, prompt, "Greeter.cs")
	assert.Contains(t, prompt, "lines 5-8")
	assert.Contains(t, prompt, "similarity 1.000")
	assert.Contains(t, prompt, "return \"hi\";")
}

func TestAsk_SimilarityThresholdIsStrict(t *testing.T) {
	t.Parallel()

	// query (1,1,1,1) vs embedding (1,0,0,0): cosine is exactly
	// 1/(2·1) = 0.5. With the threshold at 0.5, strict > must treat
	// this as not meaningful.
	s := storeWithFiles(t, "/src/a.cs")
	models := &scriptedModels{healthy: true, embedVec: []float32{1, 1, 1, 1}}

	r := New(s, models, Config{SimilarityThreshold: 0.5}, zap.NewNop())
	_, err := r.Ask(context.Background(), "q")
	require.NoError(t, err)
	assert.Contains(t, models.lastSystemPrompt, "No relevant code snippets")

	r2 := New(s, models, Config{SimilarityThreshold: 0.49}, zap.NewNop())
	_, err = r2.Ask(context.Background(), "q")
	require.NoError(t, err)
	assert.Contains(t, models.lastSystemPrompt, "Most relevant code snippets")
}

func TestAsk_FileListTruncationInNormalPrompt(t *testing.T) {
	t.Parallel()

	var paths []string
	for i := 0; i < 120; i++ {
		paths = append(paths, fmt.Sprintf("/src/f%03d.cs", i))
	}
	s := storeWithFiles(t, paths...)
	models := &scriptedModels{healthy: true, embedVec: []float32{1, 0, 0, 0}}
	r := New(s, models, Config{}, zap.NewNop())

	_, err := r.Ask(context.Background(), "q")
	require.NoError(t, err)

	assert.Contains(t, models.lastSystemPrompt, "/src/f099.cs")
	assert.NotContains(t, models.lastSystemPrompt, "- /src/f100.cs", "normal prompt lists at most 100 files")
	assert.Contains(t, models.lastSystemPrompt, "and 20 more")
}
