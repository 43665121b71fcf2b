// Package store holds indexed chunks and answers similarity queries.
// The in-memory implementation is the reference; a Postgres/pgvector
// implementation provides durable backing behind the same interface.
package store

import (
	"context"
	"math"
	"time"

	"github.com/mvp-joe/askcode/internal/chunk"
)

// SearchResult pairs a chunk with its cosine similarity to the query.
type SearchResult struct {
	Chunk      chunk.Chunk `json:"chunk"`
	Similarity float64     `json:"similarity"` // in [-1, 1]
}

// Store is the shared state between the indexer and the retriever.
// Implementations must allow concurrent readers and a single writer
// without torn reads.
type Store interface {
	// Upsert inserts chunks, replacing any existing chunk with the
	// same ID.
	Upsert(ctx context.Context, chunks []chunk.Chunk) error

	// Search returns up to limit chunks ranked by cosine similarity to
	// queryVec, descending. Chunks without an embedding are skipped.
	Search(ctx context.Context, queryVec []float32, limit int) ([]SearchResult, error)

	// Count returns the number of stored chunks.
	Count(ctx context.Context) (int, error)

	// Clear removes everything.
	Clear(ctx context.Context) error

	// AllFiles returns the distinct file paths present in the store.
	AllFiles(ctx context.Context) ([]string, error)

	// LastModified returns the recorded modification time for path, or
	// nil when no chunk for that path exists.
	LastModified(ctx context.Context, path string) (*time.Time, error)

	// DeleteFileChunks removes every chunk belonging to path.
	DeleteFileChunks(ctx context.Context, path string) error
}

// CosineSimilarity computes dot(a,b) / (|a|·|b|). A zero-norm operand
// yields 0 rather than an error.
func CosineSimilarity(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}

	var dot, normA, normB float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
