package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/mvp-joe/askcode/internal/chunk"
)

// MemoryStore is the reference implementation: a flat slice guarded by
// a RWMutex, with brute-force cosine search. Sufficient at the target
// scale; no approximate index.
type MemoryStore struct {
	mu     sync.RWMutex
	chunks []chunk.Chunk
	byID   map[string]int // id -> index into chunks
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byID: make(map[string]int)}
}

func (s *MemoryStore) Upsert(ctx context.Context, chunks []chunk.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range chunks {
		if idx, ok := s.byID[c.ID]; ok {
			s.chunks[idx] = c
			continue
		}
		s.byID[c.ID] = len(s.chunks)
		s.chunks = append(s.chunks, c)
	}
	return nil
}

func (s *MemoryStore) Search(ctx context.Context, queryVec []float32, limit int) ([]SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make([]SearchResult, 0, len(s.chunks))
	for _, c := range s.chunks {
		if len(c.Embedding) == 0 {
			continue
		}
		results = append(results, SearchResult{
			Chunk:      c,
			Similarity: CosineSimilarity(queryVec, c.Embedding),
		})
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})
	if limit >= 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (s *MemoryStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks), nil
}

func (s *MemoryStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks = nil
	s.byID = make(map[string]int)
	return nil
}

func (s *MemoryStore) AllFiles(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]bool)
	var files []string
	for _, c := range s.chunks {
		if !seen[c.FilePath] {
			seen[c.FilePath] = true
			files = append(files, c.FilePath)
		}
	}
	return files, nil
}

func (s *MemoryStore) LastModified(ctx context.Context, path string) (*time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, c := range s.chunks {
		if c.FilePath == path {
			t := c.LastModified
			return &t, nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) DeleteFileChunks(ctx context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.chunks[:0]
	for _, c := range s.chunks {
		if c.FilePath != path {
			kept = append(kept, c)
		}
	}
	s.chunks = kept

	s.byID = make(map[string]int, len(s.chunks))
	for i, c := range s.chunks {
		s.byID[c.ID] = i
	}
	return nil
}
