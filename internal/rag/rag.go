// Package rag answers natural-language questions about an indexed
// codebase: embed the question, retrieve the most similar chunks, and
// hand the assembled context to the chat model. When the embedding
// path is unavailable the retriever degrades to file-list context
// rather than failing.
package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/mvp-joe/askcode/internal/ollama"
	"github.com/mvp-joe/askcode/internal/store"
)

// ErrEmptyQuestion is returned for blank input; nothing is sent to the
// model server.
var ErrEmptyQuestion = errors.New("question is empty")

// Defaults for the retrieval policy. Together they define the degraded
// modes; overriding them is possible but they must stay the defaults.
const (
	DefaultTopK                = 5
	DefaultSimilarityThreshold = 0.1
	DefaultDegradedFileLimit   = 50
	DefaultPromptFileLimit     = 100
)

// Config tunes the retrieval policy.
type Config struct {
	TopK                int
	SimilarityThreshold float64
	DegradedFileLimit   int // file paths listed when answering without retrieval
	PromptFileLimit     int // file paths listed in the normal system prompt
}

func (c *Config) applyDefaults() {
	if c.TopK <= 0 {
		c.TopK = DefaultTopK
	}
	if c.SimilarityThreshold == 0 {
		c.SimilarityThreshold = DefaultSimilarityThreshold
	}
	if c.DegradedFileLimit <= 0 {
		c.DegradedFileLimit = DefaultDegradedFileLimit
	}
	if c.PromptFileLimit <= 0 {
		c.PromptFileLimit = DefaultPromptFileLimit
	}
}

// Retriever orchestrates embed → search → assemble → chat.
type Retriever struct {
	store  store.Store
	models ollama.Client
	cfg    Config
	logger *zap.Logger
}

func New(st store.Store, models ollama.Client, cfg Config, logger *zap.Logger) *Retriever {
	cfg.applyDefaults()
	return &Retriever{store: st, models: models, cfg: cfg, logger: logger}
}

// Ask answers a question about the indexed codebase. It only fails on
// empty input; every backend failure degrades to a best-effort answer.
func (r *Retriever) Ask(ctx context.Context, question string) (string, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return "", ErrEmptyQuestion
	}

	files, err := r.store.AllFiles(ctx)
	if err != nil {
		r.logger.Error("listing indexed files failed", zap.Error(err))
		files = nil
	}

	// Degraded mode: empty index. No embedding call is made.
	if len(files) == 0 {
		r.logger.Debug("answering against an empty index")
		return r.models.Chat(ctx, question, emptyIndexPrompt), nil
	}

	// Degraded mode: embedder down. Answer from file names only.
	if !r.models.IsHealthy(ctx) {
		r.logger.Warn("model server unhealthy, answering from file list")
		prompt := r.degradedPrompt(files,
			"The embedding service is currently unavailable, so file contents could not be searched. "+
				"Answer using only the file names and paths listed above, and say so explicitly.")
		return r.models.Chat(ctx, question, prompt), nil
	}

	queryVec := r.models.Embed(ctx, question)
	if ollama.IsZeroVector(queryVec) {
		// Degraded mode: the question could not be embedded.
		r.logger.Warn("question embedding failed, answering from file list")
		prompt := r.degradedPrompt(files,
			"The question could not be converted into an embedding, so no similarity search was performed. "+
				"Answer using only the file names and paths listed above, and mention this limitation.")
		return r.models.Chat(ctx, question, prompt), nil
	}

	results, err := r.store.Search(ctx, queryVec, r.cfg.TopK)
	if err != nil {
		r.logger.Error("similarity search failed", zap.Error(err))
		prompt := r.degradedPrompt(files,
			"Searching the index failed. Answer using only the file names and paths listed above.")
		return r.models.Chat(ctx, question, prompt), nil
	}

	prompt := r.buildPrompt(files, results)
	return r.models.Chat(ctx, question, prompt), nil
}

const emptyIndexPrompt = "You are a codebase assistant. The codebase index is empty: no files have been " +
	"indexed yet. Tell the user that there is nothing to search and suggest indexing a codebase first."

// degradedPrompt lists up to DegradedFileLimit paths plus a caveat
// explaining why contents are unavailable.
func (r *Retriever) degradedPrompt(files []string, caveat string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are a codebase assistant. The indexed codebase contains %d files.\n", len(files))
	b.WriteString("Indexed files:\n")

	limit := r.cfg.DegradedFileLimit
	for i, f := range files {
		if i >= limit {
			fmt.Fprintf(&b, "... and %d more files\n", len(files)-limit)
			break
		}
		fmt.Fprintf(&b, "- %s\n", f)
	}
	b.WriteString("\n")
	b.WriteString(caveat)
	return b.String()
}

// buildPrompt assembles the normal-path system prompt: the file
// inventory plus the retrieved snippets, when any of them clears the
// similarity threshold.
func (r *Retriever) buildPrompt(files []string, results []store.SearchResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are a codebase assistant. The indexed codebase contains %d files.\n", len(files))
	b.WriteString("Indexed files:\n")

	limit := r.cfg.PromptFileLimit
	for i, f := range files {
		if i >= limit {
			fmt.Fprintf(&b, "... and %d more files\n", len(files)-limit)
			break
		}
		fmt.Fprintf(&b, "- %s\n", f)
	}

	meaningful := false
	for _, res := range results {
		if res.Similarity > r.cfg.SimilarityThreshold {
			meaningful = true
			break
		}
	}

	if !meaningful {
		b.WriteString("\nNo relevant code snippets were found for this question. ")
		b.WriteString("Answer from the file inventory above and say that nothing closely matching was found.")
		return b.String()
	}

	b.WriteString("\nMost relevant code snippets:\n")
	for i, res := range results {
		c := res.Chunk
		fmt.Fprintf(&b, "\n--- Snippet %d: %s (lines %d-%d, similarity %.3f) ---\n",
			i+1, c.FileName, c.StartLine, c.EndLine, res.Similarity)
		b.WriteString(c.Content)
		b.WriteString("\n")
	}
	b.WriteString("\nAnswer the question using the snippets above, citing file names where relevant.")
	return b.String()
}
