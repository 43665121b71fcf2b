// Package chunk turns source files into retrieval units. A chunk is a
// contiguous slice of one file together with the metadata the retriever
// needs to present it: line span, language, and (for structured code)
// the function and class it belongs to.
package chunk

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Chunk is the unit of retrieval.
type Chunk struct {
	ID           string    `json:"id"`
	FilePath     string    `json:"file_path"`
	FileName     string    `json:"file_name"`
	Content      string    `json:"content"`
	StartLine    int       `json:"start_line"` // 1-based, inclusive
	EndLine      int       `json:"end_line"`   // 1-based, inclusive
	LastModified time.Time `json:"last_modified"`
	Embedding    []float32 `json:"embedding,omitempty"`
	Language     string    `json:"language"`
	FunctionName string    `json:"function_name,omitempty"`
	ClassName    string    `json:"class_name,omitempty"`
	Tags         []string  `json:"tags,omitempty"`
}

// NewID returns a fresh chunk identifier. IDs are random, so replacing a
// file's chunks goes through DeleteFileChunks rather than upsert-by-id.
func NewID() string {
	return uuid.New().String()
}

// Chunker splits file content into chunks. Implementations must stamp
// every chunk with the given modification time (normalized to UTC).
type Chunker interface {
	Chunk(path string, source []byte, modTime time.Time) ([]Chunk, error)
}

// languageByExt maps file extensions to language tags.
var languageByExt = map[string]string{
	".cs":     "csharp",
	".cshtml": "razor",
	".razor":  "razor",
	".html":   "html",
	".htm":    "html",
	".aspx":   "html",
	".ascx":   "html",
	".js":     "javascript",
	".jsx":    "javascript",
	".ts":     "typescript",
	".tsx":    "typescript",
	".py":     "python",
	".sql":    "sql",
	".json":   "json",
	".xml":    "xml",
	".config": "xml",
	".csproj": "xml",
	".yaml":   "yaml",
	".yml":    "yaml",
	".md":     "markdown",
	".txt":    "text",
}

// LanguageForPath returns the language tag for a file path, or "text"
// when the extension is not recognized.
func LanguageForPath(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if lang, ok := languageByExt[ext]; ok {
		return lang
	}
	return "text"
}

// IsSQLPath reports whether the path should use the larger SQL chunk
// target and the statement-based splitter.
func IsSQLPath(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".sql", ".ddl", ".dml":
		return true
	}
	return false
}
