// Package crawler enumerates indexable files under a root and turns
// each one into chunks via the appropriate chunker.
package crawler

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gobwas/glob"
	"go.uber.org/zap"

	"github.com/mvp-joe/askcode/internal/chunk"
)

// MaxFileSize is the largest file the crawler will read.
const MaxFileSize = 1 << 20 // 1 MiB

// Crawler walks a tree and chunks its files.
type Crawler interface {
	// Scan enumerates files under root in a stable order, applying the
	// binary-extension filter, the implicit directory excludes, and the
	// given case-insensitive substring exclude patterns.
	Scan(root string, excludePatterns []string) ([]string, error)

	// Process reads one file and returns its chunks, stamped with the
	// file's UTC modification time. Oversize, empty, and unreadable
	// files yield zero chunks.
	Process(path string) ([]chunk.Chunk, error)
}

// binaryExtensions are never indexed (except .exe, which gets a
// synthetic metadata chunk).
var binaryExtensions = map[string]bool{
	".dll": true, ".pdb": true, ".bin": true,
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".ico": true,
	".zip": true, ".7z": true, ".tar": true, ".gz": true,
	".pdf": true, ".doc": true, ".docx": true, ".xls": true, ".xlsx": true,
}

// implicitExcludes are directory names skipped regardless of the
// request's exclude patterns.
var implicitExcludes = []string{"bin", "obj", ".git", "node_modules"}

type generic struct {
	csharp      *chunk.CSharpChunker
	sql         *chunk.SQLChunker
	lines       *chunk.LineChunker
	sqlLines    *chunk.LineChunker
	ignoreGlobs []glob.Glob
	logger      *zap.Logger
}

// newGeneric builds the crawler used by every archetype except
// SQLDatabase. ignorePatterns are configuration-level glob patterns
// (e.g. "**/*.min.js") compiled once up front; request-level excludes
// stay substring-matched.
func newGeneric(ignorePatterns []string, logger *zap.Logger) *generic {
	c := &generic{
		csharp:   chunk.NewCSharpChunker(),
		sql:      chunk.NewSQLChunker(),
		lines:    chunk.NewLineChunker(chunk.DefaultTargetSize),
		sqlLines: chunk.NewLineChunker(chunk.SQLTargetSize),
		logger:   logger,
	}
	for _, pattern := range ignorePatterns {
		g, err := glob.Compile(pattern, '/')
		if err != nil {
			logger.Warn("invalid ignore pattern", zap.String("pattern", pattern), zap.Error(err))
			continue
		}
		c.ignoreGlobs = append(c.ignoreGlobs, g)
	}
	return c
}

func (c *generic) Scan(root string, excludePatterns []string) ([]string, error) {
	return c.scan(root, excludePatterns, func(string) bool { return true })
}

// scan walks the tree; include narrows the file set for specialized
// variants.
func (c *generic) scan(root string, excludePatterns []string, include func(path string) bool) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("scanning %s: not a directory", root)
	}

	var files []string
	err = filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			c.logger.Warn("skipping unreadable path", zap.String("path", path), zap.Error(err))
			if entry != nil && entry.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if entry.IsDir() {
			if isImplicitlyExcluded(entry.Name()) {
				return filepath.SkipDir
			}
			return nil
		}

		if c.excluded(root, path, excludePatterns) {
			return nil
		}
		if ext := strings.ToLower(filepath.Ext(path)); binaryExtensions[ext] {
			return nil
		}
		if !include(path) {
			return nil
		}

		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", root, err)
	}
	return files, nil
}

func isImplicitlyExcluded(dirName string) bool {
	lower := strings.ToLower(dirName)
	for _, name := range implicitExcludes {
		if lower == name {
			return true
		}
	}
	return false
}

func (c *generic) excluded(root, path string, excludePatterns []string) bool {
	lowerPath := strings.ToLower(filepath.ToSlash(path))
	for _, pattern := range excludePatterns {
		p := strings.ToLower(strings.TrimSpace(pattern))
		if p != "" && strings.Contains(lowerPath, p) {
			return true
		}
	}

	if len(c.ignoreGlobs) > 0 {
		rel, err := filepath.Rel(root, path)
		if err == nil {
			rel = filepath.ToSlash(rel)
			for _, g := range c.ignoreGlobs {
				if g.Match(rel) {
					return true
				}
			}
		}
	}
	return false
}

func (c *generic) Process(path string) ([]chunk.Chunk, error) {
	info, err := os.Stat(path)
	if err != nil {
		c.logger.Warn("skipping unreadable file", zap.String("path", path), zap.Error(err))
		return nil, nil
	}
	modTime := info.ModTime().UTC()

	if strings.EqualFold(filepath.Ext(path), ".exe") {
		return []chunk.Chunk{executableChunk(path, info.Size(), modTime)}, nil
	}

	if info.Size() > MaxFileSize {
		c.logger.Warn("skipping oversize file",
			zap.String("path", path), zap.Int64("size", info.Size()))
		return nil, nil
	}

	source, err := os.ReadFile(path)
	if err != nil {
		c.logger.Warn("skipping unreadable file", zap.String("path", path), zap.Error(err))
		return nil, nil
	}
	if strings.TrimSpace(string(source)) == "" {
		return nil, nil
	}

	return c.chunkFile(path, source, modTime)
}

// chunkFile dispatches by extension. Structured parsing applies to C#;
// SQL files split by statement; everything else goes through the line
// chunker, with the larger target for database files.
func (c *generic) chunkFile(path string, source []byte, modTime time.Time) ([]chunk.Chunk, error) {
	switch {
	case strings.EqualFold(filepath.Ext(path), ".cs"):
		chunks, err := c.csharp.Chunk(path, source, modTime)
		if errors.Is(err, chunk.ErrUnparsable) {
			c.logger.Debug("structured parse failed, falling back to line chunking",
				zap.String("path", path))
			return c.lines.Chunk(path, source, modTime)
		}
		return chunks, err
	case chunk.IsSQLPath(path):
		return c.sql.Chunk(path, source, modTime)
	default:
		return c.lines.Chunk(path, source, modTime)
	}
}

// executableChunk is the synthetic metadata chunk for .exe files; the
// binary content itself is never read.
func executableChunk(path string, size int64, modTime time.Time) chunk.Chunk {
	name := filepath.Base(path)
	content := fmt.Sprintf("Executable: %s\nPath: %s\nSize: %d bytes\nModified: %s",
		name, path, size, modTime.Format(time.RFC3339))
	return chunk.Chunk{
		ID:           chunk.NewID(),
		FilePath:     path,
		FileName:     name,
		Content:      content,
		StartLine:    1,
		EndLine:      1,
		LastModified: modTime,
		Language:     "binary",
		Tags:         []string{"executable"},
	}
}
