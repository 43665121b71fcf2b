package chunk

import (
	"path/filepath"
	"strings"
	"time"
)

const (
	// DefaultTargetSize is the approximate chunk size in characters for
	// general source and text files.
	DefaultTargetSize = 2000

	// SQLTargetSize is the larger target used for SQL and database
	// files, whose statements tend to be long.
	SQLTargetSize = 3000
)

// LineChunker accumulates whole lines greedily into chunks of roughly
// targetSize characters. Chunks never overlap: when appending the next
// line would exceed the target and the current chunk is non-empty, the
// chunk is emitted and a new one begins at that line.
type LineChunker struct {
	targetSize int
}

// NewLineChunker creates a line chunker with the given character target.
// A non-positive target falls back to DefaultTargetSize.
func NewLineChunker(targetSize int) *LineChunker {
	if targetSize <= 0 {
		targetSize = DefaultTargetSize
	}
	return &LineChunker{targetSize: targetSize}
}

func (c *LineChunker) Chunk(path string, source []byte, modTime time.Time) ([]Chunk, error) {
	text := string(source)
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	lines := strings.Split(text, "\n")
	// A trailing newline produces a final empty element; dropping it
	// keeps end lines within the file's real line count.
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	lang := LanguageForPath(path)

	var chunks []Chunk
	var buf strings.Builder
	startLine := 1

	flush := func(endLine int) {
		content := buf.String()
		if strings.TrimSpace(content) == "" {
			buf.Reset()
			return
		}
		chunks = append(chunks, Chunk{
			ID:           NewID(),
			FilePath:     path,
			FileName:     filepath.Base(path),
			Content:      content,
			StartLine:    startLine,
			EndLine:      endLine,
			LastModified: modTime.UTC(),
			Language:     lang,
		})
		buf.Reset()
	}

	for i, line := range lines {
		lineNo := i + 1
		added := len(line)
		if buf.Len() > 0 {
			added++ // joining newline
		}
		if buf.Len() > 0 && buf.Len()+added > c.targetSize {
			flush(lineNo - 1)
			startLine = lineNo
		}
		if buf.Len() > 0 {
			buf.WriteByte('\n')
		}
		buf.WriteString(line)
	}
	flush(len(lines))

	return chunks, nil
}
