package chunk

import (
	"path/filepath"
	"strings"
	"time"
)

// SQLChunker splits SQL files into one chunk per statement. Statements
// are terminated by ';' outside of string literals and line comments.
// Each chunk carries a classification tag derived from the statement's
// leading keyword.
type SQLChunker struct{}

func NewSQLChunker() *SQLChunker {
	return &SQLChunker{}
}

// statement is one ';'-terminated unit with its position in the file.
type statement struct {
	text      string
	startLine int
	endLine   int
}

func (c *SQLChunker) Chunk(path string, source []byte, modTime time.Time) ([]Chunk, error) {
	stmts := splitStatements(string(source))

	chunks := make([]Chunk, 0, len(stmts))
	for _, s := range stmts {
		chunks = append(chunks, Chunk{
			ID:           NewID(),
			FilePath:     path,
			FileName:     filepath.Base(path),
			Content:      s.text,
			StartLine:    s.startLine,
			EndLine:      s.endLine,
			LastModified: modTime.UTC(),
			Language:     "sql",
			Tags:         []string{ClassifySQL(s.text)},
		})
	}
	return chunks, nil
}

// splitStatements scans for ';' terminators while respecting single- and
// double-quoted literals and "--" line comments. Line numbers are
// tracked by offset during the scan, so repeated statements get correct
// positions.
func splitStatements(text string) []statement {
	var stmts []statement

	line := 1
	stmtStart := 0
	stmtStartLine := 1

	var inSingle, inDouble, inComment bool

	emit := func(end int) {
		raw := text[stmtStart:end]
		trimmed := strings.TrimSpace(raw)
		if trimmed != "" {
			// Adjust the start line past any leading blank lines.
			leading := raw[:strings.Index(raw, trimmed)]
			start := stmtStartLine + strings.Count(leading, "\n")
			stmts = append(stmts, statement{
				text:      trimmed,
				startLine: start,
				endLine:   start + strings.Count(trimmed, "\n"),
			})
		}
	}

	for i := 0; i < len(text); i++ {
		ch := text[i]
		switch {
		case ch == '\n':
			line++
			inComment = false
		case inComment:
			// Skip until end of line.
		case inSingle:
			if ch == '\'' {
				inSingle = false
			}
		case inDouble:
			if ch == '"' {
				inDouble = false
			}
		case ch == '\'':
			inSingle = true
		case ch == '"':
			inDouble = true
		case ch == '-' && i+1 < len(text) && text[i+1] == '-':
			inComment = true
		case ch == ';':
			emit(i)
			stmtStart = i + 1
			stmtStartLine = line
		}
	}
	emit(len(text))

	return stmts
}

// sqlClassifications maps normalized leading keywords to tags, checked
// in order so that the most specific prefix wins.
var sqlClassifications = []struct {
	prefix string
	tag    string
}{
	{"CREATE TABLE", "table-definition"},
	{"CREATE PROCEDURE", "stored-procedure"},
	{"CREATE PROC ", "stored-procedure"}, // T-SQL abbreviation
	{"CREATE FUNCTION", "function"},
	{"CREATE VIEW", "view"},
	{"CREATE INDEX", "index"},
	{"ALTER TABLE", "table-modification"},
	{"INSERT INTO", "data-insert"},
	{"UPDATE", "data-update"},
	{"DELETE FROM", "data-delete"},
	{"SELECT", "query"},
	{"DROP", "drop-statement"},
	{"EXEC", "execution"},
}

// ClassifySQL returns the classification tag for a statement based on
// its leading keyword, ignoring comments and whitespace.
func ClassifySQL(stmt string) string {
	head := normalizeStatementHead(stmt)
	for _, c := range sqlClassifications {
		if strings.HasPrefix(head, c.prefix) {
			return c.tag
		}
	}
	return "sql-statement"
}

// normalizeStatementHead returns the first few words of the statement,
// uppercased with comment lines removed and whitespace collapsed.
func normalizeStatementHead(stmt string) string {
	var words []string
	for _, ln := range strings.Split(stmt, "\n") {
		ln = strings.TrimSpace(ln)
		if ln == "" || strings.HasPrefix(ln, "--") {
			continue
		}
		words = append(words, strings.Fields(ln)...)
		if len(words) >= 3 {
			break
		}
	}
	if len(words) > 3 {
		words = words[:3]
	}
	return strings.ToUpper(strings.Join(words, " "))
}
