package chunk

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLChunker_ClassifiesStatements(t *testing.T) {
	t.Parallel()

	input := "CREATE TABLE t(id int);\nINSERT INTO t VALUES(1);"
	c := NewSQLChunker()
	chunks, err := c.Chunk("/db/schema.sql", []byte(input), time.Now())
	require.NoError(t, err)
	require.Len(t, chunks, 2)

	assert.Equal(t, []string{"table-definition"}, chunks[0].Tags)
	assert.Equal(t, []string{"data-insert"}, chunks[1].Tags)
	assert.Equal(t, "sql", chunks[0].Language)

	// Contiguous, non-overlapping line spans.
	assert.Equal(t, 1, chunks[0].StartLine)
	assert.Equal(t, 1, chunks[0].EndLine)
	assert.Equal(t, 2, chunks[1].StartLine)
	assert.Equal(t, 2, chunks[1].EndLine)
}

func TestSQLChunker_SemicolonInsideLiteral(t *testing.T) {
	t.Parallel()

	input := `INSERT INTO msgs VALUES ('hello; world');
SELECT * FROM msgs;`
	c := NewSQLChunker()
	chunks, err := c.Chunk("/db/data.sql", []byte(input), time.Now())
	require.NoError(t, err)
	require.Len(t, chunks, 2, "semicolon inside a string literal must not split")

	assert.Contains(t, chunks[0].Content, "hello; world")
	assert.Equal(t, []string{"data-insert"}, chunks[0].Tags)
	assert.Equal(t, []string{"query"}, chunks[1].Tags)
}

func TestSQLChunker_SemicolonInsideComment(t *testing.T) {
	t.Parallel()

	input := "-- setup; do not split here\nCREATE VIEW v AS SELECT 1;"
	c := NewSQLChunker()
	chunks, err := c.Chunk("/db/views.sql", []byte(input), time.Now())
	require.NoError(t, err)
	require.Len(t, chunks, 1)

	assert.Equal(t, []string{"view"}, chunks[0].Tags, "classification must skip leading comments")
}

func TestSQLChunker_RepeatedStatementsGetDistinctLines(t *testing.T) {
	t.Parallel()

	input := "SELECT 1;\nSELECT 1;\nSELECT 1;"
	c := NewSQLChunker()
	chunks, err := c.Chunk("/db/q.sql", []byte(input), time.Now())
	require.NoError(t, err)
	require.Len(t, chunks, 3)

	for i, ch := range chunks {
		assert.Equal(t, i+1, ch.StartLine, "identical statements must keep their own line numbers")
		assert.Equal(t, i+1, ch.EndLine)
	}
}

func TestSplitStatements_RoundTrip(t *testing.T) {
	t.Parallel()

	input := "CREATE TABLE a(x int);\n\nINSERT INTO a VALUES (1);\nDROP TABLE a;\n"
	stmts := splitStatements(input)
	require.Len(t, stmts, 3)

	var parts []string
	for _, s := range stmts {
		parts = append(parts, s.text)
	}
	rebuilt := strings.Join(parts, ";\n") + ";"

	normalize := func(s string) string {
		lines := strings.Split(s, "\n")
		var out []string
		for _, ln := range lines {
			if strings.TrimSpace(ln) != "" {
				out = append(out, strings.TrimRight(ln, " \t"))
			}
		}
		return strings.Join(out, "\n")
	}
	assert.Equal(t, normalize(input), normalize(rebuilt))
}

func TestClassifySQL(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"CREATE TABLE users(id int)":             "table-definition",
		"create procedure sp_get as select 1":    "stored-procedure",
		"CREATE PROC sp_get AS SELECT 1":         "stored-procedure",
		"create proc sp_del as delete from t":    "stored-procedure",
		"CREATE FUNCTION f() RETURNS int":        "function",
		"CREATE VIEW v AS SELECT 1":              "view",
		"CREATE INDEX ix ON t(c)":                "index",
		"ALTER TABLE t ADD c int":                "table-modification",
		"INSERT INTO t VALUES(1)":                "data-insert",
		"UPDATE t SET c = 1":                     "data-update",
		"DELETE FROM t WHERE id = 1":             "data-delete",
		"SELECT * FROM t":                        "query",
		"DROP TABLE t":                           "drop-statement",
		"EXEC sp_who":                            "execution",
		"GRANT SELECT ON t TO role":              "sql-statement",
		"-- comment line\nCREATE TABLE t(x int)": "table-definition",
	}
	for stmt, want := range cases {
		assert.Equal(t, want, ClassifySQL(stmt), "statement: %s", stmt)
	}
}
