package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	pgxvector "github.com/pgvector/pgvector-go/pgx"
	"go.uber.org/zap"

	"github.com/mvp-joe/askcode/internal/chunk"
)

// PostgresStore is the durable backing: one text_contexts table with a
// pgvector embedding column, searched by cosine distance (<=>).
type PostgresStore struct {
	pool   *pgxpool.Pool
	dim    int
	logger *zap.Logger
}

// NewPostgresStore connects to dsn and lazily creates the schema. dim
// fixes the embedding column width and must match the model dimension.
func NewPostgresStore(ctx context.Context, dsn string, dim int, logger *zap.Logger) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing postgres dsn: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvector.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}

	s := &PostgresStore{pool: pool, dim: dim, logger: logger}
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS text_contexts (
			id            TEXT PRIMARY KEY,
			file_path     TEXT NOT NULL,
			file_name     TEXT NOT NULL,
			content       TEXT NOT NULL,
			start_line    INT NOT NULL,
			end_line      INT NOT NULL,
			last_modified TIMESTAMPTZ NOT NULL,
			language      TEXT NOT NULL DEFAULT '',
			function_name TEXT NOT NULL DEFAULT '',
			class_name    TEXT NOT NULL DEFAULT '',
			tags          TEXT[],
			embedding     vector(%d)
		)`, s.dim),
		`CREATE INDEX IF NOT EXISTS idx_text_contexts_file_path ON text_contexts (file_path)`,
	}
	for _, stmt := range statements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("creating schema: %w", err)
		}
	}
	s.logger.Debug("postgres schema ready", zap.Int("embedding_dim", s.dim))
	return nil
}

func (s *PostgresStore) Upsert(ctx context.Context, chunks []chunk.Chunk) error {
	batch := &pgx.Batch{}
	for _, c := range chunks {
		var emb any
		if len(c.Embedding) > 0 {
			emb = pgvector.NewVector(c.Embedding)
		}
		batch.Queue(`
			INSERT INTO text_contexts
				(id, file_path, file_name, content, start_line, end_line,
				 last_modified, language, function_name, class_name, tags, embedding)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
			ON CONFLICT (id) DO UPDATE SET
				file_path = EXCLUDED.file_path,
				file_name = EXCLUDED.file_name,
				content = EXCLUDED.content,
				start_line = EXCLUDED.start_line,
				end_line = EXCLUDED.end_line,
				last_modified = EXCLUDED.last_modified,
				language = EXCLUDED.language,
				function_name = EXCLUDED.function_name,
				class_name = EXCLUDED.class_name,
				tags = EXCLUDED.tags,
				embedding = EXCLUDED.embedding`,
			c.ID, c.FilePath, c.FileName, c.Content, c.StartLine, c.EndLine,
			c.LastModified.UTC(), c.Language, c.FunctionName, c.ClassName, c.Tags, emb)
	}

	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()
	for range chunks {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("upserting chunks: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) Search(ctx context.Context, queryVec []float32, limit int) ([]SearchResult, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, file_path, file_name, content, start_line, end_line,
		       last_modified, language, function_name, class_name, tags,
		       1 - (embedding <=> $1) AS similarity
		FROM text_contexts
		WHERE embedding IS NOT NULL
		ORDER BY embedding <=> $1
		LIMIT $2`,
		pgvector.NewVector(queryVec), limit)
	if err != nil {
		return nil, fmt.Errorf("searching chunks: %w", err)
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var r SearchResult
		var mod time.Time
		if err := rows.Scan(
			&r.Chunk.ID, &r.Chunk.FilePath, &r.Chunk.FileName, &r.Chunk.Content,
			&r.Chunk.StartLine, &r.Chunk.EndLine, &mod, &r.Chunk.Language,
			&r.Chunk.FunctionName, &r.Chunk.ClassName, &r.Chunk.Tags, &r.Similarity,
		); err != nil {
			return nil, fmt.Errorf("scanning search row: %w", err)
		}
		r.Chunk.LastModified = mod.UTC()
		results = append(results, r)
	}
	return results, rows.Err()
}

func (s *PostgresStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT count(*) FROM text_contexts`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting chunks: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) Clear(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `TRUNCATE text_contexts`); err != nil {
		return fmt.Errorf("clearing store: %w", err)
	}
	return nil
}

func (s *PostgresStore) AllFiles(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT DISTINCT file_path FROM text_contexts ORDER BY file_path`)
	if err != nil {
		return nil, fmt.Errorf("listing files: %w", err)
	}
	defer rows.Close()

	var files []string
	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			return nil, fmt.Errorf("scanning file path: %w", err)
		}
		files = append(files, path)
	}
	return files, rows.Err()
}

func (s *PostgresStore) LastModified(ctx context.Context, path string) (*time.Time, error) {
	var mod time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT last_modified FROM text_contexts WHERE file_path = $1 LIMIT 1`, path).Scan(&mod)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("looking up last modified: %w", err)
	}
	mod = mod.UTC()
	return &mod, nil
}

func (s *PostgresStore) DeleteFileChunks(ctx context.Context, path string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM text_contexts WHERE file_path = $1`, path); err != nil {
		return fmt.Errorf("deleting chunks for %s: %w", path, err)
	}
	return nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}
