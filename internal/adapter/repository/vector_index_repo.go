package repository

import (
	"context"
	"fmt"

	"campus-compass/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

type vectorIndexRepository struct {
	pool      *pgxpool.Pool
	dimension int
}

// NewVectorIndexRepository creates the pgvector-backed chunk collection.
// dimension must match the embedding model's output width.
func NewVectorIndexRepository(pool *pgxpool.Pool, dimension int) domain.VectorIndex {
	return &vectorIndexRepository{pool: pool, dimension: dimension}
}

var _ domain.VectorIndex = (*vectorIndexRepository)(nil)

type dbExecutor interface {
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

func (r *vectorIndexRepository) getExecutor(ctx context.Context) dbExecutor {
	tx := ExtractTx(ctx)
	if tx != nil {
		return tx
	}
	return r.pool
}

// InitSchema creates the chunk table and its vector index if missing.
func (r *vectorIndexRepository) InitSchema(ctx context.Context) error {
	statements := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS document_chunks (
			id UUID PRIMARY KEY,
			source TEXT NOT NULL,
			file_path TEXT NOT NULL,
			category TEXT NOT NULL,
			sequence_index INT NOT NULL,
			extraction_method TEXT NOT NULL DEFAULT '',
			page INT,
			token_count INT NOT NULL DEFAULT 0,
			content TEXT NOT NULL,
			embedding vector(%d) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, r.dimension),
		`CREATE INDEX IF NOT EXISTS idx_document_chunks_file_path ON document_chunks (file_path)`,
		`CREATE INDEX IF NOT EXISTS idx_document_chunks_category ON document_chunks (category)`,
		`CREATE INDEX IF NOT EXISTS idx_document_chunks_embedding ON document_chunks
			USING ivfflat (embedding vector_cosine_ops) WITH (lists = 100)`,
	}
	for _, stmt := range statements {
		if _, err := r.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to init chunk schema: %w", err)
		}
	}
	return nil
}

func (r *vectorIndexRepository) Insert(ctx context.Context, records []domain.VectorRecord) error {
	if len(records) == 0 {
		return nil
	}

	rows := make([][]interface{}, len(records))
	for i, rec := range records {
		rows[i] = []interface{}{
			rec.ChunkID,
			rec.Metadata.Source,
			rec.Metadata.FilePath,
			string(rec.Metadata.Category),
			rec.Metadata.SequenceIndex,
			rec.Metadata.ExtractionMethod,
			rec.Metadata.Page,
			rec.Metadata.TokenCount,
			rec.ChunkText,
			rec.Embedding,
		}
	}

	_, err := r.getExecutor(ctx).CopyFrom(
		ctx,
		pgx.Identifier{"document_chunks"},
		[]string{"id", "source", "file_path", "category", "sequence_index", "extraction_method", "page", "token_count", "content", "embedding"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("failed to bulk insert chunks: %w", err)
	}
	return nil
}

func (r *vectorIndexRepository) DeleteBySource(ctx context.Context, filePath string) (int64, error) {
	tag, err := r.getExecutor(ctx).Exec(ctx, `DELETE FROM document_chunks WHERE file_path = $1`, filePath)
	if err != nil {
		return 0, fmt.Errorf("failed to delete chunks for %s: %w", filePath, err)
	}
	return tag.RowsAffected(), nil
}

func (r *vectorIndexRepository) Clear(ctx context.Context) error {
	if _, err := r.getExecutor(ctx).Exec(ctx, `DELETE FROM document_chunks`); err != nil {
		return fmt.Errorf("failed to clear chunks: %w", err)
	}
	return nil
}

func (r *vectorIndexRepository) SearchNearest(ctx context.Context, vector []float32, filter domain.SearchFilter, limit int) ([]domain.SearchResult, error) {
	query := `
		SELECT id, content, source, file_path, category, sequence_index, extraction_method, page, token_count,
			1 - (embedding <=> $1) AS similarity
		FROM document_chunks`
	args := []interface{}{pgvector.NewVector(vector)}

	if filter.Category != nil {
		query += ` WHERE category = $2`
		args = append(args, string(*filter.Category))
	}
	query += fmt.Sprintf(` ORDER BY embedding <=> $1 LIMIT %d`, limit)

	rows, err := r.getExecutor(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search chunks: %w", err)
	}
	defer rows.Close()

	var results []domain.SearchResult
	for rows.Next() {
		var res domain.SearchResult
		var category string
		if err := rows.Scan(
			&res.ChunkID,
			&res.ChunkText,
			&res.Metadata.Source,
			&res.Metadata.FilePath,
			&category,
			&res.Metadata.SequenceIndex,
			&res.Metadata.ExtractionMethod,
			&res.Metadata.Page,
			&res.Metadata.TokenCount,
			&res.Similarity,
		); err != nil {
			return nil, fmt.Errorf("failed to scan search result: %w", err)
		}
		res.Metadata.Category = domain.Category(category)
		results = append(results, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return results, nil
}

func (r *vectorIndexRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.getExecutor(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM document_chunks`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	return count, nil
}

func (r *vectorIndexRepository) SampleRecords(ctx context.Context, limit int) ([]domain.VectorRecord, error) {
	rows, err := r.getExecutor(ctx).Query(ctx, `
		SELECT id, content, source, file_path, category, sequence_index, extraction_method, page, token_count, embedding
		FROM document_chunks
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to sample chunks: %w", err)
	}
	defer rows.Close()

	var records []domain.VectorRecord
	for rows.Next() {
		var rec domain.VectorRecord
		var category string
		if err := rows.Scan(
			&rec.ChunkID,
			&rec.ChunkText,
			&rec.Metadata.Source,
			&rec.Metadata.FilePath,
			&category,
			&rec.Metadata.SequenceIndex,
			&rec.Metadata.ExtractionMethod,
			&rec.Metadata.Page,
			&rec.Metadata.TokenCount,
			&rec.Embedding,
		); err != nil {
			return nil, fmt.Errorf("failed to scan sampled chunk: %w", err)
		}
		rec.Metadata.Category = domain.Category(category)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return records, nil
}

func (r *vectorIndexRepository) Categories(ctx context.Context) ([]domain.Category, error) {
	rows, err := r.getExecutor(ctx).Query(ctx, `SELECT DISTINCT category FROM document_chunks ORDER BY category`)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	defer rows.Close()

	var categories []domain.Category
	for rows.Next() {
		var category string
		if err := rows.Scan(&category); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		categories = append(categories, domain.Category(category))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return categories, nil
}
