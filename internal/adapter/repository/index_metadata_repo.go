package repository

import (
	"context"
	"fmt"

	"campus-compass/internal/domain"

	"github.com/jackc/pgx/v5/pgxpool"
)

type indexMetadataRepository struct {
	pool *pgxpool.Pool
}

// NewIndexMetadataRepository creates the durable per-file index metadata store.
func NewIndexMetadataRepository(pool *pgxpool.Pool) domain.IndexMetadataRepository {
	return &indexMetadataRepository{pool: pool}
}

var _ domain.IndexMetadataRepository = (*indexMetadataRepository)(nil)

func (r *indexMetadataRepository) getExecutor(ctx context.Context) dbExecutor {
	tx := ExtractTx(ctx)
	if tx != nil {
		return tx
	}
	return r.pool
}

// InitSchema creates the metadata table if missing.
func (r *indexMetadataRepository) InitSchema(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS indexed_files (
			file_path TEXT PRIMARY KEY,
			content_hash TEXT NOT NULL,
			mod_time TIMESTAMPTZ NOT NULL,
			chunk_count INT NOT NULL,
			indexed_at TIMESTAMPTZ NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("failed to init metadata schema: %w", err)
	}
	return nil
}

func (r *indexMetadataRepository) LoadAll(ctx context.Context) (map[string]domain.IndexedFileRecord, error) {
	rows, err := r.getExecutor(ctx).Query(ctx, `
		SELECT file_path, content_hash, mod_time, chunk_count, indexed_at
		FROM indexed_files`)
	if err != nil {
		return nil, fmt.Errorf("failed to load index metadata: %w", err)
	}
	defer rows.Close()

	records := make(map[string]domain.IndexedFileRecord)
	for rows.Next() {
		var rec domain.IndexedFileRecord
		if err := rows.Scan(&rec.FilePath, &rec.ContentHash, &rec.ModTime, &rec.ChunkCount, &rec.IndexedAt); err != nil {
			return nil, fmt.Errorf("failed to scan index metadata: %w", err)
		}
		records[rec.FilePath] = rec
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return records, nil
}

func (r *indexMetadataRepository) Upsert(ctx context.Context, record domain.IndexedFileRecord) error {
	_, err := r.getExecutor(ctx).Exec(ctx, `
		INSERT INTO indexed_files (file_path, content_hash, mod_time, chunk_count, indexed_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (file_path) DO UPDATE SET
			content_hash = EXCLUDED.content_hash,
			mod_time = EXCLUDED.mod_time,
			chunk_count = EXCLUDED.chunk_count,
			indexed_at = EXCLUDED.indexed_at`,
		record.FilePath, record.ContentHash, record.ModTime, record.ChunkCount, record.IndexedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert index metadata for %s: %w", record.FilePath, err)
	}
	return nil
}

func (r *indexMetadataRepository) Delete(ctx context.Context, filePath string) error {
	_, err := r.getExecutor(ctx).Exec(ctx, `DELETE FROM indexed_files WHERE file_path = $1`, filePath)
	if err != nil {
		return fmt.Errorf("failed to delete index metadata for %s: %w", filePath, err)
	}
	return nil
}

func (r *indexMetadataRepository) TotalChunks(ctx context.Context) (int64, error) {
	var total int64
	err := r.getExecutor(ctx).QueryRow(ctx, `SELECT COALESCE(SUM(chunk_count), 0) FROM indexed_files`).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to sum chunk counts: %w", err)
	}
	return total, nil
}
