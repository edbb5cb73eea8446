package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// InitSchema creates every table and index the repositories need. Safe to
// run on every startup.
func InitSchema(ctx context.Context, pool *pgxpool.Pool, dimension int) error {
	vectors := &vectorIndexRepository{pool: pool, dimension: dimension}
	if err := vectors.InitSchema(ctx); err != nil {
		return err
	}
	metadata := &indexMetadataRepository{pool: pool}
	return metadata.InitSchema(ctx)
}
