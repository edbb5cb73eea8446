package domain

import (
	"context"
)

// SearchFilter narrows a nearest-neighbour search before ranking. The
// category filter is applied index-side so rare categories are not starved
// by a post-filter.
type SearchFilter struct {
	Category *Category
}

// VectorIndex is the durable collection of vector records keyed by chunk id.
type VectorIndex interface {
	// Insert appends records. Ids are assigned by the caller and must be
	// collision-free per call.
	Insert(ctx context.Context, records []VectorRecord) error

	// DeleteBySource removes every record belonging to the given source
	// file, returning how many were superseded.
	DeleteBySource(ctx context.Context, filePath string) (int64, error)

	// Clear drops all records. Callers are responsible for running this
	// inside the same transaction as the rebuild inserts so concurrent
	// readers never observe an empty collection.
	Clear(ctx context.Context) error

	// SearchNearest returns up to limit records ordered by ascending
	// cosine distance to vector, honouring the filter.
	SearchNearest(ctx context.Context, vector []float32, filter SearchFilter, limit int) ([]SearchResult, error)

	Count(ctx context.Context) (int64, error)

	// SampleRecords returns up to limit records for validation sampling.
	SampleRecords(ctx context.Context, limit int) ([]VectorRecord, error)

	// Categories returns the distinct categories present, sampled.
	Categories(ctx context.Context) ([]Category, error)
}

// TransactionManager runs a function within a single database transaction.
type TransactionManager interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}
