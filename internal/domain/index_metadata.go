package domain

import (
	"context"
	"time"
)

// IndexedFileRecord records what the index currently holds for one source
// file. A file is "up to date" iff its content hash or its modification
// time matches the stored record.
type IndexedFileRecord struct {
	FilePath    string
	ContentHash string
	ModTime     time.Time
	ChunkCount  int
	IndexedAt   time.Time
}

// UpToDate reports whether the file identified by hash and modTime needs
// reindexing.
func (r IndexedFileRecord) UpToDate(contentHash string, modTime time.Time) bool {
	if r.ContentHash == contentHash {
		return true
	}
	return r.ModTime.Equal(modTime)
}

// IndexMetadataRepository is the durable map {file path -> IndexedFileRecord}.
// It is created on first run, loaded wholesale at pass start, and upserted
// incrementally after every acknowledged insert batch so a crash mid-pass
// neither loses committed work nor marks un-inserted files as done.
type IndexMetadataRepository interface {
	LoadAll(ctx context.Context) (map[string]IndexedFileRecord, error)
	Upsert(ctx context.Context, record IndexedFileRecord) error
	Delete(ctx context.Context, filePath string) error

	// TotalChunks returns the sum of ChunkCount across all records, used to
	// reconcile against the vector index's logical count at pass completion.
	TotalChunks(ctx context.Context) (int64, error)
}
