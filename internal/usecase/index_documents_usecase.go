package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"campus-compass/internal/domain"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// IndexingConfig holds the pipeline's tunables.
type IndexingConfig struct {
	// ExtractionWorkers bounds concurrent extraction and chunking.
	ExtractionWorkers int
	// BatchSize bounds each vector index insert.
	BatchSize int
	// EmbedRatePerSecond throttles embedding batches.
	EmbedRatePerSecond float64
	// EmbedBurst is the limiter burst size.
	EmbedBurst int
	// ValidationSampleSize bounds the record sample pulled during validation.
	ValidationSampleSize int
}

// DefaultIndexingConfig returns the standard pipeline settings.
func DefaultIndexingConfig() IndexingConfig {
	return IndexingConfig{
		ExtractionWorkers:    4,
		BatchSize:            100,
		EmbedRatePerSecond:   8,
		EmbedBurst:           2,
		ValidationSampleSize: 10,
	}
}

// Validate checks the pipeline configuration.
func (c IndexingConfig) Validate() error {
	if c.ExtractionWorkers <= 0 {
		return fmt.Errorf("extractionWorkers must be positive, got %d", c.ExtractionWorkers)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batchSize must be positive, got %d", c.BatchSize)
	}
	if c.EmbedRatePerSecond <= 0 {
		return fmt.Errorf("embedRatePerSecond must be positive, got %f", c.EmbedRatePerSecond)
	}
	if c.EmbedBurst <= 0 {
		return fmt.Errorf("embedBurst must be positive, got %d", c.EmbedBurst)
	}
	if c.ValidationSampleSize <= 0 {
		return fmt.Errorf("validationSampleSize must be positive, got %d", c.ValidationSampleSize)
	}
	return nil
}

// IndexOptions selects the indexing mode for one pass.
type IndexOptions struct {
	// Incremental skips files whose stored record is still up to date.
	Incremental bool
	// ClearExisting rebuilds the whole collection inside one transaction.
	ClearExisting bool
}

// IndexReport summarizes one indexing pass.
type IndexReport struct {
	ProcessedFiles []string
	SkippedFiles   []string
	FailedFiles    []string
	RemovedFiles   []string
	TotalChunks    int
	StartedAt      time.Time
	Duration       time.Duration
}

// ValidationReport is the result of an index integrity check.
type ValidationReport struct {
	Valid          bool
	TotalDocuments int64
	Categories     []domain.Category
	Issues         []string
}

// IndexDocumentsUsecase defines the contract for the indexing pipeline.
type IndexDocumentsUsecase interface {
	IndexAll(ctx context.Context, opts IndexOptions) (*IndexReport, error)
	ReindexFile(ctx context.Context, path string) (*IndexReport, error)
	ValidateIndex(ctx context.Context) (*ValidationReport, error)
}

type indexDocumentsUsecase struct {
	// mu serializes indexing passes within the process. The metadata store
	// assumes exclusive read-modify-write access, and overlapping
	// DeleteBySource+Insert transactions for the same file could commit
	// duplicate chunk sets.
	mu        sync.Mutex
	store     domain.DocumentStore
	extractor domain.TextExtractor
	chunker   domain.Chunker
	encoder   domain.VectorEncoder
	counter   domain.TokenCounter
	index     domain.VectorIndex
	metadata  domain.IndexMetadataRepository
	txManager domain.TransactionManager
	hasher    domain.ContentHashPolicy
	limiter   *rate.Limiter
	config    IndexingConfig
}

// NewIndexDocumentsUsecase wires together the indexing pipeline. The token
// counter may be nil, disabling token accounting on chunk metadata.
func NewIndexDocumentsUsecase(
	store domain.DocumentStore,
	extractor domain.TextExtractor,
	chunker domain.Chunker,
	encoder domain.VectorEncoder,
	counter domain.TokenCounter,
	index domain.VectorIndex,
	metadata domain.IndexMetadataRepository,
	txManager domain.TransactionManager,
	hasher domain.ContentHashPolicy,
	config IndexingConfig,
) (IndexDocumentsUsecase, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid indexing config: %w", err)
	}
	return &indexDocumentsUsecase{
		store:     store,
		extractor: extractor,
		chunker:   chunker,
		encoder:   encoder,
		counter:   counter,
		index:     index,
		metadata:  metadata,
		txManager: txManager,
		hasher:    hasher,
		limiter:   rate.NewLimiter(rate.Limit(config.EmbedRatePerSecond), config.EmbedBurst),
		config:    config,
	}, nil
}

// stagedFile is one file after extraction and chunking, ready to embed.
type stagedFile struct {
	ref    domain.DocumentRef
	hash   string
	chunks []domain.Chunk
}

func (u *indexDocumentsUsecase) IndexAll(ctx context.Context, opts IndexOptions) (*IndexReport, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	report := &IndexReport{StartedAt: time.Now()}
	defer func() { report.Duration = time.Since(report.StartedAt) }()

	refs, err := u.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	records, err := u.metadata.LoadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMetadataPersistence, err)
	}

	// A rebuild reprocesses everything; the incremental skip only applies
	// when the existing collection is kept.
	incremental := opts.Incremental && !opts.ClearExisting

	staged, err := u.stageFiles(ctx, refs, records, incremental, report)
	if err != nil {
		return nil, err
	}

	if opts.ClearExisting {
		if err := u.rebuild(ctx, staged, records, refs, report); err != nil {
			return nil, err
		}
		return report, nil
	}

	for _, file := range staged {
		if err := u.commitFile(ctx, file); err != nil {
			return nil, err
		}
		report.ProcessedFiles = append(report.ProcessedFiles, file.ref.Path)
		report.TotalChunks += len(file.chunks)
	}

	if err := u.removeStaleRecords(ctx, refs, records, report); err != nil {
		return nil, err
	}

	slog.Info("indexing_pass_complete",
		slog.Int("processed", len(report.ProcessedFiles)),
		slog.Int("skipped", len(report.SkippedFiles)),
		slog.Int("failed", len(report.FailedFiles)),
		slog.Int("removed", len(report.RemovedFiles)),
		slog.Int("total_chunks", report.TotalChunks),
		slog.Duration("duration", time.Since(report.StartedAt)))
	return report, nil
}

// stageFiles reads, hashes, extracts and chunks candidate files. Extraction
// runs concurrently across files; per-file failures are logged and skipped.
func (u *indexDocumentsUsecase) stageFiles(
	ctx context.Context,
	refs []domain.DocumentRef,
	records map[string]domain.IndexedFileRecord,
	incremental bool,
	report *IndexReport,
) ([]*stagedFile, error) {
	results := make([]*stagedFile, len(refs))
	failures := make([]error, len(refs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(u.config.ExtractionWorkers)
	for i, ref := range refs {
		g.Go(func() error {
			file, err := u.stageOne(gctx, ref, records, incremental)
			if err != nil {
				var extractionErr *domain.ExtractionError
				if errors.As(err, &extractionErr) {
					failures[i] = err
					return nil
				}
				return err
			}
			results[i] = file
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var staged []*stagedFile
	for i, ref := range refs {
		switch {
		case failures[i] != nil:
			slog.Warn("document_extraction_failed",
				slog.String("path", ref.Path),
				slog.String("error", failures[i].Error()))
			report.FailedFiles = append(report.FailedFiles, ref.Path)
		case results[i] == nil:
			report.SkippedFiles = append(report.SkippedFiles, ref.Path)
		default:
			staged = append(staged, results[i])
		}
	}
	return staged, nil
}

// stageOne processes a single file up to chunking. Returns nil, nil when the
// file is up to date and skipped.
func (u *indexDocumentsUsecase) stageOne(
	ctx context.Context,
	ref domain.DocumentRef,
	records map[string]domain.IndexedFileRecord,
	incremental bool,
) (*stagedFile, error) {
	data, err := u.store.Read(ctx, ref.Path)
	if err != nil {
		return nil, &domain.ExtractionError{Path: ref.Path, Err: err}
	}
	hash := u.hasher.Compute(data)

	if incremental {
		if record, ok := records[ref.Path]; ok && record.UpToDate(hash, ref.ModTime) {
			return nil, nil
		}
	}

	extracted, err := u.extractor.Extract(ctx, ref, data)
	if err != nil {
		return nil, &domain.ExtractionError{Path: ref.Path, Err: err}
	}

	pieces := u.chunker.Split(extracted.Text)
	if len(pieces) == 0 {
		return nil, &domain.ExtractionError{Path: ref.Path, Err: errors.New("no text extracted")}
	}

	chunks := make([]domain.Chunk, len(pieces))
	for i, piece := range pieces {
		meta := domain.ChunkMetadata{
			Source:           ref.Name,
			FilePath:         ref.Path,
			Category:         ref.Category,
			SequenceIndex:    i,
			ExtractionMethod: extracted.Method,
		}
		if u.counter != nil {
			meta.TokenCount = u.counter.Count(piece)
		}
		chunks[i] = domain.Chunk{ID: uuid.New(), Text: piece, Metadata: meta}
	}
	return &stagedFile{ref: ref, hash: hash, chunks: chunks}, nil
}

// commitFile embeds one staged file, supersedes its previous chunks and
// inserts the new ones in a single transaction, then persists the metadata
// record. A metadata write failure is fatal to the pass.
func (u *indexDocumentsUsecase) commitFile(ctx context.Context, file *stagedFile) error {
	vectorRecords, err := u.embedChunks(ctx, file.chunks)
	if err != nil {
		return fmt.Errorf("failed to embed chunks for %s: %w", file.ref.Path, err)
	}

	err = u.txManager.RunInTx(ctx, func(ctx context.Context) error {
		if _, err := u.index.DeleteBySource(ctx, file.ref.Path); err != nil {
			return fmt.Errorf("failed to supersede chunks: %w", err)
		}
		return u.insertBatches(ctx, vectorRecords)
	})
	if err != nil {
		return fmt.Errorf("failed to index %s: %w", file.ref.Path, err)
	}

	record := domain.IndexedFileRecord{
		FilePath:    file.ref.Path,
		ContentHash: file.hash,
		ModTime:     file.ref.ModTime,
		ChunkCount:  len(file.chunks),
		IndexedAt:   time.Now(),
	}
	if err := u.metadata.Upsert(ctx, record); err != nil {
		return fmt.Errorf("%w: %s: %v", domain.ErrMetadataPersistence, file.ref.Path, err)
	}

	slog.Info("document_indexed",
		slog.String("path", file.ref.Path),
		slog.String("category", string(file.ref.Category)),
		slog.Int("chunk_count", len(file.chunks)))
	return nil
}

// rebuild replaces the entire collection. Clear and all inserts share one
// transaction so concurrent readers see either the old or the new
// collection, never an empty one.
func (u *indexDocumentsUsecase) rebuild(
	ctx context.Context,
	staged []*stagedFile,
	records map[string]domain.IndexedFileRecord,
	refs []domain.DocumentRef,
	report *IndexReport,
) error {
	embedded := make([][]domain.VectorRecord, len(staged))
	for i, file := range staged {
		vectorRecords, err := u.embedChunks(ctx, file.chunks)
		if err != nil {
			return fmt.Errorf("failed to embed chunks for %s: %w", file.ref.Path, err)
		}
		embedded[i] = vectorRecords
	}

	err := u.txManager.RunInTx(ctx, func(ctx context.Context) error {
		if err := u.index.Clear(ctx); err != nil {
			return fmt.Errorf("failed to clear index: %w", err)
		}
		for _, vectorRecords := range embedded {
			if err := u.insertBatches(ctx, vectorRecords); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to rebuild index: %w", err)
	}

	for _, file := range staged {
		record := domain.IndexedFileRecord{
			FilePath:    file.ref.Path,
			ContentHash: file.hash,
			ModTime:     file.ref.ModTime,
			ChunkCount:  len(file.chunks),
			IndexedAt:   time.Now(),
		}
		if err := u.metadata.Upsert(ctx, record); err != nil {
			return fmt.Errorf("%w: %s: %v", domain.ErrMetadataPersistence, file.ref.Path, err)
		}
		report.ProcessedFiles = append(report.ProcessedFiles, file.ref.Path)
		report.TotalChunks += len(file.chunks)
	}

	// A failed file has no chunks after the clear. Its old record would
	// still match the unchanged bytes, so keeping it would make every
	// later incremental pass skip the file permanently.
	for _, path := range report.FailedFiles {
		if _, ok := records[path]; !ok {
			continue
		}
		if err := u.metadata.Delete(ctx, path); err != nil {
			return fmt.Errorf("%w: delete %s: %v", domain.ErrMetadataPersistence, path, err)
		}
	}

	if err := u.removeStaleRecords(ctx, refs, records, report); err != nil {
		return err
	}

	slog.Info("index_rebuilt",
		slog.Int("processed", len(report.ProcessedFiles)),
		slog.Int("total_chunks", report.TotalChunks))
	return nil
}

// removeStaleRecords drops index content and metadata for files that no
// longer exist in the document store.
func (u *indexDocumentsUsecase) removeStaleRecords(
	ctx context.Context,
	refs []domain.DocumentRef,
	records map[string]domain.IndexedFileRecord,
	report *IndexReport,
) error {
	present := make(map[string]bool, len(refs))
	for _, ref := range refs {
		present[ref.Path] = true
	}

	for path := range records {
		if present[path] {
			continue
		}
		err := u.txManager.RunInTx(ctx, func(ctx context.Context) error {
			_, err := u.index.DeleteBySource(ctx, path)
			return err
		})
		if err != nil {
			return fmt.Errorf("failed to remove chunks for deleted file %s: %w", path, err)
		}
		if err := u.metadata.Delete(ctx, path); err != nil {
			return fmt.Errorf("%w: delete %s: %v", domain.ErrMetadataPersistence, path, err)
		}
		report.RemovedFiles = append(report.RemovedFiles, path)
		slog.Info("removed_deleted_document", slog.String("path", path))
	}
	return nil
}

func (u *indexDocumentsUsecase) embedChunks(ctx context.Context, chunks []domain.Chunk) ([]domain.VectorRecord, error) {
	records := make([]domain.VectorRecord, 0, len(chunks))
	for start := 0; start < len(chunks); start += u.config.BatchSize {
		end := start + u.config.BatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		if err := u.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		texts := make([]string, len(batch))
		for i, chunk := range batch {
			texts[i] = chunk.Text
		}
		embeddings, err := u.encoder.Encode(ctx, texts)
		if err != nil {
			return nil, err
		}
		if len(embeddings) != len(batch) {
			return nil, domain.NewValidationError("embeddings", fmt.Sprintf("expected %d embeddings, got %d", len(batch), len(embeddings)))
		}

		for i, chunk := range batch {
			records = append(records, domain.VectorRecord{
				ChunkID:   chunk.ID,
				Embedding: pgvector.NewVector(embeddings[i]),
				ChunkText: chunk.Text,
				Metadata:  chunk.Metadata,
			})
		}
	}
	return records, nil
}

func (u *indexDocumentsUsecase) insertBatches(ctx context.Context, records []domain.VectorRecord) error {
	for start := 0; start < len(records); start += u.config.BatchSize {
		end := start + u.config.BatchSize
		if end > len(records) {
			end = len(records)
		}
		if err := u.index.Insert(ctx, records[start:end]); err != nil {
			return fmt.Errorf("failed to insert batch: %w", err)
		}
	}
	return nil
}

func (u *indexDocumentsUsecase) ReindexFile(ctx context.Context, path string) (*IndexReport, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	report := &IndexReport{StartedAt: time.Now()}
	defer func() { report.Duration = time.Since(report.StartedAt) }()

	ref, err := u.store.Stat(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if ref == nil {
		return nil, domain.NewValidationError("path", fmt.Sprintf("file not found: %s", path))
	}

	// Forced: the up-to-date check is bypassed entirely.
	file, err := u.stageOne(ctx, *ref, nil, false)
	if err != nil {
		return nil, err
	}
	if err := u.commitFile(ctx, file); err != nil {
		return nil, err
	}

	report.ProcessedFiles = []string{ref.Path}
	report.TotalChunks = len(file.chunks)
	return report, nil
}

func (u *indexDocumentsUsecase) ValidateIndex(ctx context.Context) (*ValidationReport, error) {
	count, err := u.index.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count indexed chunks: %w", err)
	}
	categories, err := u.index.Categories(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list indexed categories: %w", err)
	}

	var issues []string
	if count == 0 {
		issues = append(issues, "index is empty")
	}

	sample, err := u.index.SampleRecords(ctx, u.config.ValidationSampleSize)
	if err != nil {
		return nil, fmt.Errorf("failed to sample records: %w", err)
	}
	for i, record := range sample {
		if record.Metadata.Source == "" {
			issues = append(issues, fmt.Sprintf("record %d missing source metadata", i))
		}
		if !record.Metadata.Category.Valid() {
			issues = append(issues, fmt.Sprintf("record %d has unknown category %q", i, record.Metadata.Category))
		}
	}

	recorded, err := u.metadata.TotalChunks(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMetadataPersistence, err)
	}
	if recorded != count {
		issues = append(issues, fmt.Sprintf("metadata records %d chunks but index holds %d", recorded, count))
	}

	return &ValidationReport{
		Valid:          len(issues) == 0,
		TotalDocuments: count,
		Categories:     categories,
		Issues:         issues,
	}, nil
}
