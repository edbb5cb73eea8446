package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"campus-compass/internal/domain"

	lru "github.com/hashicorp/golang-lru/v2"
)

// SearchInput defines the parameters for a retrieval request.
type SearchInput struct {
	Query string
	// TopK overrides the configured result count when positive.
	TopK int
	// Category restricts results to one corpus category when set.
	Category *domain.Category
	// SimilarityThreshold overrides the configured threshold when set.
	SimilarityThreshold *float64
	// DisableReranking skips the cross-encoder pass for this request.
	DisableReranking bool
}

// IndexStats summarizes the current state of the vector index.
type IndexStats struct {
	TotalChunks    int64
	Categories     []string
	EncoderVersion string
	RerankerModel  string
	RerankerActive bool
}

// RetrieveDocumentsUsecase defines the contract for similarity search over
// the indexed corpus.
type RetrieveDocumentsUsecase interface {
	Search(ctx context.Context, input SearchInput) ([]domain.SearchResult, error)
	HybridSearch(ctx context.Context, input SearchInput) ([]domain.SearchResult, error)
	Stats(ctx context.Context) (*IndexStats, error)
}

type retrieveDocumentsUsecase struct {
	index      domain.VectorIndex
	encoder    domain.VectorEncoder
	reranker   domain.Reranker
	config     RetrievalConfig
	embedCache *lru.Cache[string, []float32]
}

// NewRetrieveDocumentsUsecase creates a RetrieveDocumentsUsecase. The
// reranker may be nil, in which case every search runs on similarity
// order alone.
func NewRetrieveDocumentsUsecase(
	index domain.VectorIndex,
	encoder domain.VectorEncoder,
	reranker domain.Reranker,
	config RetrievalConfig,
) (RetrieveDocumentsUsecase, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid retrieval config: %w", err)
	}
	cache, err := lru.New[string, []float32](config.EmbedCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding cache: %w", err)
	}
	return &retrieveDocumentsUsecase{
		index:      index,
		encoder:    encoder,
		reranker:   reranker,
		config:     config,
		embedCache: cache,
	}, nil
}

func (u *retrieveDocumentsUsecase) Search(ctx context.Context, input SearchInput) ([]domain.SearchResult, error) {
	return u.search(ctx, input, false)
}

// HybridSearch combines semantic retrieval with lexical signals. The
// cross-encoder scores query-document token overlap alongside semantic
// relatedness, so with a reranker available hybrid search forces the rerank
// pass regardless of the reranking config; without one it degrades to plain
// similarity search.
func (u *retrieveDocumentsUsecase) HybridSearch(ctx context.Context, input SearchInput) ([]domain.SearchResult, error) {
	input.DisableReranking = false
	return u.search(ctx, input, u.reranker != nil)
}

func (u *retrieveDocumentsUsecase) search(ctx context.Context, input SearchInput, forceRerank bool) ([]domain.SearchResult, error) {
	if strings.TrimSpace(input.Query) == "" {
		return nil, domain.NewValidationError("query", "must not be empty")
	}
	if input.Category != nil && !input.Category.Valid() {
		return nil, domain.NewValidationError("category", fmt.Sprintf("unknown category %q", *input.Category))
	}

	topK := input.TopK
	if topK <= 0 {
		topK = u.config.TopK
	}

	queryVector, err := u.embedQuery(ctx, input.Query)
	if err != nil {
		return nil, fmt.Errorf("failed to encode query: %w", err)
	}

	rerank := forceRerank || (u.reranker != nil && u.config.Reranking.Enabled && !input.DisableReranking)
	poolSize := topK
	if rerank {
		poolSize = topK * u.config.Reranking.PoolMultiplier
	}

	filter := domain.SearchFilter{Category: input.Category}
	results, err := u.index.SearchNearest(ctx, queryVector, filter, poolSize)
	if err != nil {
		return nil, fmt.Errorf("failed to search vector index: %w", err)
	}
	if len(results) == 0 {
		return nil, nil
	}

	if rerank && (forceRerank || len(results) > topK) {
		results = u.rerankResults(ctx, input.Query, results)
	}
	if len(results) > topK {
		results = results[:topK]
	}

	threshold := u.config.SimilarityThreshold
	if input.SimilarityThreshold != nil {
		threshold = *input.SimilarityThreshold
	}
	if threshold > 0 {
		filtered := results[:0]
		for _, res := range results {
			if res.Similarity >= threshold {
				filtered = append(filtered, res)
			}
		}
		results = filtered
	}

	for i := range results {
		results[i].Rank = i + 1
	}
	return results, nil
}

func (u *retrieveDocumentsUsecase) Stats(ctx context.Context) (*IndexStats, error) {
	count, err := u.index.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count indexed chunks: %w", err)
	}
	categories, err := u.index.Categories(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list indexed categories: %w", err)
	}
	names := make([]string, len(categories))
	for i, c := range categories {
		names[i] = string(c)
	}

	stats := &IndexStats{
		TotalChunks:    count,
		Categories:     names,
		EncoderVersion: u.encoder.Version(),
		RerankerActive: u.reranker != nil && u.config.Reranking.Enabled,
	}
	if u.reranker != nil {
		stats.RerankerModel = u.reranker.ModelName()
	}
	return stats, nil
}

func (u *retrieveDocumentsUsecase) embedQuery(ctx context.Context, query string) ([]float32, error) {
	if vec, ok := u.embedCache.Get(query); ok {
		return vec, nil
	}
	embeddings, err := u.encoder.Encode(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	if len(embeddings) != 1 {
		return nil, fmt.Errorf("expected 1 embedding, got %d", len(embeddings))
	}
	u.embedCache.Add(query, embeddings[0])
	return embeddings[0], nil
}

// rerankResults reorders results by cross-encoder score. Rerank failure is
// not fatal: the original similarity order is kept.
func (u *retrieveDocumentsUsecase) rerankResults(ctx context.Context, query string, results []domain.SearchResult) []domain.SearchResult {
	rerankCtx, cancel := context.WithTimeout(ctx, u.config.Reranking.Timeout)
	defer cancel()

	candidates := make([]domain.RerankCandidate, len(results))
	for i, res := range results {
		candidates[i] = domain.RerankCandidate{
			ID:      res.ChunkID.String(),
			Content: res.ChunkText,
			Score:   res.Similarity,
		}
	}

	scored, err := u.reranker.Rerank(rerankCtx, query, candidates)
	if err != nil {
		slog.Warn("reranking_failed_using_original_scores",
			slog.Int("candidate_count", len(candidates)),
			slog.String("error", err.Error()))
		return results
	}

	scoreByID := make(map[string]float64, len(scored))
	for _, r := range scored {
		scoreByID[r.ID] = r.Score
	}
	for i := range results {
		if score, ok := scoreByID[results[i].ChunkID.String()]; ok {
			s := score
			results[i].RerankScore = &s
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		si, sj := results[i].RerankScore, results[j].RerankScore
		switch {
		case si != nil && sj != nil && *si != *sj:
			return *si > *sj
		case si != nil && sj == nil:
			return true
		case si == nil && sj != nil:
			return false
		default:
			return results[i].Similarity > results[j].Similarity
		}
	})
	return results
}
