package usecase_test

import (
	"context"
	"errors"
	"testing"

	"campus-compass/internal/domain"
	"campus-compass/internal/usecase"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func makeSearchResults(similarities ...float64) []domain.SearchResult {
	results := make([]domain.SearchResult, len(similarities))
	for i, sim := range similarities {
		results[i] = domain.SearchResult{
			ChunkID:    uuid.New(),
			ChunkText:  "chunk text",
			Similarity: sim,
			Metadata: domain.ChunkMetadata{
				Source:   "handbook.pdf",
				FilePath: "handbooks/handbook.pdf",
				Category: domain.CategoryHandbooks,
			},
		}
	}
	return results
}

func TestSearch_RanksAndTruncatesToTopK(t *testing.T) {
	ctx := context.Background()
	index := new(mockVectorIndex)
	encoder := new(mockVectorEncoder)

	cfg := usecase.DefaultRetrievalConfig()
	cfg.Reranking.Enabled = false
	uc, err := usecase.NewRetrieveDocumentsUsecase(index, encoder, nil, cfg)
	assert.NoError(t, err)

	encoder.On("Encode", mock.Anything, []string{"hostel rules"}).Return([][]float32{{0.1, 0.2}}, nil)
	index.On("SearchNearest", mock.Anything, []float32{0.1, 0.2}, domain.SearchFilter{}, 2).
		Return(makeSearchResults(0.9, 0.8), nil)

	results, err := uc.Search(ctx, usecase.SearchInput{Query: "hostel rules", TopK: 2})
	assert.NoError(t, err)
	assert.Len(t, results, 2)
	assert.Equal(t, 1, results[0].Rank)
	assert.Equal(t, 2, results[1].Rank)
	assert.GreaterOrEqual(t, results[0].Similarity, results[1].Similarity)
}

func TestSearch_EmptyQueryRejected(t *testing.T) {
	index := new(mockVectorIndex)
	encoder := new(mockVectorEncoder)

	cfg := usecase.DefaultRetrievalConfig()
	uc, err := usecase.NewRetrieveDocumentsUsecase(index, encoder, nil, cfg)
	assert.NoError(t, err)

	_, err = uc.Search(context.Background(), usecase.SearchInput{Query: "   "})
	assert.True(t, domain.IsValidationError(err))
	encoder.AssertNotCalled(t, "Encode")
}

func TestSearch_UnknownCategoryRejected(t *testing.T) {
	index := new(mockVectorIndex)
	encoder := new(mockVectorEncoder)

	cfg := usecase.DefaultRetrievalConfig()
	uc, err := usecase.NewRetrieveDocumentsUsecase(index, encoder, nil, cfg)
	assert.NoError(t, err)

	bad := domain.Category("memes")
	_, err = uc.Search(context.Background(), usecase.SearchInput{Query: "q", Category: &bad})
	assert.True(t, domain.IsValidationError(err))
}

func TestSearch_CategoryFilterPassedToIndex(t *testing.T) {
	ctx := context.Background()
	index := new(mockVectorIndex)
	encoder := new(mockVectorEncoder)

	cfg := usecase.DefaultRetrievalConfig()
	cfg.Reranking.Enabled = false
	uc, err := usecase.NewRetrieveDocumentsUsecase(index, encoder, nil, cfg)
	assert.NoError(t, err)

	category := domain.CategoryPolicies
	encoder.On("Encode", mock.Anything, mock.Anything).Return([][]float32{{0.5}}, nil)
	index.On("SearchNearest", mock.Anything, mock.Anything, domain.SearchFilter{Category: &category}, 5).
		Return(makeSearchResults(0.7), nil)

	results, err := uc.Search(ctx, usecase.SearchInput{Query: "attendance", Category: &category})
	assert.NoError(t, err)
	assert.Len(t, results, 1)
	index.AssertExpectations(t)
}

func TestSearch_RerankingWidensPoolAndReorders(t *testing.T) {
	ctx := context.Background()
	index := new(mockVectorIndex)
	encoder := new(mockVectorEncoder)
	reranker := new(mockReranker)

	cfg := usecase.DefaultRetrievalConfig()
	cfg.TopK = 2
	cfg.Reranking.Enabled = true
	cfg.Reranking.PoolMultiplier = 2
	uc, err := usecase.NewRetrieveDocumentsUsecase(index, encoder, reranker, cfg)
	assert.NoError(t, err)

	pool := makeSearchResults(0.9, 0.8, 0.7, 0.6)
	promoted := pool[3].ChunkID
	encoder.On("Encode", mock.Anything, mock.Anything).Return([][]float32{{0.5}}, nil)
	// Pool is widened to topK * multiplier before the cross-encoder narrows
	// it back down.
	index.On("SearchNearest", mock.Anything, mock.Anything, mock.Anything, 4).Return(pool, nil)
	reranker.On("Rerank", mock.Anything, "library fine", mock.Anything).Return([]domain.RerankResult{
		{ID: pool[3].ChunkID.String(), Score: 0.99},
		{ID: pool[0].ChunkID.String(), Score: 0.5},
		{ID: pool[1].ChunkID.String(), Score: 0.4},
		{ID: pool[2].ChunkID.String(), Score: 0.3},
	}, nil)

	results, err := uc.Search(ctx, usecase.SearchInput{Query: "library fine"})
	assert.NoError(t, err)
	assert.Len(t, results, 2)
	assert.Equal(t, promoted, results[0].ChunkID)
	assert.NotNil(t, results[0].RerankScore)
	assert.Equal(t, 0.99, *results[0].RerankScore)
	assert.Equal(t, 1, results[0].Rank)
	assert.Equal(t, 2, results[1].Rank)
	index.AssertExpectations(t)
}

func TestSearch_RerankFailureKeepsSimilarityOrder(t *testing.T) {
	ctx := context.Background()
	index := new(mockVectorIndex)
	encoder := new(mockVectorEncoder)
	reranker := new(mockReranker)

	cfg := usecase.DefaultRetrievalConfig()
	cfg.TopK = 2
	cfg.Reranking.Enabled = true
	uc, err := usecase.NewRetrieveDocumentsUsecase(index, encoder, reranker, cfg)
	assert.NoError(t, err)

	pool := makeSearchResults(0.9, 0.8, 0.7, 0.6)
	encoder.On("Encode", mock.Anything, mock.Anything).Return([][]float32{{0.5}}, nil)
	index.On("SearchNearest", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(pool, nil)
	reranker.On("Rerank", mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("gateway timeout"))

	results, err := uc.Search(ctx, usecase.SearchInput{Query: "mess timings"})
	assert.NoError(t, err)
	assert.Len(t, results, 2)
	assert.Equal(t, pool[0].ChunkID, results[0].ChunkID)
	assert.Equal(t, pool[1].ChunkID, results[1].ChunkID)
	assert.Nil(t, results[0].RerankScore)
}

func TestSearch_ThresholdOnlyShrinksResults(t *testing.T) {
	ctx := context.Background()
	index := new(mockVectorIndex)
	encoder := new(mockVectorEncoder)

	cfg := usecase.DefaultRetrievalConfig()
	cfg.Reranking.Enabled = false
	uc, err := usecase.NewRetrieveDocumentsUsecase(index, encoder, nil, cfg)
	assert.NoError(t, err)

	encoder.On("Encode", mock.Anything, mock.Anything).Return([][]float32{{0.5}}, nil)
	index.On("SearchNearest", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(makeSearchResults(0.9, 0.72, 0.4), nil)

	threshold := 0.7
	results, err := uc.Search(ctx, usecase.SearchInput{Query: "q", SimilarityThreshold: &threshold})
	assert.NoError(t, err)
	assert.Len(t, results, 2)
	for i, res := range results {
		assert.GreaterOrEqual(t, res.Similarity, threshold)
		assert.Equal(t, i+1, res.Rank)
	}
}

func TestSearch_EmbeddingCachedAcrossCalls(t *testing.T) {
	ctx := context.Background()
	index := new(mockVectorIndex)
	encoder := new(mockVectorEncoder)

	cfg := usecase.DefaultRetrievalConfig()
	cfg.Reranking.Enabled = false
	uc, err := usecase.NewRetrieveDocumentsUsecase(index, encoder, nil, cfg)
	assert.NoError(t, err)

	encoder.On("Encode", mock.Anything, []string{"same query"}).Return([][]float32{{0.5}}, nil).Once()
	index.On("SearchNearest", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(makeSearchResults(0.9), nil)

	_, err = uc.Search(ctx, usecase.SearchInput{Query: "same query"})
	assert.NoError(t, err)
	_, err = uc.Search(ctx, usecase.SearchInput{Query: "same query"})
	assert.NoError(t, err)
	encoder.AssertExpectations(t)
}

func TestSearch_EmptyIndexReturnsNoResults(t *testing.T) {
	ctx := context.Background()
	index := new(mockVectorIndex)
	encoder := new(mockVectorEncoder)

	cfg := usecase.DefaultRetrievalConfig()
	cfg.Reranking.Enabled = false
	uc, err := usecase.NewRetrieveDocumentsUsecase(index, encoder, nil, cfg)
	assert.NoError(t, err)

	encoder.On("Encode", mock.Anything, mock.Anything).Return([][]float32{{0.5}}, nil)
	index.On("SearchNearest", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return([]domain.SearchResult{}, nil)

	results, err := uc.Search(ctx, usecase.SearchInput{Query: "anything"})
	assert.NoError(t, err)
	assert.Empty(t, results)
}

func TestHybridSearch_ForcesRerankPass(t *testing.T) {
	ctx := context.Background()
	index := new(mockVectorIndex)
	encoder := new(mockVectorEncoder)
	reranker := new(mockReranker)

	// Reranking is switched off for plain searches; hybrid search still
	// runs the cross-encoder, even when the pool is no larger than topK.
	cfg := usecase.DefaultRetrievalConfig()
	cfg.TopK = 2
	cfg.Reranking.Enabled = false
	cfg.Reranking.PoolMultiplier = 2
	uc, err := usecase.NewRetrieveDocumentsUsecase(index, encoder, reranker, cfg)
	assert.NoError(t, err)

	pool := makeSearchResults(0.9, 0.8)
	promoted := pool[1].ChunkID
	encoder.On("Encode", mock.Anything, mock.Anything).Return([][]float32{{0.5}}, nil)
	index.On("SearchNearest", mock.Anything, mock.Anything, mock.Anything, 4).Return(pool, nil)
	reranker.On("Rerank", mock.Anything, "mess menu", mock.Anything).Return([]domain.RerankResult{
		{ID: pool[1].ChunkID.String(), Score: 0.95},
		{ID: pool[0].ChunkID.String(), Score: 0.2},
	}, nil)

	results, err := uc.HybridSearch(ctx, usecase.SearchInput{Query: "mess menu"})
	assert.NoError(t, err)
	assert.Len(t, results, 2)
	assert.Equal(t, promoted, results[0].ChunkID)
	reranker.AssertExpectations(t)
	index.AssertExpectations(t)
}

func TestHybridSearch_WithoutRerankerFallsBackToSimilarity(t *testing.T) {
	ctx := context.Background()
	index := new(mockVectorIndex)
	encoder := new(mockVectorEncoder)

	cfg := usecase.DefaultRetrievalConfig()
	cfg.TopK = 2
	cfg.Reranking.Enabled = true
	uc, err := usecase.NewRetrieveDocumentsUsecase(index, encoder, nil, cfg)
	assert.NoError(t, err)

	pool := makeSearchResults(0.9, 0.8)
	encoder.On("Encode", mock.Anything, mock.Anything).Return([][]float32{{0.5}}, nil)
	// Without a reranker the pool stays at topK and similarity order wins.
	index.On("SearchNearest", mock.Anything, mock.Anything, mock.Anything, 2).Return(pool, nil)

	results, err := uc.HybridSearch(ctx, usecase.SearchInput{Query: "mess menu"})
	assert.NoError(t, err)
	assert.Len(t, results, 2)
	assert.Equal(t, pool[0].ChunkID, results[0].ChunkID)
	assert.Nil(t, results[0].RerankScore)
	index.AssertExpectations(t)
}

func TestStats_ReportsIndexShape(t *testing.T) {
	ctx := context.Background()
	index := new(mockVectorIndex)
	encoder := new(mockVectorEncoder)
	reranker := new(mockReranker)

	cfg := usecase.DefaultRetrievalConfig()
	cfg.Reranking.Enabled = true
	uc, err := usecase.NewRetrieveDocumentsUsecase(index, encoder, reranker, cfg)
	assert.NoError(t, err)

	index.On("Count", mock.Anything).Return(int64(1234), nil)
	index.On("Categories", mock.Anything).Return([]domain.Category{domain.CategoryPDFs, domain.CategoryPolicies}, nil)

	stats, err := uc.Stats(ctx)
	assert.NoError(t, err)
	assert.Equal(t, int64(1234), stats.TotalChunks)
	assert.Equal(t, []string{"pdfs", "policies"}, stats.Categories)
	assert.Equal(t, "mock-encoder-v1", stats.EncoderVersion)
	assert.Equal(t, "mock-reranker", stats.RerankerModel)
	assert.True(t, stats.RerankerActive)
}
