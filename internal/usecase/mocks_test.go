package usecase_test

import (
	"context"

	"campus-compass/internal/domain"
	"campus-compass/internal/usecase"

	"github.com/stretchr/testify/mock"
)

type mockVectorIndex struct {
	mock.Mock
}

func (m *mockVectorIndex) Insert(ctx context.Context, records []domain.VectorRecord) error {
	args := m.Called(ctx, records)
	return args.Error(0)
}

func (m *mockVectorIndex) DeleteBySource(ctx context.Context, filePath string) (int64, error) {
	args := m.Called(ctx, filePath)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockVectorIndex) Clear(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *mockVectorIndex) SearchNearest(ctx context.Context, vector []float32, filter domain.SearchFilter, limit int) ([]domain.SearchResult, error) {
	args := m.Called(ctx, vector, filter, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.SearchResult), args.Error(1)
}

func (m *mockVectorIndex) Count(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockVectorIndex) SampleRecords(ctx context.Context, limit int) ([]domain.VectorRecord, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.VectorRecord), args.Error(1)
}

func (m *mockVectorIndex) Categories(ctx context.Context) ([]domain.Category, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Category), args.Error(1)
}

type mockVectorEncoder struct {
	mock.Mock
}

func (m *mockVectorEncoder) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	args := m.Called(ctx, texts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([][]float32), args.Error(1)
}

func (m *mockVectorEncoder) Version() string {
	return "mock-encoder-v1"
}

type mockReranker struct {
	mock.Mock
}

func (m *mockReranker) Rerank(ctx context.Context, query string, candidates []domain.RerankCandidate) ([]domain.RerankResult, error) {
	args := m.Called(ctx, query, candidates)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.RerankResult), args.Error(1)
}

func (m *mockReranker) ModelName() string {
	return "mock-reranker"
}

type mockCompletionClient struct {
	mock.Mock
}

func (m *mockCompletionClient) Complete(ctx context.Context, req domain.CompletionRequest) (*domain.CompletionResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CompletionResult), args.Error(1)
}

func (m *mockCompletionClient) CompleteStream(ctx context.Context, req domain.CompletionRequest) (<-chan domain.CompletionDelta, <-chan error, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, nil, args.Error(2)
	}
	return args.Get(0).(<-chan domain.CompletionDelta), args.Get(1).(<-chan error), args.Error(2)
}

func (m *mockCompletionClient) ModelName() string {
	return "mock-model"
}

type mockDocumentStore struct {
	mock.Mock
}

func (m *mockDocumentStore) List(ctx context.Context) ([]domain.DocumentRef, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.DocumentRef), args.Error(1)
}

func (m *mockDocumentStore) Stat(ctx context.Context, path string) (*domain.DocumentRef, error) {
	args := m.Called(ctx, path)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.DocumentRef), args.Error(1)
}

func (m *mockDocumentStore) Read(ctx context.Context, path string) ([]byte, error) {
	args := m.Called(ctx, path)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

type mockTextExtractor struct {
	mock.Mock
}

func (m *mockTextExtractor) Extract(ctx context.Context, ref domain.DocumentRef, data []byte) (*domain.ExtractionResult, error) {
	args := m.Called(ctx, ref, data)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ExtractionResult), args.Error(1)
}

type mockIndexMetadataRepository struct {
	mock.Mock
}

func (m *mockIndexMetadataRepository) LoadAll(ctx context.Context) (map[string]domain.IndexedFileRecord, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]domain.IndexedFileRecord), args.Error(1)
}

func (m *mockIndexMetadataRepository) Upsert(ctx context.Context, record domain.IndexedFileRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

func (m *mockIndexMetadataRepository) Delete(ctx context.Context, filePath string) error {
	args := m.Called(ctx, filePath)
	return args.Error(0)
}

func (m *mockIndexMetadataRepository) TotalChunks(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

// passthroughTxManager runs the function directly, without a database.
type passthroughTxManager struct{}

func (passthroughTxManager) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type mockRetrieveUsecase struct {
	mock.Mock
}

func (m *mockRetrieveUsecase) Search(ctx context.Context, input usecase.SearchInput) ([]domain.SearchResult, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.SearchResult), args.Error(1)
}

func (m *mockRetrieveUsecase) HybridSearch(ctx context.Context, input usecase.SearchInput) ([]domain.SearchResult, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.SearchResult), args.Error(1)
}

func (m *mockRetrieveUsecase) Stats(ctx context.Context) (*usecase.IndexStats, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*usecase.IndexStats), args.Error(1)
}

type mockAnswerUsecase struct {
	mock.Mock
}

func (m *mockAnswerUsecase) Query(ctx context.Context, input usecase.AnswerInput) (*usecase.AnswerOutput, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*usecase.AnswerOutput), args.Error(1)
}

func (m *mockAnswerUsecase) Stream(ctx context.Context, input usecase.AnswerInput) <-chan usecase.StreamEvent {
	args := m.Called(ctx, input)
	return args.Get(0).(<-chan usecase.StreamEvent)
}

func (m *mockAnswerUsecase) GenerateFromContext(ctx context.Context, req domain.CompletionRequest, citations []domain.Citation, chunkTexts []string) *usecase.AnswerOutput {
	args := m.Called(ctx, req, citations, chunkTexts)
	return args.Get(0).(*usecase.AnswerOutput)
}
