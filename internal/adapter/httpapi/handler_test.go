package httpapi_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"campus-compass/internal/adapter/httpapi"
	"campus-compass/internal/domain"
	"campus-compass/internal/usecase"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

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

type mockIndexUsecase struct {
	mock.Mock
}

func (m *mockIndexUsecase) IndexAll(ctx context.Context, opts usecase.IndexOptions) (*usecase.IndexReport, error) {
	args := m.Called(ctx, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*usecase.IndexReport), args.Error(1)
}

func (m *mockIndexUsecase) ReindexFile(ctx context.Context, path string) (*usecase.IndexReport, error) {
	args := m.Called(ctx, path)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*usecase.IndexReport), args.Error(1)
}

func (m *mockIndexUsecase) ValidateIndex(ctx context.Context) (*usecase.ValidationReport, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*usecase.ValidationReport), args.Error(1)
}

type handlerFixture struct {
	handler  *httpapi.Handler
	retrieve *mockRetrieveUsecase
	answer   *mockAnswerUsecase
	indexer  *mockIndexUsecase
	echo     *echo.Echo
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()
	retrieve := new(mockRetrieveUsecase)
	answer := new(mockAnswerUsecase)
	indexer := new(mockIndexUsecase)

	citations, err := usecase.NewCitationManager(usecase.DefaultCitationConfig())
	require.NoError(t, err)
	builder, err := usecase.NewPromptBuilder(usecase.DefaultContextBudget(), citations)
	require.NoError(t, err)
	handlers := usecase.NewFunctionHandlers(retrieve, answer, builder, citations, usecase.DefaultAnswerConfig())
	router := usecase.NewIntentRouter(handlers, answer)

	return &handlerFixture{
		handler:  httpapi.NewHandler(router, answer, retrieve, indexer),
		retrieve: retrieve,
		answer:   answer,
		indexer:  indexer,
		echo:     echo.New(),
	}
}

func (f *handlerFixture) request(method, path, body string) (echo.Context, *httptest.ResponseRecorder) {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	return f.echo.NewContext(req, rec), rec
}

func TestChat_MissingMessageRejected(t *testing.T) {
	f := newHandlerFixture(t)

	c, rec := f.request(http.MethodPost, "/v1/chat", `{}`)
	assert.NoError(t, f.handler.Chat(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChat_GeneralQueryAnswered(t *testing.T) {
	f := newHandlerFixture(t)

	f.answer.On("Query", mock.Anything, mock.Anything).Return(&usecase.AnswerOutput{
		Answer:        "The dean is Dr. Sharma.",
		IsGrounded:    true,
		RetrievedDocs: 2,
		Citations: []domain.Citation{
			{Source: "directory.pdf", Category: domain.CategoryPDFs, ChunkID: uuid.New(), Rank: 1},
		},
	}, nil)

	c, rec := f.request(http.MethodPost, "/v1/chat", `{"message":"Who is the dean?"}`)
	assert.NoError(t, f.handler.Chat(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "The dean is Dr. Sharma.", resp["answer"])
	assert.Equal(t, "general", resp["intent"])
	assert.Equal(t, true, resp["is_grounded"])
	assert.Equal(t, float64(2), resp["retrieved_docs"])
	citations := resp["citations"].([]any)
	require.Len(t, citations, 1)
	assert.Equal(t, "directory.pdf", citations[0].(map[string]any)["source"])
}

func TestSearch_ReturnsResults(t *testing.T) {
	f := newHandlerFixture(t)

	page := 4
	f.retrieve.On("Search", mock.Anything, mock.MatchedBy(func(in usecase.SearchInput) bool {
		return in.Query == "hostel fee" && in.TopK == 3 && in.Category == nil
	})).Return([]domain.SearchResult{
		{
			ChunkID:    uuid.New(),
			ChunkText:  "The hostel fee is 5000.",
			Similarity: 0.91,
			Rank:       1,
			Metadata: domain.ChunkMetadata{
				Source:   "fees.pdf",
				FilePath: "pdfs/fees.pdf",
				Category: domain.CategoryPDFs,
				Page:     &page,
			},
		},
	}, nil)

	c, rec := f.request(http.MethodPost, "/v1/search", `{"query":"hostel fee","top_k":3}`)
	assert.NoError(t, f.handler.Search(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, float64(1), resp["total"])
	results := resp["results"].([]any)
	first := results[0].(map[string]any)
	assert.Equal(t, "The hostel fee is 5000.", first["document"])
	meta := first["metadata"].(map[string]any)
	assert.Equal(t, "fees.pdf", meta["source"])
	assert.Equal(t, float64(4), meta["page"])
}

func TestSearch_UnknownCategoryRejected(t *testing.T) {
	f := newHandlerFixture(t)

	c, rec := f.request(http.MethodPost, "/v1/search", `{"query":"q","category_filter":"memes"}`)
	assert.NoError(t, f.handler.Search(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	f.retrieve.AssertNotCalled(t, "Search")
}

func TestStats(t *testing.T) {
	f := newHandlerFixture(t)

	f.retrieve.On("Stats", mock.Anything).Return(&usecase.IndexStats{
		TotalChunks:    128,
		Categories:     []string{"pdfs", "policies"},
		EncoderVersion: "embeddinggemma",
		RerankerModel:  "bge-reranker-v2-m3",
		RerankerActive: true,
	}, nil)

	c, rec := f.request(http.MethodGet, "/v1/stats", "")
	assert.NoError(t, f.handler.Stats(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, float64(128), resp["total_documents"])
	assert.Equal(t, true, resp["reranker_available"])
}

func TestTriggerIndex_Returns202(t *testing.T) {
	f := newHandlerFixture(t)

	f.indexer.On("IndexAll", mock.Anything, mock.Anything).Return(&usecase.IndexReport{}, nil).Maybe()

	c, rec := f.request(http.MethodPost, "/internal/index", `{"incremental":true}`)
	assert.NoError(t, f.handler.TriggerIndex(c))
	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestReindexFile_MissingFileIs404(t *testing.T) {
	f := newHandlerFixture(t)

	f.indexer.On("ReindexFile", mock.Anything, "policies/ghost.pdf").
		Return(nil, domain.NewValidationError("path", "file not found: policies/ghost.pdf"))

	c, rec := f.request(http.MethodPost, "/internal/index/reindex", `{"path":"policies/ghost.pdf"}`)
	assert.NoError(t, f.handler.ReindexFile(c))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestValidateIndex(t *testing.T) {
	f := newHandlerFixture(t)

	f.indexer.On("ValidateIndex", mock.Anything).Return(&usecase.ValidationReport{
		Valid:          true,
		TotalDocuments: 10,
		Categories:     []domain.Category{domain.CategoryPolicies},
	}, nil)

	c, rec := f.request(http.MethodGet, "/internal/index/validate", "")
	assert.NoError(t, f.handler.ValidateIndex(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, true, resp["valid"])
}

func TestChatStream_EmitsSSEFrames(t *testing.T) {
	f := newHandlerFixture(t)

	events := make(chan usecase.StreamEvent, 3)
	events <- usecase.StreamEvent{Type: usecase.StreamEventCitations, Content: []domain.Citation{}}
	events <- usecase.StreamEvent{Type: usecase.StreamEventContent, Content: "The fee is 5000."}
	events <- usecase.StreamEvent{Type: usecase.StreamEventDone}
	close(events)
	f.answer.On("Stream", mock.Anything, mock.Anything).Return((<-chan usecase.StreamEvent)(events))

	c, rec := f.request(http.MethodPost, "/v1/chat/stream", `{"message":"What is the fee?"}`)
	assert.NoError(t, f.handler.ChatStream(c))

	body := rec.Body.String()
	frames := strings.Split(strings.TrimSpace(body), "\n\n")
	require.Len(t, frames, 3)
	assert.Contains(t, frames[0], `"type":"citations"`)
	assert.Contains(t, frames[1], `"type":"content"`)
	assert.Contains(t, frames[1], "The fee is 5000.")
	assert.Contains(t, frames[2], `"type":"done"`)
	assert.Equal(t, "text/event-stream", rec.Header().Get(echo.HeaderContentType))
}

func TestHealth(t *testing.T) {
	f := newHandlerFixture(t)

	c, rec := f.request(http.MethodGet, "/healthz", "")
	assert.NoError(t, f.handler.Health(c))
	assert.Equal(t, http.StatusOK, rec.Code)
}
