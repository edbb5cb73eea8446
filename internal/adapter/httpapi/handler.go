package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"campus-compass/internal/domain"
	"campus-compass/internal/usecase"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

// Handler exposes the retrieval engine over HTTP.
type Handler struct {
	router   *usecase.IntentRouter
	answer   usecase.AnswerWithRAGUsecase
	retrieve usecase.RetrieveDocumentsUsecase
	indexer  usecase.IndexDocumentsUsecase
	validate *validator.Validate
}

// NewHandler creates the HTTP handler.
func NewHandler(
	router *usecase.IntentRouter,
	answer usecase.AnswerWithRAGUsecase,
	retrieve usecase.RetrieveDocumentsUsecase,
	indexer usecase.IndexDocumentsUsecase,
) *Handler {
	return &Handler{
		router:   router,
		answer:   answer,
		retrieve: retrieve,
		indexer:  indexer,
		validate: validator.New(),
	}
}

// Register wires the routes onto the echo instance.
func (h *Handler) Register(e *echo.Echo) {
	e.POST("/v1/chat", h.Chat)
	e.POST("/v1/chat/stream", h.ChatStream)
	e.POST("/v1/search", h.Search)
	e.GET("/v1/stats", h.Stats)

	e.POST("/internal/index", h.TriggerIndex)
	e.POST("/internal/index/reindex", h.ReindexFile)
	e.GET("/internal/index/validate", h.ValidateIndex)

	e.GET("/healthz", h.Health)
	e.GET("/readyz", h.Ready)
}

type chatRequest struct {
	Message             string   `json:"message" validate:"required"`
	CategoryFilter      *string  `json:"category_filter,omitempty"`
	TopK                int      `json:"top_k,omitempty" validate:"gte=0,lte=50"`
	SimilarityThreshold *float64 `json:"similarity_threshold,omitempty" validate:"omitempty,gte=0,lte=1"`
}

type citationDTO struct {
	Source      string   `json:"source"`
	Category    string   `json:"category"`
	Page        *int     `json:"page,omitempty"`
	ChunkID     string   `json:"chunk_id"`
	TextPreview string   `json:"text_preview"`
	Similarity  *float64 `json:"similarity,omitempty"`
	Rank        int      `json:"rank"`
}

type chatResponse struct {
	Answer        string            `json:"answer"`
	Citations     []citationDTO     `json:"citations"`
	Intent        string            `json:"intent,omitempty"`
	Parameters    map[string]string `json:"parameters,omitempty"`
	UsedFunction  bool              `json:"used_function"`
	IsGrounded    bool              `json:"is_grounded"`
	RetrievedDocs int               `json:"retrieved_docs"`
	Query         string            `json:"query"`
	Error         string            `json:"error,omitempty"`
}

// Chat answers a question, routing it through intent classification.
func (h *Handler) Chat(c echo.Context) error {
	var req chatRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request"})
	}
	if err := h.validate.Struct(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	resp := h.router.Route(c.Request().Context(), req.Message)
	return c.JSON(http.StatusOK, chatResponse{
		Answer:        resp.Answer,
		Citations:     citationDTOs(resp.Citations),
		Intent:        string(resp.Intent),
		Parameters:    resp.Parameters,
		UsedFunction:  resp.UsedFunction,
		IsGrounded:    resp.IsGrounded,
		RetrievedDocs: resp.RetrievedDocs,
		Query:         resp.Query,
		Error:         resp.Error,
	})
}

// ChatStream answers a question as a server-sent event stream. Events are
// emitted in order: citations, content deltas, then done or error.
func (h *Handler) ChatStream(c echo.Context) error {
	var req chatRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request"})
	}
	if err := h.validate.Struct(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	input := usecase.AnswerInput{
		Question:            req.Message,
		TopK:                req.TopK,
		SimilarityThreshold: req.SimilarityThreshold,
	}
	if category, err := parseCategory(req.CategoryFilter); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	} else {
		input.Category = category
	}

	resp := c.Response()
	resp.Header().Set(echo.HeaderContentType, "text/event-stream")
	resp.Header().Set("Cache-Control", "no-cache")
	resp.Header().Set("Connection", "keep-alive")
	resp.WriteHeader(http.StatusOK)

	ctx := c.Request().Context()
	for event := range h.answer.Stream(ctx, input) {
		payload := map[string]any{"type": string(event.Type)}
		switch content := event.Content.(type) {
		case []domain.Citation:
			payload["content"] = citationDTOs(content)
		case nil:
		default:
			payload["content"] = content
		}

		data, err := json.Marshal(payload)
		if err != nil {
			slog.Error("stream_event_marshal_failed", slog.String("error", err.Error()))
			continue
		}
		if _, err := fmt.Fprintf(resp, "data: %s\n\n", data); err != nil {
			// Client went away; the usecase stops on ctx cancellation.
			return nil
		}
		resp.Flush()
	}
	return nil
}

type searchRequest struct {
	Query          string  `json:"query" validate:"required"`
	TopK           int     `json:"top_k,omitempty" validate:"gte=0,lte=50"`
	CategoryFilter *string `json:"category_filter,omitempty"`
}

type searchResultDTO struct {
	Document   string         `json:"document"`
	Metadata   map[string]any `json:"metadata"`
	Similarity float64        `json:"similarity"`
	Rank       int            `json:"rank"`
}

type searchResponse struct {
	Results []searchResultDTO `json:"results"`
	Total   int               `json:"total"`
}

// Search runs a raw similarity search without answer generation.
func (h *Handler) Search(c echo.Context) error {
	var req searchRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request"})
	}
	if err := h.validate.Struct(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	category, err := parseCategory(req.CategoryFilter)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	results, err := h.retrieve.Search(c.Request().Context(), usecase.SearchInput{
		Query:    req.Query,
		TopK:     req.TopK,
		Category: category,
	})
	if err != nil {
		if domain.IsValidationError(err) {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	dtos := make([]searchResultDTO, 0, len(results))
	for _, res := range results {
		meta := map[string]any{
			"source":            res.Metadata.Source,
			"file_path":         res.Metadata.FilePath,
			"category":          string(res.Metadata.Category),
			"sequence_index":    res.Metadata.SequenceIndex,
			"extraction_method": res.Metadata.ExtractionMethod,
			"chunk_id":          res.ChunkID.String(),
		}
		if res.Metadata.Page != nil {
			meta["page"] = *res.Metadata.Page
		}
		dtos = append(dtos, searchResultDTO{
			Document:   res.ChunkText,
			Metadata:   meta,
			Similarity: res.Similarity,
			Rank:       res.Rank,
		})
	}
	return c.JSON(http.StatusOK, searchResponse{Results: dtos, Total: len(dtos)})
}

// Stats reports index statistics.
func (h *Handler) Stats(c echo.Context) error {
	stats, err := h.retrieve.Stats(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]any{
		"total_documents":    stats.TotalChunks,
		"categories":         stats.Categories,
		"embedding_model":    stats.EncoderVersion,
		"reranker_model":     stats.RerankerModel,
		"reranker_available": stats.RerankerActive,
	})
}

type indexRequest struct {
	Incremental   bool `json:"incremental"`
	ClearExisting bool `json:"clear_existing"`
}

// TriggerIndex starts an indexing pass in the background and returns 202.
func (h *Handler) TriggerIndex(c echo.Context) error {
	var req indexRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request"})
	}

	opts := usecase.IndexOptions{Incremental: req.Incremental, ClearExisting: req.ClearExisting}
	go func() {
		// Detached from the request; the pass outlives the HTTP call.
		if _, err := h.indexer.IndexAll(context.Background(), opts); err != nil {
			slog.Error("background_indexing_failed", slog.String("error", err.Error()))
		}
	}()

	return c.JSON(http.StatusAccepted, map[string]string{
		"status":  "accepted",
		"message": "indexing started",
	})
}

type reindexRequest struct {
	Path string `json:"path" validate:"required"`
}

// ReindexFile forces one file through the pipeline.
func (h *Handler) ReindexFile(c echo.Context) error {
	var req reindexRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request"})
	}
	if err := h.validate.Struct(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	report, err := h.indexer.ReindexFile(c.Request().Context(), req.Path)
	if err != nil {
		if domain.IsValidationError(err) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": err.Error()})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]any{
		"status":       "ok",
		"total_chunks": report.TotalChunks,
	})
}

// ValidateIndex checks index integrity.
func (h *Handler) ValidateIndex(c echo.Context) error {
	report, err := h.indexer.ValidateIndex(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]any{
		"valid":           report.Valid,
		"total_documents": report.TotalDocuments,
		"categories":      report.Categories,
		"issues":          report.Issues,
	})
}

func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// Ready reports readiness by touching the vector index.
func (h *Handler) Ready(c echo.Context) error {
	if _, err := h.retrieve.Stats(c.Request().Context()); err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ready"})
}

func citationDTOs(citations []domain.Citation) []citationDTO {
	dtos := make([]citationDTO, 0, len(citations))
	for _, cite := range citations {
		dtos = append(dtos, citationDTO{
			Source:      cite.Source,
			Category:    string(cite.Category),
			Page:        cite.Page,
			ChunkID:     cite.ChunkID.String(),
			TextPreview: cite.TextPreview,
			Similarity:  cite.Similarity,
			Rank:        cite.Rank,
		})
	}
	return dtos
}

func parseCategory(filter *string) (*domain.Category, error) {
	if filter == nil || *filter == "" {
		return nil, nil
	}
	category := domain.Category(*filter)
	if !category.Valid() {
		return nil, fmt.Errorf("unknown category %q", *filter)
	}
	return &category, nil
}
