package usecase

import (
	"context"
	"fmt"
	"strings"

	"campus-compass/internal/domain"
)

const summaryTopK = 10

// HandlerResult is the normalized output of a structured handler.
type HandlerResult struct {
	Function      string
	Answer        string
	Citations     []domain.Citation
	IsGrounded    bool
	RetrievedDocs int
	Error         string
}

// FunctionHandlers implements the structured intents. Each handler runs a
// targeted retrieval and delegates answer generation to the RAG engine;
// when its parameters are missing it falls back to an unfiltered search.
type FunctionHandlers struct {
	retrieve      RetrieveDocumentsUsecase
	rag           AnswerWithRAGUsecase
	promptBuilder *PromptBuilder
	citations     *CitationManager
	config        AnswerConfig
}

// NewFunctionHandlers creates the structured intent handlers.
func NewFunctionHandlers(
	retrieve RetrieveDocumentsUsecase,
	rag AnswerWithRAGUsecase,
	promptBuilder *PromptBuilder,
	citations *CitationManager,
	config AnswerConfig,
) *FunctionHandlers {
	return &FunctionHandlers{
		retrieve:      retrieve,
		rag:           rag,
		promptBuilder: promptBuilder,
		citations:     citations,
		config:        config,
	}
}

// SearchPolicies answers a policy lookup. With a policy type the search is
// narrowed to the policies category and the query enriched with the type;
// without one it falls back to an unfiltered corpus search.
func (h *FunctionHandlers) SearchPolicies(ctx context.Context, query, policyType string) (*HandlerResult, error) {
	enhanced := query
	if !strings.Contains(strings.ToLower(query), "policy") {
		enhanced = "policy " + query
	}

	var category *domain.Category
	if policyType != "" {
		enhanced += " " + policyType + " policy"
		c := domain.CategoryPolicies
		category = &c
	}

	probe, err := h.retrieve.Search(ctx, SearchInput{Query: enhanced, Category: category})
	if err != nil {
		return nil, fmt.Errorf("policy search failed: %w", err)
	}
	if len(probe) == 0 {
		return &HandlerResult{
			Function: "search_policies",
			Answer:   fmt.Sprintf("I couldn't find information about %s in the policy documents.", query),
		}, nil
	}

	answer, err := h.rag.Query(ctx, AnswerInput{Question: enhanced, Category: category})
	if err != nil {
		return nil, fmt.Errorf("policy answer generation failed: %w", err)
	}
	return handlerResult("search_policies", answer), nil
}

// GetFeeStructure answers a fee lookup, narrowing the query with program
// and semester when extracted.
func (h *FunctionHandlers) GetFeeStructure(ctx context.Context, query, program, semester string) (*HandlerResult, error) {
	parts := []string{"fee structure", "fees", "payment"}
	if program != "" {
		parts = append(parts, program)
	}
	if semester != "" {
		parts = append(parts, "semester "+semester)
	}
	feeQuery := strings.Join(parts, " ")

	probe, err := h.retrieve.Search(ctx, SearchInput{Query: feeQuery})
	if err != nil {
		return nil, fmt.Errorf("fee search failed: %w", err)
	}
	if len(probe) == 0 {
		return &HandlerResult{
			Function: "get_fee_structure",
			Answer:   "I couldn't find fee structure information in the available documents.",
		}, nil
	}

	answer, err := h.rag.Query(ctx, AnswerInput{Question: feeQuery})
	if err != nil {
		return nil, fmt.Errorf("fee answer generation failed: %w", err)
	}
	return handlerResult("get_fee_structure", answer), nil
}

// GetAcademicCalendar answers a calendar lookup, narrowing the query with
// event type and date range when extracted.
func (h *FunctionHandlers) GetAcademicCalendar(ctx context.Context, query, eventType, dateRange string) (*HandlerResult, error) {
	parts := []string{"academic calendar", "schedule", "dates"}
	if eventType != "" {
		parts = append(parts, eventType)
	}
	if dateRange != "" {
		parts = append(parts, dateRange)
	}
	calendarQuery := strings.Join(parts, " ")

	probe, err := h.retrieve.Search(ctx, SearchInput{Query: calendarQuery})
	if err != nil {
		return nil, fmt.Errorf("calendar search failed: %w", err)
	}
	if len(probe) == 0 {
		return &HandlerResult{
			Function: "get_academic_calendar",
			Answer:   "I couldn't find academic calendar information in the available documents.",
		}, nil
	}

	answer, err := h.rag.Query(ctx, AnswerInput{Question: calendarQuery})
	if err != nil {
		return nil, fmt.Errorf("calendar answer generation failed: %w", err)
	}
	return handlerResult("get_academic_calendar", answer), nil
}

// SummarizePolicy builds an extended context over the policies category
// and asks for a bullet-point summary. Without a policy name it falls back
// to the general RAG path on the raw query.
func (h *FunctionHandlers) SummarizePolicy(ctx context.Context, query, policyName string) (*HandlerResult, error) {
	if policyName == "" {
		answer, err := h.rag.Query(ctx, AnswerInput{Question: query})
		if err != nil {
			return nil, fmt.Errorf("summary fallback failed: %w", err)
		}
		return handlerResult("summarize_policy", answer), nil
	}

	category := domain.CategoryPolicies
	results, err := h.retrieve.Search(ctx, SearchInput{
		Query:    policyName + " policy summary overview",
		TopK:     summaryTopK,
		Category: &category,
	})
	if err != nil {
		return nil, fmt.Errorf("summary search failed: %w", err)
	}
	if len(results) == 0 {
		return &HandlerResult{
			Function: "summarize_policy",
			Answer:   fmt.Sprintf("I couldn't find information about %s policy.", policyName),
		}, nil
	}

	contextBlock, citations := h.promptBuilder.BuildContext(results)
	req := h.promptBuilder.BuildSummaryPrompt(policyName, contextBlock, h.config.Temperature, h.config.MaxTokens)
	answer := h.rag.GenerateFromContext(ctx, req, citations, chunkTexts(results[:len(citations)]))
	answer.RetrievedDocs = len(results)
	return handlerResult("summarize_policy", answer), nil
}

// ComparePolicies retrieves evidence for two policies and asks for a
// structured comparison. Without both names it falls back to the general
// RAG path on the raw query.
func (h *FunctionHandlers) ComparePolicies(ctx context.Context, query, policy1, policy2 string) (*HandlerResult, error) {
	if policy1 == "" || policy2 == "" {
		answer, err := h.rag.Query(ctx, AnswerInput{Question: query})
		if err != nil {
			return nil, fmt.Errorf("comparison fallback failed: %w", err)
		}
		return handlerResult("compare_policies", answer), nil
	}

	category := domain.CategoryPolicies
	results1, err := h.retrieve.Search(ctx, SearchInput{Query: policy1 + " policy", Category: &category})
	if err != nil {
		return nil, fmt.Errorf("comparison search failed: %w", err)
	}
	results2, err := h.retrieve.Search(ctx, SearchInput{Query: policy2 + " policy", Category: &category})
	if err != nil {
		return nil, fmt.Errorf("comparison search failed: %w", err)
	}
	if len(results1) == 0 || len(results2) == 0 {
		return &HandlerResult{
			Function: "compare_policies",
			Answer:   "I couldn't find information about one or both policies to compare.",
		}, nil
	}

	var parts []string
	var citations []domain.Citation
	var texts []string
	for _, set := range []struct {
		name    string
		results []domain.SearchResult
	}{
		{policy1, results1},
		{policy2, results2},
	} {
		for _, res := range set.results {
			parts = append(parts, fmt.Sprintf("[%s Policy]\n%s", set.name, res.ChunkText))
			citations = append(citations, h.citations.ExtractCitation(res, nil))
			texts = append(texts, res.ChunkText)
		}
	}
	contextBlock := strings.Join(parts, "\n\n")

	req := h.promptBuilder.BuildComparisonPrompt(policy1, policy2, contextBlock, h.config.Temperature, h.config.MaxTokens)
	answer := h.rag.GenerateFromContext(ctx, req, citations, texts)
	answer.RetrievedDocs = len(results1) + len(results2)
	return handlerResult("compare_policies", answer), nil
}

func handlerResult(function string, answer *AnswerOutput) *HandlerResult {
	return &HandlerResult{
		Function:      function,
		Answer:        answer.Answer,
		Citations:     answer.Citations,
		IsGrounded:    answer.IsGrounded,
		RetrievedDocs: answer.RetrievedDocs,
		Error:         answer.Error,
	}
}
