package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"campus-compass/internal/domain"
)

// Fixed responses returned without model involvement.
const (
	noDocumentsAnswer      = "I couldn't find relevant information in the available documents to answer your question. Please try rephrasing or contact an administrator for assistance."
	emptyContextAnswer     = "I couldn't find enough information in the available documents to answer your question."
	generationFailedAnswer = "I apologize, but I encountered an error while generating a response. Please try again."
)

// queryExpansions appends related terms when a trigger word appears in the
// question, widening recall for the vector search.
var queryExpansions = []struct {
	trigger   string
	expansion string
}{
	{"fee", "fee structure fees payment"},
	{"policy", "policy policies regulation regulations"},
}

// AnswerInput defines the parameters for a grounded answer request.
type AnswerInput struct {
	Question            string
	TopK                int
	Category            *domain.Category
	SimilarityThreshold *float64
}

// AnswerOutput is the normalized answer returned to API clients.
type AnswerOutput struct {
	Answer        string
	Citations     []domain.Citation
	IsGrounded    bool
	RetrievedDocs int
	Model         string
	Query         string
	Error         string
}

// StreamEventType discriminates streamed answer events.
type StreamEventType string

const (
	StreamEventCitations StreamEventType = "citations"
	StreamEventContent   StreamEventType = "content"
	StreamEventDone      StreamEventType = "done"
	StreamEventError     StreamEventType = "error"
)

// StreamEvent is one frame of a streamed answer. Content carries citations
// for StreamEventCitations, a text fragment for StreamEventContent, a
// message for StreamEventError and nil for StreamEventDone.
type StreamEvent struct {
	Type    StreamEventType
	Content any
}

// AnswerConfig tunes answer generation.
type AnswerConfig struct {
	Temperature    float64
	MaxTokens      int
	MaxAttempts    int
	RetryBaseDelay time.Duration
}

// DefaultAnswerConfig returns the standard generation settings.
func DefaultAnswerConfig() AnswerConfig {
	return AnswerConfig{
		Temperature:    0.3,
		MaxTokens:      1000,
		MaxAttempts:    2,
		RetryBaseDelay: 500 * time.Millisecond,
	}
}

// Validate checks if the answer configuration is valid.
func (c AnswerConfig) Validate() error {
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("temperature must be in [0.0, 2.0], got %f", c.Temperature)
	}
	if c.MaxTokens <= 0 {
		return fmt.Errorf("maxTokens must be positive, got %d", c.MaxTokens)
	}
	if c.MaxAttempts <= 0 {
		return fmt.Errorf("maxAttempts must be positive, got %d", c.MaxAttempts)
	}
	if c.RetryBaseDelay <= 0 {
		return fmt.Errorf("retryBaseDelay must be positive, got %v", c.RetryBaseDelay)
	}
	return nil
}

// AnswerWithRAGUsecase defines the contract for generating grounded answers
// over the indexed corpus.
type AnswerWithRAGUsecase interface {
	Query(ctx context.Context, input AnswerInput) (*AnswerOutput, error)
	Stream(ctx context.Context, input AnswerInput) <-chan StreamEvent

	// GenerateFromContext runs a prepared completion request and verifies
	// grounding against the given chunks. Used by the structured handlers
	// that assemble their own context.
	GenerateFromContext(ctx context.Context, req domain.CompletionRequest, citations []domain.Citation, chunkTexts []string) *AnswerOutput
}

type answerWithRAGUsecase struct {
	retrieve      RetrieveDocumentsUsecase
	promptBuilder *PromptBuilder
	completion    domain.CompletionClient
	citations     *CitationManager
	config        AnswerConfig
}

// NewAnswerWithRAGUsecase wires together the components needed to generate
// a grounded answer.
func NewAnswerWithRAGUsecase(
	retrieve RetrieveDocumentsUsecase,
	promptBuilder *PromptBuilder,
	completion domain.CompletionClient,
	citations *CitationManager,
	config AnswerConfig,
) (AnswerWithRAGUsecase, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid answer config: %w", err)
	}
	return &answerWithRAGUsecase{
		retrieve:      retrieve,
		promptBuilder: promptBuilder,
		completion:    completion,
		citations:     citations,
		config:        config,
	}, nil
}

func (u *answerWithRAGUsecase) Query(ctx context.Context, input AnswerInput) (*AnswerOutput, error) {
	if strings.TrimSpace(input.Question) == "" {
		return nil, domain.NewValidationError("question", "must not be empty")
	}

	results, err := u.retrieve.Search(ctx, SearchInput{
		Query:               expandQuery(input.Question),
		TopK:                input.TopK,
		Category:            input.Category,
		SimilarityThreshold: input.SimilarityThreshold,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve documents: %w", err)
	}
	if len(results) == 0 {
		return &AnswerOutput{
			Answer:        noDocumentsAnswer,
			IsGrounded:    false,
			RetrievedDocs: 0,
			Query:         input.Question,
		}, nil
	}

	contextBlock, citations := u.promptBuilder.BuildContext(results)
	if contextBlock == "" {
		return &AnswerOutput{
			Answer:        emptyContextAnswer,
			IsGrounded:    false,
			RetrievedDocs: len(results),
			Query:         input.Question,
		}, nil
	}

	req := u.promptBuilder.BuildAnswerPrompt(input.Question, contextBlock, u.config.Temperature, u.config.MaxTokens)
	output := u.GenerateFromContext(ctx, req, citations, chunkTexts(results[:len(citations)]))
	output.RetrievedDocs = len(results)
	output.Query = input.Question
	return output, nil
}

func (u *answerWithRAGUsecase) GenerateFromContext(ctx context.Context, req domain.CompletionRequest, citations []domain.Citation, texts []string) *AnswerOutput {
	result, err := u.completeWithRetry(ctx, req)
	if err != nil {
		slog.Error("answer_generation_failed",
			slog.Int("attempts", u.config.MaxAttempts),
			slog.String("error", err.Error()))
		return &AnswerOutput{
			Answer:     generationFailedAnswer,
			IsGrounded: false,
			Model:      u.completion.ModelName(),
			Error:      fmt.Sprintf("error generating answer: %v", err),
		}
	}

	answer := strings.TrimSpace(result.Text)
	isGrounded := true
	if len(texts) > 0 {
		isGrounded = u.citations.IsGrounded(answer, texts)
	}

	return &AnswerOutput{
		Answer:     answer,
		Citations:  citations,
		IsGrounded: isGrounded,
		Model:      u.completion.ModelName(),
	}
}

func (u *answerWithRAGUsecase) completeWithRetry(ctx context.Context, req domain.CompletionRequest) (*domain.CompletionResult, error) {
	var lastErr error
	for attempt := 0; attempt < u.config.MaxAttempts; attempt++ {
		if attempt > 0 {
			delay := u.config.RetryBaseDelay * (1 << (attempt - 1))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		result, err := u.completion.Complete(ctx, req)
		if err == nil && result != nil && strings.TrimSpace(result.Text) != "" {
			return result, nil
		}
		if err == nil {
			err = fmt.Errorf("empty completion response")
		}
		lastErr = err
		slog.Warn("completion_attempt_failed",
			slog.Int("attempt", attempt+1),
			slog.String("error", err.Error()))
	}
	return nil, lastErr
}

func (u *answerWithRAGUsecase) Stream(ctx context.Context, input AnswerInput) <-chan StreamEvent {
	events := make(chan StreamEvent, 4)
	go func() {
		defer close(events)

		if strings.TrimSpace(input.Question) == "" {
			u.sendStreamEvent(ctx, events, StreamEvent{Type: StreamEventError, Content: "question is required"})
			return
		}

		results, err := u.retrieve.Search(ctx, SearchInput{
			Query:               expandQuery(input.Question),
			TopK:                input.TopK,
			Category:            input.Category,
			SimilarityThreshold: input.SimilarityThreshold,
		})
		if err != nil {
			u.sendStreamEvent(ctx, events, StreamEvent{Type: StreamEventError, Content: fmt.Sprintf("retrieval failed: %v", err)})
			return
		}
		if len(results) == 0 {
			u.sendStreamEvent(ctx, events, StreamEvent{Type: StreamEventError, Content: "No relevant documents found"})
			return
		}

		contextBlock, citations := u.promptBuilder.BuildContext(results)
		if contextBlock == "" {
			u.sendStreamEvent(ctx, events, StreamEvent{Type: StreamEventError, Content: "No relevant documents found"})
			return
		}

		if !u.sendStreamEvent(ctx, events, StreamEvent{Type: StreamEventCitations, Content: citations}) {
			return
		}

		req := u.promptBuilder.BuildAnswerPrompt(input.Question, contextBlock, u.config.Temperature, u.config.MaxTokens)
		deltaCh, errCh, err := u.completion.CompleteStream(ctx, req)
		if err != nil {
			u.sendStreamEvent(ctx, events, StreamEvent{Type: StreamEventError, Content: fmt.Sprintf("completion stream setup failed: %v", err)})
			return
		}

		deltaStream := deltaCh
		errStream := errCh
		for deltaStream != nil || errStream != nil {
			select {
			case <-ctx.Done():
				return
			case delta, ok := <-deltaStream:
				if !ok {
					deltaStream = nil
					continue
				}
				if delta.Content != "" {
					if !u.sendStreamEvent(ctx, events, StreamEvent{Type: StreamEventContent, Content: delta.Content}) {
						return
					}
				}
				if delta.Done {
					u.sendStreamEvent(ctx, events, StreamEvent{Type: StreamEventDone})
					return
				}
			case streamErr, ok := <-errStream:
				if !ok {
					errStream = nil
					continue
				}
				u.sendStreamEvent(ctx, events, StreamEvent{Type: StreamEventError, Content: fmt.Sprintf("completion stream failed: %v", streamErr)})
				return
			}
		}

		u.sendStreamEvent(ctx, events, StreamEvent{Type: StreamEventDone})
	}()
	return events
}

func (u *answerWithRAGUsecase) sendStreamEvent(ctx context.Context, events chan<- StreamEvent, event StreamEvent) bool {
	select {
	case <-ctx.Done():
		return false
	case events <- event:
		return true
	}
}

// expandQuery appends related terms for known trigger words. The original
// question is always kept verbatim at the front.
func expandQuery(question string) string {
	lower := strings.ToLower(question)
	expanded := question
	for _, e := range queryExpansions {
		if strings.Contains(lower, e.trigger) {
			expanded += " " + e.expansion
		}
	}
	return expanded
}

func chunkTexts(results []domain.SearchResult) []string {
	texts := make([]string, len(results))
	for i, res := range results {
		texts[i] = res.ChunkText
	}
	return texts
}
