package usecase

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"campus-compass/internal/domain"
)

// answerSystemPrompt constrains the model to the supplied context.
const answerSystemPrompt = `You are a helpful assistant for the campus document portal.
Your role is to answer questions based ONLY on the provided context from official campus documents.
You must:
1. Answer questions using ONLY the information provided in the context
2. Include citations using the format: "According to [Document Name]..."
3. If the context doesn't contain enough information, say "I couldn't find an authoritative answer in the available documents."
4. Be precise and accurate
5. Do not make up information or use knowledge outside the provided context`

// ContextBudget bounds the context block handed to the model.
type ContextBudget struct {
	// MaxChars caps the total context length in characters.
	MaxChars int
	// MinTailChars is the smallest truncated document fragment worth
	// keeping. Anything shorter is dropped instead of truncated.
	MinTailChars int
}

// DefaultContextBudget returns the standard context limits.
func DefaultContextBudget() ContextBudget {
	return ContextBudget{MaxChars: 3000, MinTailChars: 100}
}

// Validate checks if the budget is usable.
func (b ContextBudget) Validate() error {
	if b.MaxChars <= 0 {
		return fmt.Errorf("maxChars must be positive, got %d", b.MaxChars)
	}
	if b.MinTailChars <= 0 || b.MinTailChars >= b.MaxChars {
		return fmt.Errorf("minTailChars must be in (0, maxChars), got %d", b.MinTailChars)
	}
	return nil
}

// PromptBuilder assembles the context block and the prompts sent to the
// completion model.
type PromptBuilder struct {
	budget    ContextBudget
	citations *CitationManager
}

// NewPromptBuilder creates a PromptBuilder.
func NewPromptBuilder(budget ContextBudget, citations *CitationManager) (*PromptBuilder, error) {
	if err := budget.Validate(); err != nil {
		return nil, fmt.Errorf("invalid context budget: %w", err)
	}
	return &PromptBuilder{budget: budget, citations: citations}, nil
}

// BuildContext concatenates result chunks under the character budget. Each
// chunk gets a document marker; a chunk that would overflow the budget is
// truncated with an ellipsis when enough room remains, otherwise dropped.
// Returned citations cover exactly the chunks that made it into the block.
func (b *PromptBuilder) BuildContext(results []domain.SearchResult) (string, []domain.Citation) {
	if len(results) == 0 {
		return "", nil
	}

	allCitations := b.citations.CitationsFromResults(results)

	var parts []string
	currentLength := 0
	for _, res := range results {
		marker := fmt.Sprintf("\n[Document: %s", res.Metadata.Source)
		if page := b.citations.ResolvePage(res.ChunkText, res.Metadata); page != nil {
			marker += fmt.Sprintf(", Page %d", *page)
		}
		marker += "]\n"

		docText := marker + res.ChunkText
		if currentLength+len(docText) > b.budget.MaxChars {
			remaining := b.budget.MaxChars - currentLength - len(marker) - b.budget.MinTailChars
			if remaining <= b.budget.MinTailChars {
				break
			}
			// Back off to a rune boundary so the cut never splits a
			// multi-byte character.
			for remaining > 0 && !utf8.RuneStart(res.ChunkText[remaining]) {
				remaining--
			}
			docText = marker + res.ChunkText[:remaining] + "..."
		}

		parts = append(parts, docText)
		currentLength += len(docText)
		if currentLength >= b.budget.MaxChars {
			break
		}
	}

	if len(parts) == 0 {
		return "", nil
	}
	return strings.Join(parts, "\n"), allCitations[:len(parts)]
}

// BuildAnswerPrompt produces the completion request for a question over a
// context block.
func (b *PromptBuilder) BuildAnswerPrompt(question, context string, temperature float64, maxTokens int) domain.CompletionRequest {
	user := fmt.Sprintf(`Context from campus documents:
%s

Question: %s

Please answer the question using ONLY the information from the context above. Include citations in your answer using the format "According to [Document Name]..." when referencing specific information.`, context, question)

	return domain.CompletionRequest{
		System:      answerSystemPrompt,
		User:        user,
		Temperature: temperature,
		MaxTokens:   maxTokens,
	}
}

// BuildSummaryPrompt produces the completion request for a policy summary.
func (b *PromptBuilder) BuildSummaryPrompt(policyName, context string, temperature float64, maxTokens int) domain.CompletionRequest {
	user := fmt.Sprintf(`Please provide a concise summary of the %s policy based on the following information:

%s

Provide a summary in bullet points covering the key aspects of this policy.`, policyName, context)

	return domain.CompletionRequest{
		System:      answerSystemPrompt,
		User:        user,
		Temperature: temperature,
		MaxTokens:   maxTokens,
	}
}

// BuildComparisonPrompt produces the completion request for comparing two
// policies over a combined context block.
func (b *PromptBuilder) BuildComparisonPrompt(policy1, policy2, context string, temperature float64, maxTokens int) domain.CompletionRequest {
	user := fmt.Sprintf(`Context from campus documents:
%s

Compare the %s policy and the %s policy. Highlight:
1. Key similarities
2. Key differences
3. Important points from each policy`, context, policy1, policy2)

	return domain.CompletionRequest{
		System:      answerSystemPrompt,
		User:        user,
		Temperature: temperature,
		MaxTokens:   maxTokens,
	}
}
