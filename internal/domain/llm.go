package domain

import "context"

// CompletionRequest is what the completion service consumes: a system
// instruction, the user prompt, and sampling bounds.
type CompletionRequest struct {
	System      string
	User        string
	Temperature float64
	MaxTokens   int
}

// CompletionResult carries the generated text and whether generation
// finished cleanly.
type CompletionResult struct {
	Text string
	Done bool
}

// CompletionDelta is one streamed fragment of a completion.
type CompletionDelta struct {
	Content string
	Done    bool
}

// CompletionClient sends prompts to the language model service. The call
// dominates request latency and must be cancellable through ctx.
type CompletionClient interface {
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResult, error)

	// CompleteStream returns a delta channel and an error channel. Both are
	// closed by the implementation when the stream ends; cancelling ctx
	// stops the underlying request.
	CompleteStream(ctx context.Context, req CompletionRequest) (<-chan CompletionDelta, <-chan error, error)

	ModelName() string
}
