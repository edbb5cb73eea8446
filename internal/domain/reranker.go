package domain

import "context"

// RerankCandidate is one chunk submitted for cross-encoder scoring.
type RerankCandidate struct {
	// ID maps the result back to its chunk.
	ID string
	// Content is the text scored against the query.
	Content string
	// Score is the initial retrieval score, kept for logging.
	Score float64
}

// RerankResult is a reranked candidate with its cross-encoder score.
type RerankResult struct {
	ID    string
	Score float64
}

// Reranker scores candidates against a query with a cross-encoder model.
// Results come back sorted by score descending. On error, callers fall back
// to the original retrieval scores.
type Reranker interface {
	Rerank(ctx context.Context, query string, candidates []RerankCandidate) ([]RerankResult, error)
	ModelName() string
}
