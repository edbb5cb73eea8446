package domain

import "context"

// VectorEncoder generates fixed-length embeddings for a batch of texts,
// used at both index and query time.
type VectorEncoder interface {
	Encode(ctx context.Context, texts []string) ([][]float32, error)
	Version() string
}

// TokenCounter reports the token length of a text under the embedding
// model's tokenizer. Optional; a nil counter disables token accounting.
type TokenCounter interface {
	Count(text string) int
}
