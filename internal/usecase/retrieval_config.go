package usecase

import (
	"fmt"
	"time"
)

// RerankingConfig holds settings for cross-encoder reranking.
type RerankingConfig struct {
	// Enabled controls whether reranking is applied.
	Enabled bool
	// PoolMultiplier widens the initial retrieval to PoolMultiplier*TopK
	// candidates before the cross-encoder narrows them back to TopK.
	PoolMultiplier int
	// Timeout is the maximum duration for reranking requests.
	Timeout time.Duration
}

// DefaultRerankingConfig returns the standard reranking settings.
func DefaultRerankingConfig() RerankingConfig {
	return RerankingConfig{
		Enabled:        true,
		PoolMultiplier: 2,
		Timeout:        30 * time.Second,
	}
}

// Validate checks if the reranking configuration is valid.
func (c RerankingConfig) Validate() error {
	if c.Enabled {
		if c.PoolMultiplier < 1 {
			return fmt.Errorf("reranking poolMultiplier must be at least 1, got %d", c.PoolMultiplier)
		}
		if c.Timeout <= 0 {
			return fmt.Errorf("reranking timeout must be positive, got %v", c.Timeout)
		}
	}
	return nil
}

// RetrievalConfig holds tunable parameters for document retrieval.
type RetrievalConfig struct {
	// TopK is the number of results returned by a search.
	TopK int

	// SimilarityThreshold drops results whose cosine similarity falls
	// below it. Zero disables the filter. Applied after ranking, so it
	// can only shrink a result set, never reorder it.
	SimilarityThreshold float64

	// EmbedCacheSize bounds the LRU cache of query embeddings.
	EmbedCacheSize int

	// Reranking holds cross-encoder reranking settings.
	Reranking RerankingConfig
}

// DefaultRetrievalConfig returns the standard retrieval settings.
func DefaultRetrievalConfig() RetrievalConfig {
	return RetrievalConfig{
		TopK:                5,
		SimilarityThreshold: 0,
		EmbedCacheSize:      256,
		Reranking:           DefaultRerankingConfig(),
	}
}

// Validate checks if the configuration values are within acceptable ranges.
func (c RetrievalConfig) Validate() error {
	if c.TopK <= 0 {
		return fmt.Errorf("topK must be positive, got %d", c.TopK)
	}
	if c.SimilarityThreshold < 0 || c.SimilarityThreshold > 1 {
		return fmt.Errorf("similarityThreshold must be in [0.0, 1.0], got %f", c.SimilarityThreshold)
	}
	if c.EmbedCacheSize <= 0 {
		return fmt.Errorf("embedCacheSize must be positive, got %d", c.EmbedCacheSize)
	}
	if err := c.Reranking.Validate(); err != nil {
		return fmt.Errorf("reranking config invalid: %w", err)
	}
	return nil
}
