package domain

import (
	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
)

// ChunkMetadata is the tagged record attached to every chunk. Unknown
// metadata shapes are rejected at ingestion; optional fields are pointers.
type ChunkMetadata struct {
	Source           string   // base file name, used in citations
	FilePath         string   // store-relative path of the source file
	Category         Category // corpus folder the source lives under
	SequenceIndex    int      // stable 0-based position within the document
	ExtractionMethod string
	Page             *int
	TokenCount       int
}

// Chunk is the atomic retrieval unit: a bounded slice of extracted text.
// Chunks are immutable; when a source file changes its chunks are
// superseded wholesale, never mutated.
type Chunk struct {
	ID       uuid.UUID
	Text     string
	Metadata ChunkMetadata
}

// VectorRecord is the durable form of a chunk, 1:1 with Chunk.
type VectorRecord struct {
	ChunkID   uuid.UUID
	Embedding pgvector.Vector
	ChunkText string
	Metadata  ChunkMetadata
}

// SearchResult is one ranked hit from the vector index. Similarity is
// 1 - cosine distance. RerankScore is set only when a reranker scored the
// result; Rank is 1-based after all ordering and filtering.
type SearchResult struct {
	ChunkID     uuid.UUID
	ChunkText   string
	Metadata    ChunkMetadata
	Similarity  float64
	RerankScore *float64
	Rank        int
}

// Citation links an answer back to the evidence chunk it came from.
type Citation struct {
	Source      string
	Category    Category
	Page        *int
	ChunkID     uuid.UUID
	TextPreview string
	Similarity  *float64
	Rank        int
}
