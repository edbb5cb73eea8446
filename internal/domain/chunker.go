package domain

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// ChunkingConfig holds the splitter's tunables. Defaults match the sizes
// the corpus was originally indexed with.
type ChunkingConfig struct {
	// Size is the maximum chunk length in runes.
	Size int
	// Overlap is how many trailing runes of one chunk are repeated at the
	// start of the next.
	Overlap int
}

// DefaultChunkingConfig returns the standard 500/50 split.
func DefaultChunkingConfig() ChunkingConfig {
	return ChunkingConfig{Size: 500, Overlap: 50}
}

// Validate checks the chunking configuration.
func (c ChunkingConfig) Validate() error {
	if c.Size <= 0 {
		return fmt.Errorf("chunk size must be positive, got %d", c.Size)
	}
	if c.Overlap < 0 {
		return fmt.Errorf("chunk overlap must be non-negative, got %d", c.Overlap)
	}
	if c.Overlap >= c.Size {
		return fmt.Errorf("chunk overlap (%d) must be smaller than chunk size (%d)", c.Overlap, c.Size)
	}
	return nil
}

// Chunker splits extracted text into overlapping, size-bounded pieces.
// The returned slice order defines each piece's sequence index.
type Chunker interface {
	Split(text string) []string
}

// separators are tried in order when a piece exceeds the size bound.
var separators = []string{"\n\n", "\n", ". ", " "}

type overlapChunker struct {
	cfg ChunkingConfig
}

// NewChunker creates the default overlapping character chunker.
func NewChunker(cfg ChunkingConfig) Chunker {
	return &overlapChunker{cfg: cfg}
}

func (c *overlapChunker) Split(text string) []string {
	normalized := strings.ReplaceAll(text, "\r\n", "\n")
	normalized = strings.TrimSpace(strings.ReplaceAll(normalized, "\r", "\n"))
	if normalized == "" {
		return nil
	}
	if utf8.RuneCountInString(normalized) <= c.cfg.Size {
		return []string{normalized}
	}

	pieces := splitBounded(normalized, c.cfg.Size, 0)

	// Greedily pack pieces back together up to the size bound, carrying
	// the overlap tail across chunk boundaries.
	var chunks []string
	var current string
	for _, piece := range pieces {
		if current == "" {
			current = piece
			continue
		}
		candidate := current + " " + piece
		if utf8.RuneCountInString(candidate) <= c.cfg.Size {
			current = candidate
			continue
		}
		chunks = append(chunks, current)
		current = c.overlapTail(current) + piece
		if utf8.RuneCountInString(current) > c.cfg.Size {
			// Overlap plus an oversized piece; drop the overlap.
			current = piece
		}
	}
	if strings.TrimSpace(current) != "" {
		chunks = append(chunks, current)
	}
	return chunks
}

// overlapTail returns the last Overlap runes of s, extended left to the
// nearest word boundary, with a trailing space for the join.
func (c *overlapChunker) overlapTail(s string) string {
	if c.cfg.Overlap == 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= c.cfg.Overlap {
		return s + " "
	}
	start := len(runes) - c.cfg.Overlap
	for start > 0 && runes[start-1] != ' ' && runes[start-1] != '\n' {
		start--
	}
	tail := strings.TrimSpace(string(runes[start:]))
	if tail == "" {
		return ""
	}
	return tail + " "
}

// splitBounded recursively splits text at the separator hierarchy until
// every piece fits within size. A piece with no separator left is cut hard.
func splitBounded(text string, size int, sepIndex int) []string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}
	if utf8.RuneCountInString(trimmed) <= size {
		return []string{trimmed}
	}
	if sepIndex >= len(separators) {
		return hardCut(trimmed, size)
	}

	parts := strings.Split(trimmed, separators[sepIndex])
	if len(parts) == 1 {
		return splitBounded(trimmed, size, sepIndex+1)
	}

	var out []string
	for i, part := range parts {
		// Re-attach the sentence terminator consumed by the split.
		if separators[sepIndex] == ". " && i < len(parts)-1 {
			part += "."
		}
		out = append(out, splitBounded(part, size, sepIndex+1)...)
	}
	return out
}

func hardCut(text string, size int) []string {
	runes := []rune(text)
	var out []string
	for len(runes) > size {
		out = append(out, string(runes[:size]))
		runes = runes[size:]
	}
	if len(runes) > 0 {
		out = append(out, string(runes))
	}
	return out
}
