package usecase

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"campus-compass/internal/domain"
)

const textPreviewLimit = 200

// pageMarkerPattern matches inline page markers left by extraction,
// e.g. "[Page 12]".
var pageMarkerPattern = regexp.MustCompile(`\[Page\s+(\d+)\]`)

// citationStopwords are excluded from grounding overlap on both sides.
var citationStopwords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true,
	"but": true, "in": true, "on": true, "at": true, "to": true,
	"for": true, "of": true, "with": true, "by": true,
}

// CitationConfig tunes grounding verification.
type CitationConfig struct {
	// GroundingThreshold is the minimum fraction of answer tokens that
	// must appear in a chunk for the answer to count as grounded in it.
	GroundingThreshold float64
}

// DefaultCitationConfig returns the standard grounding settings.
func DefaultCitationConfig() CitationConfig {
	return CitationConfig{GroundingThreshold: 0.2}
}

// Validate checks if the citation configuration is valid.
func (c CitationConfig) Validate() error {
	if c.GroundingThreshold <= 0 || c.GroundingThreshold >= 1 {
		return fmt.Errorf("groundingThreshold must be in (0.0, 1.0), got %f", c.GroundingThreshold)
	}
	return nil
}

// CitationManager builds citations from search results and verifies that
// generated answers stay grounded in their evidence.
type CitationManager struct {
	config CitationConfig
}

// NewCitationManager creates a CitationManager.
func NewCitationManager(config CitationConfig) (*CitationManager, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid citation config: %w", err)
	}
	return &CitationManager{config: config}, nil
}

// ExtractCitation builds one citation from a result. Page resolution order:
// the explicit page argument, then chunk metadata, then an inline
// "[Page N]" marker in the chunk text.
func (m *CitationManager) ExtractCitation(result domain.SearchResult, page *int) domain.Citation {
	if page == nil {
		page = m.ResolvePage(result.ChunkText, result.Metadata)
	}
	sim := result.Similarity
	return domain.Citation{
		Source:      result.Metadata.Source,
		Category:    result.Metadata.Category,
		Page:        page,
		ChunkID:     result.ChunkID,
		TextPreview: previewText(result.ChunkText),
		Similarity:  &sim,
		Rank:        result.Rank,
	}
}

// CitationsFromResults builds one citation per result, preserving order.
func (m *CitationManager) CitationsFromResults(results []domain.SearchResult) []domain.Citation {
	citations := make([]domain.Citation, 0, len(results))
	for i, res := range results {
		citation := m.ExtractCitation(res, nil)
		if citation.Rank == 0 {
			citation.Rank = i + 1
		}
		citations = append(citations, citation)
	}
	return citations
}

// ResolvePage finds a page number for a chunk, preferring metadata over an
// inline marker. Returns nil when neither is present.
func (m *CitationManager) ResolvePage(chunkText string, meta domain.ChunkMetadata) *int {
	if meta.Page != nil {
		return meta.Page
	}
	match := pageMarkerPattern.FindStringSubmatch(chunkText)
	if match == nil {
		return nil
	}
	page, err := strconv.Atoi(match[1])
	if err != nil {
		return nil
	}
	return &page
}

// FormatCitations renders citations as a single attribution sentence.
// Duplicate (source, page) pairs collapse to one entry.
func (m *CitationManager) FormatCitations(citations []domain.Citation) string {
	if len(citations) == 0 {
		return ""
	}

	seen := make(map[string]bool, len(citations))
	var entries []string
	for _, c := range citations {
		entry := c.Source
		if c.Page != nil {
			entry = fmt.Sprintf("%s (page %d)", c.Source, *c.Page)
		}
		if !seen[entry] {
			seen[entry] = true
			entries = append(entries, entry)
		}
	}
	sort.Strings(entries)

	if len(entries) == 1 {
		return fmt.Sprintf("According to %s", entries[0])
	}
	return fmt.Sprintf("According to multiple sources: %s", strings.Join(entries, ", "))
}

// VerifyCitation reports whether the answer is grounded in the chunk: the
// fraction of answer tokens present in the chunk, stopwords excluded on
// both sides, must exceed the configured threshold.
func (m *CitationManager) VerifyCitation(chunkText, answer string) bool {
	chunkWords := contentWords(chunkText)
	if len(chunkWords) == 0 {
		return false
	}
	answerWords := contentWords(answer)
	if len(answerWords) == 0 {
		return false
	}

	overlap := 0
	for word := range answerWords {
		if chunkWords[word] {
			overlap++
		}
	}
	return float64(overlap)/float64(len(answerWords)) > m.config.GroundingThreshold
}

// IsGrounded reports whether the answer is grounded in at least one of the
// given chunks.
func (m *CitationManager) IsGrounded(answer string, chunkTexts []string) bool {
	for _, chunk := range chunkTexts {
		if m.VerifyCitation(chunk, answer) {
			return true
		}
	}
	return false
}

func contentWords(text string) map[string]bool {
	words := make(map[string]bool)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		if !citationStopwords[word] {
			words[word] = true
		}
	}
	return words
}

func previewText(text string) string {
	if len(text) > textPreviewLimit {
		return text[:textPreviewLimit] + "..."
	}
	return text
}
