package domain

import (
	"context"
	"time"
)

// Category identifies which corpus folder a document came from.
type Category string

const (
	CategoryPDFs      Category = "pdfs"
	CategoryNotices   Category = "notices"
	CategoryPolicies  Category = "policies"
	CategoryHandbooks Category = "handbooks"
)

// Categories returns the fixed set of corpus folders, in walk order.
func Categories() []Category {
	return []Category{CategoryPDFs, CategoryNotices, CategoryPolicies, CategoryHandbooks}
}

// Valid reports whether c is one of the known corpus categories.
func (c Category) Valid() bool {
	switch c {
	case CategoryPDFs, CategoryNotices, CategoryPolicies, CategoryHandbooks:
		return true
	}
	return false
}

// SupportedExtensions lists the file extensions the pipeline will process.
// Anything else found under a category folder is ignored.
var SupportedExtensions = map[string]bool{
	".pdf":  true,
	".docx": true,
	".html": true,
	".htm":  true,
	".txt":  true,
	".md":   true,
}

// DocumentRef points at a single file in the document store.
type DocumentRef struct {
	Path     string // path relative to the store root, stable across passes
	Name     string // base file name
	Category Category
	ModTime  time.Time
	Size     int64
}

// DocumentStore exposes the corpus file tree. Listing, byte reads and
// modification times are all the pipeline needs; extraction happens elsewhere.
type DocumentStore interface {
	// List returns every supported file under the category folders.
	List(ctx context.Context) ([]DocumentRef, error)

	// Stat resolves a single path to a DocumentRef.
	// Returns nil, nil if the file does not exist.
	Stat(ctx context.Context, path string) (*DocumentRef, error)

	// Read returns the raw bytes of the file at path.
	Read(ctx context.Context, path string) ([]byte, error)
}

// ExtractionResult carries the text pulled out of a raw document plus the
// metadata the extractor recorded while doing it.
type ExtractionResult struct {
	Text          string
	Method        string // "text", "ocr", "html", ...
	PageCount     int
	OCRConfidence *float64
}

// TextExtractor converts a raw file into plain text. Implementations call
// out to the extraction service; plain-text formats may short-circuit.
type TextExtractor interface {
	Extract(ctx context.Context, ref DocumentRef, data []byte) (*ExtractionResult, error)
}
