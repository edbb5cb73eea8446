package extractor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"campus-compass/internal/domain"
)

// plainTextExtensions short-circuit the extraction service entirely.
var plainTextExtensions = map[string]bool{
	".txt": true,
	".md":  true,
}

// HTTPExtractor implements domain.TextExtractor against the extraction
// service, which handles PDF parsing, OCR for scanned pages and HTML
// stripping. Plain-text files never leave the process.
type HTTPExtractor struct {
	BaseURL string
	Client  *http.Client
}

// NewHTTPExtractor constructs an HTTPExtractor. If client is nil, a default
// http.Client is created with the given timeout.
func NewHTTPExtractor(baseURL string, timeout time.Duration, client *http.Client) *HTTPExtractor {
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	return &HTTPExtractor{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client:  client,
	}
}

var _ domain.TextExtractor = (*HTTPExtractor)(nil)

type extractResponse struct {
	Text          string   `json:"text"`
	Method        string   `json:"method"`
	Pages         int      `json:"pages"`
	OCRConfidence *float64 `json:"ocr_confidence,omitempty"`
}

func (e *HTTPExtractor) Extract(ctx context.Context, ref domain.DocumentRef, data []byte) (*domain.ExtractionResult, error) {
	ext := strings.ToLower(filepath.Ext(ref.Name))
	if plainTextExtensions[ext] {
		return &domain.ExtractionResult{
			Text:   string(data),
			Method: "text",
		}, nil
	}

	start := time.Now()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", ref.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to create multipart field: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, fmt.Errorf("failed to write multipart body: %w", err)
	}
	if err := writer.WriteField("category", string(ref.Category)); err != nil {
		return nil, fmt.Errorf("failed to write category field: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.BaseURL+"/v1/extract", &body)
	if err != nil {
		return nil, fmt.Errorf("failed to create extract request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := e.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call extraction service: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("extraction service returned %d: %s", resp.StatusCode, string(respBody))
	}

	var extracted extractResponse
	if err := json.NewDecoder(resp.Body).Decode(&extracted); err != nil {
		return nil, fmt.Errorf("failed to decode extract response: %w", err)
	}

	slog.Info("document_extracted",
		slog.String("file", ref.Name),
		slog.String("method", extracted.Method),
		slog.Int("pages", extracted.Pages),
		slog.Duration("elapsed", time.Since(start)))
	return &domain.ExtractionResult{
		Text:          extracted.Text,
		Method:        extracted.Method,
		PageCount:     extracted.Pages,
		OCRConfidence: extracted.OCRConfidence,
	}, nil
}
