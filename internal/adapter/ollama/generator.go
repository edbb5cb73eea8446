package ollama

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"campus-compass/internal/domain"
)

// Generator implements domain.CompletionClient against an Ollama server's
// chat endpoint.
type Generator struct {
	BaseURL string
	Model   string
	Client  *http.Client
}

// NewGenerator constructs a Generator. If client is nil, a default
// http.Client is created with the given timeout. Streaming requests rely on
// context cancellation rather than the client timeout.
func NewGenerator(baseURL, model string, timeout time.Duration, client *http.Client) *Generator {
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	return &Generator{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Model:   model,
		Client:  client,
	}
}

var _ domain.CompletionClient = (*Generator)(nil)

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
	Options  chatOptions   `json:"options"`
}

type chatResponse struct {
	Message chatMessage `json:"message"`
	Done    bool        `json:"done"`
}

func (g *Generator) buildRequest(req domain.CompletionRequest, stream bool) chatRequest {
	return chatRequest{
		Model: g.Model,
		Messages: []chatMessage{
			{Role: "system", Content: req.System},
			{Role: "user", Content: req.User},
		},
		Stream: stream,
		Options: chatOptions{
			Temperature: req.Temperature,
			NumPredict:  req.MaxTokens,
		},
	}
}

func (g *Generator) Complete(ctx context.Context, req domain.CompletionRequest) (*domain.CompletionResult, error) {
	start := time.Now()

	jsonData, err := json.Marshal(g.buildRequest(req, false))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.BaseURL+"/api/chat", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.Client.Do(httpReq)
	if err != nil {
		slog.Error("ollama_chat_failed",
			slog.String("error", err.Error()),
			slog.Duration("elapsed", time.Since(start)))
		return nil, fmt.Errorf("failed to call ollama: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama returned status: %d", resp.StatusCode)
	}

	var chatResp chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return nil, fmt.Errorf("failed to decode chat response: %w", err)
	}

	slog.Info("ollama_chat_completed",
		slog.String("model", g.Model),
		slog.Bool("done", chatResp.Done),
		slog.Duration("elapsed", time.Since(start)))
	return &domain.CompletionResult{
		Text: chatResp.Message.Content,
		Done: chatResp.Done,
	}, nil
}

// CompleteStream issues a streaming chat request and decodes the NDJSON
// response line by line. Both returned channels are closed when the stream
// ends; cancelling ctx aborts the underlying request.
func (g *Generator) CompleteStream(ctx context.Context, req domain.CompletionRequest) (<-chan domain.CompletionDelta, <-chan error, error) {
	jsonData, err := json.Marshal(g.buildRequest(req, true))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.BaseURL+"/api/chat", bytes.NewReader(jsonData))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.Client.Do(httpReq)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to call ollama: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, nil, fmt.Errorf("ollama returned status: %d", resp.StatusCode)
	}

	deltas := make(chan domain.CompletionDelta, 8)
	errs := make(chan error, 1)

	go func() {
		defer close(deltas)
		defer close(errs)
		defer func() { _ = resp.Body.Close() }()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := bytes.TrimSpace(scanner.Bytes())
			if len(line) == 0 {
				continue
			}

			var chunk chatResponse
			if err := json.Unmarshal(line, &chunk); err != nil {
				errs <- fmt.Errorf("failed to decode stream chunk: %w", err)
				return
			}

			delta := domain.CompletionDelta{
				Content: chunk.Message.Content,
				Done:    chunk.Done,
			}
			select {
			case <-ctx.Done():
				return
			case deltas <- delta:
			}
			if chunk.Done {
				return
			}
		}
		if err := scanner.Err(); err != nil && ctx.Err() == nil {
			errs <- fmt.Errorf("stream read failed: %w", err)
		}
	}()

	return deltas, errs, nil
}

func (g *Generator) ModelName() string {
	return g.Model
}
