package ai

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"

	"pdfchat/internal/config"
)

// OllamaClient uses Ollama's native /api/chat and /api/embed endpoints.
type OllamaClient struct {
	client         *api.Client
	model          string
	embeddingModel string
}

func NewOllamaClient(cfg config.LLMConfig, httpClient *http.Client) (*OllamaClient, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid ollama base url: %w", err)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.RequestTimeout()}
	}
	return &OllamaClient{
		client:         api.NewClient(base, httpClient),
		model:          cfg.Model,
		embeddingModel: cfg.EmbeddingModel,
	}, nil
}

func (c *OllamaClient) Complete(ctx context.Context, messages []ChatMessage) (string, error) {
	stream := false
	var answer strings.Builder
	err := c.client.Chat(ctx, c.chatRequest(messages, &stream), func(resp api.ChatResponse) error {
		answer.WriteString(resp.Message.Content)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("ollama chat failed: %w", err)
	}
	return answer.String(), nil
}

func (c *OllamaClient) StreamComplete(
	ctx context.Context,
	messages []ChatMessage,
	onChunk func(chunk string) error,
) (string, error) {
	stream := true
	var full strings.Builder
	err := c.client.Chat(ctx, c.chatRequest(messages, &stream), func(resp api.ChatResponse) error {
		if resp.Message.Content == "" {
			return nil
		}
		full.WriteString(resp.Message.Content)
		return onChunk(resp.Message.Content)
	})
	if err != nil {
		return full.String(), fmt.Errorf("ollama chat stream failed: %w", err)
	}
	return full.String(), nil
}

func (c *OllamaClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := checkTexts(texts); err != nil {
		return nil, err
	}

	resp, err := c.client.Embed(ctx, &api.EmbedRequest{
		Model: c.embeddingModel,
		Input: texts,
	})
	if err != nil {
		return nil, fmt.Errorf("ollama embed failed: %w", err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: sent %d, got %d", len(texts), len(resp.Embeddings))
	}
	return resp.Embeddings, nil
}

func (c *OllamaClient) chatRequest(messages []ChatMessage, stream *bool) *api.ChatRequest {
	converted := make([]api.Message, len(messages))
	for i, m := range messages {
		converted[i] = api.Message{Role: m.Role, Content: m.Content}
	}
	return &api.ChatRequest{
		Model:    c.model,
		Messages: converted,
		Stream:   stream,
	}
}
