package ai

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"pdfchat/internal/config"
)

// placeholderToken satisfies langchaingo's key check for local servers
// that ignore authentication.
const placeholderToken = "ollama"

// LangChainClient routes calls through langchaingo's OpenAI driver.
type LangChainClient struct {
	llm *openai.LLM
}

func NewLangChainClient(cfg config.LLMConfig, httpClient *http.Client) (*LangChainClient, error) {
	token := cfg.APIKey
	if token == "" {
		token = placeholderToken
	}
	opts := []openai.Option{
		openai.WithToken(token),
		openai.WithBaseURL(cfg.BaseURL),
		openai.WithModel(cfg.Model),
		openai.WithEmbeddingModel(cfg.EmbeddingModel),
	}
	if httpClient != nil {
		opts = append(opts, openai.WithHTTPClient(httpClient))
	}

	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create langchain llm failed: %w", err)
	}
	return &LangChainClient{llm: llm}, nil
}

func (c *LangChainClient) Complete(ctx context.Context, messages []ChatMessage) (string, error) {
	resp, err := c.llm.GenerateContent(ctx, toMessageContent(messages))
	if err != nil {
		return "", fmt.Errorf("langchain generate failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty llm choices")
	}
	return resp.Choices[0].Content, nil
}

func (c *LangChainClient) StreamComplete(
	ctx context.Context,
	messages []ChatMessage,
	onChunk func(chunk string) error,
) (string, error) {
	var full strings.Builder
	_, err := c.llm.GenerateContent(ctx, toMessageContent(messages),
		llms.WithStreamingFunc(func(_ context.Context, chunk []byte) error {
			if len(chunk) == 0 {
				return nil
			}
			full.Write(chunk)
			return onChunk(string(chunk))
		}),
	)
	if err != nil {
		return full.String(), fmt.Errorf("langchain stream failed: %w", err)
	}
	return full.String(), nil
}

func (c *LangChainClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := checkTexts(texts); err != nil {
		return nil, err
	}
	vectors, err := c.llm.CreateEmbedding(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("langchain embed failed: %w", err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: sent %d, got %d", len(texts), len(vectors))
	}
	return vectors, nil
}

func toMessageContent(messages []ChatMessage) []llms.MessageContent {
	out := make([]llms.MessageContent, 0, len(messages))
	for _, m := range messages {
		role := llms.ChatMessageTypeHuman
		switch m.Role {
		case RoleSystem:
			role = llms.ChatMessageTypeSystem
		case RoleAssistant:
			role = llms.ChatMessageTypeAI
		}
		out = append(out, llms.TextParts(role, m.Content))
	}
	return out
}
