package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"pdfchat/internal/config"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

var ErrEmptyInput = errors.New("model input is empty")

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatModel generates assistant replies. StreamComplete calls onChunk for
// every fragment in order and returns the concatenated reply; an error from
// onChunk aborts the stream.
type ChatModel interface {
	Complete(ctx context.Context, messages []ChatMessage) (string, error)
	StreamComplete(ctx context.Context, messages []ChatMessage, onChunk func(chunk string) error) (string, error)
}

// Embedder turns texts into vectors, one per input, in input order.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

type Client interface {
	ChatModel
	Embedder
}

// New builds the client for the configured provider.
func New(cfg config.LLMConfig) (Client, error) {
	httpClient := &http.Client{Timeout: cfg.RequestTimeout()}

	switch cfg.Provider {
	case config.ProviderOllama, "":
		return NewOllamaClient(cfg, httpClient)
	case config.ProviderOpenAI:
		return NewOpenAICompatibleClient(cfg, httpClient), nil
	case config.ProviderLangChain:
		return NewLangChainClient(cfg, httpClient)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}

// checkTexts rejects blank inputs so results stay aligned with inputs.
func checkTexts(texts []string) error {
	if len(texts) == 0 {
		return ErrEmptyInput
	}
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			return fmt.Errorf("%w: text %d is blank", ErrEmptyInput, i)
		}
	}
	return nil
}
