package rag

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"pdfchat/internal/ai"
	"pdfchat/internal/vectorstore"
)

const (
	defaultTopK           = 5
	defaultMemoryMessages = 20
)

type AgentOptions struct {
	Collection     string
	SimilarityTopK int
	// MemoryMessages caps the chat history kept between turns.
	MemoryMessages int
}

// Agent answers one-shot queries and runs a condense-plus-context chat
// with in-memory history.
type Agent struct {
	llm      ai.ChatModel
	embedder ai.Embedder
	store    vectorstore.Store
	opts     AgentOptions
	logger   *zap.Logger

	mu      sync.Mutex
	history []ai.ChatMessage
}

// NewAgent fails with ErrIndexNotFound when the collection has not been
// built yet.
func NewAgent(ctx context.Context, llm ai.ChatModel, embedder ai.Embedder, store vectorstore.Store, opts AgentOptions, logger *zap.Logger) (*Agent, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.SimilarityTopK <= 0 {
		opts.SimilarityTopK = defaultTopK
	}
	if opts.MemoryMessages <= 0 {
		opts.MemoryMessages = defaultMemoryMessages
	}

	exists, err := store.Exists(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load collection '%s': %w", opts.Collection, err)
	}
	if !exists {
		return nil, fmt.Errorf("%w: failed to load collection '%s'. Have you run the indexer?", ErrIndexNotFound, opts.Collection)
	}

	return &Agent{
		llm:      llm,
		embedder: embedder,
		store:    store,
		opts:     opts,
		logger:   logger.Named("agent"),
	}, nil
}

func (a *Agent) Answer(ctx context.Context, question string) (string, error) {
	matches, err := a.retrieve(ctx, question)
	if err != nil {
		return "", err
	}
	answer, err := a.llm.Complete(ctx, []ai.ChatMessage{
		{Role: ai.RoleUser, Content: queryPrompt(matches, question)},
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(answer), nil
}

// Chat condenses the history and message into a standalone question,
// retrieves context for it and streams the reply. The turn is added to
// memory only when the reply completes.
func (a *Agent) Chat(ctx context.Context, message string) (*ChatStream, error) {
	history := a.snapshot()

	return NewChatStream(ctx, func(ctx context.Context, emit func(string) error) ([]SourceCitation, error) {
		question := message
		if len(history) > 0 {
			condensed, err := a.llm.Complete(ctx, []ai.ChatMessage{
				{Role: ai.RoleUser, Content: condensePrompt(history, message)},
			})
			if err != nil {
				return nil, err
			}
			if condensed = strings.TrimSpace(condensed); condensed != "" {
				question = condensed
			}
		}

		matches, err := a.retrieve(ctx, question)
		if err != nil {
			return nil, err
		}

		messages := make([]ai.ChatMessage, 0, len(history)+2)
		messages = append(messages, ai.ChatMessage{Role: ai.RoleSystem, Content: contextSystemPrompt(matches)})
		messages = append(messages, history...)
		messages = append(messages, ai.ChatMessage{Role: ai.RoleUser, Content: message})

		reply, err := a.llm.StreamComplete(ctx, messages, emit)
		if err != nil {
			return nil, err
		}

		a.remember(message, reply)
		return citations(matches), nil
	}), nil
}

func (a *Agent) Reset(context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.history = nil
	return nil
}

func (a *Agent) retrieve(ctx context.Context, query string) ([]vectorstore.Match, error) {
	vectors, err := a.embedder.EmbedBatch(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("empty embedding for query")
	}
	matches, err := a.store.Search(ctx, vectors[0], a.opts.SimilarityTopK)
	if err != nil {
		return nil, err
	}
	a.logger.Debug("retrieved context", zap.Int("matches", len(matches)))
	return matches, nil
}

func (a *Agent) snapshot() []ai.ChatMessage {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]ai.ChatMessage(nil), a.history...)
}

func (a *Agent) remember(message, reply string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.history = append(a.history,
		ai.ChatMessage{Role: ai.RoleUser, Content: message},
		ai.ChatMessage{Role: ai.RoleAssistant, Content: reply},
	)
	if over := len(a.history) - a.opts.MemoryMessages; over > 0 {
		a.history = a.history[over:]
	}
}

func citations(matches []vectorstore.Match) []SourceCitation {
	out := make([]SourceCitation, 0, len(matches))
	for _, m := range matches {
		out = append(out, SourceCitation{
			FileName:  m.FileName,
			PageLabel: m.PageLabel,
			FilePath:  m.FilePath,
		})
	}
	return out
}
