package rag

import (
	"context"
	"errors"
)

var ErrIndexNotFound = errors.New("vector index not found")

// Service answers questions against the indexed documents.
type Service interface {
	Answer(ctx context.Context, question string) (string, error)
	Chat(ctx context.Context, message string) (*ChatStream, error)
	Reset(ctx context.Context) error
}

// SourceCitation points at the document page a retrieved chunk came from.
// PageLabel and FilePath may be empty.
type SourceCitation struct {
	FileName  string
	PageLabel string
	FilePath  string
}

// Token is one streamed fragment. A token with Err set is the last one.
type Token struct {
	Content string
	Err     error
}

// ChatStream carries the fragments of one chat reply. Sources is only
// meaningful after Tokens has been closed.
type ChatStream struct {
	tokens  chan Token
	sources []SourceCitation
}

// Producer writes fragments through emit and returns the sources it used.
// emit fails once the stream's context is done.
type Producer func(ctx context.Context, emit func(string) error) ([]SourceCitation, error)

// NewChatStream runs produce in its own goroutine. The channel is unbuffered
// so the producer advances only as fast as the consumer reads.
func NewChatStream(ctx context.Context, produce Producer) *ChatStream {
	s := &ChatStream{tokens: make(chan Token)}

	go func() {
		defer close(s.tokens)

		emit := func(content string) error {
			select {
			case s.tokens <- Token{Content: content}:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		sources, err := produce(ctx, emit)
		if err != nil {
			select {
			case s.tokens <- Token{Err: err}:
			case <-ctx.Done():
			}
			return
		}
		s.sources = sources
	}()
	return s
}

func (s *ChatStream) Tokens() <-chan Token {
	return s.tokens
}

func (s *ChatStream) Sources() []SourceCitation {
	return s.sources
}
