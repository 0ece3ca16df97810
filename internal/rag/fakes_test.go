package rag

import (
	"context"
	"errors"
	"strings"
	"sync"

	"pdfchat/internal/ai"
	"pdfchat/internal/vectorstore"
)

// scriptedLLM returns canned replies and records every request.
type scriptedLLM struct {
	mu          sync.Mutex
	completions []string
	streamParts []string
	streamErr   error
	completeReq [][]ai.ChatMessage
	streamReq   [][]ai.ChatMessage
}

func (l *scriptedLLM) Complete(_ context.Context, messages []ai.ChatMessage) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.completeReq = append(l.completeReq, messages)
	if len(l.completions) == 0 {
		return "", errors.New("no completion scripted")
	}
	next := l.completions[0]
	l.completions = l.completions[1:]
	return next, nil
}

func (l *scriptedLLM) StreamComplete(ctx context.Context, messages []ai.ChatMessage, onChunk func(string) error) (string, error) {
	l.mu.Lock()
	l.streamReq = append(l.streamReq, messages)
	parts, streamErr := l.streamParts, l.streamErr
	l.mu.Unlock()

	var full strings.Builder
	for _, p := range parts {
		if err := onChunk(p); err != nil {
			return full.String(), err
		}
		full.WriteString(p)
	}
	if streamErr != nil {
		return full.String(), streamErr
	}
	return full.String(), nil
}

// lengthEmbedder maps text to a 2-d vector so searches are deterministic.
type lengthEmbedder struct {
	mu    sync.Mutex
	calls [][]string
	err   error
}

func (e *lengthEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, texts)
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{1, float32(len(t))}
	}
	return out, nil
}

type memoryStore struct {
	mu      sync.Mutex
	exists  bool
	records map[string]vectorstore.Record
	matches []vectorstore.Match
	queries [][]float32
}

func newMemoryStore(exists bool) *memoryStore {
	return &memoryStore{exists: exists, records: map[string]vectorstore.Record{}}
}

func (s *memoryStore) EnsureCollection(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.exists = true
	return nil
}

func (s *memoryStore) Exists(context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exists, nil
}

func (s *memoryStore) Recreate(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = map[string]vectorstore.Record{}
	s.exists = true
	return nil
}

func (s *memoryStore) Upsert(_ context.Context, records []vectorstore.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range records {
		s.records[r.ID] = r
	}
	return nil
}

func (s *memoryStore) Search(_ context.Context, vector []float32, topK int) ([]vectorstore.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries = append(s.queries, vector)
	if topK < len(s.matches) {
		return s.matches[:topK], nil
	}
	return s.matches, nil
}

func (s *memoryStore) DeleteByFile(_ context.Context, filePath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, r := range s.records {
		if r.FilePath == filePath {
			delete(s.records, id)
		}
	}
	return nil
}

func (s *memoryStore) Ping(context.Context) error { return nil }
func (s *memoryStore) Close() error { return nil }

func (s *memoryStore) countFile(filePath string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.records {
		if r.FilePath == filePath {
			n++
		}
	}
	return n
}
