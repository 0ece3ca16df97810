package vectorstore

import (
	"context"
	"math"
	"sort"

	"gorm.io/gorm"

	"pdfchat/internal/model"
	"pdfchat/internal/repository"
)

// SQLStore keeps vectors in the document_chunks table and ranks them in
// process by cosine similarity. It suits document sets small enough to scan.
type SQLStore struct {
	chunks     *repository.ChunkRepository
	collection string
	vectorSize int
}

func NewSQLStore(db *gorm.DB, collection string, vectorSize int) *SQLStore {
	return &SQLStore{
		chunks:     repository.NewChunkRepository(db),
		collection: collection,
		vectorSize: vectorSize,
	}
}

func (s *SQLStore) EnsureCollection(ctx context.Context) error {
	return s.chunks.EnsureCollection(ctx, s.collection, s.vectorSize)
}

func (s *SQLStore) Exists(ctx context.Context) (bool, error) {
	return s.chunks.CollectionExists(ctx, s.collection)
}

func (s *SQLStore) Recreate(ctx context.Context) error {
	if err := s.chunks.DropCollection(ctx, s.collection); err != nil {
		return err
	}
	return s.EnsureCollection(ctx)
}

func (s *SQLStore) Upsert(ctx context.Context, records []Record) error {
	rows := make([]model.DocumentChunk, len(records))
	for i, rec := range records {
		rows[i] = model.DocumentChunk{
			ID:         rec.ID,
			Collection: s.collection,
			FilePath:   rec.FilePath,
			FileName:   rec.FileName,
			PageLabel:  rec.PageLabel,
			Content:    rec.Text,
		}
		rows[i].SetEmbedding(rec.Vector)
	}
	return s.chunks.Upsert(ctx, rows)
}

func (s *SQLStore) Search(ctx context.Context, vector []float32, topK int) ([]Match, error) {
	if topK <= 0 {
		return []Match{}, nil
	}
	exists, err := s.Exists(ctx)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrCollectionNotFound
	}

	rows, err := s.chunks.ListByCollection(ctx, s.collection)
	if err != nil {
		return nil, err
	}

	matches := make([]Match, 0, len(rows))
	for i := range rows {
		matches = append(matches, Match{
			ID:        rows[i].ID,
			Score:     cosineSimilarity(vector, rows[i].EmbeddingVector()),
			FileName:  rows[i].FileName,
			FilePath:  rows[i].FilePath,
			PageLabel: rows[i].PageLabel,
			Text:      rows[i].Content,
		})
	}
	return topMatches(matches, topK), nil
}

func (s *SQLStore) DeleteByFile(ctx context.Context, filePath string) error {
	return s.chunks.DeleteByFilePath(ctx, s.collection, filePath)
}

func (s *SQLStore) Ping(ctx context.Context) error {
	_, err := s.chunks.CountByCollection(ctx, s.collection)
	return err
}

// Close is a no-op; the database belongs to the caller.
func (s *SQLStore) Close() error {
	return nil
}

func cosineSimilarity(a, b []float32) float32 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}

// topMatches sorts by score descending, ties broken by id for stable output.
func topMatches(matches []Match, k int) []Match {
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].ID < matches[j].ID
	})
	if k < len(matches) {
		matches = matches[:k]
	}
	return matches
}
