// Package vectorstore persists embedded PDF chunks and answers nearest
// neighbour queries over them.
package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"pdfchat/internal/config"
)

var ErrCollectionNotFound = errors.New("vector collection not found")

// Record is one chunk with its embedding and citation metadata.
type Record struct {
	ID        string
	Vector    []float32
	FileName  string
	FilePath  string
	PageLabel string
	Text      string
}

type Match struct {
	ID        string
	Score     float32
	FileName  string
	FilePath  string
	PageLabel string
	Text      string
}

type Store interface {
	EnsureCollection(ctx context.Context) error
	Exists(ctx context.Context) (bool, error)
	// Recreate drops the collection with all points and creates it empty.
	Recreate(ctx context.Context) error
	Upsert(ctx context.Context, records []Record) error
	Search(ctx context.Context, vector []float32, topK int) ([]Match, error)
	DeleteByFile(ctx context.Context, filePath string) error
	Ping(ctx context.Context) error
	Close() error
}

// New opens the configured driver. The sql driver shares db with the rest
// of the application.
func New(cfg config.VectorStoreConfig, db *gorm.DB) (Store, error) {
	switch cfg.Driver {
	case config.VectorStoreSQL, "":
		if db == nil {
			return nil, fmt.Errorf("sql vector store needs a database")
		}
		return NewSQLStore(db, cfg.Collection, cfg.VectorSize), nil
	case config.VectorStoreQdrant:
		return NewQdrantStore(cfg.QdrantAddr(), cfg.Collection, cfg.VectorSize)
	default:
		return nil, fmt.Errorf("unknown vector store driver %q", cfg.Driver)
	}
}

// ChunkID derives a stable UUID for a chunk so re-indexing a file
// overwrites its previous points instead of duplicating them.
func ChunkID(filePath, pageLabel string, index int) string {
	name := filePath + "#" + pageLabel + "#" + strconv.Itoa(index)
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(name)).String()
}
