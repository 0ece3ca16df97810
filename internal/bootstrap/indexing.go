package bootstrap

import (
	"context"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"pdfchat/internal/ai"
	"pdfchat/internal/config"
	"pdfchat/internal/platform/database"
	"pdfchat/internal/rag"
	"pdfchat/internal/repository"
	"pdfchat/internal/vectorstore"
)

// Indexing is the slimmer graph used by the indexer binary: no cache,
// queue or HTTP, just the embedder, the vector store and document tracking.
type Indexing struct {
	Config  *config.Config
	DB      *gorm.DB
	Store   vectorstore.Store
	Indexer *rag.Indexer
}

func NewIndexing(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Indexing, error) {
	db, err := database.New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	embedder, err := ai.New(cfg.LLM)
	if err != nil {
		_ = database.Close(db)
		return nil, err
	}
	store, err := vectorstore.New(cfg.VectorStore, db)
	if err != nil {
		_ = database.Close(db)
		return nil, err
	}

	indexer := rag.NewIndexer(embedder, store, repository.NewDocumentRepository(db), rag.IndexerOptions{
		Root:         cfg.Storage.DocumentsDir,
		Collection:   cfg.VectorStore.Collection,
		ChunkSize:    cfg.LLM.ChunkSize,
		ChunkOverlap: cfg.LLM.ChunkOverlap,
		BatchSize:    cfg.LLM.EmbedBatchSize,
	}, logger)

	return &Indexing{Config: cfg, DB: db, Store: store, Indexer: indexer}, nil
}

func (i *Indexing) Close() error {
	var closeErr error
	if err := i.Store.Close(); err != nil {
		closeErr = err
	}
	if err := database.Close(i.DB); err != nil {
		closeErr = err
	}
	return closeErr
}
