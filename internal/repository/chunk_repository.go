package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"pdfchat/internal/model"
)

type ChunkRepository struct {
	db *gorm.DB
}

func NewChunkRepository(db *gorm.DB) *ChunkRepository {
	return &ChunkRepository{db: db}
}

// Upsert writes chunks in batches, replacing rows that share an id.
func (r *ChunkRepository) Upsert(ctx context.Context, chunks []model.DocumentChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ids := make([]string, len(chunks))
		for i := range chunks {
			ids[i] = chunks[i].ID
		}
		if err := tx.Where("id IN ?", ids).Delete(&model.DocumentChunk{}).Error; err != nil {
			return err
		}
		return tx.CreateInBatches(chunks, 100).Error
	})
	if err != nil {
		return fmt.Errorf("upsert document chunks failed: %w", err)
	}
	return nil
}

func (r *ChunkRepository) ListByCollection(ctx context.Context, collection string) ([]model.DocumentChunk, error) {
	var chunks []model.DocumentChunk
	if err := r.db.WithContext(ctx).Where("collection = ?", collection).Find(&chunks).Error; err != nil {
		return nil, fmt.Errorf("list document chunks failed: %w", err)
	}
	return chunks, nil
}

func (r *ChunkRepository) CountByCollection(ctx context.Context, collection string) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&model.DocumentChunk{}).Where("collection = ?", collection).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count document chunks failed: %w", err)
	}
	return count, nil
}

func (r *ChunkRepository) DeleteByFilePath(ctx context.Context, collection, filePath string) error {
	if err := r.db.WithContext(ctx).
		Where("collection = ? AND file_path = ?", collection, filePath).
		Delete(&model.DocumentChunk{}).Error; err != nil {
		return fmt.Errorf("delete document chunks by file failed: %w", err)
	}
	return nil
}

func (r *ChunkRepository) DeleteByCollection(ctx context.Context, collection string) error {
	if err := r.db.WithContext(ctx).Where("collection = ?", collection).Delete(&model.DocumentChunk{}).Error; err != nil {
		return fmt.Errorf("delete document chunks by collection failed: %w", err)
	}
	return nil
}

// EnsureCollection creates the collection row unless it already exists.
func (r *ChunkRepository) EnsureCollection(ctx context.Context, name string, vectorSize int) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).
		Create(&model.VectorCollection{Name: name, VectorSize: vectorSize}).Error
	if err != nil {
		return fmt.Errorf("ensure vector collection failed: %w", err)
	}
	return nil
}

func (r *ChunkRepository) CollectionExists(ctx context.Context, name string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&model.VectorCollection{}).Where("name = ?", name).Count(&count).Error; err != nil {
		return false, fmt.Errorf("check vector collection failed: %w", err)
	}
	return count > 0, nil
}

// DropCollection removes the collection row and every chunk in it.
func (r *ChunkRepository) DropCollection(ctx context.Context, name string) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("collection = ?", name).Delete(&model.DocumentChunk{}).Error; err != nil {
			return err
		}
		return tx.Where("name = ?", name).Delete(&model.VectorCollection{}).Error
	})
	if err != nil {
		return fmt.Errorf("drop vector collection failed: %w", err)
	}
	return nil
}
