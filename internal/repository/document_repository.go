package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"pdfchat/internal/model"
)

type DocumentRepository struct {
	db *gorm.DB
}

func NewDocumentRepository(db *gorm.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

// Save inserts the document or updates the row for the same collection and path.
func (r *DocumentRepository) Save(ctx context.Context, doc *model.IndexedDocument) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "collection"}, {Name: "file_path"}},
		DoUpdates: clause.AssignmentColumns([]string{"file_name", "checksum", "page_count", "chunk_count", "indexed_at"}),
	}).Create(doc).Error
	if err != nil {
		return fmt.Errorf("save indexed document failed: %w", err)
	}
	return nil
}

func (r *DocumentRepository) GetByPath(ctx context.Context, collection, filePath string) (*model.IndexedDocument, error) {
	var doc model.IndexedDocument
	if err := r.db.WithContext(ctx).Where("collection = ? AND file_path = ?", collection, filePath).First(&doc).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get indexed document failed: %w", err)
	}
	return &doc, nil
}

func (r *DocumentRepository) ListByCollection(ctx context.Context, collection string) ([]model.IndexedDocument, error) {
	var list []model.IndexedDocument
	if err := r.db.WithContext(ctx).Where("collection = ?", collection).Order("file_path ASC").Find(&list).Error; err != nil {
		return nil, fmt.Errorf("list indexed documents failed: %w", err)
	}
	return list, nil
}

func (r *DocumentRepository) DeleteByPath(ctx context.Context, collection, filePath string) error {
	if err := r.db.WithContext(ctx).Where("collection = ? AND file_path = ?", collection, filePath).Delete(&model.IndexedDocument{}).Error; err != nil {
		return fmt.Errorf("delete indexed document failed: %w", err)
	}
	return nil
}

func (r *DocumentRepository) DeleteByCollection(ctx context.Context, collection string) error {
	if err := r.db.WithContext(ctx).Where("collection = ?", collection).Delete(&model.IndexedDocument{}).Error; err != nil {
		return fmt.Errorf("delete indexed documents failed: %w", err)
	}
	return nil
}
