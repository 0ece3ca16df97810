package model

import "time"

// IndexedDocument records a PDF that the indexer has embedded, keyed by
// collection and absolute path. Checksum is the hex sha256 of the file.
type IndexedDocument struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	Collection string    `gorm:"size:128;not null;uniqueIndex:idx_documents_collection_path,priority:1" json:"collection"`
	FilePath   string    `gorm:"size:512;not null;uniqueIndex:idx_documents_collection_path,priority:2" json:"file_path"`
	FileName   string    `gorm:"size:255;not null" json:"file_name"`
	Checksum   string    `gorm:"size:64;not null" json:"checksum"`
	PageCount  int       `json:"page_count"`
	ChunkCount int       `json:"chunk_count"`
	IndexedAt  time.Time `json:"indexed_at"`
}
