package model

import (
	"encoding/json"
	"time"
)

// DocumentChunk is one embedded slice of a PDF page, stored by the SQL
// vector store. Embedding is a JSON array of float32.
type DocumentChunk struct {
	ID         string    `gorm:"primaryKey;size:36" json:"id"`
	Collection string    `gorm:"size:128;not null;index:idx_chunks_collection_file,priority:1" json:"collection"`
	FilePath   string    `gorm:"size:512;not null;index:idx_chunks_collection_file,priority:2" json:"file_path"`
	FileName   string    `gorm:"size:255;not null" json:"file_name"`
	PageLabel  string    `gorm:"size:32" json:"page_label"`
	Content    string    `gorm:"type:text;not null" json:"content"`
	Embedding  string    `gorm:"type:text" json:"-"`
	CreatedAt  time.Time `json:"created_at"`
}

// EmbeddingVector returns the parsed embedding slice; empty on parse error.
func (c *DocumentChunk) EmbeddingVector() []float32 {
	if c.Embedding == "" {
		return nil
	}
	var v []float32
	_ = json.Unmarshal([]byte(c.Embedding), &v)
	return v
}

func (c *DocumentChunk) SetEmbedding(vec []float32) {
	if len(vec) == 0 {
		c.Embedding = "[]"
		return
	}
	b, _ := json.Marshal(vec)
	c.Embedding = string(b)
}
