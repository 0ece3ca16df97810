package model

import "time"

// VectorCollection marks a collection created in the SQL vector store.
type VectorCollection struct {
	Name       string    `gorm:"primaryKey;size:128" json:"name"`
	VectorSize int       `json:"vector_size"`
	CreatedAt  time.Time `json:"created_at"`
}
