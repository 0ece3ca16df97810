package model

import "time"

const DefaultConversationTitle = "New Conversation"

type Conversation struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Title     string    `gorm:"size:255;not null" json:"title"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;index:idx_conversations_updated,sort:desc" json:"updated_at"`
	Messages  []Message `gorm:"foreignKey:ConversationID;constraint:OnDelete:CASCADE" json:"messages"`
}

// ConversationSummary is a list row: the conversation without its messages
// plus the number of messages it owns.
type ConversationSummary struct {
	ID           uint      `json:"id"`
	Title        string    `json:"title"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	MessageCount int64     `json:"message_count"`
}
