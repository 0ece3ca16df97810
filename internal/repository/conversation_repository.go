package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"pdfchat/internal/model"
)

// ErrConversationNotFound is returned by writes that reference a
// conversation which does not exist. Reads report absence as (nil, nil).
var ErrConversationNotFound = errors.New("conversation not found")

const summaryColumns = "conversations.id, conversations.title, conversations.created_at, conversations.updated_at, " +
	"(SELECT COUNT(*) FROM messages WHERE messages.conversation_id = conversations.id) AS message_count"

type ConversationRepository struct {
	db *gorm.DB
}

func NewConversationRepository(db *gorm.DB) *ConversationRepository {
	return &ConversationRepository{db: db}
}

// Create inserts an empty conversation. A blank title becomes
// model.DefaultConversationTitle.
func (r *ConversationRepository) Create(ctx context.Context, title string) (*model.Conversation, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		title = model.DefaultConversationTitle
	}

	now := time.Now().UTC()
	conversation := &model.Conversation{
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := r.db.WithContext(ctx).Create(conversation).Error; err != nil {
		return nil, fmt.Errorf("create conversation failed: %w", err)
	}
	return conversation, nil
}

// UpdateTitle renames a conversation and touches updated_at. Unknown ids are
// a no-op.
func (r *ConversationRepository) UpdateTitle(ctx context.Context, id uint, title string) error {
	err := r.db.WithContext(ctx).
		Model(&model.Conversation{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"title":      title,
			"updated_at": time.Now().UTC(),
		}).Error
	if err != nil {
		return fmt.Errorf("update conversation title failed: %w", err)
	}
	return nil
}

// AddMessage appends a message and touches the parent's updated_at in one
// transaction.
func (r *ConversationRepository) AddMessage(ctx context.Context, conversationID uint, role, content string) (*model.Message, error) {
	message := &model.Message{
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&model.Conversation{}).Where("id = ?", conversationID).Count(&count).Error; err != nil {
			return fmt.Errorf("check conversation failed: %w", err)
		}
		if count == 0 {
			return ErrConversationNotFound
		}

		now := time.Now().UTC()
		message.CreatedAt = now
		if err := tx.Create(message).Error; err != nil {
			return fmt.Errorf("create message failed: %w", err)
		}
		if err := tx.Model(&model.Conversation{}).Where("id = ?", conversationID).Update("updated_at", now).Error; err != nil {
			return fmt.Errorf("touch conversation failed: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return message, nil
}

// Get returns the conversation with its messages in creation order, or
// (nil, nil) when it does not exist.
func (r *ConversationRepository) Get(ctx context.Context, id uint) (*model.Conversation, error) {
	db := r.db.WithContext(ctx)

	// Messages are read before the parent row, so the returned updated_at is
	// never older than the newest message returned.
	var messages []model.Message
	if err := db.Where("conversation_id = ?", id).Order("id ASC").Find(&messages).Error; err != nil {
		return nil, fmt.Errorf("list messages failed: %w", err)
	}

	var conversation model.Conversation
	if err := db.Where("id = ?", id).First(&conversation).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get conversation failed: %w", err)
	}
	if messages == nil {
		messages = []model.Message{}
	}
	conversation.Messages = messages
	return &conversation, nil
}

// List returns a window of conversations, most recently active first.
func (r *ConversationRepository) List(ctx context.Context, limit, offset int) ([]model.ConversationSummary, error) {
	summaries := []model.ConversationSummary{}
	if limit <= 0 {
		return summaries, nil
	}
	if offset < 0 {
		offset = 0
	}

	err := r.db.WithContext(ctx).
		Model(&model.Conversation{}).
		Select(summaryColumns).
		Order("conversations.updated_at DESC").
		Order("conversations.id DESC").
		Limit(limit).
		Offset(offset).
		Scan(&summaries).Error
	if err != nil {
		return nil, fmt.Errorf("list conversations failed: %w", err)
	}
	return summaries, nil
}

// Recent is List(limit, 0).
func (r *ConversationRepository) Recent(ctx context.Context, limit int) ([]model.ConversationSummary, error) {
	return r.List(ctx, limit, 0)
}

// Search matches query as a case-insensitive literal substring of the title
// or of any message content. Each conversation appears at most once.
// Both sides are folded by the database so they always agree.
func (r *ConversationRepository) Search(ctx context.Context, query string, limit int) ([]model.ConversationSummary, error) {
	summaries := []model.ConversationSummary{}
	if limit <= 0 {
		return summaries, nil
	}

	pattern := "%" + escapeLike(query) + "%"
	err := r.db.WithContext(ctx).
		Model(&model.Conversation{}).
		Select(summaryColumns).
		Where("LOWER(conversations.title) LIKE LOWER(?) ESCAPE '!' OR EXISTS ("+
			"SELECT 1 FROM messages WHERE messages.conversation_id = conversations.id "+
			"AND LOWER(messages.content) LIKE LOWER(?) ESCAPE '!')", pattern, pattern).
		Order("conversations.updated_at DESC").
		Order("conversations.id DESC").
		Limit(limit).
		Scan(&summaries).Error
	if err != nil {
		return nil, fmt.Errorf("search conversations failed: %w", err)
	}
	return summaries, nil
}

// Delete removes the conversation and its messages in one transaction.
// Unknown ids are a no-op.
func (r *ConversationRepository) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("conversation_id = ?", id).Delete(&model.Message{}).Error; err != nil {
			return fmt.Errorf("delete messages failed: %w", err)
		}
		if err := tx.Where("id = ?", id).Delete(&model.Conversation{}).Error; err != nil {
			return fmt.Errorf("delete conversation failed: %w", err)
		}
		return nil
	})
}

// FirstUserMessage returns the earliest user message, or (nil, nil).
func (r *ConversationRepository) FirstUserMessage(ctx context.Context, conversationID uint) (*model.Message, error) {
	var message model.Message
	err := r.db.WithContext(ctx).
		Where("conversation_id = ? AND role = ?", conversationID, model.RoleUser).
		Order("id ASC").
		First(&message).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get first user message failed: %w", err)
	}
	return &message, nil
}

var likeEscaper = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
