package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	redisv9 "github.com/redis/go-redis/v9"

	"pdfchat/internal/model"
)

// ConversationCache keeps full conversation snapshots (with messages) in
// Redis. Writers mark a conversation dirty before changing it; readers skip
// the cache while the marker is set so a snapshot taken mid-write is never
// stored.
type ConversationCache struct {
	client         *redisv9.Client
	ttl            time.Duration
	dirtyMarkerTTL time.Duration
}

func NewConversationCache(client *redisv9.Client, ttl, dirtyMarkerTTL time.Duration) *ConversationCache {
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	if dirtyMarkerTTL <= 0 {
		dirtyMarkerTTL = 5 * time.Second
	}
	return &ConversationCache{
		client:         client,
		ttl:            ttl,
		dirtyMarkerTTL: dirtyMarkerTTL,
	}
}

func (c *ConversationCache) Get(ctx context.Context, id uint) (*model.Conversation, bool, error) {
	raw, err := c.client.Get(ctx, c.conversationKey(id)).Bytes()
	if errors.Is(err, redisv9.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get conversation failed: %w", err)
	}

	var conversation model.Conversation
	if err := json.Unmarshal(raw, &conversation); err != nil {
		return nil, false, fmt.Errorf("unmarshal cached conversation failed: %w", err)
	}
	return &conversation, true, nil
}

func (c *ConversationCache) Set(ctx context.Context, conversation *model.Conversation) error {
	payload, err := json.Marshal(conversation)
	if err != nil {
		return fmt.Errorf("marshal conversation cache failed: %w", err)
	}
	if err := c.client.Set(ctx, c.conversationKey(conversation.ID), payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set conversation failed: %w", err)
	}
	return nil
}

// Invalidate marks the conversation dirty and drops its snapshot in one
// round trip.
func (c *ConversationCache) Invalidate(ctx context.Context, id uint) error {
	pipe := c.client.TxPipeline()
	pipe.Set(ctx, c.dirtyKey(id), "1", c.dirtyMarkerTTL)
	pipe.Del(ctx, c.conversationKey(id))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis invalidate conversation failed: %w", err)
	}
	return nil
}

func (c *ConversationCache) IsDirty(ctx context.Context, id uint) (bool, error) {
	exists, err := c.client.Exists(ctx, c.dirtyKey(id)).Result()
	if err != nil {
		return false, fmt.Errorf("redis check dirty marker failed: %w", err)
	}
	return exists > 0, nil
}

func (c *ConversationCache) conversationKey(id uint) string {
	return fmt.Sprintf("pdfchat:conversation:%d", id)
}

func (c *ConversationCache) dirtyKey(id uint) string {
	return fmt.Sprintf("pdfchat:conversation:dirty:%d", id)
}
