package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"pdfchat/internal/model"
)

var ErrTranscriptEnqueue = errors.New("transcript enqueue failed")

// TranscriptPublisher hands a chat turn to the transcript queue.
type TranscriptPublisher interface {
	Publish(ctx context.Context, msg model.Message) error
}

// TranscriptRecorder saves the turns of a streamed chat into a conversation.
// With a publisher the write happens asynchronously in the transcript
// worker; without one it goes straight through the ConversationService.
type TranscriptRecorder struct {
	conversations *ConversationService
	publisher     TranscriptPublisher
	logger        *zap.Logger
}

func NewTranscriptRecorder(conversations *ConversationService, publisher TranscriptPublisher, logger *zap.Logger) *TranscriptRecorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TranscriptRecorder{
		conversations: conversations,
		publisher:     publisher,
		logger:        logger.Named("transcript"),
	}
}

func (r *TranscriptRecorder) Record(ctx context.Context, conversationID uint, role, content string) error {
	if content == "" {
		return nil
	}
	if r.publisher == nil {
		_, err := r.conversations.AddMessage(ctx, AddMessageInput{
			ConversationID: conversationID,
			Role:           role,
			Content:        content,
		})
		return err
	}

	msg := model.Message{
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
	}
	if err := r.publisher.Publish(ctx, msg); err != nil {
		r.logger.Error("publish transcript failed", zap.Uint("conversation_id", conversationID), zap.Error(err))
		return fmt.Errorf("%w: %v", ErrTranscriptEnqueue, err)
	}
	return nil
}
