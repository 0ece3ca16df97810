package app

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"pdfchat/internal/model"
	"pdfchat/internal/repository"
)

const generatedTitleMaxRunes = 50

var (
	ErrInvalidInput         = errors.New("invalid input")
	ErrConversationNotFound = repository.ErrConversationNotFound
	ErrTitleRequired        = errors.New("missing 'title' in request body")
	ErrRoleRequired         = errors.New("missing 'role' in request body")
	ErrContentRequired      = errors.New("missing 'content' in request body")
	ErrInvalidRole          = errors.New("role must be 'user' or 'assistant'")
	ErrQueryRequired        = errors.New("missing 'q' query parameter")
	ErrNoUserMessage        = errors.New("no user messages in conversation")
)

// ConversationStore is the persistence contract the service needs.
// *repository.ConversationRepository satisfies it.
type ConversationStore interface {
	Create(ctx context.Context, title string) (*model.Conversation, error)
	UpdateTitle(ctx context.Context, id uint, title string) error
	AddMessage(ctx context.Context, conversationID uint, role, content string) (*model.Message, error)
	Get(ctx context.Context, id uint) (*model.Conversation, error)
	List(ctx context.Context, limit, offset int) ([]model.ConversationSummary, error)
	Recent(ctx context.Context, limit int) ([]model.ConversationSummary, error)
	Search(ctx context.Context, query string, limit int) ([]model.ConversationSummary, error)
	Delete(ctx context.Context, id uint) error
	FirstUserMessage(ctx context.Context, conversationID uint) (*model.Message, error)
}

type ConversationCache interface {
	Get(ctx context.Context, id uint) (*model.Conversation, bool, error)
	Set(ctx context.Context, conversation *model.Conversation) error
	Invalidate(ctx context.Context, id uint) error
	IsDirty(ctx context.Context, id uint) (bool, error)
}

type ConversationService struct {
	store  ConversationStore
	cache  ConversationCache
	logger *zap.Logger
}

type AddMessageInput struct {
	ConversationID uint
	Role           string
	Content        string
}

// NewConversationService wires the store with an optional cache; pass nil to
// read straight from the store.
func NewConversationService(store ConversationStore, cache ConversationCache, logger *zap.Logger) *ConversationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConversationService{
		store:  store,
		cache:  cache,
		logger: logger.Named("conversations"),
	}
}

func (s *ConversationService) Create(ctx context.Context, title string) (*model.Conversation, error) {
	conversation, err := s.store.Create(ctx, title)
	if err != nil {
		return nil, err
	}
	if conversation.Messages == nil {
		conversation.Messages = []model.Message{}
	}
	return conversation, nil
}

func (s *ConversationService) Get(ctx context.Context, id uint) (*model.Conversation, error) {
	if id == 0 {
		return nil, ErrConversationNotFound
	}

	if s.cache != nil {
		dirty, err := s.cache.IsDirty(ctx, id)
		if err == nil && !dirty {
			if cached, hit, cacheErr := s.cache.Get(ctx, id); cacheErr == nil && hit {
				return cached, nil
			}
		}
	}

	conversation, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if conversation == nil {
		return nil, ErrConversationNotFound
	}

	if s.cache != nil {
		if dirty, err := s.cache.IsDirty(ctx, id); err == nil && !dirty {
			if err := s.cache.Set(ctx, conversation); err != nil {
				s.logger.Warn("cache conversation failed", zap.Uint("conversation_id", id), zap.Error(err))
			}
		}
	}
	return conversation, nil
}

// UpdateTitle renames an existing conversation and returns it.
func (s *ConversationService) UpdateTitle(ctx context.Context, id uint, title string) (*model.Conversation, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, ErrTitleRequired
	}
	if err := s.ensureExists(ctx, id); err != nil {
		return nil, err
	}

	s.invalidate(ctx, id)
	if err := s.store.UpdateTitle(ctx, id, title); err != nil {
		return nil, err
	}
	return s.getFresh(ctx, id)
}

func (s *ConversationService) Delete(ctx context.Context, id uint) error {
	s.invalidate(ctx, id)
	return s.store.Delete(ctx, id)
}

// AddMessage validates the role and content before touching storage.
func (s *ConversationService) AddMessage(ctx context.Context, input AddMessageInput) (*model.Message, error) {
	role := strings.TrimSpace(input.Role)
	if role == "" {
		return nil, ErrRoleRequired
	}
	if role != model.RoleUser && role != model.RoleAssistant {
		return nil, ErrInvalidRole
	}
	if input.Content == "" {
		return nil, ErrContentRequired
	}

	s.invalidate(ctx, input.ConversationID)
	return s.store.AddMessage(ctx, input.ConversationID, role, input.Content)
}

func (s *ConversationService) List(ctx context.Context, limit, offset int) ([]model.ConversationSummary, error) {
	return s.store.List(ctx, limit, offset)
}

func (s *ConversationService) Recent(ctx context.Context, limit int) ([]model.ConversationSummary, error) {
	return s.store.Recent(ctx, limit)
}

func (s *ConversationService) Search(ctx context.Context, query string, limit int) ([]model.ConversationSummary, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrQueryRequired
	}
	return s.store.Search(ctx, query, limit)
}

// GenerateTitle derives a title from the first user message and stores it.
func (s *ConversationService) GenerateTitle(ctx context.Context, id uint) (string, error) {
	if err := s.ensureExists(ctx, id); err != nil {
		return "", err
	}

	first, err := s.store.FirstUserMessage(ctx, id)
	if err != nil {
		return "", err
	}
	if first == nil {
		return "", ErrNoUserMessage
	}

	title := TitleFromMessage(first.Content)
	if title == "" {
		title = model.DefaultConversationTitle
	}

	s.invalidate(ctx, id)
	if err := s.store.UpdateTitle(ctx, id, title); err != nil {
		return "", err
	}
	return title, nil
}

// TitleFromMessage trims the message and cuts it to 50 runes, appending
// "..." when something was cut.
func TitleFromMessage(content string) string {
	content = strings.Join(strings.Fields(content), " ")
	if utf8.RuneCountInString(content) <= generatedTitleMaxRunes {
		return content
	}
	runes := []rune(content)
	return strings.TrimSpace(string(runes[:generatedTitleMaxRunes])) + "..."
}

func (s *ConversationService) ensureExists(ctx context.Context, id uint) error {
	if id == 0 {
		return ErrConversationNotFound
	}
	conversation, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if conversation == nil {
		return ErrConversationNotFound
	}
	return nil
}

func (s *ConversationService) getFresh(ctx context.Context, id uint) (*model.Conversation, error) {
	conversation, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if conversation == nil {
		return nil, ErrConversationNotFound
	}
	return conversation, nil
}

func (s *ConversationService) invalidate(ctx context.Context, id uint) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, id); err != nil {
		s.logger.Warn("invalidate conversation cache failed", zap.Uint("conversation_id", id), zap.Error(err))
	}
}
