package handler

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"pdfchat/internal/app"
	"pdfchat/internal/model"
	"pdfchat/internal/transport/http/response"
)

const (
	defaultListLimit   = 50
	defaultRecentLimit = 10
)

type ConversationHandler struct {
	conversations *app.ConversationService
}

type CreateConversationRequest struct {
	Title string `json:"title"`
}

type UpdateConversationRequest struct {
	Title string `json:"title"`
}

type AddMessageRequest struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messageView struct {
	ID             uint   `json:"id"`
	ConversationID uint   `json:"conversation_id"`
	Role           string `json:"role"`
	Content        string `json:"content"`
	CreatedAt      string `json:"created_at"`
}

type conversationView struct {
	ID        uint          `json:"id"`
	Title     string        `json:"title"`
	CreatedAt string        `json:"created_at"`
	UpdatedAt string        `json:"updated_at"`
	Messages  []messageView `json:"messages"`
}

type summaryView struct {
	ID           uint   `json:"id"`
	Title        string `json:"title"`
	CreatedAt    string `json:"created_at"`
	UpdatedAt    string `json:"updated_at"`
	MessageCount int64  `json:"message_count"`
}

func NewConversationHandler(conversations *app.ConversationService) *ConversationHandler {
	return &ConversationHandler{conversations: conversations}
}

func (h *ConversationHandler) Create(c *gin.Context) {
	var req CreateConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	conversation, err := h.conversations.Create(c.Request.Context(), req.Title)
	if err != nil {
		h.fail(c, err, "create conversation failed")
		return
	}
	response.OK(c, newConversationView(conversation))
}

func (h *ConversationHandler) List(c *gin.Context) {
	limit := queryInt(c, "limit", defaultListLimit)
	offset := queryInt(c, "offset", 0)

	summaries, err := h.conversations.List(c.Request.Context(), limit, offset)
	if err != nil {
		h.fail(c, err, "list conversations failed")
		return
	}
	response.OK(c, newSummaryViews(summaries))
}

func (h *ConversationHandler) Recent(c *gin.Context) {
	summaries, err := h.conversations.Recent(c.Request.Context(), queryInt(c, "limit", defaultRecentLimit))
	if err != nil {
		h.fail(c, err, "list recent conversations failed")
		return
	}
	response.OK(c, newSummaryViews(summaries))
}

func (h *ConversationHandler) Search(c *gin.Context) {
	summaries, err := h.conversations.Search(c.Request.Context(), c.Query("q"), queryInt(c, "limit", defaultListLimit))
	if err != nil {
		h.fail(c, err, "search conversations failed")
		return
	}
	response.OK(c, newSummaryViews(summaries))
}

func (h *ConversationHandler) Get(c *gin.Context) {
	id, ok := conversationID(c)
	if !ok {
		return
	}

	conversation, err := h.conversations.Get(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err, "get conversation failed")
		return
	}
	response.OK(c, newConversationView(conversation))
}

func (h *ConversationHandler) Update(c *gin.Context) {
	id, ok := conversationID(c)
	if !ok {
		return
	}

	var req UpdateConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	conversation, err := h.conversations.UpdateTitle(c.Request.Context(), id, req.Title)
	if err != nil {
		h.fail(c, err, "update conversation failed")
		return
	}
	response.OK(c, newConversationView(conversation))
}

func (h *ConversationHandler) Delete(c *gin.Context) {
	id, ok := conversationID(c)
	if !ok {
		return
	}

	if err := h.conversations.Delete(c.Request.Context(), id); err != nil {
		h.fail(c, err, "delete conversation failed")
		return
	}
	response.OK(c, gin.H{"status": "deleted"})
}

func (h *ConversationHandler) AddMessage(c *gin.Context) {
	id, ok := conversationID(c)
	if !ok {
		return
	}

	var req AddMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	message, err := h.conversations.AddMessage(c.Request.Context(), app.AddMessageInput{
		ConversationID: id,
		Role:           req.Role,
		Content:        req.Content,
	})
	if err != nil {
		h.fail(c, err, "add message failed")
		return
	}
	response.OK(c, newMessageView(*message))
}

func (h *ConversationHandler) GenerateTitle(c *gin.Context) {
	id, ok := conversationID(c)
	if !ok {
		return
	}

	title, err := h.conversations.GenerateTitle(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err, "generate title failed")
		return
	}
	response.OK(c, gin.H{"title": title})
}

func (h *ConversationHandler) fail(c *gin.Context, err error, fallback string) {
	_ = c.Error(err)
	switch {
	case errors.Is(err, app.ErrTitleRequired),
		errors.Is(err, app.ErrRoleRequired),
		errors.Is(err, app.ErrContentRequired),
		errors.Is(err, app.ErrInvalidRole),
		errors.Is(err, app.ErrQueryRequired):
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
	case errors.Is(err, app.ErrConversationNotFound), errors.Is(err, app.ErrNoUserMessage):
		response.Error(c, http.StatusNotFound, response.CodeConversationNotFound, err.Error())
	default:
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, fallback)
	}
}

// conversationID parses the :id path segment. Ids that cannot exist are
// answered with 404 here.
func conversationID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		response.Error(c, http.StatusNotFound, response.CodeConversationNotFound, app.ErrConversationNotFound.Error())
		return 0, false
	}
	return uint(id), true
}

func queryInt(c *gin.Context, key string, fallback int) int {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return parsed
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func newMessageView(m model.Message) messageView {
	return messageView{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		Role:           m.Role,
		Content:        m.Content,
		CreatedAt:      formatTime(m.CreatedAt),
	}
}

func newConversationView(conversation *model.Conversation) conversationView {
	messages := make([]messageView, 0, len(conversation.Messages))
	for _, m := range conversation.Messages {
		messages = append(messages, newMessageView(m))
	}
	return conversationView{
		ID:        conversation.ID,
		Title:     conversation.Title,
		CreatedAt: formatTime(conversation.CreatedAt),
		UpdatedAt: formatTime(conversation.UpdatedAt),
		Messages:  messages,
	}
}

func newSummaryViews(summaries []model.ConversationSummary) []summaryView {
	views := make([]summaryView, 0, len(summaries))
	for _, s := range summaries {
		views = append(views, summaryView{
			ID:           s.ID,
			Title:        s.Title,
			CreatedAt:    formatTime(s.CreatedAt),
			UpdatedAt:    formatTime(s.UpdatedAt),
			MessageCount: s.MessageCount,
		})
	}
	return views
}
