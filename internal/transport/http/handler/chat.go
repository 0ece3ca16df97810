package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"pdfchat/internal/app"
	"pdfchat/internal/chatstream"
	"pdfchat/internal/model"
	"pdfchat/internal/rag"
	"pdfchat/internal/transport/http/response"
)

// AgentProvider hands out the shared answering service. *rag.Provider
// satisfies it.
type AgentProvider interface {
	Get(ctx context.Context) (rag.Service, error)
}

type ChatHandler struct {
	agents        AgentProvider
	conversations *app.ConversationService
	recorder      *app.TranscriptRecorder
	assembler     *chatstream.Assembler
	logger        *zap.Logger
}

type QueryRequest struct {
	Question string `json:"question"`
}

type ChatRequest struct {
	Message        string `json:"message"`
	ConversationID *uint  `json:"conversation_id"`
}

func NewChatHandler(
	agents AgentProvider,
	conversations *app.ConversationService,
	recorder *app.TranscriptRecorder,
	assembler *chatstream.Assembler,
	logger *zap.Logger,
) *ChatHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChatHandler{
		agents:        agents,
		conversations: conversations,
		recorder:      recorder,
		assembler:     assembler,
		logger:        logger.Named("chat"),
	}
}

func (h *ChatHandler) Query(c *gin.Context) {
	var req QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "Missing 'question' in request body")
		return
	}

	agent, ok := h.agent(c)
	if !ok {
		return
	}
	answer, err := agent.Answer(c.Request.Context(), req.Question)
	if err != nil {
		_ = c.Error(err)
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, err.Error())
		return
	}
	response.OK(c, gin.H{"answer": answer})
}

// Chat streams the reply as plain text. When conversation_id is given the
// user turn is recorded up front and the assistant turn, exactly as the
// client received it, once the stream finishes cleanly.
func (h *ChatHandler) Chat(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "Missing 'message' in request body")
		return
	}

	ctx := c.Request.Context()
	if req.ConversationID != nil {
		if _, err := h.conversations.Get(ctx, *req.ConversationID); err != nil {
			h.failConversation(c, err)
			return
		}
	}

	agent, ok := h.agent(c)
	if !ok {
		return
	}

	if req.ConversationID != nil {
		if err := h.recorder.Record(ctx, *req.ConversationID, model.RoleUser, req.Message); err != nil {
			h.failConversation(c, err)
			return
		}
	}

	stream, err := agent.Chat(ctx, req.Message)
	if err != nil {
		_ = c.Error(err)
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, err.Error())
		return
	}

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "stream not supported")
		return
	}
	c.Header("Content-Type", "text/plain; charset=utf-8")
	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	var full strings.Builder
	err = h.assembler.Stream(ctx, stream, func(fragment string) error {
		full.WriteString(fragment)
		if _, writeErr := c.Writer.WriteString(fragment); writeErr != nil {
			return writeErr
		}
		flusher.Flush()
		return nil
	})
	if err != nil {
		_ = c.Error(err)
		h.logger.Warn("chat stream ended early", zap.Error(err))
		return
	}

	if req.ConversationID != nil {
		// the client already has the full reply; keep it even if it hangs up now
		saveCtx := context.WithoutCancel(ctx)
		if err := h.recorder.Record(saveCtx, *req.ConversationID, model.RoleAssistant, full.String()); err != nil {
			h.logger.Error("record assistant turn failed", zap.Uint("conversation_id", *req.ConversationID), zap.Error(err))
		}
	}
}

func (h *ChatHandler) Reset(c *gin.Context) {
	agent, ok := h.agent(c)
	if !ok {
		return
	}
	if err := agent.Reset(c.Request.Context()); err != nil {
		_ = c.Error(err)
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, err.Error())
		return
	}
	response.OK(c, gin.H{"status": "Chat history reset"})
}

func (h *ChatHandler) agent(c *gin.Context) (rag.Service, bool) {
	agent, err := h.agents.Get(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		response.Error(c, http.StatusInternalServerError, response.CodeUpstreamUnavailable, err.Error())
		return nil, false
	}
	return agent, true
}

func (h *ChatHandler) failConversation(c *gin.Context, err error) {
	_ = c.Error(err)
	switch {
	case errors.Is(err, app.ErrConversationNotFound):
		response.Error(c, http.StatusNotFound, response.CodeConversationNotFound, err.Error())
	case errors.Is(err, app.ErrTranscriptEnqueue):
		response.Error(c, http.StatusServiceUnavailable, response.CodeUpstreamUnavailable, err.Error())
	default:
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "record conversation failed")
	}
}
