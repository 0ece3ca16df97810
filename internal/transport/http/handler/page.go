package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"pdfchat/internal/app"
	"pdfchat/internal/config"
	"pdfchat/internal/model"
)

const historyPageLimit = 50

// PageHandler renders the templates installed on the router with
// SetHTMLTemplate.
type PageHandler struct {
	app           config.AppConfig
	conversations *app.ConversationService
}

func NewPageHandler(appCfg config.AppConfig, conversations *app.ConversationService) *PageHandler {
	return &PageHandler{app: appCfg, conversations: conversations}
}

func (h *PageHandler) Index(c *gin.Context) {
	c.HTML(http.StatusOK, "index.html", gin.H{
		"Title":    h.app.Title,
		"Subtitle": h.app.Subtitle,
	})
}

// History lists recent conversations, or search hits when q is set, and
// shows the one picked with ?id.
func (h *PageHandler) History(c *gin.Context) {
	ctx := c.Request.Context()
	query := strings.TrimSpace(c.Query("q"))

	var (
		summaries []model.ConversationSummary
		err       error
	)
	if query != "" {
		summaries, err = h.conversations.Search(ctx, query, historyPageLimit)
	} else {
		summaries, err = h.conversations.Recent(ctx, historyPageLimit)
	}
	if err != nil {
		_ = c.Error(err)
		c.String(http.StatusInternalServerError, "load conversations failed")
		return
	}

	var selected *model.Conversation
	if raw := c.Query("id"); raw != "" {
		if id, parseErr := strconv.ParseUint(raw, 10, 64); parseErr == nil {
			selected, err = h.conversations.Get(ctx, uint(id))
			if err != nil && !errors.Is(err, app.ErrConversationNotFound) {
				_ = c.Error(err)
				c.String(http.StatusInternalServerError, "load conversation failed")
				return
			}
		}
	}

	c.HTML(http.StatusOK, "history.html", gin.H{
		"Title":         h.app.Title,
		"Query":         query,
		"Conversations": summaries,
		"Selected":      selected,
	})
}
