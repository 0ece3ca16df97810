package http

import (
	"fmt"

	"github.com/gin-gonic/gin"

	"pdfchat/internal/bootstrap"
	"pdfchat/internal/chatstream"
	"pdfchat/internal/transport/http/handler"
	"pdfchat/internal/transport/http/middleware"
	"pdfchat/web"
)

func NewRouter(app *bootstrap.App) (*gin.Engine, error) {
	gin.SetMode(app.Config.App.GinMode)
	router := gin.New()
	router.Use(middleware.RequestLogger(app.Logger), gin.Recovery(), middleware.CORS())

	templates, err := web.Templates()
	if err != nil {
		return nil, fmt.Errorf("parse page templates failed: %w", err)
	}
	router.SetHTMLTemplate(templates)

	healthHandler := handler.NewHealthHandler(app)
	pageHandler := handler.NewPageHandler(app.Config.App, app.Conversations)
	conversationHandler := handler.NewConversationHandler(app.Conversations)
	chatHandler := handler.NewChatHandler(
		app.Agents,
		app.Conversations,
		app.Recorder,
		chatstream.New(app.Config.Storage.DocumentsDir, app.Config.Storage.LinkPrefix),
		app.Logger,
	)

	router.GET("/", pageHandler.Index)
	router.GET("/history", pageHandler.History)
	router.Static(app.Config.Storage.LinkPrefix, app.Config.Storage.DocumentsDir)
	router.GET("/healthz", healthHandler.Check)

	api := router.Group("/api")
	api.GET("/health", healthHandler.Live)
	api.POST("/query", chatHandler.Query)
	api.POST("/chat", chatHandler.Chat)
	api.POST("/reset", chatHandler.Reset)

	conversations := api.Group("/conversations")
	conversations.POST("", conversationHandler.Create)
	conversations.GET("", conversationHandler.List)
	conversations.GET("/recent", conversationHandler.Recent)
	conversations.GET("/search", conversationHandler.Search)
	conversations.GET("/:id", conversationHandler.Get)
	conversations.PUT("/:id", conversationHandler.Update)
	conversations.DELETE("/:id", conversationHandler.Delete)
	conversations.POST("/:id/messages", conversationHandler.AddMessage)
	conversations.POST("/:id/title", conversationHandler.GenerateTitle)

	return router, nil
}
