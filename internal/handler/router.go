package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/asknotes/internal/middleware"
)

type RouterDeps struct {
	Upload    *UploadHandler
	Chat      *ChatHandler
	Quiz      *QuizHandler
	Catalog   *CatalogHandler
	RateLimit time.Duration
}

func RegisterRoutes(api *gin.RouterGroup, deps RouterDeps) {
	limited := api.Group("")
	limited.Use(middleware.RateLimit(deps.RateLimit))
	limited.POST("/upload", deps.Upload.Upload)
	limited.POST("/voice-chat", deps.Chat.VoiceChat)
	limited.POST("/study_mode", deps.Quiz.Generate)
	limited.POST("/quiz", deps.Quiz.Generate)

	api.POST("/chat", deps.Chat.Chat)
	api.GET("/subjects", deps.Catalog.Subjects)
	api.GET("/files/:subject_id", deps.Catalog.Files)
	api.DELETE("/reset", deps.Catalog.Reset)
	api.GET("/health", deps.Catalog.Health)
}
