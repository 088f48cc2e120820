// Package api wires the development backend's HTTP surface.
package api

import (
	"net/http"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/d60-Lab/livesync/internal/api/handler"
	"github.com/d60-Lab/livesync/internal/api/middleware"
)

const wsPath = "/ws"

// NewRouter builds the engine. The websocket endpoint is excluded from gzip
// because the hub hijacks the connection.
func NewRouter(serviceName string, h *handler.Handler, auth middleware.Verifier, ws http.Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware(serviceName))
	r.Use(middleware.RequestLog())
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{wsPath})))

	r.GET("/ping", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"message": "pong"}) })
	r.GET(wsPath, gin.WrapH(ws))
	r.POST("/api/auth/login", h.Login)

	apiGroup := r.Group("/api")
	apiGroup.Use(middleware.Auth(auth))
	{
		msg := apiGroup.Group("/messages")
		msg.GET("/conversations", h.ListConversations)
		msg.GET("/conversations/:id", h.ListMessages)
		msg.POST("/send", h.SendMessage)
		msg.GET("/search-users", h.SearchUsers)
		msg.POST("/conversation/get-or-create", h.GetOrCreateConversation)
		msg.POST("/admin/disconnect", h.DisconnectChat)

		com := apiGroup.Group("/community")
		com.GET("/questions", h.ListQuestions)
		com.POST("/questions", h.AskQuestion)
		com.GET("/questions/:slug", h.GetQuestion)
		com.DELETE("/questions/:slug", h.DeleteQuestion)
		com.POST("/questions/:slug/answers", h.AnswerQuestion)
		com.POST("/questions/:slug/like", h.LikeQuestion)
		com.POST("/questions/:slug/view", h.ViewQuestion)
		com.POST("/questions/:slug/vote", h.VoteQuestion)
		com.POST("/answers/:id/vote", h.VoteAnswer)
		com.POST("/answers/:id/accept", h.AcceptAnswer)
	}
	return r
}
