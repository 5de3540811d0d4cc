package routes

import (
	"time"

	"chat-gateway/internal/adapters/database"
	"chat-gateway/internal/api/handlers"
	"chat-gateway/internal/api/middleware"
	"chat-gateway/internal/services"
	"chat-gateway/internal/websocket"

	"github.com/gin-gonic/gin"
)

type Router struct {
	engine              *gin.Engine
	wsHandler           *handlers.WSHandler
	conversationHandler *handlers.ConversationHandler
	messageHandler      *handlers.MessageHandler
	userHandler         *handlers.UserHandler
	rateLimitMW         *middleware.RateLimitMiddleware
	authMW              *middleware.AuthMiddleware
}

func NewRouter(
	hub *websocket.Hub,
	conversationService *services.ConversationService,
	chatService *services.ChatService,
	presenceService *services.PresenceService,
	redisService *services.RedisService,
	storage *database.MinIOClient,
	jwtSecret string,
) *Router {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()

	engine.Use(gin.Recovery())
	engine.Use(middleware.CORS())
	engine.Use(middleware.LogApi())

	return &Router{
		engine:              engine,
		wsHandler:           handlers.NewWSHandler(hub),
		conversationHandler: handlers.NewConversationHandler(conversationService),
		messageHandler:      handlers.NewMessageHandler(chatService, hub, storage),
		userHandler:         handlers.NewUserHandler(presenceService),
		rateLimitMW:         middleware.NewRateLimitMiddleware(redisService),
		authMW:              middleware.NewAuthMiddleware(jwtSecret),
	}
}

func (r *Router) SetupRoutes() {
	r.engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	api := r.engine.Group("/api/v1")

	// WebSocket upgrade authenticates by query token since browsers cannot
	// set headers here. The IP limit runs first so invalid-token floods are
	// throttled before any JWT work.
	api.GET("/ws",
		r.rateLimitMW.RateLimitIP(60, time.Minute),
		r.authMW.RequireAuthToken(),
		r.rateLimitMW.WebSocketRateLimit(5, time.Minute),
		r.wsHandler.HandleWebSocket,
	)

	auth := api.Group("/")
	auth.Use(r.authMW.RequireAuth())
	{
		conversations := auth.Group("/conversations")
		conversations.Use(r.rateLimitMW.RateLimit(100, time.Minute))
		{
			conversations.GET("", r.conversationHandler.ListConversations)
			conversations.POST("", r.conversationHandler.CreateConversation)
			conversations.GET("/discover", r.conversationHandler.DiscoverConversations)
			conversations.POST("/direct", r.conversationHandler.DirectConversation)
			conversations.DELETE("/:id", r.conversationHandler.DeleteConversation)
			conversations.POST("/:id/join", r.conversationHandler.JoinConversation)
			conversations.GET("/:id/members", r.conversationHandler.ListMembers)
			conversations.POST("/:id/members", r.conversationHandler.AddMember)
			conversations.DELETE("/:id/members/:userId", r.conversationHandler.RemoveMember)
			conversations.POST("/:id/leave", r.conversationHandler.LeaveConversation)
			conversations.GET("/:id/code", r.conversationHandler.GetCode)
			conversations.GET("/:id/messages", r.messageHandler.GetHistory)
			conversations.GET("/:id/call", r.wsHandler.GetCallState)
		}

		messages := auth.Group("/messages")
		messages.Use(r.rateLimitMW.RateLimit(200, time.Minute))
		{
			messages.POST("", r.messageHandler.SendMessage)
			messages.POST("/upload", r.messageHandler.UploadAttachment)
			messages.POST("/:id/reactions", r.messageHandler.AddReaction)
			messages.DELETE("/:id/reactions/:emoji", r.messageHandler.RemoveReaction)
		}

		users := auth.Group("/users")
		users.Use(r.rateLimitMW.RateLimit(100, time.Minute))
		{
			users.GET("/:id/presence", r.userHandler.GetPresence)
		}
	}
}

func (r *Router) GetEngine() *gin.Engine {
	return r.engine
}
