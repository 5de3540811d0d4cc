package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chat-gateway/internal/adapters/database"
	"chat-gateway/internal/adapters/kafka"
	"chat-gateway/internal/api/routes"
	"chat-gateway/internal/config"
	"chat-gateway/internal/repositories/postgres"
	"chat-gateway/internal/roomcode"
	"chat-gateway/internal/services"
	"chat-gateway/internal/websocket"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	slog.Info("Starting chat gateway")

	// Infrastructure connections
	redisClient, err := database.NewRedisConnection(&cfg.Redis)
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()

	db, err := database.NewPostgresDB(cfg.Database.User, cfg.Database.Password, cfg.Database.Host, cfg.Database.Port, cfg.Database.DBName)
	if err != nil {
		slog.Error("Failed to connect to PostgreSQL", "error", err)
		os.Exit(1)
	}
	if err := database.Migrate(db); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}

	storage, err := database.NewMinIOClient(cfg.Minio.Endpoint, cfg.Minio.AccessKey, cfg.Minio.SecretKey, cfg.Minio.Bucket, cfg.Minio.UseSSL)
	if err != nil {
		slog.Error("Failed to connect to MinIO", "error", err)
		os.Exit(1)
	}

	notifier := kafka.NewNotifier(cfg.Kafka.Brokers, cfg.Kafka.Topic)
	defer notifier.Close()

	// Repositories and services
	conversationRepo := postgres.NewConversationRepository(db)
	messageRepo := postgres.NewMessageRepository(db)
	userRepo := postgres.NewUserRepository(db)

	codes := roomcode.New(cfg.Room.Secret)
	redisService := services.NewRedisService(redisClient)
	presenceService := services.NewPresenceService(redisService, notifier)
	conversationService := services.NewConversationService(conversationRepo, userRepo, codes)
	chatService := services.NewChatService(messageRepo, conversationRepo, userRepo)

	// Gateway hub
	hub := websocket.NewHub(conversationRepo,
		websocket.WithPresenceSink(presenceService),
		websocket.WithMessageStore(chatService),
		websocket.WithOfflineNotifier(notifier),
		websocket.WithEventBus(redisService),
	)
	presenceService.Bind(hub)
	go hub.Run()

	// Cross-instance fanout
	listenCtx, stopListen := context.WithCancel(context.Background())
	defer stopListen()
	go redisService.Listen(listenCtx, hub)

	router := routes.NewRouter(
		hub,
		conversationService,
		chatService,
		presenceService,
		redisService,
		storage,
		cfg.JWT.Secret,
	)
	router.SetupRoutes()

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      router.GetEngine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		slog.Info("Server starting", "address", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("Server shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	stopListen()
	hub.Stop()

	if err := server.Shutdown(ctx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}

	slog.Info("Server stopped")
}
