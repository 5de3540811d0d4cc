package main

import (
	"context"
	"log"
	"log/slog"

	"chat-gateway/internal/adapters/database"
	"chat-gateway/internal/config"
	"chat-gateway/internal/models"
	"chat-gateway/internal/repositories/postgres"
	"chat-gateway/internal/roomcode"
	"chat-gateway/internal/services"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	slog.Info("Starting database seeding...")

	db, err := database.NewPostgresDB(
		cfg.Database.User,
		cfg.Database.Password,
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.DBName,
	)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}
	if err := database.Migrate(db); err != nil {
		log.Fatal("Migration failed:", err)
	}

	ctx := context.Background()
	userRepo := postgres.NewUserRepository(db)
	conversationRepo := postgres.NewConversationRepository(db)
	conversationService := services.NewConversationService(conversationRepo, userRepo, roomcode.New(cfg.Room.Secret))

	slog.Info("Creating initial users...")

	testUsers := []models.User{
		{Username: "alice", DisplayName: "Alice"},
		{Username: "bob", DisplayName: "Bob"},
		{Username: "charlie", DisplayName: "Charlie"},
	}

	userIDs := make(map[string]string, len(testUsers))
	for i := range testUsers {
		user := testUsers[i]
		if existing, err := userRepo.GetByUsername(ctx, user.Username); err == nil {
			slog.Info("User already exists", "username", user.Username)
			userIDs[user.Username] = existing.ID
			continue
		}
		if err := userRepo.Create(ctx, &user); err != nil {
			slog.Warn("Failed to create user", "username", user.Username, "error", err)
			continue
		}
		userIDs[user.Username] = user.ID
		slog.Info("Created user", "username", user.Username, "id", user.ID)
	}

	slog.Info("Creating demo conversation...")

	resp, err := conversationService.Create(ctx, userIDs["alice"], &models.CreateConversationRequest{
		Name:    "general",
		Type:    models.ConversationTypeGroup,
		Members: []string{userIDs["bob"], userIDs["charlie"]},
	})
	if err != nil {
		log.Fatal("Failed to create demo conversation:", err)
	}

	slog.Info("Seeding completed", "conversation", resp.ID, "roomCode", resp.Code)
}
