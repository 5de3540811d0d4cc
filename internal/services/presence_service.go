package services

import (
	"context"
	"time"

	"chat-gateway/internal/models"
	"chat-gateway/internal/websocket"
	"log/slog"
)

// OfflineEventSink receives went-offline events for the external last-seen /
// push pipeline.
type OfflineEventSink interface {
	UserWentOffline(ctx context.Context, userID string, lastSeen time.Time)
}

// PresenceService consumes the hub's came-online / went-offline signals and
// answers presence queries by combining the in-process registry with the
// Redis mirror.
type PresenceService struct {
	hub   *websocket.Hub
	redis *RedisService
	sink  OfflineEventSink
}

func NewPresenceService(redis *RedisService, sink OfflineEventSink) *PresenceService {
	return &PresenceService{redis: redis, sink: sink}
}

// Bind attaches the hub after construction; the hub itself is built with this
// service as its presence sink.
func (s *PresenceService) Bind(hub *websocket.Hub) {
	s.hub = hub
}

func (s *PresenceService) UserOnline(ctx context.Context, userID string) {
	if err := s.redis.SetUserOnline(ctx, userID); err != nil {
		slog.Warn("Presence mirror update failed", "userID", userID, "error", err)
	}
}

func (s *PresenceService) UserOffline(ctx context.Context, userID string, lastSeen time.Time) {
	if err := s.redis.SetUserOffline(ctx, userID, lastSeen); err != nil {
		slog.Warn("Presence mirror update failed", "userID", userID, "error", err)
	}
	if s.sink != nil {
		s.sink.UserWentOffline(ctx, userID, lastSeen)
	}
}

// Presence reports a user's current status. Online comes from the local
// registry first; last-seen comes from the Redis mirror.
func (s *PresenceService) Presence(ctx context.Context, userID string) (*models.PresenceResponse, error) {
	resp := &models.PresenceResponse{UserID: userID}

	if s.hub != nil && s.hub.Presence().IsOnline(userID) {
		resp.Online = true
		return resp, nil
	}

	online, err := s.redis.IsUserOnline(ctx, userID)
	if err != nil {
		return nil, err
	}
	resp.Online = online
	if !online {
		lastSeen, err := s.redis.GetLastSeen(ctx, userID)
		if err != nil {
			return nil, err
		}
		resp.LastSeen = lastSeen
	}
	return resp, nil
}
