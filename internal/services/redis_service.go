package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"chat-gateway/internal/websocket"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

const (
	conversationChannelPrefix = "conv:"
	userChannelPrefix         = "user:"
)

// RedisService mirrors presence into Redis for the surrounding system and
// fans events out across gateway instances over pub/sub.
type RedisService struct {
	client *redis.Client
}

func NewRedisService(client *redis.Client) *RedisService {
	return &RedisService{client: client}
}

// =============================================================================
// User Status Management
// =============================================================================

func (r *RedisService) SetUserOnline(ctx context.Context, userID string) error {
	pipe := r.client.Pipeline()

	pipe.SAdd(ctx, "online_users", userID)
	pipe.HSet(ctx, fmt.Sprintf("user:%s:status", userID), map[string]interface{}{
		"status":     "online",
		"updated_at": time.Now().Unix(),
	})
	pipe.Expire(ctx, fmt.Sprintf("user:%s:status", userID), 5*time.Minute)

	_, err := pipe.Exec(ctx)
	if err != nil {
		slog.Error("Failed to set user online", "userID", userID, "error", err)
		return err
	}

	slog.Debug("User set to online", "userID", userID)
	return nil
}

func (r *RedisService) SetUserOffline(ctx context.Context, userID string, lastSeen time.Time) error {
	pipe := r.client.Pipeline()

	pipe.SRem(ctx, "online_users", userID)
	pipe.HSet(ctx, fmt.Sprintf("user:%s:status", userID), map[string]interface{}{
		"status":     "offline",
		"last_seen":  lastSeen.Unix(),
		"updated_at": time.Now().Unix(),
	})
	pipe.Expire(ctx, fmt.Sprintf("user:%s:status", userID), 24*time.Hour)

	_, err := pipe.Exec(ctx)
	if err != nil {
		slog.Error("Failed to set user offline", "userID", userID, "error", err)
		return err
	}

	slog.Debug("User set to offline", "userID", userID)
	return nil
}

func (r *RedisService) IsUserOnline(ctx context.Context, userID string) (bool, error) {
	return r.client.SIsMember(ctx, "online_users", userID).Result()
}

func (r *RedisService) GetLastSeen(ctx context.Context, userID string) (int64, error) {
	val, err := r.client.HGet(ctx, fmt.Sprintf("user:%s:status", userID), "last_seen").Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return val, err
}

// =============================================================================
// Rate limiting
// =============================================================================

// CheckRateLimit counts requests under key within a fixed window and reports
// whether this one is allowed.
func (r *RedisService) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	pipe := r.client.Pipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, window)

	if _, err := pipe.Exec(ctx); err != nil {
		return false, err
	}
	return incr.Val() <= int64(limit), nil
}

// =============================================================================
// Cross-instance event fanout
// =============================================================================

func (r *RedisService) PublishConversation(ctx context.Context, conversationID string, evt *websocket.Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, conversationChannelPrefix+conversationID, data).Err()
}

func (r *RedisService) PublishUser(ctx context.Context, userID string, evt *websocket.Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, userChannelPrefix+userID, data).Err()
}

// Listen consumes events published by other gateway instances and hands them
// to the local hub. The hub skips events originating from itself. Blocks
// until ctx is cancelled.
func (r *RedisService) Listen(ctx context.Context, hub *websocket.Hub) {
	pubsub := r.client.PSubscribe(ctx, conversationChannelPrefix+"*", userChannelPrefix+"*")
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}

			var evt websocket.Event
			if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
				slog.Error("Failed to unmarshal bus event", "channel", msg.Channel, "error", err)
				continue
			}

			switch {
			case strings.HasPrefix(msg.Channel, conversationChannelPrefix):
				hub.DeliverToConversation(strings.TrimPrefix(msg.Channel, conversationChannelPrefix), &evt)
			case strings.HasPrefix(msg.Channel, userChannelPrefix):
				hub.DeliverToUser(strings.TrimPrefix(msg.Channel, userChannelPrefix), &evt)
			}

		case <-ctx.Done():
			return
		}
	}
}
