package kafka

import (
	"context"
	"encoding/json"
	"time"

	"chat-gateway/internal/websocket"
	"log/slog"

	"github.com/segmentio/kafka-go"
)

// Notification event kinds carried on the topic.
const (
	KindOfflineMention = "offline_mention"
	KindWentOffline    = "went_offline"
)

// Notification is the record produced for the downstream notification
// pipeline (push, email digests, last-seen consumers).
type Notification struct {
	Kind           string                    `json:"kind"`
	UserID         string                    `json:"userId"`
	ConversationID string                    `json:"conversationId,omitempty"`
	Message        *websocket.MessagePayload `json:"message,omitempty"`
	LastSeen       int64                     `json:"lastSeen,omitempty"`
	ProducedAt     int64                     `json:"producedAt"`
}

// Notifier produces notification events to Kafka. It backs the gateway's
// offline-mention path and the presence service's went-offline sink. Produce
// failures are logged and swallowed: notifications are best-effort and must
// never fail the realtime path.
type Notifier struct {
	writer *kafka.Writer
}

func NewNotifier(brokers []string, topic string) *Notifier {
	return &Notifier{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			BatchTimeout: 10 * time.Millisecond,
		},
	}
}

func (n *Notifier) Close() error {
	return n.writer.Close()
}

// MentionWhileOffline queues a push notification for a mentioned user with no
// live connections.
func (n *Notifier) MentionWhileOffline(ctx context.Context, userID string, msg *websocket.MessagePayload) {
	n.produce(ctx, userID, Notification{
		Kind:           KindOfflineMention,
		UserID:         userID,
		ConversationID: msg.ConversationID,
		Message:        msg,
		ProducedAt:     time.Now().Unix(),
	})
}

// UserWentOffline records the user's departure for last-seen consumers.
func (n *Notifier) UserWentOffline(ctx context.Context, userID string, lastSeen time.Time) {
	n.produce(ctx, userID, Notification{
		Kind:       KindWentOffline,
		UserID:     userID,
		LastSeen:   lastSeen.Unix(),
		ProducedAt: time.Now().Unix(),
	})
}

func (n *Notifier) produce(ctx context.Context, key string, notification Notification) {
	value, err := json.Marshal(notification)
	if err != nil {
		slog.Error("Failed to marshal notification", "kind", notification.Kind, "error", err)
		return
	}

	err = n.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: value,
	})
	if err != nil {
		slog.Error("Failed to produce notification", "kind", notification.Kind, "userID", notification.UserID, "error", err)
	}
}
