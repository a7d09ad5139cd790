package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// LogSender writes notifications to the application log.
type LogSender struct {
	Log *logrus.Logger
}

func (s LogSender) Send(_ context.Context, n Notification) error {
	s.Log.WithFields(logrus.Fields{
		"kind":           n.Kind,
		"recipient":      n.Recipient,
		"appointment_id": n.AppointmentID,
		"fields":         n.Fields,
	}).Info("notification")
	return nil
}

// RedisStreamSender appends notifications to a Redis stream for an external
// mail/SMS worker to consume.
type RedisStreamSender struct {
	client *redis.Client
	stream string
	maxLen int64
}

func NewRedisStreamSender(client *redis.Client, stream string) *RedisStreamSender {
	return &RedisStreamSender{
		client: client,
		stream: stream,
		maxLen: 10000,
	}
}

func (s *RedisStreamSender) Send(ctx context.Context, n Notification) error {
	fields, err := json.Marshal(n.Fields)
	if err != nil {
		return fmt.Errorf("marshal notification fields: %w", err)
	}

	err = s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		MaxLen: s.maxLen,
		Approx: true,
		Values: map[string]interface{}{
			"kind":           string(n.Kind),
			"recipient":      n.Recipient,
			"appointment_id": n.AppointmentID.String(),
			"fields":         string(fields),
			"created_at":     n.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("xadd %s: %w", s.stream, err)
	}
	return nil
}
