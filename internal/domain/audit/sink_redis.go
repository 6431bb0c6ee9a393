package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"clinivoice-server-go/internal/platform/config"
	"clinivoice-server-go/internal/platform/errors"
	"clinivoice-server-go/internal/platform/logging"
)

const defaultStream = "clinivoice:audit"

// RedisSink appends events to a redis stream so an external compliance
// consumer can tail them.
type RedisSink struct {
	client *redis.Client
	stream string
	logger *logging.Logger
}

func NewRedisSink(cfg config.AuditRedisSink, logger *logging.Logger) (*RedisSink, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, errors.AuditSinkError("audit.NewRedisSink", err)
	}

	stream := cfg.Stream
	if stream == "" {
		stream = defaultStream
	}
	if logger != nil {
		logger.InfoTag("AUDIT", "redis audit sink connected addr=%s stream=%s", cfg.Addr, stream)
	}

	return &RedisSink{client: client, stream: stream, logger: logger}, nil
}

func (s *RedisSink) Write(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return errors.AuditSinkError("audit.RedisSink.Write", err)
	}

	values := map[string]interface{}{
		"id":         event.ID,
		"seq":        event.Seq,
		"session_id": event.SessionID,
		"turn_id":    event.TurnID,
		"type":       event.Type,
		"mode":       event.Mode,
		"at":         event.At.UTC().Format(time.RFC3339Nano),
		"payload":    string(payload),
	}
	if err := s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		Values: values,
	}).Err(); err != nil {
		return errors.AuditSinkError("audit.RedisSink.Write", err)
	}
	return nil
}

func (s *RedisSink) Close() error {
	return s.client.Close()
}
