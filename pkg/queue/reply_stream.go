package queue

import (
	"context"
	"errors"
	"strings"

	"github.com/redis/go-redis/v9"
)

// Reply is the user-visible outcome of one processed event. The chat-bot
// transport consumes the reply stream and turns each entry into a message
// for the user.
type Reply struct {
	UserID      string
	Status      string
	AlbumID     string
	AccessToken string
	Albums      []string
	Detail      string
}

// RedisReplyStream publishes outcomes onto a Redis stream, the mirror of
// the inbound event stream.
type RedisReplyStream struct {
	client *redis.Client
	stream string
	maxLen int64
}

// NewRedisReplyStream connects the reply publisher to stream at addr.
func NewRedisReplyStream(addr, password, stream string) (*RedisReplyStream, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, errors.New("redis addr required")
	}
	stream = strings.TrimSpace(stream)
	if stream == "" {
		return nil, errors.New("reply stream required")
	}
	return &RedisReplyStream{
		client: redis.NewClient(&redis.Options{Addr: addr, Password: password}),
		stream: stream,
		maxLen: 10000,
	}, nil
}

// Publish appends one reply to the stream.
func (r *RedisReplyStream) Publish(ctx context.Context, reply Reply) error {
	if strings.TrimSpace(reply.UserID) == "" {
		return errors.New("userId required")
	}
	if strings.TrimSpace(reply.Status) == "" {
		return errors.New("status required")
	}
	return r.client.XAdd(ctx, &redis.XAddArgs{
		Stream: r.stream,
		MaxLen: r.maxLen,
		Approx: true,
		Values: map[string]any{
			"user_id":      reply.UserID,
			"status":       reply.Status,
			"album_id":     reply.AlbumID,
			"access_token": reply.AccessToken,
			"albums":       strings.Join(reply.Albums, ","),
			"detail":       reply.Detail,
		},
	}).Err()
}
