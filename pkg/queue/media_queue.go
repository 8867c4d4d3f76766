package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"mediavault/internal/util"
	"mediavault/pkg/domain"
)

// Action names what the transport wants done with the event.
type Action string

const (
	ActionMedia   Action = "media"
	ActionConfirm Action = "confirm"
	ActionCancel  Action = "cancel"
	ActionDelete  Action = "delete"
	ActionList    Action = "list"
)

// MediaEvent is one inbound event published by the chat-bot transport. For
// ActionMedia the kind and payload reference are required; ActionDelete
// names the album; confirm, cancel and list carry only the user.
type MediaEvent struct {
	UserID     string
	Action     Action
	Kind       domain.MediaKind
	PayloadRef string
	Caption    string
	AlbumID    string
}

// Handler processes one event. A nil return acks the event; an error leaves
// it pending for redelivery until the retry budget runs out.
type Handler func(context.Context, MediaEvent) error

// RedisMediaQueue delivers inbound media events through a Redis stream
// consumer group. Any consumer may pick up an event for any user; per-user
// ordering is enforced downstream by the user lock, not by the stream.
type RedisMediaQueue struct {
	client       *redis.Client
	stream       string
	group        string
	consumerBase string
	maxRetries   int
	block        time.Duration
	claimIdle    time.Duration
	maxLen       int64
	readCount    int64
	claimCount   int64
	once         sync.Once
}

type RedisQueueConfig struct {
	Addr       string
	Password   string
	Stream     string
	Group      string
	Consumer   string
	MaxRetries int
	Block      time.Duration
	ClaimIdle  time.Duration
	MaxLen     int64
	ReadCount  int64
	ClaimCount int64
}

func NewRedisMediaQueue(cfg RedisQueueConfig) (*RedisMediaQueue, error) {
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return nil, errors.New("redis addr required")
	}
	stream := strings.TrimSpace(cfg.Stream)
	if stream == "" {
		return nil, errors.New("queue stream required")
	}
	group := strings.TrimSpace(cfg.Group)
	if group == "" {
		group = "collector"
	}
	consumer := strings.TrimSpace(cfg.Consumer)
	if consumer == "" {
		consumer = util.NewID()
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	block := cfg.Block
	if block <= 0 {
		block = 5 * time.Second
	}
	claimIdle := cfg.ClaimIdle
	if claimIdle <= 0 {
		claimIdle = 30 * time.Second
	}
	maxLen := cfg.MaxLen
	if maxLen <= 0 {
		maxLen = 10000
	}
	readCount := cfg.ReadCount
	if readCount <= 0 {
		readCount = 10
	}
	claimCount := cfg.ClaimCount
	if claimCount <= 0 {
		claimCount = 10
	}

	return &RedisMediaQueue{
		client:       redis.NewClient(&redis.Options{Addr: addr, Password: cfg.Password}),
		stream:       stream,
		group:        group,
		consumerBase: consumer,
		maxRetries:   maxRetries,
		block:        block,
		claimIdle:    claimIdle,
		maxLen:       maxLen,
		readCount:    readCount,
		claimCount:   claimCount,
	}, nil
}

// Enqueue publishes one event onto the stream. The transport client is the
// normal producer; tests use it directly.
func (q *RedisMediaQueue) Enqueue(ctx context.Context, ev MediaEvent) error {
	if strings.TrimSpace(ev.UserID) == "" {
		return errors.New("userId required")
	}
	if ev.Action == "" {
		return errors.New("action required")
	}
	if ev.Action == ActionMedia && strings.TrimSpace(ev.PayloadRef) == "" {
		return errors.New("payloadRef required for media events")
	}
	if ev.Action == ActionDelete && strings.TrimSpace(ev.AlbumID) == "" {
		return errors.New("albumId required for delete events")
	}
	return q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: q.stream,
		MaxLen: q.maxLen,
		Approx: true,
		Values: map[string]any{
			"user_id":     ev.UserID,
			"action":      string(ev.Action),
			"kind":        string(ev.Kind),
			"payload_ref": ev.PayloadRef,
			"caption":     ev.Caption,
			"album_id":    ev.AlbumID,
		},
	}).Err()
}

// Start launches concurrency consumer loops that run until ctx ends.
func (q *RedisMediaQueue) Start(ctx context.Context, concurrency int, handler Handler) {
	if concurrency <= 0 {
		concurrency = 1
	}
	q.ensureGroup(ctx)
	for i := 0; i < concurrency; i++ {
		consumer := fmt.Sprintf("%s-%d", q.consumerBase, i)
		go q.consumeLoop(ctx, consumer, handler)
	}
}

func (q *RedisMediaQueue) ensureGroup(ctx context.Context) {
	q.once.Do(func() {
		err := q.client.XGroupCreateMkStream(ctx, q.stream, q.group, "0").Err()
		if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
			slog.Warn("create consumer group", "stream", q.stream, "err", err)
		}
	})
}

func (q *RedisMediaQueue) consumeLoop(ctx context.Context, consumer string, handler Handler) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if msgs, err := q.claimPending(ctx, consumer); err == nil {
			for _, msg := range msgs {
				q.handleMessage(ctx, msg, handler)
			}
		}

		streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    q.group,
			Consumer: consumer,
			Streams:  []string{q.stream, ">"},
			Count:    q.readCount,
			Block:    q.block,
		}).Result()
		if err != nil {
			continue
		}
		for _, stream := range streams {
			for _, msg := range stream.Messages {
				q.handleMessage(ctx, msg, handler)
			}
		}
	}
}

func (q *RedisMediaQueue) claimPending(ctx context.Context, consumer string) ([]redis.XMessage, error) {
	res, _, err := q.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   q.stream,
		Group:    q.group,
		Consumer: consumer,
		MinIdle:  q.claimIdle,
		Start:    "0-0",
		Count:    q.claimCount,
	}).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (q *RedisMediaQueue) handleMessage(ctx context.Context, msg redis.XMessage, handler Handler) {
	ev, ok := decodeEvent(msg)
	if !ok {
		q.ackAndDel(ctx, msg.ID)
		return
	}
	if err := handler(ctx, ev); err != nil {
		if q.deliveryCount(ctx, msg.ID) >= int64(q.maxRetries) {
			slog.Error("media event dropped after retries", "user", ev.UserID, "action", ev.Action, "err", err)
			q.ackAndDel(ctx, msg.ID)
		}
		// otherwise leave pending; XAutoClaim redelivers after claimIdle
		return
	}
	q.ackAndDel(ctx, msg.ID)
}

func (q *RedisMediaQueue) deliveryCount(ctx context.Context, msgID string) int64 {
	pending, err := q.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: q.stream,
		Group:  q.group,
		Start:  msgID,
		End:    msgID,
		Count:  1,
	}).Result()
	if err != nil || len(pending) == 0 {
		return 0
	}
	return pending[0].RetryCount
}

func (q *RedisMediaQueue) ackAndDel(ctx context.Context, msgID string) {
	_, _ = q.client.XAck(ctx, q.stream, q.group, msgID).Result()
	_, _ = q.client.XDel(ctx, q.stream, msgID).Result()
}

func decodeEvent(msg redis.XMessage) (MediaEvent, bool) {
	userID, _ := msg.Values["user_id"].(string)
	action, _ := msg.Values["action"].(string)
	if userID == "" || action == "" {
		return MediaEvent{}, false
	}
	kind, _ := msg.Values["kind"].(string)
	payloadRef, _ := msg.Values["payload_ref"].(string)
	caption, _ := msg.Values["caption"].(string)
	albumID, _ := msg.Values["album_id"].(string)
	return MediaEvent{
		UserID:     userID,
		Action:     Action(action),
		Kind:       domain.MediaKind(kind),
		PayloadRef: payloadRef,
		Caption:    caption,
		AlbumID:    albumID,
	}, true
}
