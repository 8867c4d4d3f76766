package main

import (
	"context"
	"log"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"mediavault/internal/ratelimit"
	"mediavault/internal/util"
	"mediavault/pkg/authz"
	"mediavault/pkg/notify"
	"mediavault/pkg/queue"
	"mediavault/pkg/storage"
	"mediavault/pkg/store"
	"mediavault/services/collector/internal/app"
	"mediavault/services/collector/internal/config"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	util.InitLogger(cfg.LogLevel, "collector")

	dataStore, err := store.NewGormStore(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to init postgres store: %v", err)
	}

	authzStore, err := authz.NewGormStore(dataStore.DB())
	if err != nil {
		log.Fatalf("failed to init authz store: %v", err)
	}
	authorizer, err := authz.NewCachedAuthorizer(authzStore, cfg.RedisAddr, cfg.RedisPassword,
		time.Duration(cfg.AuthzCacheTTLSec)*time.Second)
	if err != nil {
		log.Fatalf("failed to init authz cache: %v", err)
	}

	artifacts, err := storage.NewMinioStore(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
	if err != nil {
		log.Fatalf("failed to init artifact store: %v", err)
	}

	var publisher notify.Publisher = notify.NopPublisher{}
	if cfg.AMQPURL != "" {
		amqpPub, err := notify.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			log.Fatalf("failed to init renderer publisher: %v", err)
		}
		defer amqpPub.Close()
		publisher = amqpPub
	}

	var limiter *ratelimit.FixedWindowLimiter
	if cfg.EventRateLimit > 0 {
		window := time.Duration(cfg.EventRateWindowSec) * time.Second
		if window <= 0 {
			window = time.Second
		}
		limiter, err = ratelimit.NewRedisFixedWindowLimiter(cfg.RedisAddr, cfg.RedisPassword,
			"mediavault:events", cfg.EventRateLimit, window)
		if err != nil {
			log.Fatalf("failed to init event limiter: %v", err)
		}
	}

	engine, err := app.New(app.Config{
		Store:          dataStore,
		Authorizer:     authorizer,
		AuthzAdmin:     authzStore,
		Artifacts:      artifacts,
		Publisher:      publisher,
		Limiter:        limiter,
		MaxGroupSize:   cfg.MaxGroupSize,
		MaxGroups:      cfg.MaxGroups,
		AlbumTTL:       time.Duration(cfg.AlbumTTLHours) * time.Hour,
		SweepInterval:  time.Duration(cfg.SweepIntervalMin) * time.Minute,
		LockIdleTTL:    time.Duration(cfg.LockIdleTTLMinutes) * time.Minute,
		ReminderWindow: time.Duration(cfg.AuthzReminderHours) * time.Hour,
	})
	if err != nil {
		log.Fatalf("failed to init collection engine: %v", err)
	}

	replies, err := queue.NewRedisReplyStream(cfg.RedisAddr, cfg.RedisPassword, cfg.ReplyStream)
	if err != nil {
		log.Fatalf("failed to init reply stream: %v", err)
	}
	engine.SetReplier(func(ctx context.Context, out app.Outcome) {
		if err := replies.Publish(ctx, replyFor(out)); err != nil {
			slog.Warn("publish reply", "user", out.UserID, "err", err)
		}
	})

	inbound, err := queue.NewRedisMediaQueue(queue.RedisQueueConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		Stream:   cfg.QueueStream,
		Group:    cfg.QueueGroup,
	})
	if err != nil {
		log.Fatalf("failed to init inbound queue: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	inbound.Start(ctx, cfg.QueueConcurrency, engine.HandleEvent)
	go engine.RunSweeper(ctx)

	slog.Info("collector running", "stream", cfg.QueueStream, "replies", cfg.ReplyStream)
	<-ctx.Done()
	slog.Info("collector shutting down")
}

// replyFor flattens an engine outcome into the wire reply the transport
// relays to the user.
func replyFor(out app.Outcome) queue.Reply {
	reply := queue.Reply{UserID: out.UserID}
	switch {
	case out.Err != nil:
		reply.Status = "rejected"
		reply.Detail = out.Err.Error()
	case out.Album != nil:
		reply.Status = "committed"
		reply.AlbumID = out.Album.ID
		reply.AccessToken = out.Album.AccessToken
	case out.Result != "":
		reply.Status = string(out.Result)
	default:
		reply.Status = "ok"
	}
	for _, album := range out.Albums {
		reply.Albums = append(reply.Albums, album.ID)
	}
	return reply
}
