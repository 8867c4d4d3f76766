package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"mediavault/pkg/domain"
)

const (
	routeCommitted = "album.committed"
	routeExpired   = "album.expired"
	routeExpiring  = "authorization.expiring"
)

// Publisher tells downstream collaborators about lifecycle changes: the
// renderer about albums, the transport about expiring authorizations.
// Publishing is best effort: the commit itself never depends on it.
type Publisher interface {
	AlbumCommitted(ctx context.Context, album domain.Album) error
	AlbumExpired(ctx context.Context, albumID string) error
	AuthorizationExpiring(ctx context.Context, userID string, expiresAt time.Time) error
	Close() error
}

type committedEvent struct {
	AlbumID   string    `json:"albumId"`
	UserID    string    `json:"userId"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type expiredEvent struct {
	AlbumID string `json:"albumId"`
}

type expiringAuthEvent struct {
	UserID    string    `json:"userId"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// AMQPPublisher publishes lifecycle events to a RabbitMQ topic exchange.
type AMQPPublisher struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
}

// NewAMQPPublisher connects to RabbitMQ and declares the exchange.
func NewAMQPPublisher(url, exchange string) (*AMQPPublisher, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, errors.New("amqp url required")
	}
	exchange = strings.TrimSpace(exchange)
	if exchange == "" {
		exchange = "mediavault.albums"
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := channel.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = channel.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	return &AMQPPublisher{conn: conn, channel: channel, exchange: exchange}, nil
}

// AlbumCommitted announces a freshly committed album so the renderer can
// build its page and QR code.
func (p *AMQPPublisher) AlbumCommitted(ctx context.Context, album domain.Album) error {
	return p.publish(ctx, routeCommitted, committedEvent{
		AlbumID:   album.ID,
		UserID:    album.UserID,
		Token:     album.AccessToken,
		ExpiresAt: album.ExpiresAt,
	})
}

// AlbumExpired announces that an album and its artifacts are gone, whether
// swept at TTL or deleted by its owner, so the renderer can drop caches.
func (p *AMQPPublisher) AlbumExpired(ctx context.Context, albumID string) error {
	return p.publish(ctx, routeExpired, expiredEvent{AlbumID: albumID})
}

// AuthorizationExpiring warns that a user's grant lapses soon. The transport
// relays it as a reminder message.
func (p *AMQPPublisher) AuthorizationExpiring(ctx context.Context, userID string, expiresAt time.Time) error {
	return p.publish(ctx, routeExpiring, expiringAuthEvent{UserID: userID, ExpiresAt: expiresAt})
}

func (p *AMQPPublisher) publish(ctx context.Context, key string, body any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	err = p.channel.PublishWithContext(ctx, p.exchange, key, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         payload,
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", key, err)
	}
	return nil
}

// Close releases the channel and connection.
func (p *AMQPPublisher) Close() error {
	if err := p.channel.Close(); err != nil {
		_ = p.conn.Close()
		return err
	}
	return p.conn.Close()
}

// NopPublisher drops all events. Used in tests and when no broker is
// configured.
type NopPublisher struct{}

func (NopPublisher) AlbumCommitted(context.Context, domain.Album) error { return nil }

func (NopPublisher) AlbumExpired(context.Context, string) error { return nil }

func (NopPublisher) AuthorizationExpiring(context.Context, string, time.Time) error { return nil }

func (NopPublisher) Close() error { return nil }
