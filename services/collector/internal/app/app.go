package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"mediavault/internal/ratelimit"
	"mediavault/internal/userlock"
	"mediavault/internal/util"
	"mediavault/pkg/authz"
	"mediavault/pkg/domain"
	"mediavault/pkg/notify"
	"mediavault/pkg/storage"
	"mediavault/pkg/store"
)

const (
	defaultMaxGroupSize   = 10
	defaultMaxGroups      = 50
	defaultAlbumTTL       = 72 * time.Hour
	defaultSweepInterval  = time.Hour
	defaultTokenRetries   = 5
	defaultReminderWindow = 24 * time.Hour
)

// Config holds runtime configuration for the collection core.
type Config struct {
	Store      store.Store
	Authorizer authz.Authorizer
	AuthzAdmin authz.Store                   // optional; enables expiring-grant reminders
	Artifacts  storage.ObjectStore           // optional; nil skips artifacts
	Publisher  notify.Publisher              // optional; nil means no notifications
	Limiter    *ratelimit.FixedWindowLimiter // optional per-user inbound quota

	MaxGroupSize   int
	MaxGroups      int
	AlbumTTL       time.Duration
	SweepInterval  time.Duration
	LockIdleTTL    time.Duration
	TokenRetries   int
	ReminderWindow time.Duration

	Clock func() time.Time
}

// App is the album collection and lifecycle engine. It owns the in-memory
// buffer mirror; the durable store always holds an identical copy so a
// restart loses nothing.
type App struct {
	store      store.Store
	authorizer authz.Authorizer
	authzAdmin authz.Store
	artifacts  storage.ObjectStore
	publisher  notify.Publisher
	limiter    *ratelimit.FixedWindowLimiter
	locks      *userlock.Registry

	mu      sync.RWMutex
	buffers map[string]domain.UserBuffer
	replier Replier

	maxGroupSize   int
	maxGroups      int
	albumTTL       time.Duration
	sweepInterval  time.Duration
	tokenRetries   int
	reminderWindow time.Duration
	now            func() time.Time
}

// New wires the engine and reconstructs in-flight buffers from the durable
// store. A reload failure is fatal: running with silently lost state is
// worse than refusing to start.
func New(cfg Config) (*App, error) {
	if cfg.Store == nil {
		return nil, errors.New("store required")
	}
	if cfg.Authorizer == nil {
		return nil, errors.New("authorizer required")
	}
	publisher := cfg.Publisher
	if publisher == nil {
		publisher = notify.NopPublisher{}
	}
	maxGroupSize := cfg.MaxGroupSize
	if maxGroupSize <= 0 {
		maxGroupSize = defaultMaxGroupSize
	}
	maxGroups := cfg.MaxGroups
	if maxGroups <= 0 {
		maxGroups = defaultMaxGroups
	}
	albumTTL := cfg.AlbumTTL
	if albumTTL <= 0 {
		albumTTL = defaultAlbumTTL
	}
	sweepInterval := cfg.SweepInterval
	if sweepInterval <= 0 {
		sweepInterval = defaultSweepInterval
	}
	tokenRetries := cfg.TokenRetries
	if tokenRetries <= 0 {
		tokenRetries = defaultTokenRetries
	}
	reminderWindow := cfg.ReminderWindow
	if reminderWindow <= 0 {
		reminderWindow = defaultReminderWindow
	}
	clock := cfg.Clock
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}

	a := &App{
		store:          cfg.Store,
		authorizer:     cfg.Authorizer,
		authzAdmin:     cfg.AuthzAdmin,
		artifacts:      cfg.Artifacts,
		publisher:      publisher,
		limiter:        cfg.Limiter,
		locks:          userlock.New(cfg.LockIdleTTL),
		buffers:        make(map[string]domain.UserBuffer),
		maxGroupSize:   maxGroupSize,
		maxGroups:      maxGroups,
		albumTTL:       albumTTL,
		sweepInterval:  sweepInterval,
		tokenRetries:   tokenRetries,
		reminderWindow: reminderWindow,
		now:            clock,
	}

	loaded, err := cfg.Store.LoadAllBuffers()
	if err != nil {
		return nil, fmt.Errorf("reload buffers: %w", err)
	}
	for _, buf := range loaded {
		a.buffers[buf.UserID] = buf
	}
	if len(loaded) > 0 {
		slog.Info("recovered in-flight buffers", "count", len(loaded))
	}
	return a, nil
}

// AddMedia stages one media item into the user's buffer. Every successful
// mutation is written through to the durable store before the in-memory
// mirror changes, so a crash can never lose an acknowledged item.
func (a *App) AddMedia(ctx context.Context, userID string, item domain.MediaItem) (domain.AddResult, error) {
	if err := a.authorize(ctx, userID); err != nil {
		return "", err
	}
	if a.limiter != nil && !a.limiter.Allow(userID) {
		return "", domain.ErrRateLimited
	}
	release, err := a.locks.Acquire(ctx, userID)
	if err != nil {
		return "", err
	}
	defer release()

	now := a.now()
	buf, ok := a.getBuffer(userID)
	if !ok {
		buf = domain.UserBuffer{
			UserID:    userID,
			State:     domain.StateCollecting,
			Open:      domain.MediaGroup{Number: 1, CollectedAt: now},
			CreatedAt: now,
		}
	}
	if buf.State == domain.StateAwaitingConfirm {
		return "", domain.ErrAwaitingConfirm
	}
	if len(buf.Sealed) >= a.maxGroups {
		return "", domain.ErrCapacityExceeded
	}

	item.Sequence = len(buf.Open.Items) + 1
	buf.Open.Items = append(buf.Open.Items, item)
	buf.LastActivityAt = now

	result := domain.ResultAdded
	if len(buf.Open.Items) >= a.maxGroupSize {
		buf.Sealed = append(buf.Sealed, buf.Open)
		buf.Open = domain.MediaGroup{Number: buf.Open.Number + 1, CollectedAt: now}
		result = domain.ResultGroupSealed
	}

	if err := a.store.SaveBuffer(buf); err != nil {
		return "", err
	}
	a.setBuffer(buf)
	return result, nil
}

// Confirm seals whatever the buffer holds at the moment the user's lock is
// acquired and moves it to awaiting-confirm. Media queued behind the lock
// lands on a fresh buffer after the commit.
func (a *App) Confirm(ctx context.Context, userID string) error {
	if err := a.authorize(ctx, userID); err != nil {
		return err
	}
	release, err := a.locks.Acquire(ctx, userID)
	if err != nil {
		return err
	}
	defer release()

	buf, ok := a.getBuffer(userID)
	if !ok {
		return domain.ErrEmptyCollection
	}
	if buf.State == domain.StateAwaitingConfirm {
		return nil
	}
	if len(buf.Open.Items) > 0 {
		buf.Sealed = append(buf.Sealed, buf.Open)
		buf.Open = domain.MediaGroup{Number: buf.Open.Number + 1}
	}
	if len(buf.Sealed) == 0 {
		return domain.ErrEmptyCollection
	}
	buf.State = domain.StateAwaitingConfirm
	buf.LastActivityAt = a.now()
	if err := a.store.SaveBuffer(buf); err != nil {
		return err
	}
	a.setBuffer(buf)
	return nil
}

// Commit turns a confirmed buffer into a durable album with a fresh unique
// access token. Once it returns the buffer is gone and the album exists;
// on failure the buffer is untouched and no album was written.
func (a *App) Commit(ctx context.Context, userID string) (domain.Album, error) {
	release, err := a.locks.Acquire(ctx, userID)
	if err != nil {
		return domain.Album{}, err
	}
	defer release()

	buf, ok := a.getBuffer(userID)
	if !ok {
		return domain.Album{}, domain.ErrNoActiveBuffer
	}
	if buf.State != domain.StateAwaitingConfirm {
		return domain.Album{}, domain.ErrNotConfirmed
	}
	if len(buf.Sealed) == 0 {
		return domain.Album{}, domain.ErrEmptyCollection
	}

	now := a.now()
	album := domain.Album{
		ID:        uuid.NewString(),
		UserID:    userID,
		Groups:    buf.Sealed,
		CreatedAt: now,
		ExpiresAt: now.Add(a.albumTTL),
	}
	for attempt := 0; attempt < a.tokenRetries; attempt++ {
		album.AccessToken = util.NewAccessToken()
		err := a.store.CommitAlbum(album)
		if errors.Is(err, domain.ErrTokenCollision) {
			continue
		}
		if err != nil {
			return domain.Album{}, err
		}
		a.deleteBuffer(userID)
		if a.artifacts != nil {
			if err := a.writeManifest(ctx, album); err != nil {
				slog.Warn("write album manifest", "album", album.ID, "err", err)
			}
		}
		if err := a.publisher.AlbumCommitted(ctx, album); err != nil {
			slog.Warn("notify renderer of commit", "album", album.ID, "err", err)
		}
		slog.Info("album committed", "album", album.ID, "user", userID,
			"groups", len(album.Groups), "items", album.ItemCount())
		return album, nil
	}
	return domain.Album{}, domain.ErrTokenGeneration
}

// albumManifest is the content listing the renderer reads from object
// storage to build an album's pages. It never carries the access token.
type albumManifest struct {
	AlbumID   string              `json:"albumId"`
	UserID    string              `json:"userId"`
	Groups    []domain.MediaGroup `json:"groups"`
	CreatedAt time.Time           `json:"createdAt"`
	ExpiresAt time.Time           `json:"expiresAt"`
}

func (a *App) writeManifest(ctx context.Context, album domain.Album) error {
	body, err := json.Marshal(albumManifest{
		AlbumID:   album.ID,
		UserID:    album.UserID,
		Groups:    album.Groups,
		CreatedAt: album.CreatedAt,
		ExpiresAt: album.ExpiresAt,
	})
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	return a.artifacts.Put(ctx, storage.ManifestKey(album.ID),
		bytes.NewReader(body), int64(len(body)), "application/json")
}

// DeleteAlbum removes one of the user's own albums ahead of its TTL,
// together with its artifacts. The access token stays in the ledger and is
// never reissued.
func (a *App) DeleteAlbum(ctx context.Context, userID, albumID string) error {
	if err := a.authorize(ctx, userID); err != nil {
		return err
	}
	album, ok, err := a.store.GetAlbum(albumID)
	if err != nil {
		return err
	}
	if !ok || album.Expired(a.now()) {
		return domain.ErrNotFound
	}
	if album.UserID != userID {
		return domain.ErrPermissionDenied
	}
	if a.artifacts != nil {
		if err := a.artifacts.DeletePrefix(ctx, storage.ArtifactPrefix(albumID)); err != nil {
			return err
		}
	}
	if err := a.store.DeleteAlbum(albumID); err != nil {
		return err
	}
	if err := a.publisher.AlbumExpired(ctx, albumID); err != nil {
		slog.Warn("notify renderer of deletion", "album", albumID, "err", err)
	}
	slog.Info("album deleted by owner", "album", albumID, "user", userID)
	return nil
}

// Cancel destroys the user's buffer without persisting anything.
func (a *App) Cancel(ctx context.Context, userID string) error {
	release, err := a.locks.Acquire(ctx, userID)
	if err != nil {
		return err
	}
	defer release()

	if _, ok := a.getBuffer(userID); !ok {
		return domain.ErrNoActiveBuffer
	}
	if err := a.store.DeleteBuffer(userID); err != nil {
		return err
	}
	a.deleteBuffer(userID)
	return nil
}

// GetAlbum resolves an access token for the page renderer. Albums past
// their TTL are reported missing even before the sweep removes them.
func (a *App) GetAlbum(ctx context.Context, token string) (domain.Album, error) {
	album, ok, err := a.store.GetAlbumByToken(token)
	if err != nil {
		return domain.Album{}, err
	}
	if !ok || album.Expired(a.now()) {
		return domain.Album{}, domain.ErrNotFound
	}
	return album, nil
}

// ListUserAlbums returns the user's live albums, for the "my albums" view.
func (a *App) ListUserAlbums(ctx context.Context, userID string) ([]domain.Album, error) {
	albums, err := a.store.ListAlbumsByOwner(userID)
	if err != nil {
		return nil, err
	}
	now := a.now()
	live := albums[:0]
	for _, album := range albums {
		if !album.Expired(now) {
			live = append(live, album)
		}
	}
	return live, nil
}

// BufferProgress reports sealed-group and open-item counts for status
// replies. The second return is false when the user has no buffer.
func (a *App) BufferProgress(userID string) (sealed, open int, ok bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	buf, exists := a.buffers[userID]
	if !exists {
		return 0, 0, false
	}
	return len(buf.Sealed), len(buf.Open.Items), true
}

func (a *App) authorize(ctx context.Context, userID string) error {
	ok, err := a.authorizer.IsAuthorized(ctx, userID, a.now())
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrPermissionDenied
	}
	return nil
}

func (a *App) getBuffer(userID string) (domain.UserBuffer, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	buf, ok := a.buffers[userID]
	return buf, ok
}

func (a *App) setBuffer(buf domain.UserBuffer) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.buffers[buf.UserID] = buf
}

func (a *App) deleteBuffer(userID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.buffers, userID)
}
