package app

import (
	"context"
	"log/slog"
	"time"

	"mediavault/pkg/storage"
)

// SweepExpired deletes every album whose TTL elapsed at now, together with
// its rendered artifacts, and returns how many were removed. A failure on
// one album is logged and left for the next interval; the sweep is
// idempotent, so rerunning with no new expirations removes nothing.
func (a *App) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	expired, err := a.store.ListExpiredAlbums(now)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, album := range expired {
		if a.artifacts != nil {
			if err := a.artifacts.DeletePrefix(ctx, storage.ArtifactPrefix(album.ID)); err != nil {
				slog.Error("delete album artifacts", "album", album.ID, "err", err)
				continue
			}
		}
		if err := a.store.DeleteAlbum(album.ID); err != nil {
			slog.Error("delete expired album", "album", album.ID, "err", err)
			continue
		}
		if err := a.publisher.AlbumExpired(ctx, album.ID); err != nil {
			slog.Warn("notify renderer of expiry", "album", album.ID, "err", err)
		}
		removed++
	}
	if removed > 0 {
		slog.Info("expired albums swept", "removed", removed)
	}
	return removed, nil
}

// RunSweeper drives the expiration sweep and the authorization reminder
// pass on a fixed interval until ctx ends. It also evicts idle per-user
// lock entries on the same tick.
func (a *App) RunSweeper(ctx context.Context) {
	ticker := time.NewTicker(a.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := a.SweepExpired(ctx, a.now()); err != nil {
				slog.Error("expiration sweep", "err", err)
			}
			if _, err := a.RemindExpiring(ctx, a.now()); err != nil {
				slog.Error("authorization reminder pass", "err", err)
			}
			a.locks.EvictIdle(time.Now())
		}
	}
}
