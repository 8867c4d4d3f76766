package app

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"mediavault/pkg/domain"
	"mediavault/pkg/storage"
	"mediavault/pkg/store"
)

type fakeArtifacts struct {
	puts    []string
	deleted []string
	fail    bool
}

func (f *fakeArtifacts) Put(_ context.Context, key string, _ io.Reader, _ int64, _ string) error {
	f.puts = append(f.puts, key)
	return nil
}

func (f *fakeArtifacts) DeletePrefix(_ context.Context, prefix string) error {
	if f.fail {
		return errors.New("artifact backend down")
	}
	f.deleted = append(f.deleted, prefix)
	return nil
}

var _ storage.ObjectStore = (*fakeArtifacts)(nil)

func commitOneAlbum(t *testing.T, a *App, user string) string {
	t.Helper()
	ctx := context.Background()
	if _, err := a.AddMedia(ctx, user, photo("f")); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := a.Confirm(ctx, user); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	album, err := a.Commit(ctx, user)
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	return album.ID
}

func TestSweepRespectsTTLBoundary(t *testing.T) {
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	ttl := 72 * time.Hour
	st := store.NewMemoryStore()
	a := newTestApp(t, Config{Store: st, AlbumTTL: ttl, Clock: func() time.Time { return base }})
	ctx := context.Background()

	commitOneAlbum(t, a, "u1")

	removed, err := a.SweepExpired(ctx, base.Add(ttl).Add(-time.Second))
	if err != nil {
		t.Fatalf("sweep before expiry: %v", err)
	}
	if removed != 0 {
		t.Fatalf("removed %d albums before expiry, want 0", removed)
	}

	removed, err = a.SweepExpired(ctx, base.Add(ttl).Add(time.Second))
	if err != nil {
		t.Fatalf("sweep after expiry: %v", err)
	}
	if removed != 1 {
		t.Fatalf("removed %d albums after expiry, want 1", removed)
	}
}

func TestSweepIsIdempotent(t *testing.T) {
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	st := store.NewMemoryStore()
	a := newTestApp(t, Config{Store: st, AlbumTTL: time.Hour, Clock: func() time.Time { return base }})
	ctx := context.Background()

	commitOneAlbum(t, a, "u1")
	later := base.Add(2 * time.Hour)

	if removed, _ := a.SweepExpired(ctx, later); removed != 1 {
		t.Fatalf("first sweep removed %d, want 1", removed)
	}
	if removed, _ := a.SweepExpired(ctx, later); removed != 0 {
		t.Fatalf("second sweep removed %d, want 0", removed)
	}
}

func TestSweepDeletesRenderedArtifacts(t *testing.T) {
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	artifacts := &fakeArtifacts{}
	a := newTestApp(t, Config{AlbumTTL: time.Hour, Artifacts: artifacts, Clock: func() time.Time { return base }})

	id := commitOneAlbum(t, a, "u1")
	if _, err := a.SweepExpired(context.Background(), base.Add(2*time.Hour)); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if len(artifacts.deleted) != 1 || artifacts.deleted[0] != storage.ArtifactPrefix(id) {
		t.Fatalf("artifact prefixes deleted = %v, want [%s]", artifacts.deleted, storage.ArtifactPrefix(id))
	}
}

func TestSweepRetriesAfterArtifactFailure(t *testing.T) {
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	artifacts := &fakeArtifacts{fail: true}
	st := store.NewMemoryStore()
	a := newTestApp(t, Config{Store: st, AlbumTTL: time.Hour, Artifacts: artifacts, Clock: func() time.Time { return base }})
	ctx := context.Background()

	commitOneAlbum(t, a, "u1")
	later := base.Add(2 * time.Hour)

	if removed, _ := a.SweepExpired(ctx, later); removed != 0 {
		t.Fatalf("sweep with failing artifacts removed %d, want 0", removed)
	}
	// album is retained for the next interval
	artifacts.fail = false
	if removed, _ := a.SweepExpired(ctx, later); removed != 1 {
		t.Fatalf("retry sweep removed %d, want 1", removed)
	}
}

func TestExpiredAlbumHiddenBeforeSweep(t *testing.T) {
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	now := base
	st := store.NewMemoryStore()
	a := newTestApp(t, Config{Store: st, AlbumTTL: time.Hour, Clock: func() time.Time { return now }})
	ctx := context.Background()

	if _, err := a.AddMedia(ctx, "u1", photo("f")); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := a.Confirm(ctx, "u1"); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	album, err := a.Commit(ctx, "u1")
	if err != nil {
		t.Fatalf("commit: %v", err)
	}

	if _, err := a.GetAlbum(ctx, album.AccessToken); err != nil {
		t.Fatalf("live album lookup: %v", err)
	}
	now = base.Add(2 * time.Hour)
	if _, err := a.GetAlbum(ctx, album.AccessToken); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found for expired album, got: %v", err)
	}
}
