package store

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"mediavault/pkg/domain"
)

func sampleBuffer(userID string) domain.UserBuffer {
	now := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	return domain.UserBuffer{
		UserID: userID,
		State:  domain.StateCollecting,
		Sealed: []domain.MediaGroup{
			{Number: 1, CollectedAt: now, Items: []domain.MediaItem{
				{Kind: domain.KindPhoto, PayloadRef: "p1", Sequence: 1},
				{Kind: domain.KindVideo, PayloadRef: "v1", Caption: "clip", Sequence: 2},
			}},
		},
		Open: domain.MediaGroup{Number: 2, CollectedAt: now, Items: []domain.MediaItem{
			{Kind: domain.KindText, PayloadRef: "t1", Sequence: 1},
		}},
		CreatedAt:      now,
		LastActivityAt: now.Add(time.Minute),
	}
}

func TestMemoryStoreBufferRoundTrip(t *testing.T) {
	s := NewMemoryStore()
	want := sampleBuffer("u1")
	if err := s.SaveBuffer(want); err != nil {
		t.Fatalf("save buffer: %v", err)
	}
	got, err := s.LoadAllBuffers()
	if err != nil {
		t.Fatalf("load buffers: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("loaded %d buffers, want 1", len(got))
	}
	if !reflect.DeepEqual(got[0], want) {
		t.Fatalf("round trip mismatch:\ngot:  %+v\nwant: %+v", got[0], want)
	}
}

func TestMemoryStoreBufferCopiesAreIndependent(t *testing.T) {
	s := NewMemoryStore()
	buf := sampleBuffer("u1")
	if err := s.SaveBuffer(buf); err != nil {
		t.Fatalf("save buffer: %v", err)
	}
	// mutating the caller's copy must not reach the stored record
	buf.Open.Items[0].PayloadRef = "tampered"
	got, _ := s.LoadAllBuffers()
	if got[0].Open.Items[0].PayloadRef != "t1" {
		t.Fatalf("stored buffer shares memory with caller")
	}
}

func TestMemoryStoreCommitAlbumIsAtomic(t *testing.T) {
	s := NewMemoryStore()
	if err := s.SaveBuffer(sampleBuffer("u1")); err != nil {
		t.Fatalf("save buffer: %v", err)
	}
	album := domain.Album{
		ID:          "a1",
		UserID:      "u1",
		AccessToken: "tok-1",
		Groups:      sampleBuffer("u1").Sealed,
		CreatedAt:   time.Now().UTC(),
		ExpiresAt:   time.Now().UTC().Add(time.Hour),
	}
	if err := s.CommitAlbum(album); err != nil {
		t.Fatalf("commit album: %v", err)
	}
	buffers, _ := s.LoadAllBuffers()
	if len(buffers) != 0 {
		t.Fatalf("buffer survived commit")
	}
	if _, ok, _ := s.GetAlbumByToken("tok-1"); !ok {
		t.Fatalf("album missing after commit")
	}

	// same token can never be issued again, even for another user
	other := domain.Album{ID: "a2", UserID: "u2", AccessToken: "tok-1"}
	if err := s.CommitAlbum(other); !errors.Is(err, domain.ErrTokenCollision) {
		t.Fatalf("expected token collision, got: %v", err)
	}
	if err := s.DeleteAlbum("a1"); err != nil {
		t.Fatalf("delete album: %v", err)
	}
	if err := s.CommitAlbum(other); !errors.Is(err, domain.ErrTokenCollision) {
		t.Fatalf("token freed by deletion, want permanent ledger entry")
	}
}

func TestMemoryStoreListExpiredAlbums(t *testing.T) {
	s := NewMemoryStore()
	now := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	expired := domain.Album{ID: "old", UserID: "u1", AccessToken: "t-old", ExpiresAt: now.Add(-time.Second)}
	onEdge := domain.Album{ID: "edge", UserID: "u1", AccessToken: "t-edge", ExpiresAt: now}
	live := domain.Album{ID: "new", UserID: "u1", AccessToken: "t-new", ExpiresAt: now.Add(time.Second)}
	for _, a := range []domain.Album{expired, onEdge, live} {
		if err := s.SaveAlbum(a); err != nil {
			t.Fatalf("save album %s: %v", a.ID, err)
		}
	}
	got, err := s.ListExpiredAlbums(now)
	if err != nil {
		t.Fatalf("list expired: %v", err)
	}
	ids := make(map[string]bool)
	for _, a := range got {
		ids[a.ID] = true
	}
	if !ids["old"] || !ids["edge"] || ids["new"] {
		t.Fatalf("expired set = %v, want old and edge only", ids)
	}
}

func TestMemoryStoreGetAlbumByTokenMiss(t *testing.T) {
	s := NewMemoryStore()
	if _, ok, err := s.GetAlbumByToken("nope"); ok || err != nil {
		t.Fatalf("expected clean miss, got ok=%v err=%v", ok, err)
	}
}
