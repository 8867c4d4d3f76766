package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"mediavault/pkg/authz"
	"mediavault/pkg/domain"
)

type recordingPublisher struct {
	committed []string
	expired   []string
	reminded  []string
	fail      bool
}

func (p *recordingPublisher) AlbumCommitted(_ context.Context, album domain.Album) error {
	p.committed = append(p.committed, album.ID)
	return nil
}

func (p *recordingPublisher) AlbumExpired(_ context.Context, albumID string) error {
	p.expired = append(p.expired, albumID)
	return nil
}

func (p *recordingPublisher) AuthorizationExpiring(_ context.Context, userID string, _ time.Time) error {
	if p.fail {
		return errors.New("broker down")
	}
	p.reminded = append(p.reminded, userID)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func TestRemindExpiringSendsOnce(t *testing.T) {
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	admin := authz.NewMemoryStore()
	admin.SetClock(func() time.Time { return base })
	pub := &recordingPublisher{}
	a := newTestApp(t, Config{Authorizer: admin, AuthzAdmin: admin, Publisher: pub, ReminderWindow: 24 * time.Hour})
	ctx := context.Background()

	if _, err := admin.Grant("u-soon", "admin", 12*time.Hour); err != nil {
		t.Fatalf("grant: %v", err)
	}
	if _, err := admin.Grant("u-later", "admin", 30*24*time.Hour); err != nil {
		t.Fatalf("grant: %v", err)
	}

	sent, err := a.RemindExpiring(ctx, base)
	if err != nil {
		t.Fatalf("remind: %v", err)
	}
	if sent != 1 || len(pub.reminded) != 1 || pub.reminded[0] != "u-soon" {
		t.Fatalf("reminded %v (sent=%d), want exactly u-soon", pub.reminded, sent)
	}

	// second pass finds nothing new
	sent, err = a.RemindExpiring(ctx, base)
	if err != nil {
		t.Fatalf("second remind: %v", err)
	}
	if sent != 0 || len(pub.reminded) != 1 {
		t.Fatalf("reminder repeated: %v (sent=%d)", pub.reminded, sent)
	}
}

func TestRemindExpiringSkipsRevokedAndLapsed(t *testing.T) {
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	admin := authz.NewMemoryStore()
	admin.SetClock(func() time.Time { return base })
	pub := &recordingPublisher{}
	a := newTestApp(t, Config{Authorizer: admin, AuthzAdmin: admin, Publisher: pub})

	if _, err := admin.Grant("u-revoked", "admin", 12*time.Hour); err != nil {
		t.Fatalf("grant: %v", err)
	}
	if err := admin.Revoke("u-revoked"); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if _, err := admin.Grant("u-lapsed", "admin", time.Hour); err != nil {
		t.Fatalf("grant: %v", err)
	}

	sent, err := a.RemindExpiring(context.Background(), base.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("remind: %v", err)
	}
	if sent != 0 || len(pub.reminded) != 0 {
		t.Fatalf("reminded %v, want none", pub.reminded)
	}
}

func TestRemindExpiringRetriesAfterPublishFailure(t *testing.T) {
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	admin := authz.NewMemoryStore()
	admin.SetClock(func() time.Time { return base })
	pub := &recordingPublisher{fail: true}
	a := newTestApp(t, Config{Authorizer: admin, AuthzAdmin: admin, Publisher: pub})
	ctx := context.Background()

	if _, err := admin.Grant("u1", "admin", 12*time.Hour); err != nil {
		t.Fatalf("grant: %v", err)
	}
	if sent, _ := a.RemindExpiring(ctx, base); sent != 0 {
		t.Fatalf("sent %d reminders through a dead broker, want 0", sent)
	}

	// grant stays unmarked, so the next pass retries
	pub.fail = false
	sent, err := a.RemindExpiring(ctx, base)
	if err != nil {
		t.Fatalf("retry remind: %v", err)
	}
	if sent != 1 || len(pub.reminded) != 1 || pub.reminded[0] != "u1" {
		t.Fatalf("reminded %v (sent=%d), want u1 once", pub.reminded, sent)
	}
}

func TestRemindExpiringWithoutAdminStore(t *testing.T) {
	a := newTestApp(t, Config{})
	sent, err := a.RemindExpiring(context.Background(), time.Now())
	if err != nil || sent != 0 {
		t.Fatalf("remind without admin store: sent=%d err=%v", sent, err)
	}
}
