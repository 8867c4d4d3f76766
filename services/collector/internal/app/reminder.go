package app

import (
	"context"
	"log/slog"
	"time"
)

// RemindExpiring notifies users whose authorization lapses within the
// reminder window, at most once per grant, and returns how many reminders
// went out. A no-op when no admin store is configured.
func (a *App) RemindExpiring(ctx context.Context, now time.Time) (int, error) {
	if a.authzAdmin == nil {
		return 0, nil
	}
	expiring, err := a.authzAdmin.ListExpiring(now, a.reminderWindow)
	if err != nil {
		return 0, err
	}
	sent := 0
	for _, rec := range expiring {
		if err := a.publisher.AuthorizationExpiring(ctx, rec.UserID, rec.ExpiresAt); err != nil {
			slog.Warn("notify expiring authorization", "user", rec.UserID, "err", err)
			continue
		}
		// marked only after a successful publish so a broker outage
		// leaves the reminder for the next pass
		if err := a.authzAdmin.MarkReminderSent(rec.UserID); err != nil {
			slog.Error("mark reminder sent", "user", rec.UserID, "err", err)
			continue
		}
		sent++
	}
	if sent > 0 {
		slog.Info("authorization reminders sent", "count", sent)
	}
	return sent, nil
}
