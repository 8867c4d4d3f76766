package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"mediavault/pkg/domain"
	"mediavault/pkg/queue"
)

// Outcome is what the transport relays back to the user for one event.
type Outcome struct {
	UserID string
	Result domain.AddResult // set for accepted media events
	Album  *domain.Album    // set when a confirm committed an album
	Albums []domain.Album   // set for list events
	Err    error            // user-correctable failure, nil on success
}

// Replier forwards outcomes to the transport client. Optional; when unset,
// outcomes are only logged.
type Replier func(ctx context.Context, outcome Outcome)

// SetReplier installs the transport callback. Call before the queue starts.
func (a *App) SetReplier(r Replier) {
	a.replier = r
}

// HandleEvent adapts the engine to the inbound queue. User-correctable
// failures are replied and acked; infrastructure failures are returned so
// the queue redelivers the event.
func (a *App) HandleEvent(ctx context.Context, ev queue.MediaEvent) error {
	switch ev.Action {
	case queue.ActionMedia:
		result, err := a.AddMedia(ctx, ev.UserID, domain.MediaItem{
			Kind:       ev.Kind,
			PayloadRef: ev.PayloadRef,
			Caption:    ev.Caption,
		})
		return a.finish(ctx, Outcome{UserID: ev.UserID, Result: result, Err: err})
	case queue.ActionConfirm:
		if err := a.Confirm(ctx, ev.UserID); err != nil {
			return a.finish(ctx, Outcome{UserID: ev.UserID, Err: err})
		}
		album, err := a.Commit(ctx, ev.UserID)
		out := Outcome{UserID: ev.UserID, Err: err}
		if err == nil {
			out.Album = &album
		}
		return a.finish(ctx, out)
	case queue.ActionCancel:
		return a.finish(ctx, Outcome{UserID: ev.UserID, Err: a.Cancel(ctx, ev.UserID)})
	case queue.ActionDelete:
		return a.finish(ctx, Outcome{UserID: ev.UserID, Err: a.DeleteAlbum(ctx, ev.UserID, ev.AlbumID)})
	case queue.ActionList:
		albums, err := a.ListUserAlbums(ctx, ev.UserID)
		return a.finish(ctx, Outcome{UserID: ev.UserID, Albums: albums, Err: err})
	default:
		slog.Warn("unknown inbound action", "action", ev.Action, "user", ev.UserID)
		return nil
	}
}

// finish replies to the user and decides whether the event should be
// redelivered. Only infrastructure failures propagate.
func (a *App) finish(ctx context.Context, out Outcome) error {
	if retryable(out.Err) {
		return fmt.Errorf("handle event for %s: %w", out.UserID, out.Err)
	}
	if out.Err != nil {
		slog.Info("event rejected", "user", out.UserID, "reason", out.Err)
	}
	if a.replier != nil {
		a.replier(ctx, out)
	}
	return nil
}

// retryable reports whether redelivering the event could succeed. Rejections
// the user must correct are final.
func retryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, domain.ErrCapacityExceeded),
		errors.Is(err, domain.ErrEmptyCollection),
		errors.Is(err, domain.ErrPermissionDenied),
		errors.Is(err, domain.ErrAwaitingConfirm),
		errors.Is(err, domain.ErrNoActiveBuffer),
		errors.Is(err, domain.ErrNotConfirmed),
		errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrRateLimited):
		return false
	default:
		return true
	}
}
