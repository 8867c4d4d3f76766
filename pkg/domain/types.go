package domain

import "time"

type MediaKind string

const (
	KindPhoto MediaKind = "photo"
	KindVideo MediaKind = "video"
	KindText  MediaKind = "text"
)

// BufferState tracks where a user's in-progress collection sits in its
// lifecycle. Committed and cancelled buffers are deleted rather than kept in
// a terminal state; the next inbound media event starts a fresh buffer.
type BufferState string

const (
	StateCollecting      BufferState = "collecting"
	StateAwaitingConfirm BufferState = "awaiting_confirm"
)

// AddResult reports what a media addition did to the buffer. The transport
// client relays it as a user-facing notification.
type AddResult string

const (
	ResultAdded       AddResult = "added"
	ResultGroupSealed AddResult = "group_sealed"
)

// MediaItem is one collected unit. The payload reference is an opaque file
// identifier owned by the transport; raw bytes never pass through this core.
type MediaItem struct {
	Kind       MediaKind `json:"kind"`
	PayloadRef string    `json:"payloadRef"`
	Caption    string    `json:"caption,omitempty"`
	Sequence   int       `json:"sequence"`
}

// MediaGroup is a capacity-bounded ordered batch of items.
type MediaGroup struct {
	Number      int         `json:"number"`
	Items       []MediaItem `json:"items"`
	CollectedAt time.Time   `json:"collectedAt"`
}

// UserBuffer is the not-yet-committed collection state for one user.
// Sealed groups are closed to further additions; at most one open group
// accepts new items.
type UserBuffer struct {
	UserID         string       `json:"userId"`
	State          BufferState  `json:"state"`
	Sealed         []MediaGroup `json:"sealed"`
	Open           MediaGroup   `json:"open"`
	CreatedAt      time.Time    `json:"createdAt"`
	LastActivityAt time.Time    `json:"lastActivityAt"`
}

// Album is the durable, shareable artifact produced by a commit. Immutable
// after creation except for deletion by the expiration sweep.
type Album struct {
	ID          string       `json:"id"`
	UserID      string       `json:"userId"`
	AccessToken string       `json:"-"`
	Groups      []MediaGroup `json:"groups"`
	CreatedAt   time.Time    `json:"createdAt"`
	ExpiresAt   time.Time    `json:"expiresAt"`
}

// Expired reports whether the album is past its time-to-live at now.
func (a Album) Expired(now time.Time) bool {
	return !a.ExpiresAt.After(now)
}

// ItemCount returns the total number of media items across all groups.
func (a Album) ItemCount() int {
	total := 0
	for _, g := range a.Groups {
		total += len(g.Items)
	}
	return total
}

// AuthorizationRecord maps a user to a bot-usage permission window. The
// collection core only reads it; grants and revocations come from the admin
// surface.
type AuthorizationRecord struct {
	UserID       string    `json:"userId"`
	GrantedBy    string    `json:"grantedBy"`
	StartsAt     time.Time `json:"startsAt"`
	ExpiresAt    time.Time `json:"expiresAt"`
	Active       bool      `json:"active"`
	ReminderSent bool      `json:"reminderSent"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Valid reports whether the record grants permission at now.
func (r AuthorizationRecord) Valid(now time.Time) bool {
	return r.Active && r.ExpiresAt.After(now)
}
