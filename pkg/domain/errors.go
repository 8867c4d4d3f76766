package domain

import "errors"

// Error taxonomy for the collection core. All of these are recoverable at
// the call boundary; the transport collaborator translates them into
// user-facing messages.
var (
	// ErrPersistence wraps storage I/O failures. The caller must not assume
	// the mutation took effect.
	ErrPersistence = errors.New("persistence failure")

	// ErrCapacityExceeded means the buffer already holds the maximum number
	// of sealed groups; the rejected item left the buffer unchanged.
	ErrCapacityExceeded = errors.New("media group capacity exceeded")

	// ErrEmptyCollection means a commit was attempted with zero sealed groups.
	ErrEmptyCollection = errors.New("collection is empty")

	// ErrTokenCollision is returned by the store when a generated access
	// token already exists in the ledger. Commit retries generation a
	// bounded number of times before giving up.
	ErrTokenCollision = errors.New("access token collision")

	// ErrTokenGeneration means token generation exhausted its collision
	// retries. Transient; the caller may retry the commit.
	ErrTokenGeneration = errors.New("access token generation failed")

	// ErrPermissionDenied means the authorization collaborator refused the
	// user. The buffer is untouched.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrNotFound means a lookup by token or id missed.
	ErrNotFound = errors.New("not found")

	// ErrAwaitingConfirm means media arrived while the buffer is sealed for
	// confirmation; the item applies to a fresh buffer after commit.
	ErrAwaitingConfirm = errors.New("collection awaiting confirmation")

	// ErrNoActiveBuffer means confirm or cancel arrived for a user with no
	// in-progress collection.
	ErrNoActiveBuffer = errors.New("no active collection")

	// ErrNotConfirmed means commit was attempted on a buffer that is still
	// collecting.
	ErrNotConfirmed = errors.New("collection not confirmed")

	// ErrRateLimited means the user sent events faster than the inbound
	// quota allows.
	ErrRateLimited = errors.New("too many media events")
)
