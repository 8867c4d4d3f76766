package store

import (
	"time"

	"mediavault/pkg/domain"
)

// Store defines persistence for user buffers and albums. Individual record
// writes are atomic: no partially written media group is ever observable.
type Store interface {
	// buffers
	SaveBuffer(domain.UserBuffer) error
	LoadAllBuffers() ([]domain.UserBuffer, error)
	DeleteBuffer(userID string) error

	// albums
	SaveAlbum(domain.Album) error
	GetAlbum(id string) (domain.Album, bool, error)
	GetAlbumByToken(token string) (domain.Album, bool, error)
	ListAlbumsByOwner(userID string) ([]domain.Album, error)
	ListExpiredAlbums(now time.Time) ([]domain.Album, error)
	DeleteAlbum(id string) error

	// CommitAlbum persists the album, records its access token in the
	// never-purged token ledger, and deletes the owning user's buffer in a
	// single transaction. A token already present in the ledger fails the
	// whole transaction with domain.ErrTokenCollision.
	CommitAlbum(domain.Album) error
}
