package store

import (
	"time"

	"gorm.io/datatypes"
)

// GORM models used for persistence. Media groups are serialized into a
// single JSONB column so one row write carries the whole buffer or album.
type BufferModel struct {
	UserID         string         `gorm:"primaryKey"`
	State          string         `gorm:"not null"`
	Groups         datatypes.JSON `gorm:"type:jsonb;not null"`
	CreatedAt      time.Time      `gorm:"not null"`
	LastActivityAt time.Time      `gorm:"not null"`
}

type AlbumModel struct {
	ID          string         `gorm:"primaryKey"`
	UserID      string         `gorm:"not null;index"`
	AccessToken string         `gorm:"uniqueIndex;not null"`
	Groups      datatypes.JSON `gorm:"type:jsonb;not null"`
	CreatedAt   time.Time      `gorm:"not null"`
	ExpiresAt   time.Time      `gorm:"not null;index"`
}

// AccessTokenModel is the token ledger. Rows are never deleted, which keeps
// tokens unique across all albums ever created, including deleted ones.
type AccessTokenModel struct {
	Token    string    `gorm:"primaryKey"`
	AlbumID  string    `gorm:"not null"`
	IssuedAt time.Time `gorm:"not null"`
}
