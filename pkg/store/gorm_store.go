package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
	"mediavault/pkg/domain"
)

// bufferGroups is the JSONB payload of a buffer row.
type bufferGroups struct {
	Sealed []domain.MediaGroup `json:"sealed"`
	Open   domain.MediaGroup   `json:"open"`
}

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations.
func NewGormStore(dsn string) (*GormStore, error) {
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLog, TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.AutoMigrate(&BufferModel{}, &AlbumModel{}, &AccessTokenModel{}); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	return &GormStore{db: db}, nil
}

// DB exposes the underlying handle so other packages (authz) can share the
// connection pool and run their own migrations.
func (s *GormStore) DB() *gorm.DB {
	return s.db
}

// SaveBuffer upserts the whole buffer row.
func (s *GormStore) SaveBuffer(b domain.UserBuffer) error {
	model, err := bufferToModel(b)
	if err != nil {
		return err
	}
	err = s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"state", "groups", "last_activity_at"}),
	}).Create(&model).Error
	if err != nil {
		return fmt.Errorf("%w: save buffer: %v", domain.ErrPersistence, err)
	}
	return nil
}

// LoadAllBuffers returns every in-flight buffer. Called exactly once at
// startup to reconstruct in-memory state after a restart.
func (s *GormStore) LoadAllBuffers() ([]domain.UserBuffer, error) {
	var models []BufferModel
	if err := s.db.Order("created_at ASC").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("%w: load buffers: %v", domain.ErrPersistence, err)
	}
	res := make([]domain.UserBuffer, 0, len(models))
	for _, m := range models {
		buf, err := bufferFromModel(m)
		if err != nil {
			return nil, err
		}
		res = append(res, buf)
	}
	return res, nil
}

// DeleteBuffer removes a buffer row, if present.
func (s *GormStore) DeleteBuffer(userID string) error {
	if err := s.db.Delete(&BufferModel{}, "user_id = ?", userID).Error; err != nil {
		return fmt.Errorf("%w: delete buffer: %v", domain.ErrPersistence, err)
	}
	return nil
}

// SaveAlbum inserts an album row.
func (s *GormStore) SaveAlbum(a domain.Album) error {
	model, err := albumToModel(a)
	if err != nil {
		return err
	}
	if err := s.db.Create(&model).Error; err != nil {
		return fmt.Errorf("%w: save album: %v", domain.ErrPersistence, err)
	}
	return nil
}

// GetAlbum retrieves an album by id.
func (s *GormStore) GetAlbum(id string) (domain.Album, bool, error) {
	var model AlbumModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Album{}, false, nil
		}
		return domain.Album{}, false, fmt.Errorf("%w: get album: %v", domain.ErrPersistence, err)
	}
	album, err := albumFromModel(model)
	if err != nil {
		return domain.Album{}, false, err
	}
	return album, true, nil
}

// GetAlbumByToken looks up an album through its unique access token.
func (s *GormStore) GetAlbumByToken(token string) (domain.Album, bool, error) {
	var model AlbumModel
	if err := s.db.First(&model, "access_token = ?", token).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Album{}, false, nil
		}
		return domain.Album{}, false, fmt.Errorf("%w: get album by token: %v", domain.ErrPersistence, err)
	}
	album, err := albumFromModel(model)
	if err != nil {
		return domain.Album{}, false, err
	}
	return album, true, nil
}

// ListAlbumsByOwner returns a user's albums, newest first.
func (s *GormStore) ListAlbumsByOwner(userID string) ([]domain.Album, error) {
	var models []AlbumModel
	if err := s.db.Where("user_id = ?", userID).Order("created_at DESC").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("%w: list albums: %v", domain.ErrPersistence, err)
	}
	return albumsFromModels(models)
}

// ListExpiredAlbums returns albums whose TTL has elapsed at now.
func (s *GormStore) ListExpiredAlbums(now time.Time) ([]domain.Album, error) {
	var models []AlbumModel
	if err := s.db.Where("expires_at <= ?", now.UTC()).Order("expires_at ASC").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("%w: list expired albums: %v", domain.ErrPersistence, err)
	}
	return albumsFromModels(models)
}

// DeleteAlbum removes the album row. The token ledger row stays so the
// token is never reissued.
func (s *GormStore) DeleteAlbum(id string) error {
	if err := s.db.Delete(&AlbumModel{}, "id = ?", id).Error; err != nil {
		return fmt.Errorf("%w: delete album: %v", domain.ErrPersistence, err)
	}
	return nil
}

// CommitAlbum persists the album, its ledger entry, and removes the owning
// buffer in one transaction. Either all three happen or none do.
func (s *GormStore) CommitAlbum(a domain.Album) error {
	model, err := albumToModel(a)
	if err != nil {
		return err
	}
	err = s.db.Transaction(func(tx *gorm.DB) error {
		ledger := AccessTokenModel{Token: a.AccessToken, AlbumID: a.ID, IssuedAt: a.CreatedAt}
		if err := tx.Create(&ledger).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return domain.ErrTokenCollision
			}
			return err
		}
		if err := tx.Create(&model).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return domain.ErrTokenCollision
			}
			return err
		}
		return tx.Delete(&BufferModel{}, "user_id = ?", a.UserID).Error
	})
	if err != nil {
		if errors.Is(err, domain.ErrTokenCollision) {
			return domain.ErrTokenCollision
		}
		return fmt.Errorf("%w: commit album: %v", domain.ErrPersistence, err)
	}
	return nil
}

func bufferToModel(b domain.UserBuffer) (BufferModel, error) {
	payload, err := json.Marshal(bufferGroups{Sealed: b.Sealed, Open: b.Open})
	if err != nil {
		return BufferModel{}, fmt.Errorf("%w: encode buffer groups: %v", domain.ErrPersistence, err)
	}
	return BufferModel{
		UserID:         b.UserID,
		State:          string(b.State),
		Groups:         payload,
		CreatedAt:      b.CreatedAt.UTC(),
		LastActivityAt: b.LastActivityAt.UTC(),
	}, nil
}

func bufferFromModel(m BufferModel) (domain.UserBuffer, error) {
	var groups bufferGroups
	if err := json.Unmarshal(m.Groups, &groups); err != nil {
		return domain.UserBuffer{}, fmt.Errorf("%w: decode buffer groups: %v", domain.ErrPersistence, err)
	}
	return domain.UserBuffer{
		UserID:         m.UserID,
		State:          domain.BufferState(m.State),
		Sealed:         groups.Sealed,
		Open:           groups.Open,
		CreatedAt:      m.CreatedAt,
		LastActivityAt: m.LastActivityAt,
	}, nil
}

func albumToModel(a domain.Album) (AlbumModel, error) {
	payload, err := json.Marshal(a.Groups)
	if err != nil {
		return AlbumModel{}, fmt.Errorf("%w: encode album groups: %v", domain.ErrPersistence, err)
	}
	return AlbumModel{
		ID:          a.ID,
		UserID:      a.UserID,
		AccessToken: a.AccessToken,
		Groups:      payload,
		CreatedAt:   a.CreatedAt.UTC(),
		ExpiresAt:   a.ExpiresAt.UTC(),
	}, nil
}

func albumFromModel(m AlbumModel) (domain.Album, error) {
	var groups []domain.MediaGroup
	if err := json.Unmarshal(m.Groups, &groups); err != nil {
		return domain.Album{}, fmt.Errorf("%w: decode album groups: %v", domain.ErrPersistence, err)
	}
	return domain.Album{
		ID:          m.ID,
		UserID:      m.UserID,
		AccessToken: m.AccessToken,
		Groups:      groups,
		CreatedAt:   m.CreatedAt,
		ExpiresAt:   m.ExpiresAt,
	}, nil
}

func albumsFromModels(models []AlbumModel) ([]domain.Album, error) {
	res := make([]domain.Album, 0, len(models))
	for _, m := range models {
		album, err := albumFromModel(m)
		if err != nil {
			return nil, err
		}
		res = append(res, album)
	}
	return res, nil
}
