package authz

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"mediavault/pkg/domain"
)

// Authorizer answers whether a user may create albums right now. The
// collection core consults it before any buffer mutation.
type Authorizer interface {
	IsAuthorized(ctx context.Context, userID string, now time.Time) (bool, error)
}

// Store manages authorization records. Grants and revocations come from the
// admin surface; the collector only reads.
type Store interface {
	Authorizer
	Grant(userID, grantedBy string, d time.Duration) (domain.AuthorizationRecord, error)
	Revoke(userID string) error
	Get(userID string) (domain.AuthorizationRecord, bool, error)
	ListActive() ([]domain.AuthorizationRecord, error)
	ListExpiring(now time.Time, within time.Duration) ([]domain.AuthorizationRecord, error)
	MarkReminderSent(userID string) error
}

// AuthorizationModel is the GORM row backing a user's permission window.
type AuthorizationModel struct {
	UserID       string    `gorm:"primaryKey"`
	GrantedBy    string    `gorm:"not null"`
	StartsAt     time.Time `gorm:"not null"`
	ExpiresAt    time.Time `gorm:"not null;index"`
	Active       bool      `gorm:"not null;index"`
	ReminderSent bool      `gorm:"not null"`
	CreatedAt    time.Time `gorm:"not null"`
}

// GormStore implements Store on Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore runs migrations and returns the store. It shares the
// collector's DB handle; authz has its own table.
func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(&AuthorizationModel{}); err != nil {
		return nil, fmt.Errorf("auto migrate authz: %w", err)
	}
	return &GormStore{db: db}, nil
}

// IsAuthorized reports whether the user holds an active, unexpired grant.
func (s *GormStore) IsAuthorized(ctx context.Context, userID string, now time.Time) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&AuthorizationModel{}).
		Where("user_id = ? AND active = ? AND expires_at > ?", userID, true, now.UTC()).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("%w: check authorization: %v", domain.ErrPersistence, err)
	}
	return count > 0, nil
}

// Grant creates or refreshes a user's permission window.
func (s *GormStore) Grant(userID, grantedBy string, d time.Duration) (domain.AuthorizationRecord, error) {
	now := time.Now().UTC()
	model := AuthorizationModel{
		UserID:       userID,
		GrantedBy:    grantedBy,
		StartsAt:     now,
		ExpiresAt:    now.Add(d),
		Active:       true,
		ReminderSent: false,
		CreatedAt:    now,
	}
	err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"granted_by", "starts_at", "expires_at", "active", "reminder_sent", "created_at"}),
	}).Create(&model).Error
	if err != nil {
		return domain.AuthorizationRecord{}, fmt.Errorf("%w: grant authorization: %v", domain.ErrPersistence, err)
	}
	return recordFromModel(model), nil
}

// Revoke deactivates a user's grant.
func (s *GormStore) Revoke(userID string) error {
	res := s.db.Model(&AuthorizationModel{}).
		Where("user_id = ?", userID).
		Update("active", false)
	if res.Error != nil {
		return fmt.Errorf("%w: revoke authorization: %v", domain.ErrPersistence, res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Get returns a user's record.
func (s *GormStore) Get(userID string) (domain.AuthorizationRecord, bool, error) {
	var model AuthorizationModel
	if err := s.db.First(&model, "user_id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.AuthorizationRecord{}, false, nil
		}
		return domain.AuthorizationRecord{}, false, fmt.Errorf("%w: get authorization: %v", domain.ErrPersistence, err)
	}
	return recordFromModel(model), true, nil
}

// ListActive returns active grants ordered by soonest expiry.
func (s *GormStore) ListActive() ([]domain.AuthorizationRecord, error) {
	var models []AuthorizationModel
	if err := s.db.Where("active = ?", true).Order("expires_at ASC").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("%w: list authorizations: %v", domain.ErrPersistence, err)
	}
	return recordsFromModels(models), nil
}

// ListExpiring returns active grants expiring inside the window that have
// not been reminded yet.
func (s *GormStore) ListExpiring(now time.Time, within time.Duration) ([]domain.AuthorizationRecord, error) {
	var models []AuthorizationModel
	err := s.db.Where(
		"active = ? AND reminder_sent = ? AND expires_at > ? AND expires_at <= ?",
		true, false, now.UTC(), now.UTC().Add(within),
	).Order("expires_at ASC").Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("%w: list expiring authorizations: %v", domain.ErrPersistence, err)
	}
	return recordsFromModels(models), nil
}

// MarkReminderSent flags the record so the reminder fires once.
func (s *GormStore) MarkReminderSent(userID string) error {
	res := s.db.Model(&AuthorizationModel{}).
		Where("user_id = ?", userID).
		Update("reminder_sent", true)
	if res.Error != nil {
		return fmt.Errorf("%w: mark reminder sent: %v", domain.ErrPersistence, res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func recordFromModel(m AuthorizationModel) domain.AuthorizationRecord {
	return domain.AuthorizationRecord{
		UserID:       m.UserID,
		GrantedBy:    m.GrantedBy,
		StartsAt:     m.StartsAt,
		ExpiresAt:    m.ExpiresAt,
		Active:       m.Active,
		ReminderSent: m.ReminderSent,
		CreatedAt:    m.CreatedAt,
	}
}

func recordsFromModels(models []AuthorizationModel) []domain.AuthorizationRecord {
	res := make([]domain.AuthorizationRecord, 0, len(models))
	for _, m := range models {
		res = append(res, recordFromModel(m))
	}
	return res
}
