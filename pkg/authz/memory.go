package authz

import (
	"context"
	"sort"
	"sync"
	"time"

	"mediavault/pkg/domain"
)

// MemoryStore implements Store in memory, mirroring GormStore semantics for
// tests.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]domain.AuthorizationRecord
	clock   func() time.Time
}

// NewMemoryStore returns an empty in-memory authorization store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]domain.AuthorizationRecord),
		clock:   func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the grant timestamp source for deterministic tests.
func (s *MemoryStore) SetClock(clock func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clock = clock
}

func (s *MemoryStore) IsAuthorized(_ context.Context, userID string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[userID]
	return ok && rec.Valid(now), nil
}

func (s *MemoryStore) Grant(userID, grantedBy string, d time.Duration) (domain.AuthorizationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock()
	rec := domain.AuthorizationRecord{
		UserID:    userID,
		GrantedBy: grantedBy,
		StartsAt:  now,
		ExpiresAt: now.Add(d),
		Active:    true,
		CreatedAt: now,
	}
	s.records[userID] = rec
	return rec, nil
}

func (s *MemoryStore) Revoke(userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[userID]
	if !ok {
		return domain.ErrNotFound
	}
	rec.Active = false
	s.records[userID] = rec
	return nil
}

func (s *MemoryStore) Get(userID string) (domain.AuthorizationRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[userID]
	return rec, ok, nil
}

func (s *MemoryStore) ListActive() ([]domain.AuthorizationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var res []domain.AuthorizationRecord
	for _, rec := range s.records {
		if rec.Active {
			res = append(res, rec)
		}
	}
	sortByExpiry(res)
	return res, nil
}

func (s *MemoryStore) ListExpiring(now time.Time, within time.Duration) ([]domain.AuthorizationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := now.Add(within)
	var res []domain.AuthorizationRecord
	for _, rec := range s.records {
		if rec.Active && !rec.ReminderSent && rec.ExpiresAt.After(now) && !rec.ExpiresAt.After(cutoff) {
			res = append(res, rec)
		}
	}
	sortByExpiry(res)
	return res, nil
}

func (s *MemoryStore) MarkReminderSent(userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[userID]
	if !ok {
		return domain.ErrNotFound
	}
	rec.ReminderSent = true
	s.records[userID] = rec
	return nil
}

func sortByExpiry(recs []domain.AuthorizationRecord) {
	sort.Slice(recs, func(i, j int) bool {
		return recs[i].ExpiresAt.Before(recs[j].ExpiresAt)
	})
}
