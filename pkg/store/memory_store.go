package store

import (
	"sync"
	"time"

	"mediavault/pkg/domain"
)

// MemoryStore keeps buffers and albums in-process. It backs tests and local
// development; records are deep-copied on the way in and out so callers
// never share group slices with the store.
type MemoryStore struct {
	mu      sync.RWMutex
	buffers map[string]domain.UserBuffer
	albums  map[string]domain.Album
	byToken map[string]string // access token -> album ID
	ledger  map[string]string // every token ever issued -> album ID
	order   []string          // buffer insertion order
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		buffers: make(map[string]domain.UserBuffer),
		albums:  make(map[string]domain.Album),
		byToken: make(map[string]string),
		ledger:  make(map[string]string),
	}
}

// SaveBuffer stores or replaces a buffer and tracks insertion order.
func (m *MemoryStore) SaveBuffer(b domain.UserBuffer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.buffers[b.UserID]; !exists {
		m.order = append(m.order, b.UserID)
	}
	m.buffers[b.UserID] = copyBuffer(b)
	return nil
}

// LoadAllBuffers returns buffers in insertion order.
func (m *MemoryStore) LoadAllBuffers() ([]domain.UserBuffer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.UserBuffer, 0, len(m.order))
	for _, id := range m.order {
		if b, ok := m.buffers[id]; ok {
			res = append(res, copyBuffer(b))
		}
	}
	return res, nil
}

// DeleteBuffer removes a buffer.
func (m *MemoryStore) DeleteBuffer(userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteBufferLocked(userID)
	return nil
}

// SaveAlbum inserts an album.
func (m *MemoryStore) SaveAlbum(a domain.Album) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.albums[a.ID] = copyAlbum(a)
	m.byToken[a.AccessToken] = a.ID
	return nil
}

// GetAlbum retrieves an album by ID.
func (m *MemoryStore) GetAlbum(id string) (domain.Album, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.albums[id]
	if !ok {
		return domain.Album{}, false, nil
	}
	return copyAlbum(a), true, nil
}

// GetAlbumByToken retrieves an album through its access token.
func (m *MemoryStore) GetAlbumByToken(token string) (domain.Album, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byToken[token]
	if !ok {
		return domain.Album{}, false, nil
	}
	a, exists := m.albums[id]
	if !exists {
		return domain.Album{}, false, nil
	}
	return copyAlbum(a), true, nil
}

// ListAlbumsByOwner returns a user's albums.
func (m *MemoryStore) ListAlbumsByOwner(userID string) ([]domain.Album, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var res []domain.Album
	for _, a := range m.albums {
		if a.UserID == userID {
			res = append(res, copyAlbum(a))
		}
	}
	return res, nil
}

// ListExpiredAlbums returns albums past their TTL at now.
func (m *MemoryStore) ListExpiredAlbums(now time.Time) ([]domain.Album, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var res []domain.Album
	for _, a := range m.albums {
		if a.Expired(now) {
			res = append(res, copyAlbum(a))
		}
	}
	return res, nil
}

// DeleteAlbum removes the album but keeps its ledger entry.
func (m *MemoryStore) DeleteAlbum(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.albums[id]; ok {
		delete(m.byToken, a.AccessToken)
		delete(m.albums, id)
	}
	return nil
}

// CommitAlbum atomically inserts the album, records the token, and drops
// the owning buffer.
func (m *MemoryStore) CommitAlbum(a domain.Album) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, taken := m.ledger[a.AccessToken]; taken {
		return domain.ErrTokenCollision
	}
	m.ledger[a.AccessToken] = a.ID
	m.albums[a.ID] = copyAlbum(a)
	m.byToken[a.AccessToken] = a.ID
	m.deleteBufferLocked(a.UserID)
	return nil
}

// ReserveToken marks a token as already issued. Tests use it to force
// collision retries.
func (m *MemoryStore) ReserveToken(token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ledger[token] = "reserved"
}

func (m *MemoryStore) deleteBufferLocked(userID string) {
	delete(m.buffers, userID)
	filtered := m.order[:0]
	for _, id := range m.order {
		if id != userID {
			filtered = append(filtered, id)
		}
	}
	m.order = filtered
}

func copyBuffer(b domain.UserBuffer) domain.UserBuffer {
	b.Sealed = copyGroups(b.Sealed)
	b.Open = copyGroup(b.Open)
	return b
}

func copyAlbum(a domain.Album) domain.Album {
	a.Groups = copyGroups(a.Groups)
	return a
}

func copyGroups(groups []domain.MediaGroup) []domain.MediaGroup {
	if groups == nil {
		return nil
	}
	res := make([]domain.MediaGroup, len(groups))
	for i, g := range groups {
		res[i] = copyGroup(g)
	}
	return res
}

func copyGroup(g domain.MediaGroup) domain.MediaGroup {
	if g.Items != nil {
		items := make([]domain.MediaItem, len(g.Items))
		copy(items, g.Items)
		g.Items = items
	}
	return g
}
