package storage

import (
	"context"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/kmadaan/filevault/internal/models"
)

// MemoryStore is an in-memory stand-in for MongoStore, used in tests and
// when running without a database. Files keep insertion order so listing
// behaves like the real store.
type MemoryStore struct {
	mu    sync.RWMutex
	files []*models.File
	users []*models.User
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Ping always succeeds.
func (m *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

// CreateFile inserts a file record and fills in its generated id.
func (m *MemoryStore) CreateFile(ctx context.Context, file *models.File) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if file.ID.IsZero() {
		file.ID = primitive.NewObjectID()
	}
	if file.CreatedAt.IsZero() {
		file.CreatedAt = time.Now().UTC()
	}
	clone := *file
	m.files = append(m.files, &clone)
	return nil
}

// FileByID fetches a file record by id. A missing record is (nil, nil).
func (m *MemoryStore) FileByID(ctx context.Context, id primitive.ObjectID) (*models.File, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, f := range m.files {
		if f.ID == id {
			clone := *f
			return &clone, nil
		}
	}
	return nil, nil
}

// FileByIDForOwner fetches a file record matching both id and owner.
func (m *MemoryStore) FileByIDForOwner(ctx context.Context, id, owner primitive.ObjectID) (*models.File, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, f := range m.files {
		if f.ID == id && f.UserID == owner {
			clone := *f
			return &clone, nil
		}
	}
	return nil, nil
}

// ListFiles returns one page of the owner's files under the given parent.
func (m *MemoryStore) ListFiles(ctx context.Context, owner, parent primitive.ObjectID, page, pageSize int) ([]models.File, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	matched := []models.File{}
	for _, f := range m.files {
		if f.UserID == owner && f.ParentID == parent {
			matched = append(matched, *f)
		}
	}

	start := page * pageSize
	if start >= len(matched) {
		return []models.File{}, nil
	}
	end := start + pageSize
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], nil
}

// SetFilePublic flips the isPublic flag on a file record.
func (m *MemoryStore) SetFilePublic(ctx context.Context, id primitive.ObjectID, public bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, f := range m.files {
		if f.ID == id {
			f.IsPublic = public
			return nil
		}
	}
	return nil
}

// CountFiles returns the number of file records.
func (m *MemoryStore) CountFiles(ctx context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.files)), nil
}

// CreateUser inserts a user record and fills in its generated id.
func (m *MemoryStore) CreateUser(ctx context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if user.ID.IsZero() {
		user.ID = primitive.NewObjectID()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	clone := *user
	m.users = append(m.users, &clone)
	return nil
}

// UserByEmail fetches a user by email. A missing user is (nil, nil).
func (m *MemoryStore) UserByEmail(ctx context.Context, email string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, u := range m.users {
		if u.Email == email {
			clone := *u
			return &clone, nil
		}
	}
	return nil, nil
}

// UserByID fetches a user by id. A missing user is (nil, nil).
func (m *MemoryStore) UserByID(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, u := range m.users {
		if u.ID == id {
			clone := *u
			return &clone, nil
		}
	}
	return nil, nil
}

// CountUsers returns the number of user records.
func (m *MemoryStore) CountUsers(ctx context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.users)), nil
}

// MemorySessions is an in-memory session store with TTL expiry.
type MemorySessions struct {
	mu       sync.RWMutex
	sessions map[string]memorySession
}

type memorySession struct {
	userID    string
	expiresAt time.Time
}

// NewMemorySessions returns an empty in-memory session store.
func NewMemorySessions() *MemorySessions {
	return &MemorySessions{sessions: make(map[string]memorySession)}
}

// Ping always succeeds.
func (m *MemorySessions) Ping(ctx context.Context) error {
	return nil
}

// Session resolves a token to a user id, honoring expiry.
func (m *MemorySessions) Session(ctx context.Context, token string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[token]
	if !ok || time.Now().After(s.expiresAt) {
		return "", nil
	}
	return s.userID, nil
}

// SaveSession stores a token to user id mapping with the given TTL.
func (m *MemorySessions) SaveSession(ctx context.Context, token, userID string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[token] = memorySession{userID: userID, expiresAt: time.Now().Add(ttl)}
	return nil
}

// DeleteSession destroys a session token.
func (m *MemorySessions) DeleteSession(ctx context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, token)
	return nil
}
