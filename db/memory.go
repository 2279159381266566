package db

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"carbonledger/models"

	"github.com/google/uuid"
)

// MemoryDB is an in-process Store used for local development and tests.
type MemoryDB struct {
	mu sync.RWMutex

	fieldData map[string]*models.FieldData
	seq       map[string]uint64 // insertion order, breaks created_at ties
	drafts    map[DraftKey]string
	users     map[string]models.User
	auditLogs []models.AuditLog

	next uint64
	now  func() time.Time
}

// NewMemoryDB returns an empty in-memory store.
func NewMemoryDB() *MemoryDB {
	return &MemoryDB{
		fieldData: make(map[string]*models.FieldData),
		seq:       make(map[string]uint64),
		drafts:    make(map[DraftKey]string),
		users:     make(map[string]models.User),
		now:       time.Now,
	}
}

// SetClock replaces the time source used for created_at / updated_at.
func (m *MemoryDB) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

func (m *MemoryDB) Close() error { return nil }

// --- Field data ---

func (m *MemoryDB) UpsertDraft(ctx context.Context, key DraftKey, mutate DraftMutation) (*models.FieldData, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var existing *models.FieldData
	if id, ok := m.drafts[key]; ok {
		if d := m.fieldData[id]; draftIndexValid(key, d) {
			existing = d.Clone()
		} else {
			delete(m.drafts, key)
		}
	}

	doc, err := mutate(existing)
	if err != nil {
		return nil, err
	}
	doc = doc.Clone()

	now := m.now()
	if existing != nil {
		doc.ID = existing.ID
		doc.CreatedAt = existing.CreatedAt
	} else {
		doc.ID = uuid.NewString()
		doc.CreatedAt = now
		m.next++
		m.seq[doc.ID] = m.next
	}
	doc.UpdatedAt = now
	m.fieldData[doc.ID] = doc

	if doc.Status == models.StatusDraft {
		m.drafts[key] = doc.ID
	} else {
		delete(m.drafts, key)
	}

	return doc.Clone(), nil
}

func (m *MemoryDB) GetFieldData(ctx context.Context, id string) (*models.FieldData, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	d, ok := m.fieldData[id]
	if !ok {
		return nil, fmt.Errorf("failed to get field data %s: %w", id, ErrNotFound)
	}
	return d.Clone(), nil
}

func (m *MemoryDB) ListFieldData(ctx context.Context, filter FieldDataFilter) ([]*models.FieldData, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	results := []*models.FieldData{}
	for _, d := range m.fieldData {
		if filter.Matches(d) {
			results = append(results, d.Clone())
		}
	}

	sort.Slice(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return m.seq[a.ID] > m.seq[b.ID]
	})
	return results, nil
}

func (m *MemoryDB) UpdateFieldData(ctx context.Context, id string, mutate func(d *models.FieldData) error) (*models.FieldData, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.fieldData[id]
	if !ok {
		return nil, fmt.Errorf("failed to update field data %s: %w", id, ErrNotFound)
	}
	oldKey := draftKeyOf(current)

	doc := current.Clone()
	if err := mutate(doc); err != nil {
		return nil, err
	}
	doc.ID = id
	newKey := draftKeyOf(doc)
	isDraft := doc.Status == models.StatusDraft

	if isDraft {
		if held, ok := m.drafts[newKey]; ok && held != id && draftIndexValid(newKey, m.fieldData[held]) {
			return nil, fmt.Errorf("failed to update field data %s: %w", id, ErrDraftConflict)
		}
	}

	doc.UpdatedAt = m.now()
	m.fieldData[id] = doc

	if m.drafts[oldKey] == id && (oldKey != newKey || !isDraft) {
		delete(m.drafts, oldKey)
	}
	if isDraft {
		m.drafts[newKey] = id
	}

	return doc.Clone(), nil
}

func (m *MemoryDB) DeleteFieldData(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.fieldData[id]
	if !ok {
		return fmt.Errorf("failed to delete field data %s: %w", id, ErrNotFound)
	}
	key := draftKeyOf(d)
	if m.drafts[key] == id {
		delete(m.drafts, key)
	}
	delete(m.fieldData, id)
	delete(m.seq, id)
	return nil
}

// --- Users ---

func (m *MemoryDB) CreateUser(ctx context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[user.UserID] = *user
	return nil
}

func (m *MemoryDB) GetUser(ctx context.Context, userID string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	user, ok := m.users[userID]
	if !ok {
		return nil, fmt.Errorf("failed to get user %s: %w", userID, ErrNotFound)
	}
	return &user, nil
}

func (m *MemoryDB) GetAllUsers(ctx context.Context) ([]models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	users := make([]models.User, 0, len(m.users))
	for _, u := range m.users {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].UserID < users[j].UserID })
	return users, nil
}

func (m *MemoryDB) UpdateUser(ctx context.Context, userID string, mutate func(u *models.User) error) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	user, ok := m.users[userID]
	if !ok {
		return nil, fmt.Errorf("failed to update user %s: %w", userID, ErrNotFound)
	}
	if err := mutate(&user); err != nil {
		return nil, err
	}
	user.UserID = userID
	user.UpdatedAt = m.now()
	m.users[userID] = user
	return &user, nil
}

// --- Audit ---

func (m *MemoryDB) CreateAuditLog(ctx context.Context, entry *models.AuditLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.auditLogs = append(m.auditLogs, *entry)
	return nil
}

// AuditLogs returns a copy of the recorded audit entries.
func (m *MemoryDB) AuditLogs() []models.AuditLog {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]models.AuditLog(nil), m.auditLogs...)
}
