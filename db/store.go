package db

import (
	"context"
	"errors"
	"time"

	"carbonledger/models"
)

// ErrNotFound is returned when a document does not exist.
var ErrNotFound = errors.New("not found")

// ErrDraftConflict is returned when an update would leave a second live
// draft for the same owner and plot.
var ErrDraftConflict = errors.New("draft already exists for this owner and plot")

// FieldDataFilter narrows a field data listing. Zero values do not filter.
type FieldDataFilter struct {
	Status    models.Status
	ProjectID string
	OwnerID   string
	From      *time.Time // inclusive lower bound on created_at
	To        *time.Time // inclusive upper bound on created_at
}

// Matches reports whether d satisfies every set filter.
func (f FieldDataFilter) Matches(d *models.FieldData) bool {
	if f.Status != "" && d.Status != f.Status {
		return false
	}
	if f.ProjectID != "" && (d.ProjectID == nil || *d.ProjectID != f.ProjectID) {
		return false
	}
	if f.OwnerID != "" && d.OwnerID != f.OwnerID {
		return false
	}
	if f.From != nil && d.CreatedAt.Before(*f.From) {
		return false
	}
	if f.To != nil && d.CreatedAt.After(*f.To) {
		return false
	}
	return true
}

// DraftKey identifies the single draft an owner may hold for a plot.
// An empty PlotID addresses the owner's draft without plot identity.
type DraftKey struct {
	OwnerID string
	PlotID  string
}

// DraftMutation receives the current draft for a key (nil when none exists)
// and returns the document to persist. It may run more than once when the
// backing store retries a transaction, so it must not have side effects.
type DraftMutation func(existing *models.FieldData) (*models.FieldData, error)

// FieldDataStore persists field survey records.
type FieldDataStore interface {
	// UpsertDraft atomically resolves the draft for key, applies mutate and
	// writes the result. The draft index follows the written status: a
	// draft result claims key, any other status releases it.
	UpsertDraft(ctx context.Context, key DraftKey, mutate DraftMutation) (*models.FieldData, error)
	GetFieldData(ctx context.Context, id string) (*models.FieldData, error)
	ListFieldData(ctx context.Context, filter FieldDataFilter) ([]*models.FieldData, error)
	// UpdateFieldData runs a read-modify-write of one record atomically. The
	// draft index follows the result: the record's old key is released when
	// it stops being a draft under it, and a draft result claims its key or
	// fails with ErrDraftConflict when another draft holds it.
	UpdateFieldData(ctx context.Context, id string, mutate func(d *models.FieldData) error) (*models.FieldData, error)
	DeleteFieldData(ctx context.Context, id string) error
}

// UserStore persists user identities.
type UserStore interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUser(ctx context.Context, userID string) (*models.User, error)
	GetAllUsers(ctx context.Context) ([]models.User, error)
	UpdateUser(ctx context.Context, userID string, mutate func(u *models.User) error) (*models.User, error)
}

// AuditStore records audit events.
type AuditStore interface {
	CreateAuditLog(ctx context.Context, entry *models.AuditLog) error
}

// Store is the full persistence surface used by the API.
type Store interface {
	FieldDataStore
	UserStore
	AuditStore
	Close() error
}

func draftKeyOf(d *models.FieldData) DraftKey {
	return DraftKey{OwnerID: d.OwnerID, PlotID: d.PlotKey()}
}

// draftIndexValid reports whether an index entry for key still points at a
// live draft. Records changed through the update path can drift away from
// the key they were indexed under.
func draftIndexValid(key DraftKey, d *models.FieldData) bool {
	return d != nil && d.Status == models.StatusDraft && d.OwnerID == key.OwnerID && d.PlotKey() == key.PlotID
}
