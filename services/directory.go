package services

import (
	"context"
	"errors"
	"fmt"

	"carbonledger/cache"
	"carbonledger/db"
	"carbonledger/models"

	"go.uber.org/zap"
)

// Directory resolves user identities, reading through an IdentityCache.
type Directory struct {
	users  db.UserStore
	cache  cache.IdentityCache
	logger *zap.Logger
}

func NewDirectory(users db.UserStore, identities cache.IdentityCache, logger *zap.Logger) *Directory {
	if identities == nil {
		identities = cache.Nop{}
	}
	return &Directory{users: users, cache: identities, logger: logger}
}

// User returns the user with id. Missing users yield an error matching ErrNotFound.
func (d *Directory) User(ctx context.Context, id string) (*models.User, error) {
	user, err := d.cache.Get(ctx, id)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, cache.ErrMiss) {
		d.logger.Warn("identity cache read failed", zap.String("user_id", id), zap.Error(err))
	}

	user, err = d.users.GetUser(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		return nil, notFound("User not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user %s: %w", id, err)
	}

	if err := d.cache.Set(ctx, user); err != nil {
		d.logger.Warn("identity cache write failed", zap.String("user_id", id), zap.Error(err))
	}
	return user, nil
}

// Invalidate drops the cached copy of a user.
func (d *Directory) Invalidate(ctx context.Context, id string) {
	if err := d.cache.Invalidate(ctx, id); err != nil {
		d.logger.Warn("identity cache invalidate failed", zap.String("user_id", id), zap.Error(err))
	}
}

// FieldDataView is a record with submitter and verifier expanded to display identities.
type FieldDataView struct {
	models.FieldData
	SubmittedBy *models.UserRef `json:"submittedBy"`
	VerifiedBy  *models.UserRef `json:"verifiedBy,omitempty"`
}

// Expand builds views for docs, looking each distinct user up once.
// References to users that no longer exist expand to null.
func (d *Directory) Expand(ctx context.Context, docs ...*models.FieldData) ([]*FieldDataView, error) {
	refs := map[string]*models.UserRef{}
	resolve := func(id string) (*models.UserRef, error) {
		if id == "" {
			return nil, nil
		}
		if ref, ok := refs[id]; ok {
			return ref, nil
		}
		user, err := d.User(ctx, id)
		if errors.Is(err, ErrNotFound) {
			refs[id] = nil
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		ref := user.Ref()
		refs[id] = ref
		return ref, nil
	}

	views := make([]*FieldDataView, 0, len(docs))
	for _, doc := range docs {
		submitter, err := resolve(doc.OwnerID)
		if err != nil {
			return nil, err
		}
		verifier, err := resolve(doc.VerifierID)
		if err != nil {
			return nil, err
		}
		views = append(views, &FieldDataView{FieldData: *doc, SubmittedBy: submitter, VerifiedBy: verifier})
	}
	return views, nil
}

func (d *Directory) expandOne(ctx context.Context, doc *models.FieldData) (*FieldDataView, error) {
	views, err := d.Expand(ctx, doc)
	if err != nil {
		return nil, err
	}
	return views[0], nil
}
