// Package cache keeps short-lived copies of user identities so record views
// do not hit the user store once per reference.
package cache

import (
	"context"
	"errors"

	"carbonledger/models"
)

// ErrMiss is returned by Get when no entry exists.
var ErrMiss = errors.New("cache miss")

// IdentityCache stores users by id.
type IdentityCache interface {
	Get(ctx context.Context, userID string) (*models.User, error)
	Set(ctx context.Context, user *models.User) error
	Invalidate(ctx context.Context, userID string) error
}

// Nop never stores anything.
type Nop struct{}

func (Nop) Get(ctx context.Context, userID string) (*models.User, error) { return nil, ErrMiss }
func (Nop) Set(ctx context.Context, user *models.User) error            { return nil }
func (Nop) Invalidate(ctx context.Context, userID string) error         { return nil }
