package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"carbonledger/db"
	"carbonledger/events"
	"carbonledger/models"

	"go.uber.org/zap"
)

const invalidRoleMessage = "Invalid role. Must be one of: user, ngo, admin, verifier"

// UserService manages identities and publishes their lifecycle events.
type UserService struct {
	users     db.UserStore
	directory *Directory
	publisher events.Publisher
	audit     *AuditLogger
	logger    *zap.Logger
}

func NewUserService(users db.UserStore, directory *Directory, publisher events.Publisher, audit *AuditLogger, logger *zap.Logger) *UserService {
	if publisher == nil {
		publisher = events.NopPublisher{Logger: logger}
	}
	return &UserService{
		users:     users,
		directory: directory,
		publisher: publisher,
		audit:     audit,
		logger:    logger,
	}
}

// List returns every user. Admins only.
func (s *UserService) List(ctx context.Context, caller Caller) ([]models.User, error) {
	if !caller.Role.IsAdmin() {
		return nil, forbidden("Not authorized to manage users")
	}
	users, err := s.users.GetAllUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return users, nil
}

// Get returns one user.
func (s *UserService) Get(ctx context.Context, id string) (*models.User, error) {
	return s.directory.User(ctx, id)
}

// UpdateRole changes a user's role. Admins only.
func (s *UserService) UpdateRole(ctx context.Context, caller Caller, id, role string) (*models.User, error) {
	if !caller.Role.IsAdmin() {
		return nil, forbidden("Not authorized to manage users")
	}
	newRole := models.Role(strings.TrimSpace(role))
	if !newRole.Valid() {
		return nil, &ValidationError{Message: invalidRoleMessage}
	}

	var oldRole models.Role
	user, err := s.users.UpdateUser(ctx, id, func(u *models.User) error {
		oldRole = u.Role
		u.Role = newRole
		return nil
	})
	if errors.Is(err, db.ErrNotFound) {
		return nil, notFound("User not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update user role: %w", err)
	}

	s.directory.Invalidate(ctx, id)
	s.publish(ctx, events.NewEvent(events.KindRoleUpdated, id, map[string]any{
		"userId":    id,
		"oldRole":   oldRole,
		"newRole":   newRole,
		"updatedAt": user.UpdatedAt.UTC().Format(time.RFC3339),
	}))
	s.audit.Record(ctx, caller.ID, ActionUserRoleUpdate, fmt.Sprintf("Changed role of %s from %s to %s", id, oldRole, newRole))

	return user, nil
}

// ToggleStatus flips a user between active and inactive. Admins only.
func (s *UserService) ToggleStatus(ctx context.Context, caller Caller, id string) (*models.User, error) {
	if !caller.Role.IsAdmin() {
		return nil, forbidden("Not authorized to manage users")
	}

	user, err := s.users.UpdateUser(ctx, id, func(u *models.User) error {
		u.IsActive = !u.IsActive
		return nil
	})
	if errors.Is(err, db.ErrNotFound) {
		return nil, notFound("User not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update user status: %w", err)
	}

	s.directory.Invalidate(ctx, id)
	s.publish(ctx, events.NewEvent(events.KindStatusUpdated, id, map[string]any{
		"userId":    id,
		"isActive":  user.IsActive,
		"updatedAt": user.UpdatedAt.UTC().Format(time.RFC3339),
	}))
	s.audit.Record(ctx, caller.ID, ActionUserStatusFlip, fmt.Sprintf("Set %s active=%t", id, user.IsActive))

	return user, nil
}

func (s *UserService) publish(ctx context.Context, event events.Event) {
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Error("failed to publish user event",
			zap.String("kind", string(event.Kind)),
			zap.String("user_id", event.UserID),
			zap.Error(err),
		)
	}
}
