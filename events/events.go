package events

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Kind names a user lifecycle event.
type Kind string

const (
	KindRoleUpdated   Kind = "role-updated"
	KindStatusUpdated Kind = "status-updated"
)

// UserQueue is the queue user lifecycle events are published to.
const UserQueue = "user_events"

// Event is a user lifecycle notification.
type Event struct {
	ID         string         `json:"id"`
	Kind       Kind           `json:"kind"`
	UserID     string         `json:"userId"`
	Payload    map[string]any `json:"payload"`
	OccurredAt time.Time      `json:"occurredAt"`
}

// NewEvent stamps a fresh event.
func NewEvent(kind Kind, userID string, payload map[string]any) Event {
	return Event{
		ID:         uuid.NewString(),
		Kind:       kind,
		UserID:     userID,
		Payload:    payload,
		OccurredAt: time.Now().UTC(),
	}
}

// Publisher delivers events to interested consumers.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// NopPublisher drops events after logging them. Used when no broker is configured.
type NopPublisher struct {
	Logger *zap.Logger
}

func (p NopPublisher) Publish(ctx context.Context, event Event) error {
	if p.Logger != nil {
		p.Logger.Debug("event dropped, no broker configured",
			zap.String("kind", string(event.Kind)),
			zap.String("user_id", event.UserID),
		)
	}
	return nil
}
