package events

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewEvent(t *testing.T) {
	e := NewEvent(KindRoleUpdated, "u1", map[string]any{"newRole": "ngo"})

	assert.NotEmpty(t, e.ID)
	assert.Equal(t, KindRoleUpdated, e.Kind)
	assert.Equal(t, "u1", e.UserID)
	assert.False(t, e.OccurredAt.IsZero())

	raw, err := json.Marshal(e)
	require.NoError(t, err)

	var wire map[string]any
	require.NoError(t, json.Unmarshal(raw, &wire))
	assert.Equal(t, "role-updated", wire["kind"])
	assert.Equal(t, "u1", wire["userId"])
	assert.Equal(t, map[string]any{"newRole": "ngo"}, wire["payload"])
}

func TestNewEvent_UniqueIDs(t *testing.T) {
	a := NewEvent(KindStatusUpdated, "u1", nil)
	b := NewEvent(KindStatusUpdated, "u1", nil)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestNopPublisher(t *testing.T) {
	ctx := context.Background()
	e := NewEvent(KindStatusUpdated, "u1", nil)

	assert.NoError(t, NopPublisher{}.Publish(ctx, e))
	assert.NoError(t, NopPublisher{Logger: zap.NewNop()}.Publish(ctx, e))
}
