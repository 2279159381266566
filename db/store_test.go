package db

import (
	"testing"
	"time"

	"carbonledger/models"

	"github.com/stretchr/testify/assert"
)

func TestFieldDataFilter_Matches(t *testing.T) {
	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	d := &models.FieldData{
		OwnerID:   "alice",
		Status:    models.StatusSubmitted,
		CreatedAt: created,
	}
	d.ProjectID = ptr("proj-1")

	before, after := created.Add(-time.Hour), created.Add(time.Hour)

	tests := []struct {
		name   string
		filter FieldDataFilter
		want   bool
	}{
		{"empty", FieldDataFilter{}, true},
		{"status", FieldDataFilter{Status: models.StatusSubmitted}, true},
		{"other status", FieldDataFilter{Status: models.StatusDraft}, false},
		{"project", FieldDataFilter{ProjectID: "proj-1"}, true},
		{"other project", FieldDataFilter{ProjectID: "proj-2"}, false},
		{"owner", FieldDataFilter{OwnerID: "alice"}, true},
		{"other owner", FieldDataFilter{OwnerID: "bob"}, false},
		{"inclusive bounds", FieldDataFilter{From: &created, To: &created}, true},
		{"window", FieldDataFilter{From: &before, To: &after}, true},
		{"too early", FieldDataFilter{From: &after}, false},
		{"too late", FieldDataFilter{To: &before}, false},
		{"combined", FieldDataFilter{Status: models.StatusSubmitted, ProjectID: "proj-1", OwnerID: "alice"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filter.Matches(d))
		})
	}

	assert.False(t, FieldDataFilter{ProjectID: "proj-1"}.Matches(&models.FieldData{}))
}

func TestDraftIndexValid(t *testing.T) {
	key := DraftKey{OwnerID: "alice", PlotID: "P1"}
	d := &models.FieldData{OwnerID: "alice", Status: models.StatusDraft}
	d.PlotID = ptr("P1")

	assert.True(t, draftIndexValid(key, d))
	assert.False(t, draftIndexValid(key, nil))
	assert.False(t, draftIndexValid(DraftKey{OwnerID: "alice"}, d))

	d.Status = models.StatusSubmitted
	assert.False(t, draftIndexValid(key, d))
}
