package services

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoerceNumber(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want float64
		ok   bool
	}{
		{"float", 1.5, 1.5, true},
		{"int", 3, 3, true},
		{"numeric string", " 7.25 ", 7.25, true},
		{"json number", json.Number("42"), 42, true},
		{"true", true, 1, true},
		{"false", false, 0, true},
		{"word", "seven", 0, false},
		{"nan", "NaN", 0, false},
		{"list", []any{1}, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := coerceNumber(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCoerceDate(t *testing.T) {
	want := time.Date(2024, 5, 6, 0, 0, 0, 0, time.UTC)

	for _, in := range []any{"2024-05-06", "2024-05-06T00:00", "2024-05-06T00:00:00Z", "2024-05-06T03:00:00+03:00", float64(want.UnixMilli())} {
		got, ok := coerceDate(in)
		require.True(t, ok, "%v", in)
		assert.True(t, want.Equal(got), "%v", in)
	}

	_, ok := coerceDate("06/05/2024")
	assert.False(t, ok)
}

func TestFieldParser_BlankAndNullAreAbsent(t *testing.T) {
	p := newFieldParser(Input{"species": "", "dbh": nil, "soilPh": "   "})
	s := p.survey()

	assert.Nil(t, s.Species)
	assert.Nil(t, s.DBH)
	assert.Nil(t, s.SoilPH)
	assert.NoError(t, p.validationError())
	assert.True(t, p.isNull("dbh"))
	assert.False(t, p.isNull("species"))
}

func TestFieldParser_CanonicalWinsOverAlias(t *testing.T) {
	p := newFieldParser(Input{"soilOrganicCarbon": 1.1, "soc": 9.9, "waterTemp": "30"})
	s := p.survey()

	assert.InDelta(t, 1.1, *s.SoilOrganicCarbon, 1e-9)
	assert.InDelta(t, 30, *s.WaterTemperature, 1e-9)
}

func TestFieldParser_StringsAcceptScalars(t *testing.T) {
	p := newFieldParser(Input{"plotId": 17, "species": true, "plotNotes": "  near creek  "})
	s := p.survey()

	assert.Equal(t, "17", *s.PlotID)
	assert.Equal(t, "true", *s.Species)
	assert.Equal(t, "near creek", *s.PlotNotes)
}

func TestFieldParser_Photos(t *testing.T) {
	t.Run("object", func(t *testing.T) {
		p := newFieldParser(Input{"photos": map[string]any{"east": "e", "additional": []any{"a", "", nil, "b"}}})
		s := p.survey()
		require.NoError(t, p.validationError())
		assert.Equal(t, "e", s.Photos.East)
		assert.Equal(t, []string{"a", "b"}, s.Photos.Additional)
	})

	t.Run("json string", func(t *testing.T) {
		p := newFieldParser(Input{"photos": `{"west":"w"}`})
		s := p.survey()
		require.NoError(t, p.validationError())
		assert.Equal(t, "w", s.Photos.West)
	})

	t.Run("malformed", func(t *testing.T) {
		p := newFieldParser(Input{"photos": `{"west":`})
		s := p.survey()
		assert.Nil(t, s.Photos)
		assert.Error(t, p.validationError())
	})

	t.Run("wrong slot type", func(t *testing.T) {
		p := newFieldParser(Input{"photos": map[string]any{"north": 5}})
		p.survey()
		var verr *ValidationError
		require.ErrorAs(t, p.validationError(), &verr)
		assert.Equal(t, []string{"photos.north must be a string"}, verr.Errors)
	})
}
