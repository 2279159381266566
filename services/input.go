package services

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"carbonledger/models"
)

// Input is a loosely typed field set decoded from a request body. Numbers
// may arrive as strings; unknown keys are ignored.
type Input map[string]any

type fieldKind int

const (
	kindString fieldKind = iota
	kindTrimmed
	kindNumber
	kindDate
)

// surveyField describes one recognized survey attribute.
type surveyField struct {
	key   string
	alias string // legacy name read when key is absent
	kind  fieldKind
	str   func(s *models.Survey) **string
	num   func(s *models.Survey) **float64
	date  func(s *models.Survey) **time.Time
}

func (f surveyField) clear(s *models.Survey) {
	switch f.kind {
	case kindString, kindTrimmed:
		*f.str(s) = nil
	case kindNumber:
		*f.num(s) = nil
	case kindDate:
		*f.date(s) = nil
	}
}

func strField(key string, kind fieldKind, get func(s *models.Survey) **string) surveyField {
	return surveyField{key: key, kind: kind, str: get}
}

func numField(key, alias string, get func(s *models.Survey) **float64) surveyField {
	return surveyField{key: key, alias: alias, kind: kindNumber, num: get}
}

// surveyFields is the whitelist of attributes accepted on create and draft.
var surveyFields = []surveyField{
	// Basic
	strField("plotId", kindTrimmed, func(s *models.Survey) **string { return &s.PlotID }),
	{key: "collectionDate", kind: kindDate, date: func(s *models.Survey) **time.Time { return &s.CollectionDate }},
	numField("gpsLatitude", "", func(s *models.Survey) **float64 { return &s.GPSLatitude }),
	numField("gpsLongitude", "", func(s *models.Survey) **float64 { return &s.GPSLongitude }),
	strField("plotNotes", kindTrimmed, func(s *models.Survey) **string { return &s.PlotNotes }),
	strField("projectId", kindTrimmed, func(s *models.Survey) **string { return &s.ProjectID }),

	// Vegetation
	strField("species", kindString, func(s *models.Survey) **string { return &s.Species }),
	numField("dbh", "", func(s *models.Survey) **float64 { return &s.DBH }),
	numField("treeHeight", "", func(s *models.Survey) **float64 { return &s.TreeHeight }),
	numField("plotDensity", "", func(s *models.Survey) **float64 { return &s.PlotDensity }),
	numField("canopyCover", "", func(s *models.Survey) **float64 { return &s.CanopyCover }),
	numField("survivalRate", "", func(s *models.Survey) **float64 { return &s.SurvivalRate }),
	strField("vegetationNotes", kindString, func(s *models.Survey) **string { return &s.VegetationNotes }),

	// Soil
	numField("sampleDepth", "", func(s *models.Survey) **float64 { return &s.SampleDepth }),
	numField("bulkDensity", "", func(s *models.Survey) **float64 { return &s.BulkDensity }),
	numField("organicMatter", "", func(s *models.Survey) **float64 { return &s.OrganicMatter }),
	numField("soilOrganicCarbon", "soc", func(s *models.Survey) **float64 { return &s.SoilOrganicCarbon }),
	numField("soilPh", "", func(s *models.Survey) **float64 { return &s.SoilPH }),
	strField("soilTexture", kindString, func(s *models.Survey) **string { return &s.SoilTexture }),
	numField("soilMoisture", "", func(s *models.Survey) **float64 { return &s.SoilMoisture }),
	strField("soilLabResults", kindString, func(s *models.Survey) **string { return &s.SoilLabResults }),

	// Hydrology
	numField("waterTableDepth", "", func(s *models.Survey) **float64 { return &s.WaterTableDepth }),
	numField("salinity", "", func(s *models.Survey) **float64 { return &s.Salinity }),
	numField("waterPh", "", func(s *models.Survey) **float64 { return &s.WaterPH }),
	numField("waterTemperature", "waterTemp", func(s *models.Survey) **float64 { return &s.WaterTemperature }),
	numField("dissolvedOxygen", "", func(s *models.Survey) **float64 { return &s.DissolvedOxygen }),
	numField("tidalRange", "", func(s *models.Survey) **float64 { return &s.TidalRange }),
	strField("managementEvent", kindString, func(s *models.Survey) **string { return &s.ManagementEvent }),
	strField("hydrologyNotes", kindString, func(s *models.Survey) **string { return &s.HydrologyNotes }),

	strField("photoNotes", kindString, func(s *models.Survey) **string { return &s.PhotoNotes }),
}

// requiredOnSubmit lists the attributes a submission cannot omit.
var requiredOnSubmit = []string{"plotId", "collectionDate", "gpsLatitude", "gpsLongitude"}

// fieldParser coerces Input values, collecting every problem it meets.
type fieldParser struct {
	in      Input
	errs    []string
	invalid map[string]bool
}

func newFieldParser(in Input) *fieldParser {
	if in == nil {
		in = Input{}
	}
	return &fieldParser{in: in, invalid: map[string]bool{}}
}

func (p *fieldParser) fail(key, format string, args ...any) {
	p.invalid[key] = true
	p.errs = append(p.errs, fmt.Sprintf(format, args...))
}

func (p *fieldParser) validationError() error {
	if len(p.errs) == 0 {
		return nil
	}
	return &ValidationError{Message: "Validation error", Errors: p.errs}
}

// lookup returns the first of keys holding a usable value. Nil and blank
// strings count as absent.
func (p *fieldParser) lookup(keys ...string) (any, bool) {
	for _, k := range keys {
		if k == "" {
			continue
		}
		v, ok := p.in[k]
		if !ok || v == nil {
			continue
		}
		if s, isStr := v.(string); isStr && strings.TrimSpace(s) == "" {
			continue
		}
		return v, true
	}
	return nil, false
}

// isNull reports whether key was sent with an explicit null.
func (p *fieldParser) isNull(key string) bool {
	v, ok := p.in[key]
	return ok && v == nil
}

// survey decodes every whitelisted attribute present in the input.
func (p *fieldParser) survey() models.Survey {
	var s models.Survey
	for _, f := range surveyFields {
		raw, ok := p.lookup(f.key, f.alias)
		if !ok {
			continue
		}
		switch f.kind {
		case kindString, kindTrimmed:
			v, ok := coerceString(raw)
			if !ok {
				p.fail(f.key, "%s must be a string", f.key)
				continue
			}
			if f.kind == kindTrimmed {
				v = strings.TrimSpace(v)
			}
			*f.str(&s) = &v
		case kindNumber:
			v, ok := coerceNumber(raw)
			if !ok {
				p.fail(f.key, "%s must be a number", f.key)
				continue
			}
			*f.num(&s) = &v
		case kindDate:
			v, ok := coerceDate(raw)
			if !ok {
				p.fail(f.key, "%s must be a valid date", f.key)
				continue
			}
			*f.date(&s) = &v
		}
	}
	s.Photos = p.photos("photos")
	return s
}

// missing returns the required attributes absent from s, in declaration order.
// Attributes that were present but malformed are reported as invalid instead.
func (p *fieldParser) missing(s models.Survey) []string {
	var out []string
	for _, key := range requiredOnSubmit {
		if p.invalid[key] {
			continue
		}
		var absent bool
		switch key {
		case "plotId":
			absent = s.PlotID == nil || *s.PlotID == ""
		case "collectionDate":
			absent = s.CollectionDate == nil
		case "gpsLatitude":
			absent = s.GPSLatitude == nil
		case "gpsLongitude":
			absent = s.GPSLongitude == nil
		}
		if absent {
			out = append(out, key)
		}
	}
	return out
}

func (p *fieldParser) photos(key string) *models.Photos {
	raw, ok := p.lookup(key)
	if !ok {
		return nil
	}

	switch v := raw.(type) {
	case *models.Photos:
		return v.Clone()
	case models.Photos:
		return v.Clone()
	case string:
		var m map[string]any
		if err := json.Unmarshal([]byte(v), &m); err != nil {
			p.fail(key, "%s must be an object", key)
			return nil
		}
		raw = m
	}

	m, ok := raw.(map[string]any)
	if !ok {
		p.fail(key, "%s must be an object", key)
		return nil
	}

	photos := &models.Photos{}
	slots := []struct {
		name string
		dst  *string
	}{
		{"north", &photos.North},
		{"south", &photos.South},
		{"east", &photos.East},
		{"west", &photos.West},
	}
	for _, slot := range slots {
		v, present := m[slot.name]
		if !present || v == nil {
			continue
		}
		s, isStr := v.(string)
		if !isStr {
			p.fail(key, "%s.%s must be a string", key, slot.name)
			continue
		}
		*slot.dst = s
	}

	switch extra := m["additional"].(type) {
	case nil:
	case []string:
		photos.Additional = compact(extra)
	case []any:
		for _, item := range extra {
			s, isStr := item.(string)
			if item != nil && !isStr {
				p.fail(key, "%s.additional must contain strings", key)
				break
			}
			if s != "" {
				photos.Additional = append(photos.Additional, s)
			}
		}
	default:
		p.fail(key, "%s.additional must be a list", key)
	}

	return photos
}

func coerceString(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case json.Number:
		return t.String(), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case int:
		return strconv.Itoa(t), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case bool:
		return strconv.FormatBool(t), true
	}
	return "", false
}

func coerceNumber(v any) (float64, bool) {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case float32:
		f = float64(t)
	case int:
		f = float64(t)
	case int64:
		f = float64(t)
	case json.Number:
		n, err := t.Float64()
		if err != nil {
			return 0, false
		}
		f = n
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false
		}
		f = n
	case bool:
		if t {
			f = 1
		}
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// parseDate accepts RFC 3339 timestamps, calendar dates and local date-times (read as UTC).
func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

func coerceDate(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t.UTC(), true
	case string:
		return parseDate(t)
	case float64, json.Number, int, int64:
		ms, ok := coerceNumber(t)
		if !ok {
			return time.Time{}, false
		}
		return time.UnixMilli(int64(ms)).UTC(), true
	}
	return time.Time{}, false
}

func compact(items []string) []string {
	var out []string
	for _, s := range items {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
