// models.go
// Defines the core data structures shared by the API handlers, services and stores.

package models

import (
	"time"
)

// Status is the lifecycle state of a field survey record.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusSubmitted Status = "submitted"
	StatusVerified  Status = "verified"
	StatusRejected  Status = "rejected"
)

// Valid reports whether s is one of the known lifecycle states.
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusSubmitted, StatusVerified, StatusRejected:
		return true
	}
	return false
}

// Role defines the access level of a user.
type Role string

const (
	RoleUser     Role = "user"
	RoleNGO      Role = "ngo"
	RoleAdmin    Role = "admin"
	RoleVerifier Role = "verifier"
)

// Roles lists every role in display order.
var Roles = []Role{RoleUser, RoleNGO, RoleAdmin, RoleVerifier}

func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleNGO, RoleAdmin, RoleVerifier:
		return true
	}
	return false
}

// IsAdmin reports whether the role may manage users and any record.
func (r Role) IsAdmin() bool {
	switch r {
	case RoleAdmin:
		return true
	case RoleUser, RoleNGO, RoleVerifier:
		return false
	}
	return false
}

// CanVerify reports whether the role may verify records and list all of them.
func (r Role) CanVerify() bool {
	switch r {
	case RoleAdmin, RoleVerifier:
		return true
	case RoleUser, RoleNGO:
		return false
	}
	return false
}

// Photos holds attachment references for the four cardinal slots plus extras.
type Photos struct {
	North      string   `firestore:"north,omitempty" json:"north,omitempty"`
	South      string   `firestore:"south,omitempty" json:"south,omitempty"`
	East       string   `firestore:"east,omitempty" json:"east,omitempty"`
	West       string   `firestore:"west,omitempty" json:"west,omitempty"`
	Additional []string `firestore:"additional,omitempty" json:"additional,omitempty"`
}

// IsEmpty reports whether no slot carries a reference.
func (p *Photos) IsEmpty() bool {
	if p == nil {
		return true
	}
	return p.North == "" && p.South == "" && p.East == "" && p.West == "" && len(p.Additional) == 0
}

// Clone returns a deep copy of p.
func (p *Photos) Clone() *Photos {
	if p == nil {
		return nil
	}
	c := *p
	if p.Additional != nil {
		c.Additional = append([]string(nil), p.Additional...)
	}
	return &c
}

// Survey holds the caller-supplied survey attributes. A nil field is absent.
type Survey struct {
	// Basic
	PlotID         *string    `firestore:"plot_id,omitempty" json:"plotId,omitempty"`
	CollectionDate *time.Time `firestore:"collection_date,omitempty" json:"collectionDate,omitempty"`
	GPSLatitude    *float64   `firestore:"gps_latitude,omitempty" json:"gpsLatitude,omitempty"`
	GPSLongitude   *float64   `firestore:"gps_longitude,omitempty" json:"gpsLongitude,omitempty"`
	PlotNotes      *string    `firestore:"plot_notes,omitempty" json:"plotNotes,omitempty"`
	ProjectID      *string    `firestore:"project_id,omitempty" json:"projectId,omitempty"`

	// Vegetation
	Species         *string  `firestore:"species,omitempty" json:"species,omitempty"`
	DBH             *float64 `firestore:"dbh,omitempty" json:"dbh,omitempty"`
	TreeHeight      *float64 `firestore:"tree_height,omitempty" json:"treeHeight,omitempty"`
	PlotDensity     *float64 `firestore:"plot_density,omitempty" json:"plotDensity,omitempty"`
	CanopyCover     *float64 `firestore:"canopy_cover,omitempty" json:"canopyCover,omitempty"`
	SurvivalRate    *float64 `firestore:"survival_rate,omitempty" json:"survivalRate,omitempty"`
	VegetationNotes *string  `firestore:"vegetation_notes,omitempty" json:"vegetationNotes,omitempty"`

	// Soil
	SampleDepth       *float64 `firestore:"sample_depth,omitempty" json:"sampleDepth,omitempty"`
	BulkDensity       *float64 `firestore:"bulk_density,omitempty" json:"bulkDensity,omitempty"`
	OrganicMatter     *float64 `firestore:"organic_matter,omitempty" json:"organicMatter,omitempty"`
	SoilOrganicCarbon *float64 `firestore:"soil_organic_carbon,omitempty" json:"soilOrganicCarbon,omitempty"`
	SoilPH            *float64 `firestore:"soil_ph,omitempty" json:"soilPh,omitempty"`
	SoilTexture       *string  `firestore:"soil_texture,omitempty" json:"soilTexture,omitempty"`
	SoilMoisture      *float64 `firestore:"soil_moisture,omitempty" json:"soilMoisture,omitempty"`
	SoilLabResults    *string  `firestore:"soil_lab_results,omitempty" json:"soilLabResults,omitempty"`

	// Hydrology
	WaterTableDepth  *float64 `firestore:"water_table_depth,omitempty" json:"waterTableDepth,omitempty"`
	Salinity         *float64 `firestore:"salinity,omitempty" json:"salinity,omitempty"`
	WaterPH          *float64 `firestore:"water_ph,omitempty" json:"waterPh,omitempty"`
	WaterTemperature *float64 `firestore:"water_temperature,omitempty" json:"waterTemperature,omitempty"`
	DissolvedOxygen  *float64 `firestore:"dissolved_oxygen,omitempty" json:"dissolvedOxygen,omitempty"`
	TidalRange       *float64 `firestore:"tidal_range,omitempty" json:"tidalRange,omitempty"`
	ManagementEvent  *string  `firestore:"management_event,omitempty" json:"managementEvent,omitempty"`
	HydrologyNotes   *string  `firestore:"hydrology_notes,omitempty" json:"hydrologyNotes,omitempty"`

	// Photos
	Photos     *Photos `firestore:"photos,omitempty" json:"photos,omitempty"`
	PhotoNotes *string `firestore:"photo_notes,omitempty" json:"photoNotes,omitempty"`
}

// AssignScalars copies every present attribute of in onto s, except photos.
func (s *Survey) AssignScalars(in Survey) {
	setString(&s.PlotID, in.PlotID)
	if in.CollectionDate != nil {
		t := *in.CollectionDate
		s.CollectionDate = &t
	}
	setFloat(&s.GPSLatitude, in.GPSLatitude)
	setFloat(&s.GPSLongitude, in.GPSLongitude)
	setString(&s.PlotNotes, in.PlotNotes)
	setString(&s.ProjectID, in.ProjectID)

	setString(&s.Species, in.Species)
	setFloat(&s.DBH, in.DBH)
	setFloat(&s.TreeHeight, in.TreeHeight)
	setFloat(&s.PlotDensity, in.PlotDensity)
	setFloat(&s.CanopyCover, in.CanopyCover)
	setFloat(&s.SurvivalRate, in.SurvivalRate)
	setString(&s.VegetationNotes, in.VegetationNotes)

	setFloat(&s.SampleDepth, in.SampleDepth)
	setFloat(&s.BulkDensity, in.BulkDensity)
	setFloat(&s.OrganicMatter, in.OrganicMatter)
	setFloat(&s.SoilOrganicCarbon, in.SoilOrganicCarbon)
	setFloat(&s.SoilPH, in.SoilPH)
	setString(&s.SoilTexture, in.SoilTexture)
	setFloat(&s.SoilMoisture, in.SoilMoisture)
	setString(&s.SoilLabResults, in.SoilLabResults)

	setFloat(&s.WaterTableDepth, in.WaterTableDepth)
	setFloat(&s.Salinity, in.Salinity)
	setFloat(&s.WaterPH, in.WaterPH)
	setFloat(&s.WaterTemperature, in.WaterTemperature)
	setFloat(&s.DissolvedOxygen, in.DissolvedOxygen)
	setFloat(&s.TidalRange, in.TidalRange)
	setString(&s.ManagementEvent, in.ManagementEvent)
	setString(&s.HydrologyNotes, in.HydrologyNotes)

	setString(&s.PhotoNotes, in.PhotoNotes)
}

func setString(dst **string, v *string) {
	if v != nil {
		s := *v
		*dst = &s
	}
}

func setFloat(dst **float64, v *float64) {
	if v != nil {
		f := *v
		*dst = &f
	}
}

// FieldData is one ecological survey submission for a plot.
// It maps directly to a Firestore document in the field_data collection.
type FieldData struct {
	ID string `firestore:"-" json:"id"`

	Survey

	// === Server-controlled fields ===
	OwnerID           string    `firestore:"submitted_by" json:"submittedBy"`
	Status            Status    `firestore:"status" json:"status"`
	VerifierID        string    `firestore:"verified_by,omitempty" json:"verifiedBy,omitempty"`
	VerificationNotes *string   `firestore:"verification_notes,omitempty" json:"verificationNotes,omitempty"`
	CreatedAt         time.Time `firestore:"created_at" json:"createdAt"`
	UpdatedAt         time.Time `firestore:"updated_at" json:"updatedAt"`
}

// Clone returns a deep copy of d so callers can mutate it freely.
func (d *FieldData) Clone() *FieldData {
	if d == nil {
		return nil
	}
	c := *d
	c.Survey = Survey{}
	c.Survey.AssignScalars(d.Survey)
	c.Photos = d.Photos.Clone()
	if d.VerificationNotes != nil {
		n := *d.VerificationNotes
		c.VerificationNotes = &n
	}
	return &c
}

// PlotKey returns the plot identity used for draft lookups; "" when unset.
func (d *FieldData) PlotKey() string {
	if d.PlotID == nil {
		return ""
	}
	return *d.PlotID
}

// User represents an authenticated identity.
type User struct {
	UserID    string    `firestore:"user_id" json:"id"`
	Name      string    `firestore:"name" json:"name"`
	Email     string    `firestore:"email" json:"email"`
	Role      Role      `firestore:"role" json:"role"`
	IsActive  bool      `firestore:"is_active" json:"isActive"`
	CreatedAt time.Time `firestore:"created_at" json:"createdAt"`
	UpdatedAt time.Time `firestore:"updated_at" json:"updatedAt"`
}

// UserRef is the display identity expanded into record responses.
type UserRef struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  Role   `json:"role,omitempty"`
}

// Ref returns the display identity of u.
func (u *User) Ref() *UserRef {
	return &UserRef{ID: u.UserID, Name: u.Name, Email: u.Email, Role: u.Role}
}

// AuditLog represents an audit log entry.
type AuditLog struct {
	LogID     string `firestore:"log_id" json:"log_id"`
	Timestamp string `firestore:"timestamp" json:"timestamp"`
	UserID    string `firestore:"user_id" json:"user_id"`
	Action    string `firestore:"action" json:"action"`
	Details   string `firestore:"details" json:"details"`
}
