package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"carbonledger/db"
	"carbonledger/models"

	"go.uber.org/zap"
)

// Caller is the authenticated identity an operation runs as.
type Caller struct {
	ID   string
	Role models.Role
}

// FieldDataService implements the field survey record lifecycle.
type FieldDataService struct {
	store     db.FieldDataStore
	directory *Directory
	audit     *AuditLogger
	logger    *zap.Logger
}

func NewFieldDataService(store db.FieldDataStore, directory *Directory, audit *AuditLogger, logger *zap.Logger) *FieldDataService {
	return &FieldDataService{
		store:     store,
		directory: directory,
		audit:     audit,
		logger:    logger,
	}
}

// SubmitResult is returned by Submit and SaveDraft.
type SubmitResult struct {
	FieldData *FieldDataView `json:"fieldData"`
	Processed Processed      `json:"processed"`
}

// ListQuery carries the optional listing filters as received.
type ListQuery struct {
	Status      string
	ProjectID   string
	SubmittedBy string
	StartDate   string
	EndDate     string
}

// ListResult is a listing with its size.
type ListResult struct {
	FieldData []*FieldDataView `json:"fieldData"`
	Count     int              `json:"count"`
}

// VerifyRequest sets the review outcome of a record.
type VerifyRequest struct {
	Status            string
	VerificationNotes *string
}

// Submit validates and persists a completed survey. An existing draft for
// the same owner and plot is promoted in place.
func (s *FieldDataService) Submit(ctx context.Context, caller Caller, in Input, uploads Uploads) (*SubmitResult, error) {
	p := newFieldParser(in)
	survey := p.survey()

	if missing := p.missing(survey); len(missing) > 0 {
		return nil, missingFieldsError(missing)
	}
	if err := p.validationError(); err != nil {
		return nil, err
	}

	incoming := overlayPhotos(survey.Photos, uploadedPhotos(uploads))
	survey.Photos = nil
	survey.SoilLabResults = resolveLabResults(survey.SoilLabResults, uploads)

	s.logger.Debug("submitting field data",
		zap.String("user_id", caller.ID),
		zap.String("plot_id", *survey.PlotID),
		zap.Int("files", uploads.Count()),
	)

	key := db.DraftKey{OwnerID: caller.ID, PlotID: *survey.PlotID}
	doc, err := s.store.UpsertDraft(ctx, key, func(existing *models.FieldData) (*models.FieldData, error) {
		d := existing
		if d == nil {
			d = &models.FieldData{}
		}
		d.AssignScalars(survey)
		if !incoming.IsEmpty() {
			d.Photos = overlayPhotos(d.Photos, incoming)
		}
		d.OwnerID = caller.ID
		d.Status = models.StatusSubmitted
		return d, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to save field data: %w", err)
	}

	return s.result(ctx, doc)
}

// SaveDraft persists a partial survey without required-field validation,
// keeping at most one draft per owner and plot.
func (s *FieldDataService) SaveDraft(ctx context.Context, caller Caller, in Input, uploads Uploads) (*SubmitResult, error) {
	p := newFieldParser(in)
	survey := p.survey()
	if err := p.validationError(); err != nil {
		return nil, err
	}

	incoming := overlayPhotos(survey.Photos, uploadedPhotos(uploads))
	survey.Photos = nil
	survey.SoilLabResults = resolveLabResults(survey.SoilLabResults, uploads)

	key := db.DraftKey{OwnerID: caller.ID}
	if survey.PlotID != nil {
		key.PlotID = *survey.PlotID
	}

	doc, err := s.store.UpsertDraft(ctx, key, func(existing *models.FieldData) (*models.FieldData, error) {
		d := existing
		if d == nil {
			d = &models.FieldData{}
		}
		d.AssignScalars(survey)
		if !incoming.IsEmpty() {
			d.Photos = overlayPhotos(d.Photos, incoming)
		}
		d.OwnerID = caller.ID
		d.Status = models.StatusDraft
		return d, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to save draft: %w", err)
	}

	return s.result(ctx, doc)
}

func (s *FieldDataService) result(ctx context.Context, doc *models.FieldData) (*SubmitResult, error) {
	view, err := s.directory.expandOne(ctx, doc)
	if err != nil {
		return nil, err
	}
	return &SubmitResult{FieldData: view, Processed: summarize(doc)}, nil
}

// ListAll returns every record matching q. Reviewers only.
func (s *FieldDataService) ListAll(ctx context.Context, caller Caller, q ListQuery) (*ListResult, error) {
	if !caller.Role.CanVerify() {
		return nil, forbidden("Not authorized to access this resource")
	}
	filter, err := q.filter()
	if err != nil {
		return nil, err
	}
	return s.list(ctx, filter)
}

// ListMine returns the caller's own records matching q. Any submittedBy
// filter in q is replaced by the caller.
func (s *FieldDataService) ListMine(ctx context.Context, caller Caller, q ListQuery) (*ListResult, error) {
	filter, err := q.filter()
	if err != nil {
		return nil, err
	}
	filter.OwnerID = caller.ID
	return s.list(ctx, filter)
}

func (s *FieldDataService) list(ctx context.Context, filter db.FieldDataFilter) (*ListResult, error) {
	docs, err := s.store.ListFieldData(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list field data: %w", err)
	}
	views, err := s.directory.Expand(ctx, docs...)
	if err != nil {
		return nil, err
	}
	return &ListResult{FieldData: views, Count: len(views)}, nil
}

func (q ListQuery) filter() (db.FieldDataFilter, error) {
	f := db.FieldDataFilter{
		Status:    models.Status(strings.TrimSpace(q.Status)),
		ProjectID: strings.TrimSpace(q.ProjectID),
		OwnerID:   strings.TrimSpace(q.SubmittedBy),
	}

	var errs []string
	if q.StartDate != "" {
		t, ok := parseDate(q.StartDate)
		if !ok {
			errs = append(errs, "startDate must be a valid date")
		} else {
			f.From = &t
		}
	}
	if q.EndDate != "" {
		t, ok := parseDate(q.EndDate)
		if !ok {
			errs = append(errs, "endDate must be a valid date")
		} else {
			f.To = &t
		}
	}
	if len(errs) > 0 {
		return f, &ValidationError{Message: "Invalid date filter", Errors: errs}
	}
	return f, nil
}

// Get returns one record by id. Any authenticated caller may read any record.
func (s *FieldDataService) Get(ctx context.Context, id string) (*FieldDataView, error) {
	doc, err := s.store.GetFieldData(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		return nil, notFound("Field data not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get field data: %w", err)
	}
	return s.directory.expandOne(ctx, doc)
}

// Update merges the supplied attributes onto a record. Only the owner or an
// admin may update. Keys sent as null clear the stored attribute.
func (s *FieldDataService) Update(ctx context.Context, caller Caller, id string, in Input) (*FieldDataView, error) {
	p := newFieldParser(in)
	patch := p.survey()
	meta := p.metadata()

	doc, err := s.store.UpdateFieldData(ctx, id, func(d *models.FieldData) error {
		if d.OwnerID != caller.ID && !caller.Role.IsAdmin() {
			return forbidden("Not authorized to update this field data")
		}
		if err := p.validationError(); err != nil {
			return err
		}

		d.AssignScalars(patch)
		if patch.Photos != nil {
			d.Photos = patch.Photos.Clone()
		}
		for _, f := range surveyFields {
			if p.isNull(f.key) {
				f.clear(&d.Survey)
			}
		}
		if p.isNull("photos") {
			d.Photos = nil
		}
		meta.apply(d)
		return nil
	})
	if errors.Is(err, db.ErrNotFound) {
		return nil, notFound("Field data not found")
	}
	if errors.Is(err, db.ErrDraftConflict) {
		return nil, draftConflictError()
	}
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, caller.ID, ActionFieldDataUpdate, fmt.Sprintf("Updated field data %s", id))
	return s.directory.expandOne(ctx, doc)
}

// Verify records a review outcome. The status defaults to verified.
func (s *FieldDataService) Verify(ctx context.Context, caller Caller, id string, req VerifyRequest) (*FieldDataView, error) {
	target := models.StatusVerified
	if st := strings.TrimSpace(req.Status); st != "" {
		target = models.Status(st)
	}

	doc, err := s.store.UpdateFieldData(ctx, id, func(d *models.FieldData) error {
		if !caller.Role.CanVerify() {
			return forbidden("Not authorized to verify field data")
		}
		if !target.Valid() {
			return &ValidationError{Message: "Validation error", Errors: []string{statusMessage}}
		}
		d.Status = target
		d.VerifierID = caller.ID
		d.VerificationNotes = nil
		if req.VerificationNotes != nil {
			notes := *req.VerificationNotes
			d.VerificationNotes = &notes
		}
		return nil
	})
	if errors.Is(err, db.ErrNotFound) {
		return nil, notFound("Field data not found")
	}
	if errors.Is(err, db.ErrDraftConflict) {
		return nil, draftConflictError()
	}
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, caller.ID, ActionFieldDataVerify, fmt.Sprintf("Set field data %s to %s", id, target))
	return s.directory.expandOne(ctx, doc)
}

// Delete removes a record. Only the owner or an admin may delete.
func (s *FieldDataService) Delete(ctx context.Context, caller Caller, id string) error {
	doc, err := s.store.GetFieldData(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		return notFound("Field data not found")
	}
	if err != nil {
		return fmt.Errorf("failed to get field data: %w", err)
	}

	if doc.OwnerID != caller.ID && !caller.Role.IsAdmin() {
		return forbidden("Not authorized to delete this field data")
	}

	err = s.store.DeleteFieldData(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		return notFound("Field data not found")
	}
	if err != nil {
		return fmt.Errorf("failed to delete field data: %w", err)
	}

	s.audit.Record(ctx, caller.ID, ActionFieldDataDelete, fmt.Sprintf("Deleted field data %s", id))
	return nil
}

const statusMessage = "status must be one of: draft, submitted, verified, rejected"

// recordMetadata holds the server-side attributes an update may set.
type recordMetadata struct {
	status            *models.Status
	ownerID           *string
	verifierID        *string
	clearVerifier     bool
	verificationNotes *string
	clearNotes        bool
}

func (m recordMetadata) apply(d *models.FieldData) {
	if m.status != nil {
		d.Status = *m.status
	}
	if m.ownerID != nil {
		d.OwnerID = *m.ownerID
	}
	if m.verifierID != nil {
		d.VerifierID = *m.verifierID
	}
	if m.clearVerifier {
		d.VerifierID = ""
	}
	if m.verificationNotes != nil {
		notes := *m.verificationNotes
		d.VerificationNotes = &notes
	}
	if m.clearNotes {
		d.VerificationNotes = nil
	}
}

// metadata decodes status, submittedBy, verifiedBy and verificationNotes.
func (p *fieldParser) metadata() recordMetadata {
	var m recordMetadata

	if raw, ok := p.lookup("status"); ok {
		s, isStr := raw.(string)
		st := models.Status(strings.TrimSpace(s))
		if !isStr || !st.Valid() {
			p.fail("status", statusMessage)
		} else {
			m.status = &st
		}
	}

	if raw, ok := p.lookup("submittedBy"); ok {
		if s, isStr := raw.(string); isStr {
			s = strings.TrimSpace(s)
			m.ownerID = &s
		} else {
			p.fail("submittedBy", "submittedBy must be a user id")
		}
	}

	if raw, ok := p.lookup("verifiedBy"); ok {
		if s, isStr := raw.(string); isStr {
			s = strings.TrimSpace(s)
			m.verifierID = &s
		} else {
			p.fail("verifiedBy", "verifiedBy must be a user id")
		}
	}
	m.clearVerifier = p.isNull("verifiedBy")

	if raw, ok := p.lookup("verificationNotes"); ok {
		if s, isStr := coerceString(raw); isStr {
			m.verificationNotes = &s
		} else {
			p.fail("verificationNotes", "verificationNotes must be a string")
		}
	}
	m.clearNotes = p.isNull("verificationNotes")

	return m
}
