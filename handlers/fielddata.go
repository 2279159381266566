package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"carbonledger/config"
	"carbonledger/services"

	"go.uber.org/zap"
)

type FieldDataHandler struct {
	responder
	svc     *services.FieldDataService
	uploads config.UploadsConfig
}

func NewFieldDataHandler(svc *services.FieldDataService, uploads config.UploadsConfig, logger *zap.Logger, development bool) *FieldDataHandler {
	return &FieldDataHandler{
		responder: responder{logger: logger, development: development},
		svc:       svc,
		uploads:   uploads,
	}
}

// Create handles POST /api/field-data. Same as Submit but without files.
func (h *FieldDataHandler) Create(w http.ResponseWriter, r *http.Request) {
	h.submit(w, r, noUploads)
}

// Submit handles POST /api/field-data/submit
func (h *FieldDataHandler) Submit(w http.ResponseWriter, r *http.Request) {
	h.submit(w, r, submitUploads)
}

func (h *FieldDataHandler) submit(w http.ResponseWriter, r *http.Request, limits uploadLimits) {
	c, ok := caller(w, r)
	if !ok {
		return
	}

	in, uploads, err := readInput(w, r, h.uploads, limits)
	if err != nil {
		h.writeServiceError(w, r, err, "Failed to save field data")
		return
	}

	res, err := h.svc.Submit(r.Context(), c, in, uploads)
	if err != nil {
		h.writeServiceError(w, r, err, "Failed to save field data")
		return
	}

	h.logger.Info("field data submitted",
		zap.String("id", res.FieldData.ID),
		zap.String("user_id", c.ID),
		zap.Int("files", uploads.Count()),
	)
	writeSuccess(w, http.StatusCreated, "Field data saved successfully", res)
}

// SaveDraft handles POST /api/field-data/draft
func (h *FieldDataHandler) SaveDraft(w http.ResponseWriter, r *http.Request) {
	c, ok := caller(w, r)
	if !ok {
		return
	}

	in, uploads, err := readInput(w, r, h.uploads, draftUploads)
	if err != nil {
		h.writeServiceError(w, r, err, "Failed to save draft")
		return
	}

	res, err := h.svc.SaveDraft(r.Context(), c, in, uploads)
	if err != nil {
		h.writeServiceError(w, r, err, "Failed to save draft")
		return
	}

	writeSuccess(w, http.StatusCreated, "Draft saved successfully", res)
}

func listQuery(r *http.Request) services.ListQuery {
	q := r.URL.Query()
	return services.ListQuery{
		Status:      q.Get("status"),
		ProjectID:   q.Get("projectId"),
		SubmittedBy: q.Get("submittedBy"),
		StartDate:   q.Get("startDate"),
		EndDate:     q.Get("endDate"),
	}
}

// ListAll handles GET /api/field-data
func (h *FieldDataHandler) ListAll(w http.ResponseWriter, r *http.Request) {
	c, ok := caller(w, r)
	if !ok {
		return
	}

	res, err := h.svc.ListAll(r.Context(), c, listQuery(r))
	if err != nil {
		h.writeServiceError(w, r, err, "Failed to retrieve field data")
		return
	}
	writeSuccess(w, http.StatusOK, "", res)
}

// ListMine handles GET /api/field-data/my-data
func (h *FieldDataHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	c, ok := caller(w, r)
	if !ok {
		return
	}

	res, err := h.svc.ListMine(r.Context(), c, listQuery(r))
	if err != nil {
		h.writeServiceError(w, r, err, "Failed to retrieve your field data")
		return
	}
	writeSuccess(w, http.StatusOK, "", res)
}

type fieldDataPayload struct {
	FieldData *services.FieldDataView `json:"fieldData"`
}

// Get handles GET /api/field-data/{id}
func (h *FieldDataHandler) Get(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeServiceError(w, r, err, "Failed to retrieve field data")
		return
	}
	writeSuccess(w, http.StatusOK, "", fieldDataPayload{FieldData: view})
}

// Update handles PUT /api/field-data/{id}
func (h *FieldDataHandler) Update(w http.ResponseWriter, r *http.Request) {
	c, ok := caller(w, r)
	if !ok {
		return
	}

	in, _, err := readInput(w, r, h.uploads, noUploads)
	if err != nil {
		h.writeServiceError(w, r, err, "Failed to update field data")
		return
	}

	view, err := h.svc.Update(r.Context(), c, r.PathValue("id"), in)
	if err != nil {
		h.writeServiceError(w, r, err, "Failed to update field data")
		return
	}
	writeSuccess(w, http.StatusOK, "Field data updated successfully", fieldDataPayload{FieldData: view})
}

type verifyRequest struct {
	Status            string  `json:"status"`
	VerificationNotes *string `json:"verificationNotes"`
}

// Verify handles PUT /api/field-data/{id}/verify
func (h *FieldDataHandler) Verify(w http.ResponseWriter, r *http.Request) {
	c, ok := caller(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.uploads.MaxBodySize)
	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		h.writeServiceError(w, r, bodyError(err, "Invalid request body"), "Failed to verify field data")
		return
	}

	view, err := h.svc.Verify(r.Context(), c, r.PathValue("id"), services.VerifyRequest{
		Status:            req.Status,
		VerificationNotes: req.VerificationNotes,
	})
	if err != nil {
		h.writeServiceError(w, r, err, "Failed to verify field data")
		return
	}
	writeSuccess(w, http.StatusOK, "Field data "+string(view.Status)+" successfully", fieldDataPayload{FieldData: view})
}

// Delete handles DELETE /api/field-data/{id}
func (h *FieldDataHandler) Delete(w http.ResponseWriter, r *http.Request) {
	c, ok := caller(w, r)
	if !ok {
		return
	}

	if err := h.svc.Delete(r.Context(), c, r.PathValue("id")); err != nil {
		h.writeServiceError(w, r, err, "Failed to delete field data")
		return
	}
	writeSuccess(w, http.StatusOK, "Field data deleted successfully", nil)
}
