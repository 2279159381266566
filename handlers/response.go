package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"carbonledger/middleware"
	"carbonledger/services"

	"go.uber.org/zap"
)

// Response is the envelope every API reply uses.
type Response struct {
	Success bool     `json:"success"`
	Message string   `json:"message,omitempty"`
	Data    any      `json:"data,omitempty"`
	Error   string   `json:"error,omitempty"`
	Errors  []string `json:"errors,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}

func writeSuccess(w http.ResponseWriter, status int, message string, data any) {
	writeJSON(w, status, Response{Success: true, Message: message, Data: data})
}

func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, Response{Success: false, Message: message})
}

// responder carries what every handler needs to report failures.
type responder struct {
	logger      *zap.Logger
	development bool
}

// writeServiceError maps service errors onto status codes. Unexpected
// errors are logged and answered with fallback; their text is only
// exposed in development.
func (h responder) writeServiceError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	var verr *services.ValidationError
	var tooLarge *http.MaxBytesError

	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, Response{Message: verr.Message, Errors: verr.Errors})
	case errors.As(err, &tooLarge):
		writeError(w, "Request body too large", http.StatusRequestEntityTooLarge)
	case errors.Is(err, services.ErrNotFound):
		writeError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, services.ErrForbidden):
		writeError(w, err.Error(), http.StatusForbidden)
	default:
		h.logger.Error(fallback,
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		detail := "Internal server error"
		if h.development {
			detail = err.Error()
		}
		writeJSON(w, http.StatusInternalServerError, Response{Message: fallback, Error: detail})
	}
}

// caller returns the authenticated identity placed in the context by the
// auth middleware.
func caller(w http.ResponseWriter, r *http.Request) (services.Caller, bool) {
	user, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		writeError(w, "User not found in context", http.StatusUnauthorized)
		return services.Caller{}, false
	}
	return services.Caller{ID: user.UserID, Role: user.Role}, true
}
