package handlers

import (
	"net/http"
	"time"

	"carbonledger/middleware"
	"carbonledger/models"
)

// RegisterRoutes mounts every API route on mux. authenticate guards all
// routes except the health check.
func RegisterRoutes(mux *http.ServeMux, fieldData *FieldDataHandler, users *UserHandler, authenticate func(http.Handler) http.Handler) {
	mux.HandleFunc("GET /health", Health)

	protected := func(h http.HandlerFunc, roles ...models.Role) http.Handler {
		var next http.Handler = h
		if len(roles) > 0 {
			next = middleware.RequireRole(roles...)(next)
		}
		return authenticate(next)
	}
	reviewers := []models.Role{models.RoleAdmin, models.RoleVerifier}

	// Field data
	mux.Handle("POST /api/field-data", protected(fieldData.Create))
	mux.Handle("POST /api/field-data/submit", protected(fieldData.Submit))
	mux.Handle("POST /api/field-data/draft", protected(fieldData.SaveDraft))
	mux.Handle("GET /api/field-data/my-data", protected(fieldData.ListMine))
	mux.Handle("GET /api/field-data/export", protected(fieldData.Export, reviewers...))
	mux.Handle("GET /api/field-data/{id}", protected(fieldData.Get))
	mux.Handle("PUT /api/field-data/{id}", protected(fieldData.Update))
	mux.Handle("DELETE /api/field-data/{id}", protected(fieldData.Delete))
	mux.Handle("GET /api/field-data", protected(fieldData.ListAll, reviewers...))
	mux.Handle("PUT /api/field-data/{id}/verify", protected(fieldData.Verify, reviewers...))

	// Users
	mux.Handle("GET /api/users", protected(users.GetUsers, models.RoleAdmin))
	mux.Handle("GET /api/users/{userId}", protected(users.GetUser))
	mux.Handle("PUT /api/users/{userId}/role", protected(users.UpdateRole, models.RoleAdmin))
	mux.Handle("PUT /api/users/{userId}/toggle-status", protected(users.ToggleStatus, models.RoleAdmin))
}

// Health handles GET /health
func Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Response{
		Success: true,
		Message: "ok",
		Data: map[string]string{
			"status": "healthy",
			"time":   time.Now().UTC().Format(time.RFC3339),
		},
	})
}
