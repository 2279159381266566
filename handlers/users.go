package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"carbonledger/models"
	"carbonledger/services"

	"go.uber.org/zap"
)

type UserHandler struct {
	responder
	svc         *services.UserService
	maxBodySize int64
}

func NewUserHandler(svc *services.UserService, maxBodySize int64, logger *zap.Logger, development bool) *UserHandler {
	return &UserHandler{
		responder:   responder{logger: logger, development: development},
		svc:         svc,
		maxBodySize: maxBodySize,
	}
}

type userPayload struct {
	User *models.User `json:"user"`
}

// GetUsers handles GET /api/users
func (h *UserHandler) GetUsers(w http.ResponseWriter, r *http.Request) {
	c, ok := caller(w, r)
	if !ok {
		return
	}

	users, err := h.svc.List(r.Context(), c)
	if err != nil {
		h.writeServiceError(w, r, err, "Failed to get users")
		return
	}
	writeSuccess(w, http.StatusOK, "", map[string]any{"users": users})
}

// GetUser handles GET /api/users/{userId}
func (h *UserHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.svc.Get(r.Context(), r.PathValue("userId"))
	if err != nil {
		h.writeServiceError(w, r, err, "Failed to get user")
		return
	}
	writeSuccess(w, http.StatusOK, "", userPayload{User: user})
}

type updateRoleRequest struct {
	Role string `json:"role"`
}

// UpdateRole handles PUT /api/users/{userId}/role
func (h *UserHandler) UpdateRole(w http.ResponseWriter, r *http.Request) {
	c, ok := caller(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodySize)
	var req updateRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		h.writeServiceError(w, r, bodyError(err, "Invalid request body"), "Failed to update user role")
		return
	}

	user, err := h.svc.UpdateRole(r.Context(), c, r.PathValue("userId"), req.Role)
	if err != nil {
		h.writeServiceError(w, r, err, "Failed to update user role")
		return
	}
	writeSuccess(w, http.StatusOK, "User role updated successfully", userPayload{User: user})
}

// ToggleStatus handles PUT /api/users/{userId}/toggle-status
func (h *UserHandler) ToggleStatus(w http.ResponseWriter, r *http.Request) {
	c, ok := caller(w, r)
	if !ok {
		return
	}

	user, err := h.svc.ToggleStatus(r.Context(), c, r.PathValue("userId"))
	if err != nil {
		h.writeServiceError(w, r, err, "Failed to toggle user status")
		return
	}

	message := "User deactivated successfully"
	if user.IsActive {
		message = "User activated successfully"
	}
	writeSuccess(w, http.StatusOK, message, userPayload{User: user})
}
