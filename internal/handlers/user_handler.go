package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"famsync/internal/models"
	"famsync/internal/service"
)

// UserHandler handles member profile HTTP requests
type UserHandler struct {
	userService *service.UserService
	log         *zap.Logger
}

// NewUserHandler creates a new user handler
func NewUserHandler(userService *service.UserService, logger *zap.Logger) *UserHandler {
	return &UserHandler{
		userService: userService,
		log:         logger,
	}
}

type updateUserRequest struct {
	models.User
	// PIN is required when moving to another family
	PIN string `json:"familyPin"`
}

// GetUser returns a member profile
func (h *UserHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	user := h.userService.GetUserData(r.Context(), r.PathValue("id"))
	if user == nil {
		respondWithError(w, h.log, http.StatusNotFound, "User not found", "", nil)
		return
	}
	respondJSON(w, http.StatusOK, user)
}

// ListMembers returns the cached members of a family
func (h *UserHandler) ListMembers(w http.ResponseWriter, r *http.Request) {
	members, err := h.userService.GetCachedMembers(r.Context(), r.PathValue("id"))
	if err != nil {
		respondServiceError(w, h.log, "failed to list members", err)
		return
	}
	if members == nil {
		members = []models.User{}
	}
	respondJSON(w, http.StatusOK, members)
}

// UpdateUser writes the caller's own profile
func (h *UserHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !h.isSelf(r, id) {
		respondWithError(w, h.log, http.StatusForbidden, "Cannot modify another user", "", nil)
		return
	}

	var req updateUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, h.log, http.StatusBadRequest, ErrInvalidJSON, "", nil)
		return
	}
	user := req.User
	user.ID = id
	user.FamilyPIN = req.PIN

	if err := h.userService.UpdateUser(r.Context(), &user); err != nil {
		respondServiceError(w, h.log, "failed to update user", err)
		return
	}

	respondJSON(w, http.StatusOK, &user)
}

// DeleteUser removes the caller's own profile
func (h *UserHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !h.isSelf(r, id) {
		respondWithError(w, h.log, http.StatusForbidden, "Cannot delete another user", "", nil)
		return
	}

	if err := h.userService.DeleteUser(r.Context(), id); err != nil {
		respondServiceError(w, h.log, "failed to delete user", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *UserHandler) isSelf(r *http.Request, id string) bool {
	identity := GetIdentityFromContext(r.Context())
	return identity != nil && identity.ID == id
}
