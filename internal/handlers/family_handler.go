package handlers

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"famsync/internal/credentials"
	"famsync/internal/models"
	"famsync/internal/service"
)

// FamilyHandler handles family HTTP requests
type FamilyHandler struct {
	familyService *service.FamilyService
	access        *FamilyAccess
	log           *zap.Logger
}

// NewFamilyHandler creates a new family handler
func NewFamilyHandler(familyService *service.FamilyService, access *FamilyAccess, logger *zap.Logger) *FamilyHandler {
	return &FamilyHandler{
		familyService: familyService,
		access:        access,
		log:           logger,
	}
}

type createFamilyRequest struct {
	Name string `json:"name"`
	PIN  string `json:"pin"`
}

type familyResponse struct {
	Family *models.Family `json:"family"`
	// Stale is set when only the cached copy could be returned
	Stale bool `json:"stale"`
}

type validateFamilyRequest struct {
	PIN string `json:"pin"`
}

type familySummary struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// CreateFamily creates a family owned by the caller. A PIN is generated
// when none is given.
func (h *FamilyHandler) CreateFamily(w http.ResponseWriter, r *http.Request) {
	var req createFamilyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, h.log, http.StatusBadRequest, ErrInvalidJSON, "", nil)
		return
	}

	if req.PIN == "" {
		pin, err := credentials.GenerateFamilyPIN()
		if err != nil {
			respondWithError(w, h.log, http.StatusInternalServerError, ErrInternalServerError, "failed to generate pin", err)
			return
		}
		req.PIN = pin
	}

	id, err := h.familyService.CreateFamily(r.Context(), req.Name, req.PIN)
	if err != nil {
		respondServiceError(w, h.log, "failed to create family", err)
		return
	}

	identity := GetIdentityFromContext(r.Context())
	respondJSON(w, http.StatusCreated, &models.Family{
		ID:      id,
		Name:    req.Name,
		PIN:     req.PIN,
		OwnerID: identity.ID,
	})
}

// GetFamily returns the freshest available copy of a family. Outsiders
// see only its id and name.
func (h *FamilyHandler) GetFamily(w http.ResponseWriter, r *http.Request) {
	var cached, fresh *models.Family
	var fetchErr error
	for result := range h.familyService.GetFamily(r.Context(), r.PathValue("id")) {
		switch {
		case result.Err != nil:
			fetchErr = result.Err
		case result.Cached:
			cached = result.Family
		default:
			fresh = result.Family
		}
	}

	resp := familyResponse{Family: fresh}
	switch {
	case fresh != nil:
	case cached != nil:
		if fetchErr != nil {
			h.log.Warn("serving cached family", zap.String("family_id", cached.ID), zap.Error(fetchErr))
		}
		resp = familyResponse{Family: cached, Stale: true}
	case fetchErr != nil:
		respondServiceError(w, h.log, "failed to get family", fetchErr)
		return
	default:
		respondWithError(w, h.log, http.StatusNotFound, "Family not found", "", nil)
		return
	}

	identity := GetIdentityFromContext(r.Context())
	member, err := h.access.isMember(r.Context(), resp.Family.ID, resp.Family.OwnerID, identity.ID)
	if err != nil {
		h.log.Warn("membership unknown, hiding family details", zap.String("family_id", resp.Family.ID), zap.Error(err))
	}
	if !member {
		resp.Family = &models.Family{ID: resp.Family.ID, Name: resp.Family.Name}
	}
	respondJSON(w, http.StatusOK, resp)
}

// UpdateFamily overwrites a family. Only the owner may change an existing
// family; a new one is owned by the caller.
func (h *FamilyHandler) UpdateFamily(w http.ResponseWriter, r *http.Request) {
	var family models.Family
	if err := decodeJSON(w, r, &family); err != nil {
		respondWithError(w, h.log, http.StatusBadRequest, ErrInvalidJSON, "", nil)
		return
	}
	family.ID = r.PathValue("id")

	identity := GetIdentityFromContext(r.Context())
	owner, err := h.familyService.OwnerOf(r.Context(), family.ID)
	switch {
	case errors.Is(err, service.ErrFamilyNotFound):
		family.OwnerID = identity.ID
	case err != nil:
		respondServiceError(w, h.log, "failed to update family", err)
		return
	case owner != identity.ID:
		respondServiceError(w, h.log, "", service.ErrNotFamilyOwner)
		return
	case family.OwnerID == "":
		family.OwnerID = owner
	}

	if err := h.familyService.AddOrUpdateFamily(r.Context(), &family); err != nil {
		respondServiceError(w, h.log, "failed to update family", err)
		return
	}

	respondJSON(w, http.StatusOK, &family)
}

// DeleteFamily removes a family. Only the owner may delete it; deleting a
// missing family succeeds.
func (h *FamilyHandler) DeleteFamily(w http.ResponseWriter, r *http.Request) {
	familyID := r.PathValue("id")
	identity := GetIdentityFromContext(r.Context())

	owner, err := h.familyService.OwnerOf(r.Context(), familyID)
	switch {
	case errors.Is(err, service.ErrFamilyNotFound):
		w.WriteHeader(http.StatusNoContent)
		return
	case err != nil:
		respondServiceError(w, h.log, "failed to delete family", err)
		return
	case owner != identity.ID:
		respondServiceError(w, h.log, "", service.ErrNotFamilyOwner)
		return
	}

	if err := h.familyService.DeleteFamily(r.Context(), familyID); err != nil {
		respondServiceError(w, h.log, "failed to delete family", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ValidateFamily checks a family id and PIN before joining
func (h *FamilyHandler) ValidateFamily(w http.ResponseWriter, r *http.Request) {
	var req validateFamilyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, h.log, http.StatusBadRequest, ErrInvalidJSON, "", nil)
		return
	}

	family, err := h.familyService.ValidateFamily(r.Context(), r.PathValue("id"), req.PIN)
	if err != nil {
		respondServiceError(w, h.log, "failed to validate family", err)
		return
	}

	respondJSON(w, http.StatusOK, familySummary{ID: family.ID, Name: family.Name})
}
