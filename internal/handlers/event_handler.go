package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"famsync/internal/models"
	"famsync/internal/service"
)

// EventHandler handles calendar event HTTP requests
type EventHandler struct {
	eventService *service.EventService
	log          *zap.Logger
}

// NewEventHandler creates a new event handler
func NewEventHandler(eventService *service.EventService, logger *zap.Logger) *EventHandler {
	return &EventHandler{
		eventService: eventService,
		log:          logger,
	}
}

// ListEvents returns the locally cached events of a family
func (h *EventHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.eventService.ListCachedEvents(r.Context(), r.PathValue("id"))
	if err != nil {
		respondServiceError(w, h.log, "failed to list events", err)
		return
	}
	if events == nil {
		events = []models.Event{}
	}
	respondJSON(w, http.StatusOK, events)
}

// CreateEvent adds an event to a family. The caller becomes the creator when
// none is given.
func (h *EventHandler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var event models.Event
	if err := decodeJSON(w, r, &event); err != nil {
		respondWithError(w, h.log, http.StatusBadRequest, ErrInvalidJSON, "", nil)
		return
	}
	event.ID = ""
	event.FamilyID = r.PathValue("id")
	if event.CreatedBy == "" {
		if identity := GetIdentityFromContext(r.Context()); identity != nil {
			event.CreatedBy = identity.ID
		}
	}

	if err := h.eventService.AddEvent(r.Context(), &event); err != nil {
		respondServiceError(w, h.log, "failed to add event", err)
		return
	}

	respondJSON(w, http.StatusCreated, &event)
}

// UpdateEvent overwrites an existing event
func (h *EventHandler) UpdateEvent(w http.ResponseWriter, r *http.Request) {
	var event models.Event
	if err := decodeJSON(w, r, &event); err != nil {
		respondWithError(w, h.log, http.StatusBadRequest, ErrInvalidJSON, "", nil)
		return
	}
	event.FamilyID = r.PathValue("id")
	event.ID = r.PathValue("eventId")

	if err := h.eventService.UpdateEvent(r.Context(), &event); err != nil {
		respondServiceError(w, h.log, "failed to update event", err)
		return
	}

	respondJSON(w, http.StatusOK, &event)
}

// DeleteEvent removes an event
func (h *EventHandler) DeleteEvent(w http.ResponseWriter, r *http.Request) {
	event := &models.Event{
		ID:       r.PathValue("eventId"),
		FamilyID: r.PathValue("id"),
	}
	if err := h.eventService.DeleteEvent(r.Context(), event); err != nil {
		respondServiceError(w, h.log, "failed to delete event", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
