package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"famsync/internal/remote"
	"famsync/internal/service"
	"famsync/internal/validation"
)

type errorResponse struct {
	Error string `json:"error"`
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

func respondWithError(w http.ResponseWriter, logger *zap.Logger, status int, userMsg, logMsg string, err error) {
	if err != nil {
		if logMsg == "" {
			logMsg = userMsg
		}
		logger.Warn(logMsg, zap.Int("status", status), zap.Error(err))
	}

	respondJSON(w, status, errorResponse{Error: userMsg})
}

// respondServiceError maps a service error onto an HTTP status. Client
// errors carry the error text; server errors are logged and hidden.
func respondServiceError(w http.ResponseWriter, logger *zap.Logger, logMsg string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		userMsg := ErrInternalServerError
		if status == http.StatusServiceUnavailable {
			userMsg = ErrServiceUnavailable
		}
		respondWithError(w, logger, status, userMsg, logMsg, err)
		return
	}
	respondWithError(w, logger, status, err.Error(), "", nil)
}

func statusFor(err error) int {
	switch {
	case validation.IsValidationError(err),
		errors.Is(err, service.ErrBlankFamilyID),
		errors.Is(err, service.ErrBlankEventID),
		errors.Is(err, service.ErrBlankUserID):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrNotAuthenticated),
		errors.Is(err, service.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrIncorrectPIN),
		errors.Is(err, service.ErrJoinRejected),
		errors.Is(err, service.ErrNotFamilyMember),
		errors.Is(err, service.ErrNotFamilyOwner),
		errors.Is(err, remote.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, service.ErrFamilyNotFound),
		errors.Is(err, remote.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrEmailTaken):
		return http.StatusConflict
	case errors.Is(err, remote.ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("failed to decode request body: %w", err)
	}
	return nil
}
