package handlers

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"famsync/internal/service"
)

// AuthHandler handles authentication-related HTTP requests
type AuthHandler struct {
	authService         service.AuthGateway
	registrationService *service.RegistrationService
	log                 *zap.Logger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(authService service.AuthGateway, registrationService *service.RegistrationService, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		authService:         authService,
		registrationService: registrationService,
		log:                 logger,
	}
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type registerErrorResponse struct {
	Error string `json:"error"`
	State string `json:"state"`
}

// SignUp creates an account without a family or profile
func (h *AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, h.log, http.StatusBadRequest, ErrInvalidJSON, "", nil)
		return
	}

	identity, err := h.authService.CreateAccount(r.Context(), req.Email, req.Password)
	if err != nil {
		respondServiceError(w, h.log, "sign up failed", err)
		return
	}

	respondJSON(w, http.StatusCreated, identity)
}

// Login checks credentials and returns a session token
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, h.log, http.StatusBadRequest, ErrInvalidJSON, "", nil)
		return
	}

	session, err := h.authService.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		respondServiceError(w, h.log, "login failed", err)
		return
	}

	respondJSON(w, http.StatusOK, session)
}

// Register runs the full registration flow. Failures report the state the
// flow reached.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req service.RegisterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, h.log, http.StatusBadRequest, ErrInvalidJSON, "", nil)
		return
	}

	result, err := h.registrationService.Register(r.Context(), req)
	if err != nil {
		status := statusFor(err)
		msg := err.Error()
		if status >= http.StatusInternalServerError {
			h.log.Error("registration failed", zap.Error(err))
			msg = ErrInternalServerError
		}

		state := service.StateNotRegistered
		var regErr *service.RegistrationError
		if errors.As(err, &regErr) {
			state = regErr.State
		}
		respondJSON(w, status, registerErrorResponse{Error: msg, State: state.String()})
		return
	}

	respondJSON(w, http.StatusCreated, result)
}
