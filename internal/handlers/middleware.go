package handlers

import (
	"bufio"
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"famsync/internal/models"
	"famsync/internal/security"
	"famsync/internal/service"
)

// Authenticator resolves a session token to an identity
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*models.Identity, error)
}

// Middleware holds dependencies for middleware functions
type Middleware struct {
	auth Authenticator
	log  *zap.Logger
}

// NewMiddleware creates a new middleware instance
func NewMiddleware(auth Authenticator, logger *zap.Logger) *Middleware {
	return &Middleware{
		auth: auth,
		log:  logger,
	}
}

// RequireAuth is middleware that requires a valid bearer token. The
// identity is attached to the request context.
func (m *Middleware) RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, err := m.auth.Authenticate(r.Context(), security.BearerToken(r))
		if err != nil {
			if errors.Is(err, service.ErrNotAuthenticated) {
				respondWithError(w, m.log, http.StatusUnauthorized, ErrUnauthorized, "", nil)
				return
			}
			respondWithError(w, m.log, http.StatusInternalServerError, ErrInternalServerError, "authentication failed", err)
			return
		}

		ctx := service.WithIdentity(r.Context(), identity)
		next(w, r.WithContext(ctx))
	}
}

// GetIdentityFromContext retrieves the caller's identity from the request context
func GetIdentityFromContext(ctx context.Context) *models.Identity {
	identity, ok := service.IdentityFrom(ctx)
	if !ok {
		return nil
	}
	return identity
}

// statusRecorder captures the response status for the access log
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Hijack lets the websocket upgrader take over the connection
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return hijacker.Hijack()
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// Logging middleware logs HTTP requests
func Logging(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rec, r)

			logger.Info("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", rec.status),
				zap.Duration("duration", time.Since(start)),
				zap.String("client_ip", security.GetClientIP(r)))
		})
	}
}
