package handlers

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"famsync/internal/remote"
)

// DBPinger is satisfied by the local cache database
type DBPinger interface {
	PingContext(ctx context.Context) error
}

// HealthHandler reports whether the cache and the remote store are reachable
type HealthHandler struct {
	db     DBPinger
	remote remote.Pinger
	log    *zap.Logger
}

// NewHealthHandler creates a new health handler. remote may be nil when the
// store cannot report its connectivity.
func NewHealthHandler(db DBPinger, remote remote.Pinger, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		db:     db,
		remote: remote,
		log:    logger,
	}
}

type healthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
	Remote   string `json:"remote"`
}

// Health handles GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	resp := healthResponse{Status: "ok", Database: "ok", Remote: "ok"}
	status := http.StatusOK

	if err := h.db.PingContext(ctx); err != nil {
		h.log.Error("database health check failed", zap.Error(err))
		resp.Database = "unavailable"
		resp.Status = "degraded"
		status = http.StatusServiceUnavailable
	}

	if h.remote == nil {
		resp.Remote = "unknown"
	} else if err := h.remote.Ping(ctx); err != nil {
		h.log.Error("remote health check failed", zap.Error(err))
		resp.Remote = "unavailable"
		resp.Status = "degraded"
		status = http.StatusServiceUnavailable
	}

	respondJSON(w, status, resp)
}
