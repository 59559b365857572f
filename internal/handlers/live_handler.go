package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"famsync/internal/live"
	"famsync/internal/remote"
	"famsync/internal/service"
)

// maxCloseReason is the longest reason a close frame can carry
const maxCloseReason = 123

// LiveHandler streams family event snapshots over a websocket
type LiveHandler struct {
	eventService *service.EventService
	upgrader     websocket.Upgrader
	log          *zap.Logger
}

// NewLiveHandler creates a new live handler
func NewLiveHandler(eventService *service.EventService, logger *zap.Logger) *LiveHandler {
	return &LiveHandler{
		eventService: eventService,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Sessions are bearer tokens, not cookies
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		log: logger,
	}
}

// StreamEvents subscribes to a family and writes every snapshot as a JSON
// text message. The socket is closed with a reason when the remote listener
// fails.
func (h *LiveHandler) StreamEvents(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	familyID := r.PathValue("id")
	sub, err := h.eventService.Subscribe(ctx, familyID)
	if err != nil {
		respondServiceError(w, h.log, "failed to subscribe", err)
		return
	}
	defer sub.Cancel()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.String("family_id", familyID), zap.Error(err))
		return
	}
	defer conn.Close()

	h.log.Debug("live stream opened", zap.String("family_id", familyID))
	go h.readPump(conn, cancel)
	h.writePump(ctx, conn, sub)
	h.log.Debug("live stream closed", zap.String("family_id", familyID))
}

// readPump drains client frames so pongs and close frames are processed.
// It cancels the stream once the peer goes away.
func (h *LiveHandler) readPump(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				h.log.Warn("websocket read error", zap.Error(err))
			}
			return
		}
	}
}

func (h *LiveHandler) writePump(ctx context.Context, conn *websocket.Conn, sub *live.Subscription) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case snap, ok := <-sub.C():
			if !ok {
				h.writeClose(conn, sub.Err())
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(snap); err != nil {
				return
			}

		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-ctx.Done():
			return
		}
	}
}

func (h *LiveHandler) writeClose(conn *websocket.Conn, err error) {
	code, reason := closeFrame(err)
	if err != nil {
		h.log.Warn("live stream ended by listener", zap.Error(err))
	}
	msg := websocket.FormatCloseMessage(code, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}

func closeFrame(err error) (int, string) {
	var code int
	switch {
	case err == nil:
		return websocket.CloseNormalClosure, ""
	case errors.Is(err, live.ErrClosed):
		code = websocket.CloseGoingAway
	case errors.Is(err, remote.ErrPermissionDenied):
		code = websocket.ClosePolicyViolation
	case errors.Is(err, remote.ErrUnavailable):
		code = websocket.CloseTryAgainLater
	default:
		code = websocket.CloseInternalServerErr
	}

	reason := err.Error()
	if len(reason) > maxCloseReason {
		reason = strings.ToValidUTF8(reason[:maxCloseReason], "")
	}
	return code, reason
}
