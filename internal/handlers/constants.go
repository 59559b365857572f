package handlers

import "time"

const (
	maxBodyBytes = 1 << 20

	ErrInvalidJSON         = "Invalid request body"
	ErrUnauthorized        = "Unauthorized"
	ErrInternalServerError = "Internal server error"
	ErrServiceUnavailable  = "Service unavailable"
)

// Websocket timing
const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	maxMessageSize int64 = 512
)
