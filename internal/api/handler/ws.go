package handler

import (
	"errors"
	"net/http"
	"strangerchat/backend/internal/chathub"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

func (h *Handler) upgrader() *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
}

// checkOrigin allows any origin when no allow-list is configured.
func (h *Handler) checkOrigin(r *http.Request) bool {
	if len(h.allowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	_, ok := h.allowedOrigins[origin]
	return ok
}

// ServeWebSocket оновлює HTTP-з'єднання до WebSocket
func (h *Handler) ServeWebSocket(c *gin.Context) {
	// 1. Визначаємо ідентифікатор з'єднання: з токена або новий UUID
	id, err := h.connectionID(c)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}

	conn, err := h.upgrader().Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		h.log.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	// 2. Реєстрація клієнта в Chat Hub
	client := chathub.NewWebSocketClient(h.Hub, conn, id, h.sendBuffer, h.maxMessageSize, h.log)
	if !h.Hub.Register(client) {
		conn.Close()
		return
	}

	// 3. Запуск клієнта
	client.Run()
}

var (
	errTokenMissing = errors.New("authorization token missing")
	errTokenInvalid = errors.New("invalid token or expired")
)

func (h *Handler) connectionID(c *gin.Context) (string, error) {
	tok := tokenFromRequest(c)
	if tok == "" {
		if h.requireToken {
			return "", errTokenMissing
		}
		return uuid.NewString(), nil
	}
	id, err := h.Tokens.Parse(tok)
	if err != nil {
		h.log.Debug("rejecting token", zap.Error(err))
		return "", errTokenInvalid
	}
	return id, nil
}
