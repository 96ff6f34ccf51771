package handler

import (
	"net/http"

	"heartline/backend/internal/chathub"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Allows connections from any origin. Tighten in production.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeWebSocket upgrades the HTTP connection and registers the client
// with the hub. AuthRequired has already placed the verified identity in
// the context and rejected banned users.
func (h *Handler) ServeWebSocket(c *gin.Context) {
	identity := currentIdentity(c)

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to upgrade connection"})
		return
	}

	client := chathub.NewWebSocketClient(h.Hub, identity, conn)

	h.Hub.RegisterCh <- client
	client.Run()
}
