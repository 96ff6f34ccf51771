package chathub

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"heartline/backend/internal/models"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// WebSocketClient implements the Client interface over gorilla/websocket.
type WebSocketClient struct {
	Identity models.Identity
	Conn     *websocket.Conn
	Hub      *Hub
	Send     chan models.Event

	closeOnce sync.Once
	done      chan struct{}
}

// NewWebSocketClient constructor.
func NewWebSocketClient(hub *Hub, identity models.Identity, conn *websocket.Conn) *WebSocketClient {
	return &WebSocketClient{
		Identity: identity,
		Conn:     conn,
		Hub:      hub,
		Send:     make(chan models.Event, 256),
		done:     make(chan struct{}),
	}
}

func (c *WebSocketClient) GetUserID() string                   { return c.Identity.UserID }
func (c *WebSocketClient) GetIdentity() models.Identity        { return c.Identity }
func (c *WebSocketClient) GetSendChannel() chan<- models.Event { return c.Send }

// Run starts the pumps for the connection.
func (c *WebSocketClient) Run() {
	go c.writePump()
	go c.readPump()
}

// Close signals the pumps to stop. The Send channel is never closed: core
// goroutines deliver into it concurrently with connection replacement, so
// shutdown travels on a separate channel and events sent afterwards are
// simply never drained.
func (c *WebSocketClient) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// readPump reads client commands from the WebSocket and hands them to the
// hub until the connection drops.
func (c *WebSocketClient) readPump() {
	defer func() {
		c.Hub.UnregisterCh <- c
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("error reading message: %v", err)
			}
			break
		}

		var cmd models.Command
		if err := json.Unmarshal(raw, &cmd); err != nil {
			log.Printf("Error decoding command from %s: %v", c.Identity.UserID, err)
			continue
		}

		c.Hub.HandleCommand(c, cmd)
	}
}

// writePump drains the Send channel into the WebSocket and keeps the
// connection alive with pings.
func (c *WebSocketClient) writePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case <-c.done:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case ev := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			data, err := json.Marshal(ev)
			if err != nil {
				log.Printf("Error encoding event for %s: %v", c.Identity.UserID, err)
				continue
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

			// Drain whatever else is already queued.
			n := len(c.Send)
			for i := 0; i < n; i++ {
				next := <-c.Send
				data, err := json.Marshal(next)
				if err != nil {
					continue
				}
				if err := c.Conn.WriteMessage(websocket.TextMessage, data); err != nil {
					return
				}
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
