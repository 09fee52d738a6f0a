package client

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/XavierBriggs/fortuna/services/scorecard-live/pkg/models"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 512

	// Buffer size for outbound messages
	sendBufferSize = 64
)

// Client is one viewer's WebSocket connection. A viewer watches at most one
// game at a time and reports whether its scorecard is visible.
type Client struct {
	ID   string
	conn *websocket.Conn
	Send chan models.ServerMessage // Exported for hub access
	hub  Hub
	log  logrus.FieldLogger

	viewMu  sync.RWMutex
	gameID  string
	visible bool

	mu               sync.Mutex
	connectedAt      time.Time
	messagesSent     int64
	messagesReceived int64
	lastMessageAt    time.Time
}

// Hub defines what a client needs from the broadcast hub
type Hub interface {
	Unregister(client *Client)
	ViewChanged(client *Client)
}

// NewClient creates a new client instance
func NewClient(id string, conn *websocket.Conn, hub Hub, log logrus.FieldLogger) *Client {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Client{
		ID:          id,
		conn:        conn,
		Send:        make(chan models.ServerMessage, sendBufferSize),
		hub:         hub,
		log:         log.WithField("client_id", id),
		connectedAt: time.Now(),
	}
}

// ReadPump pumps messages from the WebSocket connection to the hub
func (c *Client) ReadPump(ctx context.Context) {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		select {
		case <-ctx.Done():
			return
		default:
			var msg models.ClientMessage
			if err := c.conn.ReadJSON(&msg); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					c.log.WithError(err).Warn("Unexpected close")
				}
				return
			}

			c.updateReceived()
			c.HandleMessage(msg)
		}
	}
}

// WritePump pumps messages from the hub to the WebSocket connection
func (c *Client) WritePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case message, ok := <-c.Send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteJSON(message); err != nil {
				c.log.WithError(err).Warn("Write failed")
				return
			}

			c.updateSent()

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// TrySend sends a message to the client (non-blocking)
// Returns true if sent, false if buffer is full
func (c *Client) TrySend(msg models.ServerMessage) bool {
	select {
	case c.Send <- msg:
		return true
	default:
		return false
	}
}

// View returns the watched game and whether the viewer is foregrounded
func (c *Client) View() (gameID string, visible bool) {
	c.viewMu.RLock()
	defer c.viewMu.RUnlock()
	return c.gameID, c.visible
}

// Watching reports whether the client is subscribed to gameID
func (c *Client) Watching(gameID string) bool {
	c.viewMu.RLock()
	defer c.viewMu.RUnlock()
	return c.gameID != "" && c.gameID == gameID
}

// GetStats returns connection statistics
func (c *Client) GetStats() models.ConnectionStats {
	gameID, visible := c.View()

	c.mu.Lock()
	defer c.mu.Unlock()

	return models.ConnectionStats{
		ClientID:          c.ID,
		GameID:            gameID,
		Visible:           visible,
		ConnectedAt:       c.connectedAt,
		MessagesSent:      c.messagesSent,
		MessagesReceived:  c.messagesReceived,
		LastMessageAt:     c.lastMessageAt,
		BufferSize:        sendBufferSize,
		BufferUtilization: float64(len(c.Send)) / float64(sendBufferSize) * 100.0,
	}
}

// HandleMessage processes one message from the viewer
func (c *Client) HandleMessage(msg models.ClientMessage) {
	switch msg.Type {
	case models.MessageTypeSubscribe:
		c.handleSubscribe(msg.Payload)
	case models.MessageTypeUnsubscribe:
		c.setView("", false)
	case models.MessageTypeVisibility:
		c.handleVisibility(msg.Payload)
	case models.MessageTypeHeartbeat:
		c.sendHeartbeat()
	default:
		c.sendError("unknown_message_type", fmt.Sprintf("unknown message type: %s", msg.Type))
	}
}

func (c *Client) handleSubscribe(payload json.RawMessage) {
	var sub models.SubscribePayload
	if err := json.Unmarshal(payload, &sub); err != nil {
		c.sendError("invalid_subscription", "failed to parse subscription")
		return
	}
	if _, err := models.ParseGameID(sub.GameID); err != nil {
		c.sendError("invalid_game_id", err.Error())
		return
	}

	visible := true
	if sub.Visible != nil {
		visible = *sub.Visible
	}
	c.setView(sub.GameID, visible)
	c.log.WithFields(logrus.Fields{
		"game_id": sub.GameID,
		"visible": visible,
	}).Info("Client subscribed")
}

func (c *Client) handleVisibility(payload json.RawMessage) {
	var v models.VisibilityPayload
	if err := json.Unmarshal(payload, &v); err != nil {
		c.sendError("invalid_visibility", "failed to parse visibility")
		return
	}

	gameID, _ := c.View()
	c.setView(gameID, v.Visible)
}

// setView records the viewer's game and visibility and tells the hub
func (c *Client) setView(gameID string, visible bool) {
	c.viewMu.Lock()
	changed := c.gameID != gameID || c.visible != visible
	c.gameID = gameID
	c.visible = visible
	c.viewMu.Unlock()

	if changed {
		c.hub.ViewChanged(c)
	}
}

// sendHeartbeat sends a heartbeat response
func (c *Client) sendHeartbeat() {
	c.TrySend(models.ServerMessage{
		Type:      models.MessageTypeHeartbeat,
		Payload:   c.GetStats(),
		Timestamp: time.Now(),
	})
}

// sendError sends an error message to the client
func (c *Client) sendError(code, message string) {
	c.TrySend(models.ServerMessage{
		Type: models.MessageTypeError,
		Payload: models.ErrorMessage{
			Code:    code,
			Message: message,
		},
		Timestamp: time.Now(),
	})
}

// updateSent increments the sent message counter
func (c *Client) updateSent() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messagesSent++
	c.lastMessageAt = time.Now()
}

// updateReceived increments the received message counter
func (c *Client) updateReceived() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messagesReceived++
	c.lastMessageAt = time.Now()
}
