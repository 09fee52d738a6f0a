package models

import (
	"encoding/json"
	"time"
)

// Message types for WebSocket communication
const (
	MessageTypeScorecardUpdate = "scorecard_update"
	MessageTypeScorecardError  = "scorecard_error"
	MessageTypeSubscribe       = "subscribe"
	MessageTypeUnsubscribe     = "unsubscribe"
	MessageTypeVisibility      = "visibility"
	MessageTypeHeartbeat       = "heartbeat"
	MessageTypeError           = "error"
)

// ClientMessage represents a message from viewer to server
type ClientMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// SubscribePayload selects the game a viewer watches.
// Visible defaults to true when omitted.
type SubscribePayload struct {
	GameID  string `json:"game_id"`
	Visible *bool  `json:"visible,omitempty"`
}

// VisibilityPayload reports whether the viewer's scorecard is in the foreground
type VisibilityPayload struct {
	Visible bool `json:"visible"`
}

// ServerMessage represents a message from server to viewer
type ServerMessage struct {
	Type      string      `json:"type"`
	GameID    string      `json:"game_id,omitempty"`
	Payload   interface{} `json:"payload,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// ScorecardError is the payload of a scorecard_error message
type ScorecardError struct {
	Message string `json:"message"`
}

// ConnectionStats represents connection statistics
type ConnectionStats struct {
	ClientID          string    `json:"client_id"`
	GameID            string    `json:"game_id,omitempty"`
	Visible           bool      `json:"visible"`
	ConnectedAt       time.Time `json:"connected_at"`
	MessagesSent      int64     `json:"messages_sent"`
	MessagesReceived  int64     `json:"messages_received"`
	LastMessageAt     time.Time `json:"last_message_at"`
	BufferSize        int       `json:"buffer_size"`
	BufferUtilization float64   `json:"buffer_utilization"` // Percentage
}

// ErrorMessage represents a protocol error sent to a viewer
type ErrorMessage struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
