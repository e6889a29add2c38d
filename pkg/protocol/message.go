// Package protocol defines the WebSocket message types for posture sessions.
// It is shared by the session server and its streaming clients.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// MessageType identifies the type of WebSocket message
type MessageType string

const (
	// Client → Server messages
	TypeFrame    MessageType = "frame"    // Camera frame
	TypeSettings MessageType = "settings" // Tunable update
	TypeRestart  MessageType = "restart"  // Recalibrate

	// Server → Client messages
	TypeHello  MessageType = "hello"  // Session opened
	TypeStatus MessageType = "status" // Posture status for one frame
	TypeError  MessageType = "error"  // Rejected request

	// Bidirectional
	TypePing MessageType = "ping" // Health check
	TypePong MessageType = "pong" // Health check response
)

// Message is the base wrapper for all WebSocket messages
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp int64           `json:"ts,omitempty"` // Unix milliseconds
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewMessage creates a new message with the current timestamp
func NewMessage(msgType MessageType, data any) (*Message, error) {
	var rawData json.RawMessage
	if data != nil {
		var err error
		rawData, err = json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal message data: %w", err)
		}
	}

	return &Message{
		Type:      msgType,
		Timestamp: time.Now().UnixMilli(),
		Data:      rawData,
	}, nil
}

// ParseData unmarshals the message data into the provided struct
func (m *Message) ParseData(v any) error {
	if m.Data == nil {
		return nil
	}
	return json.Unmarshal(m.Data, v)
}

// Bytes returns the JSON-encoded message
func (m *Message) Bytes() ([]byte, error) {
	return json.Marshal(m)
}

// ParseMessage parses a JSON message from bytes
func ParseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}
	if msg.Type == "" {
		return nil, ErrMissingType
	}
	return &msg, nil
}

// =============================================================================
// Client → Server Message Types
// =============================================================================

// FrameData contains one camera frame
type FrameData struct {
	Width   int    `json:"width,omitempty"`
	Height  int    `json:"height,omitempty"`
	Format  string `json:"format,omitempty"` // "jpeg", "png"
	Data    string `json:"data"`             // base64, data-URL prefix allowed
	FrameID uint64 `json:"frame_id,omitempty"`
}

// SettingsData is a partial settings update. Nil fields keep their value.
type SettingsData struct {
	Threshold *float64 `json:"threshold,omitempty"`
	Smoothing *int     `json:"smoothing,omitempty"`
	Metric    *string  `json:"metric,omitempty"`
}

// =============================================================================
// Server → Client Message Types
// =============================================================================

// SettingsState is the settings snapshot a session is running with
type SettingsState struct {
	Threshold float64 `json:"threshold"`
	Smoothing int     `json:"smoothing"`
	Metric    string  `json:"metric"`
	Version   uint64  `json:"version"`
}

// HelloData is sent once when a session opens
type HelloData struct {
	SessionID string        `json:"session_id"`
	Settings  SettingsState `json:"settings"`
}

// StatusData is the posture status for one processed frame
type StatusData struct {
	SessionID string `json:"session_id"`
	FrameID   uint64 `json:"frame_id,omitempty"`
	Seq       uint64 `json:"seq"`

	State    string `json:"state"`              // "GOOD", "WARNING", ...
	Previous string `json:"previous,omitempty"` // Last classified state, on NO_DATA
	Text     string `json:"text"`
	Readout  string `json:"readout,omitempty"`
	Detected bool   `json:"detected"`

	Current  *float64 `json:"current,omitempty"`  // Smoothed metric
	Raw      *float64 `json:"raw,omitempty"`      // Unsmoothed metric
	Baseline *float64 `json:"baseline,omitempty"` // Calibrated reference

	Remaining   float64 `json:"remaining,omitempty"`    // Calibration seconds left
	BadDuration float64 `json:"bad_duration,omitempty"` // Seconds spent bad

	Metric          string `json:"metric"`
	SettingsVersion uint64 `json:"settings_version"`
}

// ErrorData reports a rejected request
type ErrorData struct {
	Message string `json:"message"`
}

// =============================================================================
// Bidirectional Message Types
// =============================================================================

// PingData for health checks
type PingData struct {
	ID        string `json:"id"`
	Timestamp int64  `json:"ts"`
}

// PongData for health check responses
type PongData struct {
	ID        string `json:"id"`
	PingTS    int64  `json:"ping_ts"`
	PongTS    int64  `json:"pong_ts"`
	LatencyMs int64  `json:"latency_ms"`
}
