// Package hub provides a thread-safe websocket broadcast hub
// using the idiomatic Go channel-based fan-out pattern.
package hub

// Message represents a JSON message to be broadcast to watchers
type Message struct {
	Session string // Originating session, "" for hub-wide messages
	Data    []byte
}

// NewSessionMessage creates a message tagged with its session
func NewSessionMessage(sessionID string, data []byte) Message {
	return Message{Session: sessionID, Data: data}
}
