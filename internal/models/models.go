// Package models defines the core data structures for HealthPipe.
//
// It includes the conversation session, persisted health records, reminder snapshots and
// the transport-level receipt and response events shared across modules.
package models

// MessageStatus is the delivery status reported for an outbound message.
type MessageStatus string

const (
	// MessageStatusSent indicates the transport accepted the message.
	MessageStatusSent MessageStatus = "sent"
	// MessageStatusDelivered indicates the message reached the device.
	MessageStatusDelivered MessageStatus = "delivered"
	// MessageStatusRead indicates the message was read.
	MessageStatusRead MessageStatus = "read"
	// MessageStatusFailed indicates the transport rejected the message.
	MessageStatusFailed MessageStatus = "failed"
)

// Receipt is a delivery event for a message sent to a user.
type Receipt struct {
	To     string        `json:"to"`
	Status MessageStatus `json:"status"`
	Time   int64         `json:"time"`
}

// Response represents an incoming message from a user.
type Response struct {
	From string `json:"from"`
	Body string `json:"body"`
	Time int64  `json:"time"`
}

// APIResponse represents a standard API response with a status and optional data.
type APIResponse struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Result  interface{} `json:"result,omitempty"`
}

// API response status values.
const (
	APIStatusOK    = "ok"
	APIStatusError = "error"
)

// Success creates a successful API response carrying result.
func Success(result interface{}) APIResponse {
	return APIResponse{Status: APIStatusOK, Result: result}
}

// Error creates an error API response with a message.
func Error(message string) APIResponse {
	return APIResponse{Status: APIStatusError, Message: message}
}
