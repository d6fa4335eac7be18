package webui

import (
	"time"

	"nerase/lifecycle"
)

// Message types sent over /ws.
const (
	// MessageTypeState carries a lifecycle.DisplayState snapshot.
	MessageTypeState = "state"

	// MessageTypeError reports a server-side problem not tied to a job.
	MessageTypeError = "error"
)

// WSMessage is the envelope for every websocket message.
type WSMessage struct {
	Type      string      `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`
}

// ErrorData is the payload of an error message.
type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewWSMessage stamps msgType and data with the current time.
func NewWSMessage(msgType string, data interface{}) WSMessage {
	return WSMessage{
		Type:      msgType,
		Timestamp: time.Now(),
		Data:      data,
	}
}

// NewStateMessage wraps a display snapshot.
func NewStateMessage(state lifecycle.DisplayState) WSMessage {
	return NewWSMessage(MessageTypeState, state)
}

// NewErrorMessage creates an error message.
func NewErrorMessage(code, message string) WSMessage {
	return NewWSMessage(MessageTypeError, ErrorData{Code: code, Message: message})
}
