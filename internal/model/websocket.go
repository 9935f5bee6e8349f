package model

import "github.com/makeasinger/clipwatch/internal/poller"

// WebSocket message types
const (
	WSMessageTypeProgress = "progress"
	WSMessageTypeComplete = "complete"
	WSMessageTypeError    = "error"
	WSMessageTypePing     = "ping"
	WSMessageTypePong     = "pong"
)

// WebSocket error codes
const (
	WSErrorFetchFailed      = "FETCH_FAILED"
	WSErrorGenerationFailed = "GENERATION_FAILED"
)

// WSMessage represents a generic WebSocket message
type WSMessage struct {
	Type string `json:"type"`
}

// WSProgressMessage carries the latest poll snapshot of a generation
type WSProgressMessage struct {
	Type         string                `json:"type"`
	GenerationID string                `json:"generationId"`
	Progress     int                   `json:"progress"`
	Status       GenerationStatus      `json:"status"`
	Clips        []poller.StatusRecord `json:"clips"`
}

// WSCompleteMessage represents generation completion
type WSCompleteMessage struct {
	Type         string      `json:"type"`
	GenerationID string      `json:"generationId"`
	Result       interface{} `json:"result"`
}

// WSErrorMessage represents an error
type WSErrorMessage struct {
	Type         string  `json:"type"`
	GenerationID string  `json:"generationId"`
	Error        WSError `json:"error"`
}

// WSError represents error details
type WSError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
