package model

import (
	"time"

	"github.com/makeasinger/clipwatch/internal/poller"
)

// Generation is one submitted (or adopted) batch of clips watched until ready
type Generation struct {
	ID           string                `json:"id"`
	UserID       string                `json:"userId"`
	Status       GenerationStatus      `json:"status"`
	Request      *GenerateRequest      `json:"request,omitempty"`
	ClipIDs      []string              `json:"clipIds"`
	Clips        []poller.StatusRecord `json:"clips"`
	Progress     int                   `json:"progress"`
	Fetches      int                   `json:"fetches"`
	Failures     int                   `json:"failures"`
	Error        *string               `json:"error,omitempty"`
	TaskID       string                `json:"taskId,omitempty"`
	ArchivedURLs map[string]string     `json:"archivedUrls,omitempty"`
	CreatedAt    time.Time             `json:"createdAt"`
	StartedAt    *time.Time            `json:"startedAt,omitempty"`
	CompletedAt  *time.Time            `json:"completedAt,omitempty"`
}

// GenerationTaskPayload is the asynq payload of a generation:watch task
type GenerationTaskPayload struct {
	GenerationID string `json:"generationId"`
}

// GenerateRequest represents the request body for a new generation
type GenerateRequest struct {
	Title            string   `json:"title" validate:"omitempty,max=120"`
	Tags             string   `json:"tags" validate:"omitempty,max=200"`
	Prompt           string   `json:"prompt" validate:"required_if=MakeInstrumental false,max=3000"`
	ContinueClipID   string   `json:"continueClipId" validate:"omitempty,max=64"`
	ContinueAt       *float64 `json:"continueAt" validate:"omitempty,min=0"`
	MakeInstrumental bool     `json:"makeInstrumental"`
	Model            string   `json:"model" validate:"omitempty,max=32"`
}

// WatchRequest adopts clips that were already submitted elsewhere
type WatchRequest struct {
	ClipIDs []string `json:"clipIds"`
}

// GenerationStartResponse represents the response when a generation is queued
type GenerationStartResponse struct {
	GenerationID string           `json:"generationId"`
	Status       GenerationStatus `json:"status"`
	CreatedAt    time.Time        `json:"createdAt"`
}

// GenerationStatusResponse represents the current state of a generation
type GenerationStatusResponse struct {
	GenerationID string                `json:"generationId"`
	Status       GenerationStatus      `json:"status"`
	Progress     int                   `json:"progress"`
	ClipIDs      []string              `json:"clipIds"`
	Clips        []poller.StatusRecord `json:"clips"`
	Fetches      int                   `json:"fetches"`
	Failures     int                   `json:"failures"`
	Error        *string               `json:"error"`
	ArchivedURLs map[string]string     `json:"archivedUrls,omitempty"`
	CreatedAt    time.Time             `json:"createdAt"`
	StartedAt    *time.Time            `json:"startedAt"`
	CompletedAt  *time.Time            `json:"completedAt"`
}

// GenerationCancelResponse represents the response when canceling a generation
type GenerationCancelResponse struct {
	Success      bool             `json:"success"`
	GenerationID string           `json:"generationId"`
	Status       GenerationStatus `json:"status"`
}

// GenerationResult is sent to subscribers once every clip is ready
type GenerationResult struct {
	Clips        []poller.StatusRecord `json:"clips"`
	ArchivedURLs map[string]string     `json:"archivedUrls,omitempty"`
}

// GenerationListResponse lists a user's recent generations
type GenerationListResponse struct {
	Generations []GenerationStatusResponse `json:"generations"`
}
