package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Interaction status values.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusDropped   = "dropped"
)

// Interaction is one dispatched user utterance and how it resolved.
type Interaction struct {
	ID             string    `json:"id"`
	CreatedAt      time.Time `json:"created_at"`
	ConversationID string    `json:"conversation_id"`
	UserQuery      string    `json:"user_query"`
	Intent         string    `json:"intent"`
	Status         string    `json:"status"`
	Error          string    `json:"error,omitempty"`
	DurationMs     int64     `json:"duration_ms"`
}

// IntentCount aggregates interactions for a single intent.
type IntentCount struct {
	Intent string `json:"intent"`
	Total  int    `json:"total"`
	Failed int    `json:"failed"`
}
