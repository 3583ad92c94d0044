// Package client implements the interview client's ingestion pipeline: a
// durable ordered queue of not-yet-acknowledged actions, a batcher that
// flushes on time or size thresholds, and mid-stream checkpointing for
// assistant responses. The queue mirrors itself to local storage so a page
// reload resumes from the same point (at-least-once delivery; the server
// de-duplicates by client action ID).
package client

import (
	"time"

	"github.com/google/uuid"
)

type ActionStatus string

const (
	ActionPending ActionStatus = "pending"
	ActionSending ActionStatus = "sending"
	ActionFailed  ActionStatus = "failed"
)

type ActionKind string

const (
	KindEvent ActionKind = "event"
	KindChat  ActionKind = "chat"
)

// EventPayload is the wire form of one client action, as accepted by the
// batch-ingestion endpoint.
type EventPayload struct {
	ClientActionID string         `json:"clientActionId,omitempty"`
	Type           string         `json:"type"`
	Origin         string         `json:"origin,omitempty"`
	Timestamp      time.Time      `json:"timestamp"`
	Data           map[string]any `json:"data,omitempty"`
	FilePath       string         `json:"filePath,omitempty"`
	QuestionIndex  *int           `json:"questionIndex,omitempty"`
}

// QueuedAction is one not-yet-acknowledged client action. Owned exclusively
// by the client; discarded past max age or max retries.
type QueuedAction struct {
	ID         string
	SessionID  uuid.UUID
	Kind       ActionKind
	Payload    EventPayload
	Status     ActionStatus
	RetryCount int
	EnqueuedAt time.Time
}

// StreamStatus tracks an in-flight assistant response.
type StreamStatus string

const (
	StreamStreaming StreamStatus = "streaming"
	StreamComplete  StreamStatus = "complete"
	StreamFailed    StreamStatus = "failed"
)

// StreamCheckpoint is the persisted state of a streaming assistant
// response, so a reload mid-stream surfaces the partial response instead of
// losing it.
type StreamCheckpoint struct {
	MessageID       string       `json:"messageId"`
	UserMessage     string       `json:"userMessage"`
	PartialResponse string       `json:"partialResponse"`
	ToolCalls       []string     `json:"toolCalls,omitempty"`
	Status          StreamStatus `json:"status"`
	UpdatedAt       time.Time    `json:"updatedAt"`
}
