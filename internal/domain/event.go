package domain

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Origin identifies the actor that produced an event.
type Origin string

const (
	OriginUser   Origin = "USER"
	OriginAI     Origin = "AI"
	OriginSystem Origin = "SYSTEM"
)

// Event is a single append-only entry in a session's activity stream.
// Events are never mutated after they are written.
type Event struct {
	ID             uuid.UUID
	SessionID      uuid.UUID
	SequenceNumber int64  // strictly increasing, gap-free per session
	ClientActionID string // optional client idempotency key for de-duplication
	EventType      string // dotted taxonomy, e.g. "code.snapshot"
	Category       string // leading dotted segment of EventType
	Origin         Origin
	Timestamp      time.Time
	Data           map[string]any
	Checkpoint     bool
	FilePath       string
	QuestionIndex  *int
}

// Fixed milestone taxonomy. Events of these types are safe replay/resume
// anchors and are flagged as checkpoints regardless of how they arrive.
const (
	TypeSessionStart    = "session.start"
	TypeSessionEnd      = "session.end"
	TypeQuestionStart   = "question.start"
	TypeQuestionSubmit  = "question.submit"
	TypeCodeSnapshot    = "code.snapshot"
	TypeCodeEdit        = "code.edit"
	TypeTestResult      = "test.result"
	TypeChatMessage     = "chat.message"
	TypeTerminalCommand = "terminal.command"
)

var checkpointTypes = map[string]bool{
	TypeSessionStart:   true,
	TypeSessionEnd:     true,
	TypeQuestionStart:  true,
	TypeQuestionSubmit: true,
	TypeCodeSnapshot:   true,
	TypeTestResult:     true,
}

// IsCheckpoint reports whether eventType belongs to the fixed milestone set.
// Pure function: same input always yields the same answer.
func IsCheckpoint(eventType string) bool {
	return checkpointTypes[eventType]
}

// CategoryOf derives the coarse event category from the leading dotted
// segment of the event type ("code.snapshot" -> "code").
func CategoryOf(eventType string) string {
	if i := strings.IndexByte(eventType, '.'); i >= 0 {
		return eventType[:i]
	}
	return eventType
}

// Validate checks the fields required before an event may be sequenced.
func (e *Event) Validate() error {
	if e.SessionID == uuid.Nil {
		return fmt.Errorf("event missing session id: %w", ErrValidation)
	}
	if e.EventType == "" {
		return fmt.Errorf("event missing event type: %w", ErrValidation)
	}
	return nil
}

// EventRepository is the append-only durable store for session events,
// keyed by (session_id, sequence_number).
type EventRepository interface {
	Insert(ctx context.Context, e *Event) error
	InsertBatch(ctx context.Context, events []*Event) error
	ListBySession(ctx context.Context, sessionID uuid.UUID) ([]*Event, error)
	// MaxSequence returns the highest assigned sequence number for the
	// session, or 0 when no events exist.
	MaxSequence(ctx context.Context, sessionID uuid.UUID) (int64, error)
	// ListClientActionIDs returns the client idempotency keys already
	// persisted for the session, used to seed server-side de-duplication.
	ListClientActionIDs(ctx context.Context, sessionID uuid.UUID) ([]string, error)
}
