package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type SessionStatus string

const (
	SessionStatusActive     SessionStatus = "ACTIVE"
	SessionStatusCompleted  SessionStatus = "COMPLETED"
	SessionStatusAbandoned  SessionStatus = "ABANDONED"
	SessionStatusTerminated SessionStatus = "TERMINATED"
)

// IsTerminal reports whether the status is one of the three terminal states.
// A session enters a terminal state exactly once and never leaves it.
func (s SessionStatus) IsTerminal() bool {
	switch s {
	case SessionStatusCompleted, SessionStatusAbandoned, SessionStatusTerminated:
		return true
	default:
		return false
	}
}

// CloseReason maps a terminal status to the reason recorded on the
// session.end checkpoint.
func (s SessionStatus) CloseReason() string {
	switch s {
	case SessionStatusCompleted:
		return "completed"
	case SessionStatusAbandoned:
		return "abandoned"
	case SessionStatusTerminated:
		return "terminated"
	default:
		return ""
	}
}

// Session is one interview run for a candidate. It is created ACTIVE,
// mutated by every accepted event (EventCount) and by lifecycle
// transitions, and terminated exactly once.
type Session struct {
	ID           uuid.UUID
	CandidateID  string
	AssessmentID string
	Status       SessionStatus
	StartTime    time.Time
	EndTime      *time.Time
	Duration     *time.Duration
	EventCount   int64
	StoragePath  *string
	StorageSize  *int64
	CreatedAt    time.Time
}

type SessionRepository interface {
	Create(ctx context.Context, s *Session) error
	GetByID(ctx context.Context, id uuid.UUID) (*Session, error)
	IncrementEventCount(ctx context.Context, id uuid.UUID) error
	// SetClosed persists the terminal transition. storagePath and
	// storageSize stay nil when archival was skipped or failed.
	SetClosed(ctx context.Context, id uuid.UUID, status SessionStatus, endTime time.Time, duration time.Duration, storagePath *string, storageSize *int64) error
	ListByCandidate(ctx context.Context, candidateID string) ([]*Session, error)
}
