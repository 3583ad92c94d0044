package v1

import (
	"context"

	"github.com/google/uuid"

	"github.com/vetta-ai/vetta/internal/domain"
	"github.com/vetta-ai/vetta/internal/session"
)

// SessionManager abstracts the lifecycle manager for handler testing.
// *session.Manager satisfies this interface.
type SessionManager interface {
	Create(ctx context.Context, candidateID, assessmentID string) (*domain.Session, error)
	Get(ctx context.Context, sessionID uuid.UUID) (*domain.Session, error)
	Close(ctx context.Context, sessionID uuid.UUID, finalStatus domain.SessionStatus) (*domain.Session, error)
	RecordEvent(ctx context.Context, sessionID uuid.UUID, eventType string, origin domain.Origin, data map[string]any, opts session.RecordOptions) error
}

// EventSource abstracts ordered reads from the event store.
// *eventlog.Store satisfies this interface.
type EventSource interface {
	FlushBatch(ctx context.Context) error
	GetEvents(ctx context.Context, sessionID uuid.UUID) ([]*domain.Event, error)
}

// ArchiveReader restores archived event streams for closed sessions.
// *archive.Compactor satisfies this interface.
type ArchiveReader interface {
	Fetch(ctx context.Context, key string) ([]*domain.Event, error)
}
