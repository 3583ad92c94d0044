// Package session orchestrates interview session creation, event
// bookkeeping, and termination.
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/vetta-ai/vetta/internal/domain"
)

// EventLog is the slice of the event store the manager needs.
type EventLog interface {
	Append(ctx context.Context, e *domain.Event) (uuid.UUID, error)
	EmitBatched(ctx context.Context, events []*domain.Event) (int, error)
	FlushBatch(ctx context.Context) error
	GetEvents(ctx context.Context, sessionID uuid.UUID) ([]*domain.Event, error)
	Release(sessionID uuid.UUID)
}

// Archiver compacts a closed session's event stream into cold storage.
type Archiver interface {
	Archive(ctx context.Context, s *domain.Session, events []*domain.Event) (*domain.Archive, error)
}

// RecordOptions tunes how a single event is recorded.
type RecordOptions struct {
	UseBatch       bool
	FilePath       string
	QuestionIndex  *int
	ClientActionID string
}

// Manager owns the session lifecycle: ACTIVE -> COMPLETED | ABANDONED |
// TERMINATED, with all terminal states final.
type Manager struct {
	sessions   domain.SessionRepository
	candidates domain.CandidateRepository
	events     EventLog
	archiver   Archiver
}

func NewManager(sessions domain.SessionRepository, candidates domain.CandidateRepository, events EventLog, archiver Archiver) *Manager {
	return &Manager{
		sessions:   sessions,
		candidates: candidates,
		events:     events,
		archiver:   archiver,
	}
}

// Create starts a new ACTIVE session for the candidate and synchronously
// emits the session.start checkpoint.
func (m *Manager) Create(ctx context.Context, candidateID, assessmentID string) (*domain.Session, error) {
	if _, err := m.candidates.GetByID(ctx, candidateID); err != nil {
		return nil, fmt.Errorf("session.Manager.Create: candidate %q: %w", candidateID, err)
	}

	now := time.Now().UTC()
	s := &domain.Session{
		ID:           uuid.New(),
		CandidateID:  candidateID,
		AssessmentID: assessmentID,
		Status:       domain.SessionStatusActive,
		StartTime:    now,
		CreatedAt:    now,
	}

	if err := m.sessions.Create(ctx, s); err != nil {
		return nil, fmt.Errorf("session.Manager.Create: %w", err)
	}

	err := m.record(ctx, s, domain.TypeSessionStart, domain.OriginSystem, map[string]any{
		"candidateId":  candidateID,
		"assessmentId": assessmentID,
	}, RecordOptions{})
	if err != nil {
		return nil, fmt.Errorf("session.Manager.Create: %w", err)
	}

	return s, nil
}

// Get returns a session by ID.
func (m *Manager) Get(ctx context.Context, sessionID uuid.UUID) (*domain.Session, error) {
	s, err := m.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("session.Manager.Get: %w", err)
	}
	return s, nil
}

// RecordEvent is the single entry point for all recording helpers. The
// session must still be ACTIVE; recording against a terminal or unknown
// session fails with ErrNotFound.
func (m *Manager) RecordEvent(ctx context.Context, sessionID uuid.UUID, eventType string, origin domain.Origin, data map[string]any, opts RecordOptions) error {
	s, err := m.activeSession(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("session.Manager.RecordEvent: %w", err)
	}

	if err := m.record(ctx, s, eventType, origin, data, opts); err != nil {
		return fmt.Errorf("session.Manager.RecordEvent: %w", err)
	}
	return nil
}

// RecordSnapshot records a code.snapshot checkpoint for a file.
func (m *Manager) RecordSnapshot(ctx context.Context, sessionID uuid.UUID, filePath string, data map[string]any, useBatch bool) error {
	return m.RecordEvent(ctx, sessionID, domain.TypeCodeSnapshot, domain.OriginUser, data, RecordOptions{
		UseBatch: useBatch,
		FilePath: filePath,
	})
}

// RecordChatMessage records one side of an assistant exchange.
func (m *Manager) RecordChatMessage(ctx context.Context, sessionID uuid.UUID, origin domain.Origin, data map[string]any, useBatch bool) error {
	return m.RecordEvent(ctx, sessionID, domain.TypeChatMessage, origin, data, RecordOptions{UseBatch: useBatch})
}

// RecordTestRun records a test.result checkpoint.
func (m *Manager) RecordTestRun(ctx context.Context, sessionID uuid.UUID, data map[string]any, useBatch bool) error {
	return m.RecordEvent(ctx, sessionID, domain.TypeTestResult, domain.OriginSystem, data, RecordOptions{UseBatch: useBatch})
}

// RecordTerminalCommand records a terminal.command event.
func (m *Manager) RecordTerminalCommand(ctx context.Context, sessionID uuid.UUID, data map[string]any, useBatch bool) error {
	return m.RecordEvent(ctx, sessionID, domain.TypeTerminalCommand, domain.OriginUser, data, RecordOptions{UseBatch: useBatch})
}

// Close is the only path to a terminal state. It emits the session.end
// checkpoint, flushes outstanding batched writes, snapshots the full
// stream, archives it when non-empty, and persists the terminal status.
// Closing an already-terminal session fails with ErrNotFound, which also
// prevents double archival. Archival failure is logged and never blocks
// the terminal transition: the live event data remains the fallback.
func (m *Manager) Close(ctx context.Context, sessionID uuid.UUID, finalStatus domain.SessionStatus) (*domain.Session, error) {
	if !finalStatus.IsTerminal() {
		return nil, fmt.Errorf("session.Manager.Close: status %q is not terminal: %w", finalStatus, domain.ErrValidation)
	}

	s, err := m.activeSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("session.Manager.Close: %w", err)
	}

	err = m.record(ctx, s, domain.TypeSessionEnd, domain.OriginSystem, map[string]any{
		"reason":      finalStatus.CloseReason(),
		"finalStatus": string(finalStatus),
	}, RecordOptions{})
	if err != nil {
		return nil, fmt.Errorf("session.Manager.Close: %w", err)
	}

	// Barrier: a close racing outstanding batched writes must wait, never
	// cancel, so no accepted event is lost from the archive.
	if err := m.events.FlushBatch(ctx); err != nil {
		return nil, fmt.Errorf("session.Manager.Close: %w", err)
	}

	events, err := m.events.GetEvents(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("session.Manager.Close: %w", err)
	}

	var storagePath *string
	var storageSize *int64
	if len(events) > 0 {
		archive, archiveErr := m.archiver.Archive(ctx, s, events)
		if archiveErr != nil {
			log.Error().Err(archiveErr).
				Str("session_id", sessionID.String()).
				Msg("session: archival failed, closing without cold storage")
		} else if archive != nil {
			storagePath = &archive.BlobKey
			storageSize = &archive.CompressedSize
		}
	}

	endTime := time.Now().UTC()
	duration := endTime.Sub(s.StartTime)

	if err := m.sessions.SetClosed(ctx, sessionID, finalStatus, endTime, duration, storagePath, storageSize); err != nil {
		return nil, fmt.Errorf("session.Manager.Close: %w", err)
	}

	// The session is terminal: drop its sequencer state so store memory
	// tracks live sessions, not every session ever seen.
	m.events.Release(sessionID)

	s.Status = finalStatus
	s.EndTime = &endTime
	s.Duration = &duration
	s.StoragePath = storagePath
	s.StorageSize = storageSize

	return s, nil
}

func (m *Manager) activeSession(ctx context.Context, sessionID uuid.UUID) (*domain.Session, error) {
	s, err := m.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if s.Status.IsTerminal() {
		return nil, fmt.Errorf("session %s already %s: %w", sessionID, s.Status, domain.ErrNotFound)
	}
	return s, nil
}

func (m *Manager) record(ctx context.Context, s *domain.Session, eventType string, origin domain.Origin, data map[string]any, opts RecordOptions) error {
	e := &domain.Event{
		SessionID:      s.ID,
		ClientActionID: opts.ClientActionID,
		EventType:      eventType,
		Origin:         origin,
		Data:           data,
		FilePath:       opts.FilePath,
		QuestionIndex:  opts.QuestionIndex,
	}

	accepted := 1
	if opts.UseBatch {
		n, err := m.events.EmitBatched(ctx, []*domain.Event{e})
		if err != nil {
			return err
		}
		accepted = n
	} else {
		id, err := m.events.Append(ctx, e)
		if err != nil {
			return err
		}
		if id == uuid.Nil {
			// Duplicate delivery of an already-accepted client action.
			accepted = 0
		}
	}

	// A de-duplicated redelivery was already counted when first accepted;
	// counting it again would drift eventCount past the stream length.
	if accepted == 0 {
		return nil
	}

	if err := m.sessions.IncrementEventCount(ctx, s.ID); err != nil {
		return err
	}
	s.EventCount++

	return nil
}
