package v1_test

import (
	"context"

	"github.com/google/uuid"

	"github.com/vetta-ai/vetta/internal/domain"
	"github.com/vetta-ai/vetta/internal/session"
)

// ---------------------------------------------------------------------------
// Mock SessionManager
// ---------------------------------------------------------------------------

type mockManager struct {
	createFunc func(ctx context.Context, candidateID, assessmentID string) (*domain.Session, error)
	getFunc    func(ctx context.Context, sessionID uuid.UUID) (*domain.Session, error)
	closeFunc  func(ctx context.Context, sessionID uuid.UUID, finalStatus domain.SessionStatus) (*domain.Session, error)
	recordFunc func(ctx context.Context, sessionID uuid.UUID, eventType string, origin domain.Origin, data map[string]any, opts session.RecordOptions) error
}

func (m *mockManager) Create(ctx context.Context, candidateID, assessmentID string) (*domain.Session, error) {
	return m.createFunc(ctx, candidateID, assessmentID)
}

func (m *mockManager) Get(ctx context.Context, sessionID uuid.UUID) (*domain.Session, error) {
	return m.getFunc(ctx, sessionID)
}

func (m *mockManager) Close(ctx context.Context, sessionID uuid.UUID, finalStatus domain.SessionStatus) (*domain.Session, error) {
	return m.closeFunc(ctx, sessionID, finalStatus)
}

func (m *mockManager) RecordEvent(ctx context.Context, sessionID uuid.UUID, eventType string, origin domain.Origin, data map[string]any, opts session.RecordOptions) error {
	return m.recordFunc(ctx, sessionID, eventType, origin, data, opts)
}

// ---------------------------------------------------------------------------
// Mock EventSource
// ---------------------------------------------------------------------------

type mockEventSource struct {
	flushFunc     func(ctx context.Context) error
	getEventsFunc func(ctx context.Context, sessionID uuid.UUID) ([]*domain.Event, error)
}

func (m *mockEventSource) FlushBatch(ctx context.Context) error {
	if m.flushFunc == nil {
		return nil
	}
	return m.flushFunc(ctx)
}

func (m *mockEventSource) GetEvents(ctx context.Context, sessionID uuid.UUID) ([]*domain.Event, error) {
	return m.getEventsFunc(ctx, sessionID)
}

// ---------------------------------------------------------------------------
// Mock ArchiveReader
// ---------------------------------------------------------------------------

type mockArchiveReader struct {
	fetchFunc func(ctx context.Context, key string) ([]*domain.Event, error)
}

func (m *mockArchiveReader) Fetch(ctx context.Context, key string) ([]*domain.Event, error) {
	return m.fetchFunc(ctx, key)
}
