package v1_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/danielgtaylor/huma/v2/humatest"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	v1 "github.com/vetta-ai/vetta/internal/api/v1"
	"github.com/vetta-ai/vetta/internal/domain"
	"github.com/vetta-ai/vetta/internal/replay"
	"github.com/vetta-ai/vetta/internal/session"
)

func liveStream(sessionID uuid.UUID) []*domain.Event {
	return []*domain.Event{
		{ID: uuid.New(), SessionID: sessionID, SequenceNumber: 1, EventType: domain.TypeSessionStart, Category: "session", Origin: domain.OriginSystem, Checkpoint: true},
		{ID: uuid.New(), SessionID: sessionID, SequenceNumber: 2, EventType: domain.TypeChatMessage, Category: "chat", Origin: domain.OriginUser},
		{ID: uuid.New(), SessionID: sessionID, SequenceNumber: 3, EventType: domain.TypeChatMessage, Category: "chat", Origin: domain.OriginAI},
	}
}

// ---------------------------------------------------------------------------
// TestIngestEvents
// ---------------------------------------------------------------------------

func TestIngestEvents(t *testing.T) {
	t.Parallel()

	sessionID := uuid.New()

	t.Run("happy_path", func(t *testing.T) {
		t.Parallel()

		var recorded []session.RecordOptions
		var types []string
		var origins []domain.Origin

		_, api := humatest.New(t)
		manager := &mockManager{
			recordFunc: func(_ context.Context, id uuid.UUID, eventType string, origin domain.Origin, _ map[string]any, opts session.RecordOptions) error {
				assert.Equal(t, sessionID, id)
				recorded = append(recorded, opts)
				types = append(types, eventType)
				origins = append(origins, origin)
				return nil
			},
		}
		v1.RegisterEventRoutes(api, manager, &mockEventSource{}, &mockArchiveReader{})

		resp := api.Post("/sessions/"+sessionID.String()+"/events", map[string]any{
			"events": []map[string]any{
				{"clientActionId": "a-1", "type": "code.edit"},
				{"clientActionId": "a-2", "type": "chat.message", "origin": "AI"},
			},
		})
		require.Equal(t, http.StatusOK, resp.Code)

		var body struct {
			Accepted int `json:"accepted"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, 2, body.Accepted)

		require.Len(t, recorded, 2)
		assert.Equal(t, []string{"code.edit", "chat.message"}, types)
		assert.Equal(t, domain.OriginUser, origins[0], "origin defaults to USER")
		assert.Equal(t, domain.OriginAI, origins[1])
		for _, opts := range recorded {
			assert.True(t, opts.UseBatch, "ingestion always takes the batched path")
			assert.NotEmpty(t, opts.ClientActionID)
		}
	})

	t.Run("validation_error_returns_400", func(t *testing.T) {
		t.Parallel()

		_, api := humatest.New(t)
		manager := &mockManager{
			recordFunc: func(context.Context, uuid.UUID, string, domain.Origin, map[string]any, session.RecordOptions) error {
				return domain.ErrValidation
			},
		}
		v1.RegisterEventRoutes(api, manager, &mockEventSource{}, &mockArchiveReader{})

		resp := api.Post("/sessions/"+sessionID.String()+"/events", map[string]any{
			"events": []map[string]any{{"type": "code.edit"}},
		})
		assert.Equal(t, http.StatusBadRequest, resp.Code)
	})

	t.Run("closed_session_returns_404", func(t *testing.T) {
		t.Parallel()

		_, api := humatest.New(t)
		manager := &mockManager{
			recordFunc: func(context.Context, uuid.UUID, string, domain.Origin, map[string]any, session.RecordOptions) error {
				return domain.ErrNotFound
			},
		}
		v1.RegisterEventRoutes(api, manager, &mockEventSource{}, &mockArchiveReader{})

		resp := api.Post("/sessions/"+sessionID.String()+"/events", map[string]any{
			"events": []map[string]any{{"type": "code.edit"}},
		})
		assert.Equal(t, http.StatusNotFound, resp.Code)
	})

	t.Run("empty_batch_rejected", func(t *testing.T) {
		t.Parallel()

		_, api := humatest.New(t)
		manager := &mockManager{
			recordFunc: func(context.Context, uuid.UUID, string, domain.Origin, map[string]any, session.RecordOptions) error {
				t.Fatal("manager must not be called for an empty batch")
				return nil
			},
		}
		v1.RegisterEventRoutes(api, manager, &mockEventSource{}, &mockArchiveReader{})

		resp := api.Post("/sessions/"+sessionID.String()+"/events", map[string]any{
			"events": []map[string]any{},
		})
		assert.Equal(t, http.StatusUnprocessableEntity, resp.Code)
	})
}

// ---------------------------------------------------------------------------
// TestListEvents
// ---------------------------------------------------------------------------

func TestListEvents(t *testing.T) {
	t.Parallel()

	sessionID := uuid.New()

	t.Run("live_session_flushes_then_reads", func(t *testing.T) {
		t.Parallel()

		flushed := false
		_, api := humatest.New(t)
		manager := &mockManager{
			getFunc: func(_ context.Context, id uuid.UUID) (*domain.Session, error) {
				return &domain.Session{ID: id, Status: domain.SessionStatusActive}, nil
			},
		}
		events := &mockEventSource{
			flushFunc: func(context.Context) error {
				flushed = true
				return nil
			},
			getEventsFunc: func(_ context.Context, id uuid.UUID) ([]*domain.Event, error) {
				assert.True(t, flushed, "the batch barrier must run before the read")
				return liveStream(id), nil
			},
		}
		v1.RegisterEventRoutes(api, manager, events, &mockArchiveReader{})

		resp := api.Get("/sessions/" + sessionID.String() + "/events")
		require.Equal(t, http.StatusOK, resp.Code)

		var body []*domain.Event
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		require.Len(t, body, 3)
		assert.Equal(t, int64(1), body[0].SequenceNumber)
	})

	t.Run("archived_session_reads_from_blob", func(t *testing.T) {
		t.Parallel()

		storagePath := "sessions/2026/03/01/" + sessionID.String() + "/events.json.gz"
		_, api := humatest.New(t)
		manager := &mockManager{
			getFunc: func(_ context.Context, id uuid.UUID) (*domain.Session, error) {
				return &domain.Session{ID: id, Status: domain.SessionStatusCompleted, StoragePath: &storagePath}, nil
			},
		}
		events := &mockEventSource{
			getEventsFunc: func(context.Context, uuid.UUID) ([]*domain.Event, error) {
				t.Fatal("archived sessions must not hit the live store")
				return nil, nil
			},
		}
		archives := &mockArchiveReader{
			fetchFunc: func(_ context.Context, key string) ([]*domain.Event, error) {
				assert.Equal(t, storagePath, key)
				return liveStream(sessionID), nil
			},
		}
		v1.RegisterEventRoutes(api, manager, events, archives)

		resp := api.Get("/sessions/" + sessionID.String() + "/events")
		require.Equal(t, http.StatusOK, resp.Code)

		var body []*domain.Event
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Len(t, body, 3)
	})

	t.Run("failed_fetch_falls_back_to_live_store", func(t *testing.T) {
		t.Parallel()

		storagePath := "sessions/2026/03/01/" + sessionID.String() + "/events.json.gz"
		_, api := humatest.New(t)
		manager := &mockManager{
			getFunc: func(_ context.Context, id uuid.UUID) (*domain.Session, error) {
				return &domain.Session{ID: id, Status: domain.SessionStatusCompleted, StoragePath: &storagePath}, nil
			},
		}
		events := &mockEventSource{
			getEventsFunc: func(_ context.Context, id uuid.UUID) ([]*domain.Event, error) {
				return liveStream(id), nil
			},
		}
		archives := &mockArchiveReader{
			fetchFunc: func(context.Context, string) ([]*domain.Event, error) {
				return nil, errors.New("blob store unavailable")
			},
		}
		v1.RegisterEventRoutes(api, manager, events, archives)

		resp := api.Get("/sessions/" + sessionID.String() + "/events")
		require.Equal(t, http.StatusOK, resp.Code)

		var body []*domain.Event
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Len(t, body, 3)
	})

	t.Run("unknown_session_returns_404", func(t *testing.T) {
		t.Parallel()

		_, api := humatest.New(t)
		manager := &mockManager{
			getFunc: func(context.Context, uuid.UUID) (*domain.Session, error) {
				return nil, domain.ErrNotFound
			},
		}
		v1.RegisterEventRoutes(api, manager, &mockEventSource{}, &mockArchiveReader{})

		resp := api.Get("/sessions/" + uuid.NewString() + "/events")
		assert.Equal(t, http.StatusNotFound, resp.Code)
	})
}

// ---------------------------------------------------------------------------
// TestSessionTimeline / TestSessionStats
// ---------------------------------------------------------------------------

func TestSessionTimeline(t *testing.T) {
	t.Parallel()

	sessionID := uuid.New()

	_, api := humatest.New(t)
	manager := &mockManager{
		getFunc: func(_ context.Context, id uuid.UUID) (*domain.Session, error) {
			return &domain.Session{ID: id, Status: domain.SessionStatusActive}, nil
		},
	}
	events := &mockEventSource{
		getEventsFunc: func(_ context.Context, id uuid.UUID) ([]*domain.Event, error) {
			return liveStream(id), nil
		},
	}
	v1.RegisterEventRoutes(api, manager, events, &mockArchiveReader{})

	resp := api.Get("/sessions/" + sessionID.String() + "/timeline")
	require.Equal(t, http.StatusOK, resp.Code)

	var body replay.Timeline
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.ChatTurns, 1)
	assert.NotNil(t, body.ChatTurns[0].Assistant)
	assert.Len(t, body.Categories["chat"], 2)
}

func TestSessionStats(t *testing.T) {
	t.Parallel()

	sessionID := uuid.New()

	_, api := humatest.New(t)
	manager := &mockManager{
		getFunc: func(_ context.Context, id uuid.UUID) (*domain.Session, error) {
			return &domain.Session{ID: id, Status: domain.SessionStatusActive}, nil
		},
	}
	events := &mockEventSource{
		getEventsFunc: func(_ context.Context, id uuid.UUID) ([]*domain.Event, error) {
			return liveStream(id), nil
		},
	}
	v1.RegisterEventRoutes(api, manager, events, &mockArchiveReader{})

	resp := api.Get("/sessions/" + sessionID.String() + "/stats")
	require.Equal(t, http.StatusOK, resp.Code)

	var body replay.SessionStats
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, 3, body.TotalEvents)
	assert.Equal(t, 1, body.CheckpointCount)
	assert.Equal(t, 2, body.ClaudeInteractions.TotalInteractions)
}
