package v1

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/google/uuid"

	"github.com/vetta-ai/vetta/internal/domain"
	"github.com/vetta-ai/vetta/internal/replay"
	"github.com/vetta-ai/vetta/internal/session"
)

// IngestEvent is one client action in a batch-ingestion request.
type IngestEvent struct {
	ClientActionID string         `json:"clientActionId,omitempty" doc:"Client idempotency key"`
	Type           string         `json:"type" minLength:"1" doc:"Dotted event type, e.g. code.snapshot"`
	Origin         string         `json:"origin,omitempty" enum:"USER,AI,SYSTEM" doc:"Producing actor (defaults to USER)"`
	Timestamp      time.Time      `json:"timestamp,omitempty" doc:"Client-side event time"`
	Data           map[string]any `json:"data,omitempty" doc:"Opaque structured payload"`
	FilePath       string         `json:"filePath,omitempty" doc:"Affected file, if any"`
	QuestionIndex  *int           `json:"questionIndex,omitempty" doc:"Question the event belongs to"`
}

type IngestEventsInput struct {
	ID   uuid.UUID `path:"id" doc:"Session ID"`
	Body struct {
		Events []IngestEvent `json:"events" minItems:"1" doc:"Ordered batch of events"`
	}
}

type IngestEventsOutput struct {
	Body struct {
		Accepted int `json:"accepted" doc:"Number of events accepted"`
	}
}

type ListEventsInput struct {
	ID uuid.UUID `path:"id" doc:"Session ID"`
}

type ListEventsOutput struct {
	Body []*domain.Event
}

type TimelineInput struct {
	ID uuid.UUID `path:"id" doc:"Session ID"`
}

type TimelineOutput struct {
	Body *replay.Timeline
}

type StatsInput struct {
	ID uuid.UUID `path:"id" doc:"Session ID"`
}

type StatsOutput struct {
	Body *replay.SessionStats
}

func RegisterEventRoutes(api huma.API, manager SessionManager, events EventSource, archives ArchiveReader) {
	huma.Register(api, huma.Operation{
		OperationID: "ingest-events",
		Method:      http.MethodPost,
		Path:        "/sessions/{id}/events",
		Summary:     "Ingest a batch of session events",
		Description: "A 2xx response means the full batch was accepted; there is no partial-batch-success contract.",
		Tags:        []string{"Events"},
	}, func(ctx context.Context, input *IngestEventsInput) (*IngestEventsOutput, error) {
		// Any per-event failure aborts with a non-2xx and the client
		// retries the entire batch; duplicates from the retry are
		// de-duplicated by clientActionId.
		for _, e := range input.Body.Events {
			origin := domain.Origin(e.Origin)
			if origin == "" {
				origin = domain.OriginUser
			}

			err := manager.RecordEvent(ctx, input.ID, e.Type, origin, e.Data, session.RecordOptions{
				UseBatch:       true,
				FilePath:       e.FilePath,
				QuestionIndex:  e.QuestionIndex,
				ClientActionID: e.ClientActionID,
			})
			if err != nil {
				switch {
				case errors.Is(err, domain.ErrValidation):
					return nil, huma.Error400BadRequest("invalid event in batch", err)
				case errors.Is(err, domain.ErrNotFound):
					return nil, huma.Error404NotFound("session not found or already closed")
				default:
					return nil, huma.Error500InternalServerError("failed to ingest batch", err)
				}
			}
		}

		out := &IngestEventsOutput{}
		out.Body.Accepted = len(input.Body.Events)
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/sessions/{id}/events",
		Summary:     "Read a session's ordered event stream",
		Tags:        []string{"Events"},
	}, func(ctx context.Context, input *ListEventsInput) (*ListEventsOutput, error) {
		stream, err := sessionEvents(ctx, manager, events, archives, input.ID)
		if err != nil {
			return nil, err
		}
		return &ListEventsOutput{Body: stream}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "session-timeline",
		Method:      http.MethodGet,
		Path:        "/sessions/{id}/timeline",
		Summary:     "Reconstruct a session's timeline",
		Tags:        []string{"Events"},
	}, func(ctx context.Context, input *TimelineInput) (*TimelineOutput, error) {
		stream, err := sessionEvents(ctx, manager, events, archives, input.ID)
		if err != nil {
			return nil, err
		}
		return &TimelineOutput{Body: replay.BuildTimeline(stream)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "session-stats",
		Method:      http.MethodGet,
		Path:        "/sessions/{id}/stats",
		Summary:     "Compute aggregate statistics for a session",
		Tags:        []string{"Events"},
	}, func(ctx context.Context, input *StatsInput) (*StatsOutput, error) {
		stream, err := sessionEvents(ctx, manager, events, archives, input.ID)
		if err != nil {
			return nil, err
		}
		return &StatsOutput{Body: replay.BuildStats(stream)}, nil
	})
}

// sessionEvents resolves the full ordered stream for a session: from the
// archive once the session is closed and compacted, otherwise from the live
// store after the batch barrier.
func sessionEvents(ctx context.Context, manager SessionManager, events EventSource, archives ArchiveReader, sessionID uuid.UUID) ([]*domain.Event, error) {
	s, err := manager.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, huma.Error404NotFound("session not found")
		}
		return nil, huma.Error500InternalServerError("failed to get session", err)
	}

	if s.Status.IsTerminal() && s.StoragePath != nil {
		stream, fetchErr := archives.Fetch(ctx, *s.StoragePath)
		if fetchErr == nil {
			return stream, nil
		}
		// Fall back to the live store; live data outlives a failed fetch.
	}

	if err := events.FlushBatch(ctx); err != nil {
		return nil, huma.Error500InternalServerError("failed to flush batched writes", err)
	}

	stream, err := events.GetEvents(ctx, sessionID)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to read events", err)
	}
	return stream, nil
}
