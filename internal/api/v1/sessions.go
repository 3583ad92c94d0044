package v1

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/google/uuid"

	"github.com/vetta-ai/vetta/internal/domain"
)

type CreateSessionInput struct {
	Body struct {
		CandidateID  string `json:"candidateId" minLength:"1" doc:"Candidate ID"`
		AssessmentID string `json:"assessmentId,omitempty" doc:"Assessment ID"`
	}
}

type CreateSessionOutput struct {
	Body *domain.Session
}

type GetSessionInput struct {
	ID uuid.UUID `path:"id" doc:"Session ID"`
}

type GetSessionOutput struct {
	Body *domain.Session
}

type CloseSessionInput struct {
	ID   uuid.UUID `path:"id" doc:"Session ID"`
	Body struct {
		Status string `json:"status" minLength:"1" doc:"Terminal status: COMPLETED, ABANDONED, or TERMINATED"`
	}
}

type CloseSessionOutput struct {
	Body *domain.Session
}

func RegisterSessionRoutes(api huma.API, manager SessionManager) {
	huma.Register(api, huma.Operation{
		OperationID: "create-session",
		Method:      http.MethodPost,
		Path:        "/sessions",
		Summary:     "Start an interview session",
		Tags:        []string{"Sessions"},
	}, func(ctx context.Context, input *CreateSessionInput) (*CreateSessionOutput, error) {
		s, err := manager.Create(ctx, input.Body.CandidateID, input.Body.AssessmentID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, huma.Error404NotFound("candidate not found")
			}
			return nil, huma.Error500InternalServerError("failed to create session", err)
		}

		return &CreateSessionOutput{Body: s}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-session",
		Method:      http.MethodGet,
		Path:        "/sessions/{id}",
		Summary:     "Get a session by ID",
		Tags:        []string{"Sessions"},
	}, func(ctx context.Context, input *GetSessionInput) (*GetSessionOutput, error) {
		s, err := manager.Get(ctx, input.ID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, huma.Error404NotFound("session not found")
			}
			return nil, huma.Error500InternalServerError("failed to get session", err)
		}

		return &GetSessionOutput{Body: s}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "close-session",
		Method:      http.MethodPost,
		Path:        "/sessions/{id}/close",
		Summary:     "Close a session into a terminal status",
		Tags:        []string{"Sessions"},
	}, func(ctx context.Context, input *CloseSessionInput) (*CloseSessionOutput, error) {
		status := domain.SessionStatus(input.Body.Status)
		if !status.IsTerminal() {
			return nil, huma.Error400BadRequest("status must be COMPLETED, ABANDONED, or TERMINATED")
		}

		s, err := manager.Close(ctx, input.ID, status)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, huma.Error404NotFound("session not found or already closed")
			}
			return nil, huma.Error500InternalServerError("failed to close session", err)
		}

		return &CloseSessionOutput{Body: s}, nil
	})
}
