package domain

import (
	"context"
	"time"
)

// Candidate is the person taking an interview. Candidate IDs are external
// identifiers minted by the assessment system, not UUIDs.
type Candidate struct {
	ID        string
	Name      string
	Email     string
	CreatedAt time.Time
}

type CandidateRepository interface {
	Create(ctx context.Context, c *Candidate) error
	GetByID(ctx context.Context, id string) (*Candidate, error)
}
