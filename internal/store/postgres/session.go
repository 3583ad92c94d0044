package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vetta-ai/vetta/internal/domain"
)

type SessionRepo struct {
	pool *pgxpool.Pool
}

func NewSessionRepo(pool *pgxpool.Pool) *SessionRepo {
	return &SessionRepo{pool: pool}
}

func (r *SessionRepo) Create(ctx context.Context, s *domain.Session) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO sessions (id, candidate_id, assessment_id, status, start_time, event_count, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		s.ID, s.CandidateID, s.AssessmentID, s.Status, s.StartTime, s.EventCount, s.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("sessionRepo.Create: %w", err)
	}

	return nil
}

func (r *SessionRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Session, error) {
	var s domain.Session
	var durationMs *int64

	err := r.pool.QueryRow(ctx,
		`SELECT id, candidate_id, assessment_id, status, start_time, end_time, duration_ms, event_count, storage_path, storage_size, created_at
		 FROM sessions WHERE id = $1`,
		id,
	).Scan(&s.ID, &s.CandidateID, &s.AssessmentID, &s.Status, &s.StartTime,
		&s.EndTime, &durationMs, &s.EventCount, &s.StoragePath, &s.StorageSize, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("sessionRepo.GetByID: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("sessionRepo.GetByID: %w", err)
	}

	if durationMs != nil {
		d := time.Duration(*durationMs) * time.Millisecond
		s.Duration = &d
	}

	return &s, nil
}

func (r *SessionRepo) IncrementEventCount(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE sessions SET event_count = event_count + 1 WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("sessionRepo.IncrementEventCount: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("sessionRepo.IncrementEventCount: %w", domain.ErrNotFound)
	}

	return nil
}

func (r *SessionRepo) SetClosed(ctx context.Context, id uuid.UUID, status domain.SessionStatus, endTime time.Time, duration time.Duration, storagePath *string, storageSize *int64) error {
	// Guard on ACTIVE so a session is terminated exactly once even under
	// racing close calls.
	tag, err := r.pool.Exec(ctx,
		`UPDATE sessions
		 SET status = $2, end_time = $3, duration_ms = $4, storage_path = $5, storage_size = $6
		 WHERE id = $1 AND status = $7`,
		id, status, endTime, duration.Milliseconds(), storagePath, storageSize,
		domain.SessionStatusActive,
	)
	if err != nil {
		return fmt.Errorf("sessionRepo.SetClosed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("sessionRepo.SetClosed: %w", domain.ErrNotFound)
	}

	return nil
}

func (r *SessionRepo) ListByCandidate(ctx context.Context, candidateID string) ([]*domain.Session, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, candidate_id, assessment_id, status, start_time, end_time, duration_ms, event_count, storage_path, storage_size, created_at
		 FROM sessions WHERE candidate_id = $1
		 ORDER BY start_time DESC`,
		candidateID,
	)
	if err != nil {
		return nil, fmt.Errorf("sessionRepo.ListByCandidate: %w", err)
	}
	defer rows.Close()

	var sessions []*domain.Session
	for rows.Next() {
		var s domain.Session
		var durationMs *int64

		err = rows.Scan(&s.ID, &s.CandidateID, &s.AssessmentID, &s.Status, &s.StartTime,
			&s.EndTime, &durationMs, &s.EventCount, &s.StoragePath, &s.StorageSize, &s.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("sessionRepo.ListByCandidate: scan: %w", err)
		}
		if durationMs != nil {
			d := time.Duration(*durationMs) * time.Millisecond
			s.Duration = &d
		}
		sessions = append(sessions, &s)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("sessionRepo.ListByCandidate: rows: %w", err)
	}

	return sessions, nil
}
