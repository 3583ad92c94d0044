package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vetta-ai/vetta/internal/domain"
)

type CandidateRepo struct {
	pool *pgxpool.Pool
}

func NewCandidateRepo(pool *pgxpool.Pool) *CandidateRepo {
	return &CandidateRepo{pool: pool}
}

func (r *CandidateRepo) Create(ctx context.Context, c *domain.Candidate) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO candidates (id, name, email, created_at)
		 VALUES ($1, $2, $3, $4)`,
		c.ID, c.Name, c.Email, c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("candidateRepo.Create: %w", err)
	}

	return nil
}

func (r *CandidateRepo) GetByID(ctx context.Context, id string) (*domain.Candidate, error) {
	var c domain.Candidate

	err := r.pool.QueryRow(ctx,
		`SELECT id, name, email, created_at FROM candidates WHERE id = $1`,
		id,
	).Scan(&c.ID, &c.Name, &c.Email, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("candidateRepo.GetByID: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("candidateRepo.GetByID: %w", err)
	}

	return &c, nil
}
