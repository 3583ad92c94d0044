package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vetta-ai/vetta/internal/domain"
)

type EventRepo struct {
	pool *pgxpool.Pool
}

func NewEventRepo(pool *pgxpool.Pool) *EventRepo {
	return &EventRepo{pool: pool}
}

const insertEventSQL = `INSERT INTO session_events
	 (id, session_id, sequence_number, client_action_id, event_type, category, origin, ts, data, checkpoint, file_path, question_index)
	 VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, $8, $9, $10, NULLIF($11, ''), $12)
	 ON CONFLICT (session_id, client_action_id) WHERE client_action_id IS NOT NULL DO NOTHING`

func (r *EventRepo) Insert(ctx context.Context, e *domain.Event) error {
	data, err := json.Marshal(e.Data)
	if err != nil {
		return fmt.Errorf("eventRepo.Insert: marshal data: %w", err)
	}

	_, err = r.pool.Exec(ctx, insertEventSQL,
		e.ID, e.SessionID, e.SequenceNumber, e.ClientActionID,
		e.EventType, e.Category, e.Origin, e.Timestamp,
		data, e.Checkpoint, e.FilePath, e.QuestionIndex,
	)
	if err != nil {
		return fmt.Errorf("eventRepo.Insert: %w", err)
	}

	return nil
}

// InsertBatch writes a sequenced batch in one round trip. Duplicate client
// action IDs are skipped by the partial unique index, as a backstop behind
// the store's in-memory de-duplication.
func (r *EventRepo) InsertBatch(ctx context.Context, events []*domain.Event) error {
	batch := &pgx.Batch{}
	for _, e := range events {
		data, err := json.Marshal(e.Data)
		if err != nil {
			return fmt.Errorf("eventRepo.InsertBatch: marshal data: %w", err)
		}
		batch.Queue(insertEventSQL,
			e.ID, e.SessionID, e.SequenceNumber, e.ClientActionID,
			e.EventType, e.Category, e.Origin, e.Timestamp,
			data, e.Checkpoint, e.FilePath, e.QuestionIndex,
		)
	}

	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()

	for range events {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("eventRepo.InsertBatch: %w", err)
		}
	}

	return nil
}

func (r *EventRepo) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]*domain.Event, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, session_id, sequence_number, COALESCE(client_action_id, ''), event_type, category, origin, ts, data, checkpoint, COALESCE(file_path, ''), question_index
		 FROM session_events WHERE session_id = $1
		 ORDER BY sequence_number ASC`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("eventRepo.ListBySession: %w", err)
	}
	defer rows.Close()

	var events []*domain.Event
	for rows.Next() {
		var e domain.Event
		var data []byte

		err = rows.Scan(&e.ID, &e.SessionID, &e.SequenceNumber, &e.ClientActionID,
			&e.EventType, &e.Category, &e.Origin, &e.Timestamp,
			&data, &e.Checkpoint, &e.FilePath, &e.QuestionIndex)
		if err != nil {
			return nil, fmt.Errorf("eventRepo.ListBySession: scan: %w", err)
		}
		if len(data) > 0 {
			if err = json.Unmarshal(data, &e.Data); err != nil {
				return nil, fmt.Errorf("eventRepo.ListBySession: unmarshal data: %w", err)
			}
		}
		events = append(events, &e)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("eventRepo.ListBySession: rows: %w", err)
	}

	return events, nil
}

func (r *EventRepo) MaxSequence(ctx context.Context, sessionID uuid.UUID) (int64, error) {
	var maxSeq int64

	err := r.pool.QueryRow(ctx,
		`SELECT COALESCE(MAX(sequence_number), 0) FROM session_events WHERE session_id = $1`,
		sessionID,
	).Scan(&maxSeq)
	if err != nil {
		return 0, fmt.Errorf("eventRepo.MaxSequence: %w", err)
	}

	return maxSeq, nil
}

func (r *EventRepo) ListClientActionIDs(ctx context.Context, sessionID uuid.UUID) ([]string, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT client_action_id FROM session_events
		 WHERE session_id = $1 AND client_action_id IS NOT NULL`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("eventRepo.ListClientActionIDs: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err = rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("eventRepo.ListClientActionIDs: scan: %w", err)
		}
		ids = append(ids, id)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("eventRepo.ListClientActionIDs: rows: %w", err)
	}

	return ids, nil
}
