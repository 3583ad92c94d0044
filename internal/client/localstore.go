package client

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	_ "modernc.org/sqlite"
)

// LocalStore is the client's scoped local persistence: an embedded SQLite
// file holding the queue mirror and stream checkpoints.
type LocalStore struct {
	db *sql.DB
}

const localSchema = `
CREATE TABLE IF NOT EXISTS queued_actions (
	position    INTEGER PRIMARY KEY AUTOINCREMENT,
	id          TEXT NOT NULL UNIQUE,
	session_id  TEXT NOT NULL,
	kind        TEXT NOT NULL,
	payload     TEXT NOT NULL,
	status      TEXT NOT NULL,
	retry_count INTEGER NOT NULL,
	enqueued_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_queued_actions_session ON queued_actions(session_id);

CREATE TABLE IF NOT EXISTS stream_checkpoints (
	session_id       TEXT PRIMARY KEY,
	message_id       TEXT NOT NULL,
	user_message     TEXT NOT NULL,
	partial_response TEXT NOT NULL,
	tool_calls       TEXT NOT NULL,
	status           TEXT NOT NULL,
	updated_at       INTEGER NOT NULL
);`

// OpenLocalStore opens (or creates) the store at path with WAL journaling
// and a busy timeout, and applies the schema.
func OpenLocalStore(path string) (*LocalStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("client.OpenLocalStore: open %s: %w", path, err)
	}

	ctx := context.Background()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("client.OpenLocalStore: ping %s: %w", path, err)
	}

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("client.OpenLocalStore: set WAL mode: %w", err)
	}

	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("client.OpenLocalStore: set busy_timeout: %w", err)
	}

	if _, err := db.ExecContext(ctx, localSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("client.OpenLocalStore: migrate: %w", err)
	}

	return &LocalStore{db: db}, nil
}

func (s *LocalStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("client.LocalStore.Close: %w", err)
	}
	return nil
}

// SaveActions mirrors the full ordered action list for a session,
// replacing whatever was stored before.
func (s *LocalStore) SaveActions(ctx context.Context, sessionID uuid.UUID, actions []*QueuedAction) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("client.LocalStore.SaveActions: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM queued_actions WHERE session_id = ?`, sessionID.String(),
	); err != nil {
		return fmt.Errorf("client.LocalStore.SaveActions: clear: %w", err)
	}

	for _, a := range actions {
		payload, err := json.Marshal(a.Payload)
		if err != nil {
			return fmt.Errorf("client.LocalStore.SaveActions: marshal payload: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO queued_actions (id, session_id, kind, payload, status, retry_count, enqueued_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			a.ID, a.SessionID.String(), a.Kind, string(payload), a.Status, a.RetryCount, a.EnqueuedAt.UnixMilli(),
		); err != nil {
			return fmt.Errorf("client.LocalStore.SaveActions: insert: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("client.LocalStore.SaveActions: commit: %w", err)
	}

	return nil
}

// LoadActions restores the mirrored queue in enqueue order, evicting
// actions older than maxAge first.
func (s *LocalStore) LoadActions(ctx context.Context, sessionID uuid.UUID, maxAge time.Duration) ([]*QueuedAction, error) {
	cutoff := time.Now().Add(-maxAge).UnixMilli()

	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM queued_actions WHERE session_id = ? AND enqueued_at < ?`,
		sessionID.String(), cutoff,
	); err != nil {
		return nil, fmt.Errorf("client.LocalStore.LoadActions: evict: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, kind, payload, status, retry_count, enqueued_at
		 FROM queued_actions WHERE session_id = ?
		 ORDER BY position ASC`,
		sessionID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("client.LocalStore.LoadActions: %w", err)
	}
	defer rows.Close()

	var actions []*QueuedAction
	for rows.Next() {
		var a QueuedAction
		var payload string
		var enqueuedAt int64

		if err := rows.Scan(&a.ID, &a.Kind, &payload, &a.Status, &a.RetryCount, &enqueuedAt); err != nil {
			return nil, fmt.Errorf("client.LocalStore.LoadActions: scan: %w", err)
		}
		if err := json.Unmarshal([]byte(payload), &a.Payload); err != nil {
			return nil, fmt.Errorf("client.LocalStore.LoadActions: unmarshal payload: %w", err)
		}
		a.SessionID = sessionID
		a.EnqueuedAt = time.UnixMilli(enqueuedAt)
		// Actions interrupted mid-send are delivered again on the next
		// flush; the server de-duplicates.
		if a.Status == ActionSending {
			a.Status = ActionPending
		}
		actions = append(actions, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("client.LocalStore.LoadActions: rows: %w", err)
	}

	return actions, nil
}

// SaveCheckpoint upserts the stream checkpoint for a session.
func (s *LocalStore) SaveCheckpoint(ctx context.Context, sessionID uuid.UUID, cp *StreamCheckpoint) error {
	toolCalls, err := json.Marshal(cp.ToolCalls)
	if err != nil {
		return fmt.Errorf("client.LocalStore.SaveCheckpoint: marshal tool calls: %w", err)
	}

	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO stream_checkpoints (session_id, message_id, user_message, partial_response, tool_calls, status, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET
			message_id = excluded.message_id,
			user_message = excluded.user_message,
			partial_response = excluded.partial_response,
			tool_calls = excluded.tool_calls,
			status = excluded.status,
			updated_at = excluded.updated_at`,
		sessionID.String(), cp.MessageID, cp.UserMessage, cp.PartialResponse,
		string(toolCalls), cp.Status, cp.UpdatedAt.UnixMilli(),
	); err != nil {
		return fmt.Errorf("client.LocalStore.SaveCheckpoint: %w", err)
	}

	return nil
}

// LoadCheckpoint returns the stream checkpoint for a session, or nil when
// none is stored.
func (s *LocalStore) LoadCheckpoint(ctx context.Context, sessionID uuid.UUID) (*StreamCheckpoint, error) {
	var cp StreamCheckpoint
	var toolCalls string
	var updatedAt int64

	err := s.db.QueryRowContext(ctx,
		`SELECT message_id, user_message, partial_response, tool_calls, status, updated_at
		 FROM stream_checkpoints WHERE session_id = ?`,
		sessionID.String(),
	).Scan(&cp.MessageID, &cp.UserMessage, &cp.PartialResponse, &toolCalls, &cp.Status, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("client.LocalStore.LoadCheckpoint: %w", err)
	}

	if err := json.Unmarshal([]byte(toolCalls), &cp.ToolCalls); err != nil {
		return nil, fmt.Errorf("client.LocalStore.LoadCheckpoint: unmarshal tool calls: %w", err)
	}
	cp.UpdatedAt = time.UnixMilli(updatedAt)

	return &cp, nil
}

// DeleteCheckpoint removes the stream checkpoint for a session.
func (s *LocalStore) DeleteCheckpoint(ctx context.Context, sessionID uuid.UUID) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM stream_checkpoints WHERE session_id = ?`,
		sessionID.String(),
	); err != nil {
		return fmt.Errorf("client.LocalStore.DeleteCheckpoint: %w", err)
	}
	return nil
}
