package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// StreamTracker checkpoints an in-flight assistant response so a reload
// mid-stream can surface the partial text instead of losing it. Every
// mutation is persisted to the local store before returning.
type StreamTracker struct {
	sessionID uuid.UUID
	store     *LocalStore

	mu      sync.Mutex
	current *StreamCheckpoint
}

func NewStreamTracker(sessionID uuid.UUID, store *LocalStore) *StreamTracker {
	return &StreamTracker{sessionID: sessionID, store: store}
}

// Resume loads the persisted checkpoint, if any. A checkpoint still marked
// streaming means the previous run was interrupted mid-response.
func (t *StreamTracker) Resume(ctx context.Context) (*StreamCheckpoint, error) {
	cp, err := t.store.LoadCheckpoint(ctx, t.sessionID)
	if err != nil {
		return nil, fmt.Errorf("client.StreamTracker.Resume: %w", err)
	}

	t.mu.Lock()
	t.current = cp
	t.mu.Unlock()

	return cp, nil
}

// Begin starts tracking a new assistant response to userMessage.
func (t *StreamTracker) Begin(ctx context.Context, messageID, userMessage string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.current = &StreamCheckpoint{
		MessageID:   messageID,
		UserMessage: userMessage,
		Status:      StreamStreaming,
		UpdatedAt:   time.Now(),
	}
	return t.persistLocked(ctx)
}

// AppendPartial adds streamed text to the checkpoint.
func (t *StreamTracker) AppendPartial(ctx context.Context, text string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.current == nil {
		return nil
	}
	t.current.PartialResponse += text
	t.current.UpdatedAt = time.Now()
	return t.persistLocked(ctx)
}

// AddToolCall records a tool invocation observed in the stream.
func (t *StreamTracker) AddToolCall(ctx context.Context, name string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.current == nil {
		return nil
	}
	t.current.ToolCalls = append(t.current.ToolCalls, name)
	t.current.UpdatedAt = time.Now()
	return t.persistLocked(ctx)
}

// Complete clears the checkpoint once the response fully arrived.
func (t *StreamTracker) Complete(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.current = nil
	if err := t.store.DeleteCheckpoint(ctx, t.sessionID); err != nil {
		return fmt.Errorf("client.StreamTracker.Complete: %w", err)
	}
	return nil
}

// Fail marks the stream as failed while keeping the partial response
// available for recovery.
func (t *StreamTracker) Fail(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.current == nil {
		return nil
	}
	t.current.Status = StreamFailed
	t.current.UpdatedAt = time.Now()
	return t.persistLocked(ctx)
}

func (t *StreamTracker) persistLocked(ctx context.Context) error {
	if err := t.store.SaveCheckpoint(ctx, t.sessionID, t.current); err != nil {
		return fmt.Errorf("client.StreamTracker: persist: %w", err)
	}
	return nil
}
