package client_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vetta-ai/vetta/internal/client"
)

// ---------------------------------------------------------------------------
// Mock Sender
// ---------------------------------------------------------------------------

type mockSender struct {
	mu      sync.Mutex
	batches [][]client.EventPayload
	fail    bool
}

func (s *mockSender) Send(_ context.Context, _ uuid.UUID, payloads []client.EventPayload) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("injected send failure")
	}
	batch := make([]client.EventPayload, len(payloads))
	copy(batch, payloads)
	s.batches = append(s.batches, batch)
	return nil
}

func (s *mockSender) sent() [][]client.EventPayload {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.batches
}

func (s *mockSender) setFail(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = fail
}

func newQueue(t *testing.T, sessionID uuid.UUID, store *client.LocalStore, sender client.Sender, opts client.QueueOptions) *client.Queue {
	t.Helper()

	q, err := client.NewQueue(context.Background(), sessionID, store, sender, opts)
	require.NoError(t, err)
	return q
}

// ---------------------------------------------------------------------------
// 1. Enqueue and flush
// ---------------------------------------------------------------------------

func TestQueue_EnqueueFlush(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	sessionID := uuid.New()
	store := openStore(t)
	sender := &mockSender{}

	q := newQueue(t, sessionID, store, sender, client.QueueOptions{})

	id, err := q.Enqueue(ctx, client.KindEvent, client.EventPayload{Type: "code.edit"})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	_, err = q.Enqueue(ctx, client.KindEvent, client.EventPayload{Type: "code.snapshot"})
	require.NoError(t, err)
	assert.Equal(t, 2, q.Len())

	require.NoError(t, q.Flush(ctx))
	assert.Equal(t, 0, q.Len())

	batches := sender.sent()
	require.Len(t, batches, 1)
	require.Len(t, batches[0], 2)
	assert.Equal(t, "code.edit", batches[0][0].Type)
	assert.Equal(t, "code.snapshot", batches[0][1].Type)

	// Each payload carries its action ID as the idempotency key.
	assert.Equal(t, id, batches[0][0].ClientActionID)

	// The durable mirror is empty after a successful flush.
	restored, err := store.LoadActions(ctx, sessionID, time.Hour)
	require.NoError(t, err)
	assert.Empty(t, restored)
}

func TestQueue_FlushEmptyIsNoop(t *testing.T) {
	t.Parallel()

	sender := &mockSender{}
	q := newQueue(t, uuid.New(), openStore(t), sender, client.QueueOptions{})

	require.NoError(t, q.Flush(context.Background()))
	assert.Empty(t, sender.sent())
}

func TestQueue_ThresholdTriggersFlush(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	sender := &mockSender{}
	q := newQueue(t, uuid.New(), openStore(t), sender, client.QueueOptions{FlushThreshold: 3})

	for i := 0; i < 3; i++ {
		_, err := q.Enqueue(ctx, client.KindEvent, client.EventPayload{Type: "code.edit"})
		require.NoError(t, err)
	}

	// The threshold flush is asynchronous.
	require.Eventually(t, func() bool {
		return len(sender.sent()) == 1 && q.Len() == 0
	}, 2*time.Second, 10*time.Millisecond)

	require.Len(t, sender.sent()[0], 3)
}

// ---------------------------------------------------------------------------
// 2. Retry and drop
// ---------------------------------------------------------------------------

func TestQueue_FailedFlushRequeuesInOrder(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	sessionID := uuid.New()
	store := openStore(t)
	sender := &mockSender{fail: true}

	q := newQueue(t, sessionID, store, sender, client.QueueOptions{MaxRetries: 3})

	first, err := q.Enqueue(ctx, client.KindEvent, client.EventPayload{Type: "code.edit"})
	require.NoError(t, err)
	second, err := q.Enqueue(ctx, client.KindEvent, client.EventPayload{Type: "code.snapshot"})
	require.NoError(t, err)

	require.Error(t, q.Flush(ctx))
	assert.Equal(t, 2, q.Len(), "failed batch is retained")

	// Recovery: the retried flush delivers the original order.
	sender.setFail(false)
	require.NoError(t, q.Flush(ctx))

	batches := sender.sent()
	require.Len(t, batches, 1)
	require.Len(t, batches[0], 2)
	assert.Equal(t, first, batches[0][0].ClientActionID)
	assert.Equal(t, second, batches[0][1].ClientActionID)
}

// TestQueue_FailedFlushMarksActionsFailed verifies a rejected batch is
// recorded as failed in the durable mirror, with its retry count advanced,
// rather than as a phantom send.
func TestQueue_FailedFlushMarksActionsFailed(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	sessionID := uuid.New()
	store := openStore(t)

	q := newQueue(t, sessionID, store, &mockSender{fail: true}, client.QueueOptions{MaxRetries: 3})

	_, err := q.Enqueue(ctx, client.KindEvent, client.EventPayload{Type: "code.edit"})
	require.NoError(t, err)

	require.Error(t, q.Flush(ctx))

	restored, err := store.LoadActions(ctx, sessionID, time.Hour)
	require.NoError(t, err)
	require.Len(t, restored, 1)
	assert.Equal(t, client.ActionFailed, restored[0].Status)
	assert.Equal(t, 1, restored[0].RetryCount)
}

func TestQueue_DropsAfterRetryExhaustion(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	sender := &mockSender{fail: true}
	q := newQueue(t, uuid.New(), openStore(t), sender, client.QueueOptions{MaxRetries: 2})

	_, err := q.Enqueue(ctx, client.KindEvent, client.EventPayload{Type: "code.edit"})
	require.NoError(t, err)

	// First failure: one retry left, the action is requeued.
	require.Error(t, q.Flush(ctx))
	assert.Equal(t, 1, q.Len())

	// Second failure: retries exhausted, the action is dropped.
	require.Error(t, q.Flush(ctx))
	assert.Equal(t, 0, q.Len())
}

// ---------------------------------------------------------------------------
// 3. Durable restore
// ---------------------------------------------------------------------------

// TestQueue_RestoresAcrossReload simulates a page reload: a fresh queue over
// the same local store resumes with the unacknowledged actions.
func TestQueue_RestoresAcrossReload(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	sessionID := uuid.New()
	store := openStore(t)

	first := newQueue(t, sessionID, store, &mockSender{fail: true}, client.QueueOptions{})
	id, err := first.Enqueue(ctx, client.KindEvent, client.EventPayload{Type: "code.edit"})
	require.NoError(t, err)

	// "Reload": a new queue over the same store.
	sender := &mockSender{}
	second := newQueue(t, sessionID, store, sender, client.QueueOptions{})
	assert.Equal(t, 1, second.Len())

	require.NoError(t, second.Flush(ctx))
	batches := sender.sent()
	require.Len(t, batches, 1)
	assert.Equal(t, id, batches[0][0].ClientActionID,
		"redelivery keeps the original idempotency key so the server can de-duplicate")
}

func TestQueue_PeriodicFlush(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sender := &mockSender{}
	q := newQueue(t, uuid.New(), openStore(t), sender, client.QueueOptions{FlushInterval: 20 * time.Millisecond})

	_, err := q.Enqueue(ctx, client.KindEvent, client.EventPayload{Type: "code.edit"})
	require.NoError(t, err)

	q.Start(ctx)
	defer q.Stop()

	require.Eventually(t, func() bool {
		return len(sender.sent()) >= 1
	}, 2*time.Second, 10*time.Millisecond)
}
