package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Sender delivers one flushed batch to the server. A nil error means the
// whole batch was accepted; any error means the whole batch is retried.
type Sender interface {
	Send(ctx context.Context, sessionID uuid.UUID, payloads []EventPayload) error
}

// QueueOptions tunes the queue's flush and eviction behavior. Zero values
// take the defaults.
type QueueOptions struct {
	FlushInterval  time.Duration // periodic flush when non-empty (default 5s)
	FlushThreshold int           // immediate flush at this depth (default 50)
	MaxRetries     int           // per-action send attempts before drop (default 3)
	MaxAge         time.Duration // eviction age on load (default 30m)
}

func (o *QueueOptions) applyDefaults() {
	if o.FlushInterval <= 0 {
		o.FlushInterval = 5 * time.Second
	}
	if o.FlushThreshold <= 0 {
		o.FlushThreshold = 50
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = 3
	}
	if o.MaxAge <= 0 {
		o.MaxAge = 30 * time.Minute
	}
}

// Queue is the durable ordered queue of not-yet-acknowledged client
// actions. Every mutation mirrors the full list to the local store, so a
// reload resumes from the same point. Flushes never block Enqueue callers.
type Queue struct {
	sessionID uuid.UUID
	store     *LocalStore
	sender    Sender
	opts      QueueOptions

	mu       sync.Mutex
	actions  []*QueuedAction
	inFlight bool

	done chan struct{}
	wg   sync.WaitGroup
}

// NewQueue restores any mirrored actions for the session (evicting those
// older than MaxAge) and returns a queue ready to Start.
func NewQueue(ctx context.Context, sessionID uuid.UUID, store *LocalStore, sender Sender, opts QueueOptions) (*Queue, error) {
	opts.applyDefaults()

	actions, err := store.LoadActions(ctx, sessionID, opts.MaxAge)
	if err != nil {
		return nil, fmt.Errorf("client.NewQueue: %w", err)
	}

	return &Queue{
		sessionID: sessionID,
		store:     store,
		sender:    sender,
		opts:      opts,
		actions:   actions,
		done:      make(chan struct{}),
	}, nil
}

// Start launches the periodic flush timer.
func (q *Queue) Start(ctx context.Context) {
	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		ticker := time.NewTicker(q.opts.FlushInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-q.done:
				return
			case <-ticker.C:
				if q.Len() > 0 {
					if err := q.Flush(ctx); err != nil {
						log.Debug().Err(err).Msg("client: periodic flush failed, actions retained")
					}
				}
			}
		}
	}()
}

// Stop halts the timer and waits for the in-flight flush, if any. Pending
// actions stay in the durable mirror for the next run.
func (q *Queue) Stop() {
	close(q.done)
	q.wg.Wait()
}

// Enqueue appends an action and synchronously mirrors the queue to the
// local store. Reaching the flush threshold triggers an asynchronous flush;
// the caller is never blocked on network I/O.
func (q *Queue) Enqueue(ctx context.Context, kind ActionKind, payload EventPayload) (string, error) {
	a := &QueuedAction{
		ID:         uuid.NewString(),
		SessionID:  q.sessionID,
		Kind:       kind,
		Payload:    payload,
		Status:     ActionPending,
		EnqueuedAt: time.Now(),
	}
	a.Payload.ClientActionID = a.ID
	if a.Payload.Timestamp.IsZero() {
		a.Payload.Timestamp = a.EnqueuedAt.UTC()
	}

	q.mu.Lock()
	q.actions = append(q.actions, a)
	depth := len(q.actions)
	err := q.store.SaveActions(ctx, q.sessionID, q.actions)
	q.mu.Unlock()

	if err != nil {
		return "", fmt.Errorf("client.Queue.Enqueue: %w", err)
	}

	if depth >= q.opts.FlushThreshold {
		q.wg.Add(1)
		go func() {
			defer q.wg.Done()
			if flushErr := q.Flush(context.WithoutCancel(ctx)); flushErr != nil {
				log.Debug().Err(flushErr).Msg("client: threshold flush failed, actions retained")
			}
		}()
	}

	return a.ID, nil
}

// Len returns the current queue depth.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.actions)
}

// Flush snapshots and clears the queue, issues one network call with the
// snapshot, and on failure re-queues actions that still have retries left,
// dropping and logging the rest. The durable mirror is updated after the
// outcome, so a reload mid-flush redelivers at most once.
func (q *Queue) Flush(ctx context.Context) error {
	q.mu.Lock()
	if q.inFlight || len(q.actions) == 0 {
		q.mu.Unlock()
		return nil
	}
	q.inFlight = true
	snapshot := q.actions
	q.actions = nil
	for _, a := range snapshot {
		a.Status = ActionSending
	}
	q.mu.Unlock()

	payloads := make([]EventPayload, len(snapshot))
	for i, a := range snapshot {
		payloads[i] = a.Payload
	}

	sendErr := q.sender.Send(ctx, q.sessionID, payloads)

	q.mu.Lock()
	defer func() {
		q.inFlight = false
		q.mu.Unlock()
	}()

	if sendErr == nil {
		// Acknowledged: drop the snapshot and mirror whatever was
		// enqueued while the flush was in flight.
		if err := q.store.SaveActions(ctx, q.sessionID, q.actions); err != nil {
			return fmt.Errorf("client.Queue.Flush: mirror: %w", err)
		}
		return nil
	}

	// Every action in the rejected batch transitions to failed; those with
	// retries left are requeued in that state and picked up by the next
	// flush, so the mirror records the failure rather than a phantom send.
	var requeued []*QueuedAction
	dropped := 0
	for _, a := range snapshot {
		a.Status = ActionFailed
		a.RetryCount++
		if a.RetryCount < q.opts.MaxRetries {
			requeued = append(requeued, a)
		} else {
			dropped++
			log.Warn().
				Str("action_id", a.ID).
				Str("event_type", a.Payload.Type).
				Int("retries", a.RetryCount).
				Msg("client: dropping action after retry exhaustion")
		}
	}

	// Failed snapshot goes back ahead of anything enqueued meanwhile,
	// preserving the original order.
	q.actions = append(requeued, q.actions...)
	if err := q.store.SaveActions(ctx, q.sessionID, q.actions); err != nil {
		return fmt.Errorf("client.Queue.Flush: mirror after failure: %w", err)
	}

	return fmt.Errorf("client.Queue.Flush: send (%d requeued, %d dropped): %w", len(requeued), dropped, sendErr)
}
