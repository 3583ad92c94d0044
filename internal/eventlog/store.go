// Package eventlog implements the server-side source of truth for session
// events: per-session monotonic sequence assignment, category/checkpoint
// classification, batched asynchronous writes, and ordered reads.
package eventlog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"github.com/vetta-ai/vetta/internal/domain"
)

// Publisher abstracts the pub/sub fan-out to a session's live readers.
// May be nil.
type Publisher interface {
	PublishSession(ctx context.Context, sessionID uuid.UUID, payload []byte) error
}

const (
	// insertAttempts bounds the store's own durable-write retries. A write
	// still failing after these is a fatal ingestion error.
	insertAttempts = 3
	insertBackoff  = 50 * time.Millisecond

	// laneBuffer is the per-session queue depth for batched writes.
	laneBuffer = 64
)

// Store assigns sequence numbers and persists events. Sequence assignment
// is serialized per session (single-writer discipline); sessions are fully
// independent of each other.
type Store struct {
	events domain.EventRepository
	pub    Publisher

	mu       sync.Mutex
	sessions map[uuid.UUID]*sessionState

	// sem bounds the number of batched lane writes hitting the repository
	// at once, across all sessions.
	sem *semaphore.Weighted
	wg  sync.WaitGroup

	fatalMu sync.Mutex
	fatal   []error
}

// sessionState is the per-session single writer: the next sequence number,
// the seen client action IDs, and the lane for batched persistence.
type sessionState struct {
	mu     sync.Mutex
	loaded bool
	closed bool
	next   int64
	seen   map[string]bool
	lane   chan []*domain.Event
}

// New creates a Store. pub may be nil to disable live fan-out;
// maxConcurrentWrites bounds parallel batched writes across sessions.
func New(events domain.EventRepository, pub Publisher, maxConcurrentWrites int64) *Store {
	if maxConcurrentWrites < 1 {
		maxConcurrentWrites = 1
	}
	return &Store{
		events:   events,
		pub:      pub,
		sessions: make(map[uuid.UUID]*sessionState),
		sem:      semaphore.NewWeighted(maxConcurrentWrites),
	}
}

// Append validates, classifies, sequences, and durably persists a single
// event, returning its assigned ID. The per-session lock is held across
// assignment and persistence so concurrent callers can never observe
// duplicate or out-of-order numbers, and a failed write never leaves a gap.
func (s *Store) Append(ctx context.Context, e *domain.Event) (uuid.UUID, error) {
	if err := e.Validate(); err != nil {
		return uuid.Nil, fmt.Errorf("eventlog.Store.Append: %w", err)
	}

	state := s.acquire(e.SessionID)
	defer state.mu.Unlock()

	if err := s.ensureLoaded(ctx, e.SessionID, state); err != nil {
		return uuid.Nil, fmt.Errorf("eventlog.Store.Append: %w", err)
	}

	if e.ClientActionID != "" && state.seen[e.ClientActionID] {
		// Duplicate delivery of an at-least-once client action: already
		// persisted, report acceptance without re-sequencing.
		return uuid.Nil, nil
	}

	s.classify(e)
	e.SequenceNumber = state.next + 1

	if err := s.insertWithRetry(ctx, []*domain.Event{e}); err != nil {
		return uuid.Nil, fmt.Errorf("eventlog.Store.Append: %w", err)
	}

	state.next = e.SequenceNumber
	if e.ClientActionID != "" {
		state.seen[e.ClientActionID] = true
	}

	s.publish(ctx, e)

	return e.ID, nil
}

// EmitBatched accepts a batch of events for one or more sessions with the
// same ordering and classification guarantees as Append. Sequence numbers
// are assigned synchronously from batch order; persistence happens on a
// per-session lane. It returns the number of events actually accepted:
// duplicates of already-seen client action IDs are skipped and not counted.
// No IDs are returned — callers that need the write to be visible must call
// FlushBatch first.
func (s *Store) EmitBatched(ctx context.Context, events []*domain.Event) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}

	// Whole-batch validation before anything is sequenced: a rejected
	// batch must leave no trace.
	for _, e := range events {
		if err := e.Validate(); err != nil {
			return 0, fmt.Errorf("eventlog.Store.EmitBatched: %w", err)
		}
	}

	// Preserve batch order within each session.
	bySession := make(map[uuid.UUID][]*domain.Event)
	order := make([]uuid.UUID, 0, 1)
	for _, e := range events {
		if _, ok := bySession[e.SessionID]; !ok {
			order = append(order, e.SessionID)
		}
		bySession[e.SessionID] = append(bySession[e.SessionID], e)
	}

	total := 0
	for _, sessionID := range order {
		batch := bySession[sessionID]
		state := s.acquire(sessionID)

		if err := s.ensureLoaded(ctx, sessionID, state); err != nil {
			state.mu.Unlock()
			return total, fmt.Errorf("eventlog.Store.EmitBatched: %w", err)
		}

		accepted := batch[:0]
		for _, e := range batch {
			if e.ClientActionID != "" {
				if state.seen[e.ClientActionID] {
					continue
				}
				state.seen[e.ClientActionID] = true
			}
			s.classify(e)
			state.next++
			e.SequenceNumber = state.next
			accepted = append(accepted, e)
		}

		if len(accepted) > 0 {
			s.wg.Add(1)
			state.lane <- accepted
			total += len(accepted)
		}
		state.mu.Unlock()
	}

	return total, nil
}

// FlushBatch blocks until every outstanding batched write has been
// persisted. It is the synchronization barrier required before any read
// that needs full consistency, such as archival at session close. A fatal
// write that occurred since the last flush is surfaced here.
func (s *Store) FlushBatch(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("eventlog.Store.FlushBatch: %w", ctx.Err())
	case <-done:
	}

	s.fatalMu.Lock()
	defer s.fatalMu.Unlock()
	if len(s.fatal) > 0 {
		err := errors.Join(s.fatal...)
		s.fatal = nil
		return fmt.Errorf("eventlog.Store.FlushBatch: %w", err)
	}
	return nil
}

// GetEvents returns the session's full stream in ascending sequence order,
// merging synchronous and batched writes into one total order.
func (s *Store) GetEvents(ctx context.Context, sessionID uuid.UUID) ([]*domain.Event, error) {
	events, err := s.events.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("eventlog.Store.GetEvents: %w", err)
	}
	return events, nil
}

// acquire returns the session's state with its lock held. A state that was
// released between lookup and lock is discarded and the lookup retried, so
// callers never sequence onto a closed lane.
func (s *Store) acquire(sessionID uuid.UUID) *sessionState {
	for {
		state := s.sessionState(sessionID)
		state.mu.Lock()
		if !state.closed {
			return state
		}
		state.mu.Unlock()
	}
}

func (s *Store) sessionState(sessionID uuid.UUID) *sessionState {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.sessions[sessionID]
	if !ok {
		state = &sessionState{
			seen: make(map[string]bool),
			lane: make(chan []*domain.Event, laneBuffer),
		}
		s.sessions[sessionID] = state
		go s.drainLane(state)
	}
	return state
}

// ensureLoaded seeds the sequencer and the de-duplication set from the
// repository the first time a session is touched, so sequence numbers
// continue gap-free across process restarts.
func (s *Store) ensureLoaded(ctx context.Context, sessionID uuid.UUID, state *sessionState) error {
	if state.loaded {
		return nil
	}

	maxSeq, err := s.events.MaxSequence(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("seed sequence: %w", err)
	}
	actionIDs, err := s.events.ListClientActionIDs(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("seed action ids: %w", err)
	}

	state.next = maxSeq
	for _, id := range actionIDs {
		state.seen[id] = true
	}
	state.loaded = true
	return nil
}

func (s *Store) classify(e *domain.Event) {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	e.Category = domain.CategoryOf(e.EventType)
	e.Checkpoint = domain.IsCheckpoint(e.EventType)
}

// drainLane persists batched writes for one session in FIFO order. The
// semaphore bounds repository pressure across all lanes.
func (s *Store) drainLane(state *sessionState) {
	for batch := range state.lane {
		ctx := context.Background()
		if err := s.sem.Acquire(ctx, 1); err != nil {
			s.recordFatal(batch, err)
			s.wg.Done()
			continue
		}

		if err := s.insertWithRetry(ctx, batch); err != nil {
			s.recordFatal(batch, err)
		} else {
			for _, e := range batch {
				s.publish(ctx, e)
			}
		}

		s.sem.Release(1)
		s.wg.Done()
	}
}

// insertWithRetry performs the durable write with the store's own bounded
// retries. Exhaustion converts to a fatal ingestion error.
func (s *Store) insertWithRetry(ctx context.Context, batch []*domain.Event) error {
	var lastErr error
	for attempt := 1; attempt <= insertAttempts; attempt++ {
		var err error
		if len(batch) == 1 {
			err = s.events.Insert(ctx, batch[0])
		} else {
			err = s.events.InsertBatch(ctx, batch)
		}
		if err == nil {
			return nil
		}
		lastErr = err
		if attempt < insertAttempts {
			select {
			case <-ctx.Done():
				return fmt.Errorf("persist: %w", ctx.Err())
			case <-time.After(time.Duration(attempt) * insertBackoff):
			}
		}
	}

	return fmt.Errorf("persist after %d attempts: %v: %w", insertAttempts, lastErr, domain.ErrIngestionFatal)
}

func (s *Store) recordFatal(batch []*domain.Event, err error) {
	log.Error().Err(err).
		Str("session_id", batch[0].SessionID.String()).
		Int("events", len(batch)).
		Msg("eventlog: batched write failed permanently")

	s.fatalMu.Lock()
	s.fatal = append(s.fatal, err)
	s.fatalMu.Unlock()
}

// publish fans the accepted event out to live readers. Best-effort: a
// pub/sub failure never affects ingestion.
func (s *Store) publish(ctx context.Context, e *domain.Event) {
	if s.pub == nil {
		return
	}
	payload, err := json.Marshal(e)
	if err != nil {
		return
	}
	if pubErr := s.pub.PublishSession(ctx, e.SessionID, payload); pubErr != nil {
		log.Debug().Err(pubErr).Str("session_id", e.SessionID.String()).Msg("eventlog: live publish failed")
	}
}

// Release drops the per-session sequencer state and stops its lane once
// the session reaches a terminal status, so memory and goroutine lifetime
// track the session rather than the process. Buffered lane writes still
// drain; a later touch of the same session re-seeds from the repository.
func (s *Store) Release(sessionID uuid.UUID) {
	s.mu.Lock()
	state, ok := s.sessions[sessionID]
	if ok {
		delete(s.sessions, sessionID)
	}
	s.mu.Unlock()
	if !ok {
		return
	}

	state.mu.Lock()
	state.closed = true
	close(state.lane)
	state.mu.Unlock()
}

// Close stops the per-session lanes after draining outstanding writes.
func (s *Store) Close() {
	s.wg.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, state := range s.sessions {
		state.mu.Lock()
		state.closed = true
		close(state.lane)
		state.mu.Unlock()
	}
	s.sessions = make(map[uuid.UUID]*sessionState)
}
