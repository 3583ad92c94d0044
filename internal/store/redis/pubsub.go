// Package redis carries live session event streams between the ingestion
// path and connected readers. One Redis channel per session; subscribers
// get a bounded channel whose lifetime is tied to their context, never to
// a process-wide registry.
package redis

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// subscriberBuffer is the per-subscriber queue depth. A reader that falls
// behind backpressures its own forwarder only; other subscribers and the
// publisher are unaffected.
const subscriberBuffer = 64

type PubSub struct {
	client *redis.Client
}

func New(ctx context.Context, addr, password string, db int) (*PubSub, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis.New: ping: %w", err)
	}

	return &PubSub{client: client}, nil
}

func (ps *PubSub) Close() error {
	if err := ps.client.Close(); err != nil {
		return fmt.Errorf("redis.PubSub.Close: %w", err)
	}
	return nil
}

// PublishSession fans one accepted event out to the session's live readers.
func (ps *PubSub) PublishSession(ctx context.Context, sessionID uuid.UUID, payload []byte) error {
	if err := ps.client.Publish(ctx, SessionChannel(sessionID), payload).Err(); err != nil {
		return fmt.Errorf("redis.PubSub.PublishSession: %w", err)
	}
	return nil
}

// SubscribeSession returns a bounded channel of event payloads for one
// session. The channel closes when ctx is done; cleanup tears down the
// underlying Redis subscription and must be called by the subscriber.
func (ps *PubSub) SubscribeSession(ctx context.Context, sessionID uuid.UUID) (<-chan []byte, func(), error) {
	sub := ps.client.Subscribe(ctx, SessionChannel(sessionID))

	// Wait for subscription confirmation.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, nil, fmt.Errorf("redis.PubSub.SubscribeSession: receive confirmation: %w", err)
	}

	out := make(chan []byte, subscriberBuffer)
	go forward(ctx, sub.Channel(), out)

	cleanup := func() {
		_ = sub.Close()
	}

	return out, cleanup, nil
}

// forward copies payloads from the Redis subscription into the
// subscriber's channel until either side closes.
func forward(ctx context.Context, in <-chan *redis.Message, out chan<- []byte) {
	defer close(out)
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-in:
			if !ok {
				return
			}
			select {
			case out <- []byte(msg.Payload):
			case <-ctx.Done():
				return
			}
		}
	}
}

// SessionChannel returns the Redis channel carrying a session's live
// event stream.
func SessionChannel(sessionID uuid.UUID) string {
	return "session:" + sessionID.String()
}
