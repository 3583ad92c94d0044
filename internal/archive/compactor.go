// Package archive compacts closed sessions' event streams into compressed
// blobs and restores them for replay.
package archive

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/vetta-ai/vetta/internal/domain"
)

const (
	uploadAttempts = 3
	uploadBackoff  = 250 * time.Millisecond
)

// Compactor serializes, compresses, and uploads full session histories.
type Compactor struct {
	blobs domain.BlobStore
}

func NewCompactor(blobs domain.BlobStore) *Compactor {
	return &Compactor{blobs: blobs}
}

// Key returns the deterministic blob key for a session archived at ts,
// namespaced by date and session ID.
func Key(sessionID uuid.UUID, ts time.Time) string {
	return fmt.Sprintf("sessions/%04d/%02d/%02d/%s/events.json.gz",
		ts.Year(), ts.Month(), ts.Day(), sessionID)
}

// Archive serializes the ordered event stream, gzips it, and uploads it
// under the session's date-namespaced key. An empty stream is skipped
// entirely: no upload happens and nil is returned. The upload is retried a
// bounded number of times with backoff; further retries belong out-of-band,
// off the hot close path.
func (c *Compactor) Archive(ctx context.Context, s *domain.Session, events []*domain.Event) (*domain.Archive, error) {
	if len(events) == 0 {
		return nil, nil
	}

	raw, err := json.Marshal(events)
	if err != nil {
		return nil, fmt.Errorf("archive.Compactor.Archive: marshal: %w", err)
	}

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(raw); err != nil {
		return nil, fmt.Errorf("archive.Compactor.Archive: compress: %w", err)
	}
	if err := gz.Close(); err != nil {
		return nil, fmt.Errorf("archive.Compactor.Archive: compress: %w", err)
	}

	key := Key(s.ID, time.Now().UTC())

	var result domain.UploadResult
	var lastErr error
	for attempt := 1; attempt <= uploadAttempts; attempt++ {
		result, lastErr = c.blobs.Upload(ctx, key, buf.Bytes())
		if lastErr == nil {
			break
		}
		log.Warn().Err(lastErr).
			Str("session_id", s.ID.String()).
			Int("attempt", attempt).
			Msg("archive: upload failed")
		if attempt < uploadAttempts {
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("archive.Compactor.Archive: %w", ctx.Err())
			case <-time.After(time.Duration(attempt) * uploadBackoff):
			}
		}
	}
	if lastErr != nil {
		return nil, fmt.Errorf("archive.Compactor.Archive: upload after %d attempts: %w", uploadAttempts, lastErr)
	}

	return &domain.Archive{
		SessionID:            s.ID,
		BlobKey:              result.Key,
		CompressedSize:       result.Size,
		EventCountAtArchival: len(events),
	}, nil
}

// Fetch downloads and decodes an archived event stream for replay.
func (c *Compactor) Fetch(ctx context.Context, key string) ([]*domain.Event, error) {
	data, err := c.blobs.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("archive.Compactor.Fetch: %w", err)
	}

	gz, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("archive.Compactor.Fetch: decompress: %w", err)
	}
	defer gz.Close()

	raw, err := io.ReadAll(gz)
	if err != nil {
		return nil, fmt.Errorf("archive.Compactor.Fetch: decompress: %w", err)
	}

	var events []*domain.Event
	if err := json.Unmarshal(raw, &events); err != nil {
		return nil, fmt.Errorf("archive.Compactor.Fetch: decode: %w", err)
	}

	return events, nil
}
