package domain

import (
	"context"

	"github.com/google/uuid"
)

// Archive describes the compressed artifact holding a session's full event
// history after close. Created once per session; immutable thereafter.
type Archive struct {
	SessionID            uuid.UUID
	BlobKey              string
	CompressedSize       int64
	EventCountAtArchival int
}

// UploadResult is returned by a blob upload.
type UploadResult struct {
	Key  string
	Size int64
}

// BlobStore is the object-storage contract the core needs. Any content- or
// path-addressed store satisfies it.
type BlobStore interface {
	Upload(ctx context.Context, key string, data []byte) (UploadResult, error)
	Get(ctx context.Context, key string) ([]byte, error)
}
