// Package blob provides the object-storage implementations behind the
// domain.BlobStore contract. The filesystem store is the self-hosted
// default; any path-addressed object store can replace it.
package blob

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/vetta-ai/vetta/internal/domain"
)

// FSStore stores blobs as files under a root directory, with keys mapped
// directly to relative paths.
type FSStore struct {
	root string
}

func NewFSStore(root string) (*FSStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("blob.NewFSStore: %w", err)
	}
	return &FSStore{root: root}, nil
}

func (s *FSStore) Upload(ctx context.Context, key string, data []byte) (domain.UploadResult, error) {
	if err := ctx.Err(); err != nil {
		return domain.UploadResult{}, fmt.Errorf("blob.FSStore.Upload: %w", err)
	}

	path, err := s.resolve(key)
	if err != nil {
		return domain.UploadResult{}, fmt.Errorf("blob.FSStore.Upload: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return domain.UploadResult{}, fmt.Errorf("blob.FSStore.Upload: %w", err)
	}

	// Write-then-rename so readers never observe a partial blob.
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return domain.UploadResult{}, fmt.Errorf("blob.FSStore.Upload: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return domain.UploadResult{}, fmt.Errorf("blob.FSStore.Upload: %w", err)
	}

	return domain.UploadResult{Key: key, Size: int64(len(data))}, nil
}

func (s *FSStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("blob.FSStore.Get: %w", err)
	}

	path, err := s.resolve(key)
	if err != nil {
		return nil, fmt.Errorf("blob.FSStore.Get: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("blob.FSStore.Get: %s: %w", key, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("blob.FSStore.Get: %w", err)
	}

	return data, nil
}

// resolve maps a key to an absolute path and rejects traversal outside the
// root.
func (s *FSStore) resolve(key string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("empty key: %w", domain.ErrValidation)
	}
	path := filepath.Join(s.root, filepath.FromSlash(key))
	if !strings.HasPrefix(path, filepath.Clean(s.root)+string(os.PathSeparator)) {
		return "", fmt.Errorf("key %q escapes store root: %w", key, domain.ErrValidation)
	}
	return path, nil
}
