package blob

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"blueprint-room-pipeline/internal/domain"
	"blueprint-room-pipeline/internal/domain/ports/repository"
)

var _ repository.BlueprintStore = (*FSStore)(nil)

// FSStore keeps uploaded blueprint drawings on the local filesystem, one file
// per storage key under the base directory.
type FSStore struct {
	baseDir string
}

func NewFSStore(baseDir string) (*FSStore, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create blueprint dir %s: %w", baseDir, err)
	}
	return &FSStore{baseDir: baseDir}, nil
}

func (s *FSStore) path(key string) (string, error) {
	// Keys are opaque IDs; reject anything that could escape the base dir.
	if key == "" || strings.Contains(key, "..") || strings.ContainsAny(key, `/\`) {
		return "", fmt.Errorf("%w: bad blueprint key %q", domain.ErrInvalidArgument, key)
	}
	return filepath.Join(s.baseDir, key), nil
}

func (s *FSStore) Get(_ context.Context, key string) ([]byte, error) {
	p, err := s.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return data, nil
}

func (s *FSStore) Put(_ context.Context, key string, data []byte) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	return os.WriteFile(p, data, 0o644)
}
