package proofstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/campusportal/transport-backend/internal/models"
	"github.com/google/uuid"
)

// LocalStore keeps proofs under a root directory
type LocalStore struct {
	root string
}

// NewLocalStore creates the root directory if needed
func NewLocalStore(root string) (*LocalStore, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create proof directory: %w", err)
	}
	return &LocalStore{root: root}, nil
}

// Store writes file and returns its key
func (s *LocalStore) Store(ctx context.Context, ownerID uuid.UUID, file models.ProofUpload) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if file.Content == nil {
		return "", errors.New("proof content is empty")
	}

	key := newKey(ownerID, file.ContentType, file.Filename)
	full := s.fullPath(key)
	if err := os.MkdirAll(filepath.Dir(full), 0o750); err != nil {
		return "", fmt.Errorf("failed to create proof directory: %w", err)
	}

	f, err := os.OpenFile(full, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		return "", fmt.Errorf("failed to create proof file: %w", err)
	}
	if _, err := io.Copy(f, file.Content); err != nil {
		_ = f.Close()
		_ = os.Remove(full)
		return "", fmt.Errorf("failed to write proof file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(full)
		return "", fmt.Errorf("failed to write proof file: %w", err)
	}

	return key, nil
}

// Exists reports whether key is stored
func (s *LocalStore) Exists(_ context.Context, key string) (bool, error) {
	cleaned, err := cleanKey(key)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(s.fullPath(cleaned))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to stat proof: %w", err)
	}
	return true, nil
}

// Delete removes key. The bool is false when nothing was stored there.
func (s *LocalStore) Delete(_ context.Context, key string) (bool, error) {
	cleaned, err := cleanKey(key)
	if err != nil {
		return false, err
	}
	err = os.Remove(s.fullPath(cleaned))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to delete proof: %w", err)
	}
	return true, nil
}

// Open returns the stored content; a missing key yields fs.ErrNotExist
func (s *LocalStore) Open(_ context.Context, key string) (io.ReadCloser, error) {
	cleaned, err := cleanKey(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(s.fullPath(cleaned))
	if err != nil {
		return nil, fmt.Errorf("failed to open proof: %w", err)
	}
	return f, nil
}

func (s *LocalStore) fullPath(key string) string {
	return filepath.Join(s.root, filepath.FromSlash(key))
}
