package receipt

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// ErrPreviewNotFound is returned for unknown or already released previews
var ErrPreviewNotFound = errors.New("preview not found")

const (
	previewDataExt = ".preview"
	previewTypeExt = ".type"
)

// PreviewStore holds the local previews of selected files until their draft is abandoned
type PreviewStore interface {
	// Create stores data and returns the preview ID
	Create(ctx context.Context, data []byte, contentType string) (string, error)

	// Get returns the preview data and its content type
	Get(ctx context.Context, id string) ([]byte, string, error)

	// Release discards a preview
	Release(ctx context.Context, id string) error

	// Close releases the store itself
	Close() error
}

// newPreviewID generates a random preview ID
func newPreviewID() string {
	return uuid.NewString()
}

// validPreviewID reports whether id has the shape of a generated ID.
// IDs end up in file names, so anything else is rejected.
func validPreviewID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// LocalPreviewStore implements PreviewStore on the local filesystem
type LocalPreviewStore struct {
	basePath string
}

// NewLocalPreviewStore creates the directory if needed and removes previews left by an earlier run
func NewLocalPreviewStore(basePath string) (*LocalPreviewStore, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("creating preview directory: %w", err)
	}

	for _, pattern := range []string{"*" + previewDataExt, "*" + previewTypeExt} {
		stale, err := filepath.Glob(filepath.Join(basePath, pattern))
		if err != nil {
			return nil, fmt.Errorf("listing stale previews: %w", err)
		}
		for _, path := range stale {
			if err := os.Remove(path); err != nil {
				return nil, fmt.Errorf("removing stale preview: %w", err)
			}
		}
	}

	return &LocalPreviewStore{
		basePath: basePath,
	}, nil
}

func (l *LocalPreviewStore) dataPath(id string) string {
	return filepath.Join(l.basePath, id+previewDataExt)
}

func (l *LocalPreviewStore) typePath(id string) string {
	return filepath.Join(l.basePath, id+previewTypeExt)
}

// Create writes the preview and its content type side by side
func (l *LocalPreviewStore) Create(ctx context.Context, data []byte, contentType string) (string, error) {
	id := newPreviewID()
	if err := os.WriteFile(l.dataPath(id), data, 0644); err != nil {
		return "", fmt.Errorf("writing preview: %w", err)
	}
	if err := os.WriteFile(l.typePath(id), []byte(contentType), 0644); err != nil {
		os.Remove(l.dataPath(id))
		return "", fmt.Errorf("writing preview content type: %w", err)
	}
	return id, nil
}

// Get reads a preview from disk
func (l *LocalPreviewStore) Get(ctx context.Context, id string) ([]byte, string, error) {
	if !validPreviewID(id) {
		return nil, "", ErrPreviewNotFound
	}
	data, err := os.ReadFile(l.dataPath(id))
	if errors.Is(err, os.ErrNotExist) {
		return nil, "", ErrPreviewNotFound
	}
	if err != nil {
		return nil, "", fmt.Errorf("reading preview: %w", err)
	}
	contentType, err := os.ReadFile(l.typePath(id))
	if err != nil {
		return nil, "", fmt.Errorf("reading preview content type: %w", err)
	}
	return data, string(contentType), nil
}

// Release removes a preview from disk
func (l *LocalPreviewStore) Release(ctx context.Context, id string) error {
	if !validPreviewID(id) {
		return ErrPreviewNotFound
	}
	err := os.Remove(l.dataPath(id))
	if errors.Is(err, os.ErrNotExist) {
		return ErrPreviewNotFound
	}
	if err != nil {
		return fmt.Errorf("deleting preview: %w", err)
	}
	if err := os.Remove(l.typePath(id)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("deleting preview content type: %w", err)
	}
	return nil
}

// Close is a no-op for the local store
func (l *LocalPreviewStore) Close() error {
	return nil
}
