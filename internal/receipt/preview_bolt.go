package receipt

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

const previewBucketName = "previews"

type boltPreview struct {
	ContentType string `json:"content_type"`
	Data        []byte `json:"data"`
}

// BoltPreviewStore implements PreviewStore using BoltDB
type BoltPreviewStore struct {
	db *bbolt.DB
}

// NewBoltPreviewStore opens the database and empties the preview bucket
func NewBoltPreviewStore(path string) (*BoltPreviewStore, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	// Previews never outlive the process that created them
	err = db.Update(func(tx *bbolt.Tx) error {
		if tx.Bucket([]byte(previewBucketName)) != nil {
			if err := tx.DeleteBucket([]byte(previewBucketName)); err != nil {
				return err
			}
		}
		_, err := tx.CreateBucket([]byte(previewBucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("resetting preview bucket: %w", err)
	}

	return &BoltPreviewStore{db: db}, nil
}

// Create stores a preview under a new ID
func (b *BoltPreviewStore) Create(ctx context.Context, data []byte, contentType string) (string, error) {
	id := newPreviewID()
	value, err := json.Marshal(boltPreview{ContentType: contentType, Data: data})
	if err != nil {
		return "", fmt.Errorf("marshaling preview: %w", err)
	}
	err = b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(previewBucketName)).Put([]byte(id), value)
	})
	if err != nil {
		return "", fmt.Errorf("saving preview: %w", err)
	}
	return id, nil
}

// Get retrieves a preview by ID
func (b *BoltPreviewStore) Get(ctx context.Context, id string) ([]byte, string, error) {
	var preview boltPreview
	err := b.db.View(func(tx *bbolt.Tx) error {
		value := tx.Bucket([]byte(previewBucketName)).Get([]byte(id))
		if value == nil {
			return ErrPreviewNotFound
		}
		return json.Unmarshal(value, &preview)
	})
	if err != nil {
		return nil, "", err
	}
	return preview.Data, preview.ContentType, nil
}

// Release removes a preview
func (b *BoltPreviewStore) Release(ctx context.Context, id string) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(previewBucketName))
		if bucket.Get([]byte(id)) == nil {
			return ErrPreviewNotFound
		}
		return bucket.Delete([]byte(id))
	})
}

// Close closes the database
func (b *BoltPreviewStore) Close() error {
	return b.db.Close()
}
