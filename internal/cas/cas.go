package cas

import (
	"context"
	"errors"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/didanchor/didanchor/internal/hash"
)

var (
	BatchBucket    = []byte("batches")
	MetadataBucket = []byte("metadata")
)

// ErrNotFound is returned when no content exists under the requested hash.
var ErrNotFound = errors.New("content not found")

// Store is a bbolt-backed content-addressable store: content is keyed by
// its own digest, so a batch hash read from the ledger is directly the
// lookup key, and writes are idempotent by construction.
type Store struct {
	db *bolt.DB
}

func New(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{
		Timeout: 1 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{BatchBucket, MetadataBucket} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Write stores the content and returns its hash.
func (s *Store) Write(data []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("cannot store empty content")
	}

	contentHash := hash.Compute(data)
	err := s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(BatchBucket)
		return bucket.Put([]byte(contentHash), data)
	})
	if err != nil {
		return "", fmt.Errorf("failed to store content: %w", err)
	}

	return contentHash, nil
}

// Read returns the content stored under the given hash. Satisfies the
// cache engine's store interface.
func (s *Store) Read(ctx context.Context, batchHash string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(BatchBucket)
		stored := bucket.Get([]byte(batchHash))
		if stored == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, batchHash)
		}
		data = make([]byte, len(stored))
		copy(data, stored)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return data, nil
}

// BatchCount returns the number of stored batches.
func (s *Store) BatchCount() (int, error) {
	var count int
	err := s.db.View(func(tx *bolt.Tx) error {
		count = tx.Bucket(BatchBucket).Stats().KeyN
		return nil
	})
	return count, err
}

func (s *Store) SetMetadata(key, value string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(MetadataBucket)
		return bucket.Put([]byte(key), []byte(value))
	})
}

func (s *Store) GetMetadata(key string) (string, error) {
	var value string

	err := s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(MetadataBucket)
		data := bucket.Get([]byte(key))
		if data == nil {
			return fmt.Errorf("metadata key not found: %s", key)
		}
		value = string(data)
		return nil
	})

	return value, err
}
