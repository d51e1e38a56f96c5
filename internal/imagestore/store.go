// Package imagestore persists user images pasted or dropped into a document.
// Images are keyed by opaque ids and survive re-formatting: tokens embedded in
// the document text reference these ids for the whole editing session.
package imagestore

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	bolt "go.etcd.io/bbolt"
)

const (
	blobBucket = "images"
	metaBucket = "image_meta"

	// MaxImageSize caps a single stored image at 10MB.
	MaxImageSize = 10 * 1024 * 1024

	readCacheSize = 32
)

// ErrNotFound indicates the requested image does not exist.
var ErrNotFound = errors.New("image not found")

// ErrImageTooLarge indicates the image exceeds the maximum allowed size.
var ErrImageTooLarge = errors.New("image exceeds maximum size")

// Meta describes a stored image.
type Meta struct {
	ID             string `json:"id"`
	Name           string `json:"name,omitempty"`
	MimeType       string `json:"mime_type"`
	Width          int    `json:"width,omitempty"`
	Height         int    `json:"height,omitempty"`
	OriginalSize   int    `json:"original_size,omitempty"`
	CompressedSize int    `json:"compressed_size,omitempty"`
	CreatedAt      int64  `json:"created_at"`
}

// Store is a bbolt-backed blob store with a small LRU read cache. Resolution
// re-reads every referenced image on each formatting pass, so repeated reads
// of the same document's images are served from memory.
type Store struct {
	db    *bolt.DB
	cache *lru.Cache[string, []byte]
}

// Open creates or opens the store file at path.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open image store %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range []string{blobBucket, metaBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(bucket)); err != nil {
				return fmt.Errorf("create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	cache, err := lru.New[string, []byte](readCacheSize)
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db, cache: cache}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// NewID mints an opaque image id.
func NewID() string {
	return "img-" + uuid.New().String()
}

// Save persists the image bytes under meta.ID. An empty ID is assigned a
// fresh one; the possibly updated meta is returned.
func (s *Store) Save(meta Meta, data []byte) (Meta, error) {
	if len(data) == 0 {
		return Meta{}, errors.New("empty image data")
	}
	if len(data) > MaxImageSize {
		return Meta{}, ErrImageTooLarge
	}
	if meta.ID == "" {
		meta.ID = NewID()
	}
	if meta.CreatedAt == 0 {
		meta.CreatedAt = time.Now().Unix()
	}

	rawMeta, err := json.Marshal(meta)
	if err != nil {
		return Meta{}, fmt.Errorf("marshal image meta: %w", err)
	}

	err = s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket([]byte(blobBucket)).Put([]byte(meta.ID), data); err != nil {
			return err
		}
		return tx.Bucket([]byte(metaBucket)).Put([]byte(meta.ID), rawMeta)
	})
	if err != nil {
		return Meta{}, fmt.Errorf("save image %s: %w", meta.ID, err)
	}

	s.cache.Add(meta.ID, data)
	return meta, nil
}

// GetBytes returns the stored bytes for id, or ErrNotFound.
func (s *Store) GetBytes(id string) ([]byte, error) {
	if data, ok := s.cache.Get(id); ok {
		return data, nil
	}

	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket([]byte(blobBucket)).Get([]byte(id))
		if raw == nil {
			return ErrNotFound
		}
		data = make([]byte, len(raw))
		copy(data, raw)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.cache.Add(id, data)
	return data, nil
}

// GetMeta returns the stored metadata for id, or ErrNotFound.
func (s *Store) GetMeta(id string) (Meta, error) {
	var meta Meta
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket([]byte(metaBucket)).Get([]byte(id))
		if raw == nil {
			return ErrNotFound
		}
		return json.Unmarshal(raw, &meta)
	})
	if err != nil {
		return Meta{}, err
	}
	return meta, nil
}
