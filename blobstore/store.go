// Package blobstore holds image bytes behind short-lived, releasable handles
// that the browser can load by URL.
package blobstore

import (
	"errors"
	"sync"

	"github.com/google/uuid"
)

// DefaultPrefix is the URL path under which handles are served.
const DefaultPrefix = "/blobs/"

// ErrNotFound is returned for unknown or released handles.
var ErrNotFound = errors.New("blobstore: handle not found")

// Blob is the content behind a handle.
type Blob struct {
	Data        []byte
	ContentType string
}

// Handle identifies one stored blob. The zero Handle means "none".
type Handle struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// IsZero reports whether h refers to nothing.
func (h Handle) IsZero() bool {
	return h.ID == ""
}

// Store is an in-memory handle table. Each Put creates a new exclusive
// handle; the owner must Release it.
//
// Thread Safety: Store is safe for concurrent use.
type Store struct {
	mu     sync.RWMutex
	blobs  map[string]Blob
	prefix string
}

// New creates a Store whose handle URLs start with prefix.
// An empty prefix uses DefaultPrefix.
func New(prefix string) *Store {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Store{
		blobs:  make(map[string]Blob),
		prefix: prefix,
	}
}

// Put stores data and returns a fresh handle.
func (s *Store) Put(data []byte, contentType string) Handle {
	id := uuid.NewString()

	s.mu.Lock()
	s.blobs[id] = Blob{Data: data, ContentType: contentType}
	s.mu.Unlock()

	return Handle{ID: id, URL: s.prefix + id}
}

// Get returns the blob for id.
func (s *Store) Get(id string) (Blob, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.blobs[id]
	return b, ok
}

// Release drops the blob behind id. Releasing an unknown id is a no-op.
func (s *Store) Release(id string) {
	if id == "" {
		return
	}
	s.mu.Lock()
	delete(s.blobs, id)
	s.mu.Unlock()
}

// Len returns the number of live handles.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}

// Prefix returns the URL path prefix.
func (s *Store) Prefix() string {
	return s.prefix
}
