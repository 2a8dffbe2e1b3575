// Package memory provides an in-process document store
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/conduit-lang/entitycore/internal/orm/store"
)

// Store keeps documents in maps guarded by a RWMutex
type Store struct {
	mu   sync.RWMutex
	docs map[string]map[string][]byte
}

// New creates an empty store
func New() *Store {
	return &Store{docs: make(map[string]map[string][]byte)}
}

// Scan implements store.Store
func (s *Store) Scan(ctx context.Context, kind string) ([]store.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if kind == "" {
		return nil, store.ErrEmptyKind
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	docs := make([]store.Document, 0, len(s.docs[kind]))
	for key, body := range s.docs[kind] {
		docs = append(docs, store.Document{Key: key, Body: append([]byte(nil), body...)})
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].Key < docs[j].Key })
	return docs, nil
}

// Apply implements store.Store
func (s *Store) Apply(ctx context.Context, ops []store.Op) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := store.Validate(ops); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, op := range ops {
		kind := s.docs[op.Kind]
		if op.Delete {
			delete(kind, op.Key)
			continue
		}
		if kind == nil {
			kind = make(map[string][]byte)
			s.docs[op.Kind] = kind
		}
		kind[op.Key] = append([]byte(nil), op.Body...)
	}
	return nil
}

// Len returns the number of documents of kind
func (s *Store) Len(kind string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs[kind])
}

// Close implements store.Store
func (s *Store) Close() error {
	return nil
}
