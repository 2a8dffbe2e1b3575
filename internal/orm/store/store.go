// Package store defines the document storage contract sessions save
// entities through. A document is the encoded body of one entity, addressed
// by its kind (entity type name) and key (encoded primary key).
package store

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrEmptyKind is returned for operations without a kind
	ErrEmptyKind = errors.New("document kind is empty")

	// ErrEmptyKey is returned for operations without a key
	ErrEmptyKey = errors.New("document key is empty")

	// ErrConflict is returned when a batch collides with a concurrent writer
	// or a constraint
	ErrConflict = errors.New("document write conflict")
)

// Document is one stored entity
type Document struct {
	Key  string
	Body []byte
}

// Op is a single write. Delete ops ignore Body; other ops insert or replace.
type Op struct {
	Kind   string
	Key    string
	Body   []byte
	Delete bool
}

// Store persists documents. Apply writes a batch atomically: either every op
// is visible afterwards or none is.
type Store interface {
	// Scan returns the documents of kind ordered by key
	Scan(ctx context.Context, kind string) ([]Document, error)
	// Apply writes ops in order as one batch
	Apply(ctx context.Context, ops []Op) error
	// Close releases the store's resources
	Close() error
}

// Validate checks ops before they are applied
func Validate(ops []Op) error {
	for i, op := range ops {
		if op.Kind == "" {
			return fmt.Errorf("op %d: %w", i, ErrEmptyKind)
		}
		if op.Key == "" {
			return fmt.Errorf("op %d (%s): %w", i, op.Kind, ErrEmptyKey)
		}
	}
	return nil
}

// IsConflict returns true if the error is ErrConflict
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}
