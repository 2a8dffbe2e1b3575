package tracking

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/google/uuid"
)

var (
	// ErrAlreadyTracked is returned when an instance is added twice
	ErrAlreadyTracked = errors.New("entity is already tracked")

	// ErrNotTrackable is returned for values that are not pointers to structs
	ErrNotTrackable = errors.New("entity must be a non-nil pointer to a struct")

	// ErrInvalidTransition is returned for state changes the record does not allow
	ErrInvalidTransition = errors.New("invalid state transition")
)

// State is the persistence state of a tracked entity
type State int

const (
	StateNone State = iota
	StateCreated
	StateUpdated
	StateDeleted
	StateDetached
)

// String returns the string representation of State
func (s State) String() string {
	switch s {
	case StateNone:
		return "none"
	case StateCreated:
		return "created"
	case StateUpdated:
		return "updated"
	case StateDeleted:
		return "deleted"
	case StateDetached:
		return "detached"
	default:
		return "unknown"
	}
}

// Pending returns true for states that need to be saved
func (s State) Pending() bool {
	return s == StateCreated || s == StateUpdated || s == StateDeleted
}

// Record tracks one entity instance
type Record struct {
	ID     uuid.UUID
	Type   reflect.Type
	Entity interface{}

	mu          sync.Mutex
	state       State
	original    interface{}
	snapshot    map[string]interface{}
	unsubscribe func()
}

func newRecord(entity interface{}) *Record {
	return &Record{
		ID:       uuid.New(),
		Type:     reflect.TypeOf(entity).Elem(),
		Entity:   entity,
		original: cloneEntity(entity),
		snapshot: snapshotFields(entity),
	}
}

// State returns the current state
func (r *Record) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Original returns the copy of the entity taken when it was last accepted
func (r *Record) Original() interface{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.original
}

// MarkCreated flags a record added for an entity that is not stored yet
func (r *Record) MarkCreated() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != StateNone {
		return fmt.Errorf("%s -> %s: %w", r.state, StateCreated, ErrInvalidTransition)
	}
	r.state = StateCreated
	return nil
}

// MarkUpdated flags the entity as modified. Created records stay created.
func (r *Record) MarkUpdated() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch r.state {
	case StateNone:
		r.state = StateUpdated
	case StateCreated, StateUpdated:
	default:
		return fmt.Errorf("%s -> %s: %w", r.state, StateUpdated, ErrInvalidTransition)
	}
	return nil
}

// MarkDeleted flags the entity for deletion
func (r *Record) MarkDeleted() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch r.state {
	case StateNone, StateUpdated:
		r.state = StateDeleted
	case StateDeleted:
	default:
		return fmt.Errorf("%s -> %s: %w", r.state, StateDeleted, ErrInvalidTransition)
	}
	return nil
}

// onChange handles a notification from an Observable entity
func (r *Record) onChange(change FieldChange) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != StateNone {
		return
	}

	old, known := change.OldValue, change.HasOldValue
	if !known {
		old, known = r.snapshot[change.Field]
	}
	if !known || !deepEqual(old, change.NewValue) {
		r.state = StateUpdated
	}
}

// DetectChanges compares the entity with its snapshot and promotes an
// unchanged record to updated when a field differs. Used for entities that
// do not report their own changes.
func (r *Record) DetectChanges() bool {
	if len(r.Changes()) == 0 {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == StateNone {
		r.state = StateUpdated
	}
	return true
}

// Changes returns the fields that differ from the snapshot
func (r *Record) Changes() map[string]*FieldChange {
	current := snapshotFields(r.Entity)

	r.mu.Lock()
	defer r.mu.Unlock()

	changes := make(map[string]*FieldChange)
	for field, newValue := range current {
		oldValue := r.snapshot[field]
		if !deepEqual(oldValue, newValue) {
			changes[field] = &FieldChange{
				Field:       field,
				OldValue:    oldValue,
				NewValue:    newValue,
				HasOldValue: true,
			}
		}
	}
	return changes
}

// ChangedFields returns the names of changed fields in sorted order
func (r *Record) ChangedFields() []string {
	changes := r.Changes()
	fields := make([]string, 0, len(changes))
	for field := range changes {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	return fields
}

// ChangedData returns a map of only the changed fields with their new values
func (r *Record) ChangedData() map[string]interface{} {
	changes := r.Changes()
	result := make(map[string]interface{}, len(changes))
	for field, change := range changes {
		result[field] = change.NewValue
	}
	return result
}

// AcceptChanges takes a fresh snapshot and returns a saved record to
// StateNone. This should be called after a successful save.
func (r *Record) AcceptChanges() {
	original := cloneEntity(r.Entity)
	snapshot := snapshotFields(r.Entity)

	r.mu.Lock()
	defer r.mu.Unlock()

	r.original = original
	r.snapshot = snapshot
	if r.state == StateCreated || r.state == StateUpdated {
		r.state = StateNone
	}
}

func (r *Record) detach() {
	r.mu.Lock()
	unsubscribe := r.unsubscribe
	r.unsubscribe = nil
	r.state = StateDetached
	r.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
}
