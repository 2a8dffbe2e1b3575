// Package tracking records which entity instances were created, modified or
// deleted so a unit of work can decide what to save.
package tracking

import (
	"fmt"
	"reflect"
	"sync"

	"go.uber.org/zap"
)

// Tracker keeps one Record per tracked entity instance. Instances are
// identified by pointer.
type Tracker struct {
	mu      sync.Mutex
	records []*Record
	index   map[interface{}]*Record
	logger  *zap.Logger
}

// Option configures a Tracker
type Option func(*Tracker)

// WithLogger sets the tracker's logger
func WithLogger(logger *zap.Logger) Option {
	return func(t *Tracker) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// NewTracker creates an empty tracker
func NewTracker(opts ...Option) *Tracker {
	t := &Tracker{
		index:  make(map[interface{}]*Record),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func checkTrackable(entity interface{}) error {
	v := reflect.ValueOf(entity)
	if !v.IsValid() || v.Kind() != reflect.Ptr || v.IsNil() || v.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("%T: %w", entity, ErrNotTrackable)
	}
	return nil
}

// Add starts tracking entity in StateNone. Entities implementing Observable
// are subscribed to.
func (t *Tracker) Add(entity interface{}) (*Record, error) {
	if err := checkTrackable(entity); err != nil {
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.index[entity]; exists {
		return nil, fmt.Errorf("%T: %w", entity, ErrAlreadyTracked)
	}

	rec := newRecord(entity)
	if obs, ok := entity.(Observable); ok {
		rec.unsubscribe = obs.Subscribe(rec.onChange)
	}
	t.records = append(t.records, rec)
	t.index[entity] = rec

	t.logger.Debug("tracking entity",
		zap.String("record", rec.ID.String()),
		zap.String("type", rec.Type.Name()),
	)
	return rec, nil
}

// Track adds entity unless it is already tracked
func (t *Tracker) Track(entity interface{}) error {
	if t.Contains(entity) {
		return nil
	}
	_, err := t.Add(entity)
	return err
}

// Contains returns true if entity is tracked
func (t *Tracker) Contains(entity interface{}) bool {
	_, ok := t.Get(entity)
	return ok
}

// Get returns the active record for that exact instance
func (t *Tracker) Get(entity interface{}) (*Record, bool) {
	if checkTrackable(entity) != nil {
		return nil, false
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.index[entity]
	return rec, ok
}

// Detach stops tracking the record's entity
func (t *Tracker) Detach(rec *Record) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.index[rec.Entity] != rec {
		return
	}
	delete(t.index, rec.Entity)
	for i, r := range t.records {
		if r == rec {
			t.records = append(t.records[:i], t.records[i+1:]...)
			break
		}
	}
	rec.detach()

	t.logger.Debug("detached entity", zap.String("record", rec.ID.String()))
}

// Clear detaches every record
func (t *Tracker) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, rec := range t.records {
		rec.detach()
	}
	t.records = nil
	t.index = make(map[interface{}]*Record)
}

// Entries returns the tracked records in insertion order
func (t *Tracker) Entries() []*Record {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*Record(nil), t.records...)
}

// Len returns the number of tracked records
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.records)
}

// DetectChanges runs Record.DetectChanges on every record
func (t *Tracker) DetectChanges() {
	for _, rec := range t.Entries() {
		rec.DetectChanges()
	}
}

// AnyChangesOutstanding returns true if any record is created, updated or
// deleted
func (t *Tracker) AnyChangesOutstanding() bool {
	for _, rec := range t.Entries() {
		if rec.State().Pending() {
			return true
		}
	}
	return false
}

// AcceptAll accepts every pending change. Deleted records are detached.
func (t *Tracker) AcceptAll() {
	for _, rec := range t.Entries() {
		if rec.State() == StateDeleted {
			t.Detach(rec)
			continue
		}
		rec.AcceptChanges()
	}
}
