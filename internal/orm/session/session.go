// Package session is a unit of work over a document store. It reads entities
// through tracked queries, confines reads and new entities to a data
// partition, and writes every pending change in one batch on SaveChanges.
package session

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"

	"go.uber.org/zap"

	"github.com/conduit-lang/entitycore/internal/orm/expr"
	"github.com/conduit-lang/entitycore/internal/orm/filter"
	"github.com/conduit-lang/entitycore/internal/orm/metadata"
	"github.com/conduit-lang/entitycore/internal/orm/query"
	"github.com/conduit-lang/entitycore/internal/orm/store"
	"github.com/conduit-lang/entitycore/internal/orm/tracking"
)

var (
	// ErrPartitionMismatch is returned when an added entity belongs to
	// another partition
	ErrPartitionMismatch = errors.New("entity belongs to another partition")

	// ErrInvalidKey is returned when a primary key cannot be encoded
	ErrInvalidKey = errors.New("invalid primary key")
)

// Session tracks the entities it reads or is given and saves their changes
// to a store. A Session is meant to be used by one logical owner at a time.
type Session struct {
	registry  *metadata.Registry
	tracker   *tracking.Tracker
	store     store.Store
	partition interface{}
	logger    *zap.Logger

	mu         sync.Mutex
	identities map[string]interface{}
}

// Option configures a Session
type Option func(*Session)

// WithPartition confines the session to one data partition. Queries only see
// entities whose partition field equals value, and added entities default to
// it.
func WithPartition(value interface{}) Option {
	return func(s *Session) {
		s.partition = value
	}
}

// WithLogger sets the session's logger
func WithLogger(logger *zap.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates a session over st using the models of registry
func New(registry *metadata.Registry, st store.Store, opts ...Option) *Session {
	s := &Session{
		registry:   registry,
		store:      st,
		logger:     zap.NewNop(),
		identities: make(map[string]interface{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.tracker = tracking.NewTracker(tracking.WithLogger(s.logger))
	return s
}

// Registry returns the metadata registry
func (s *Session) Registry() *metadata.Registry {
	return s.registry
}

// Tracker returns the session's change tracker
func (s *Session) Tracker() *tracking.Tracker {
	return s.tracker
}

// Partition returns the partition value, or nil for an unpartitioned session
func (s *Session) Partition() interface{} {
	return s.partition
}

func identityOf(kind, key string) string {
	return kind + "\x00" + key
}

// identity returns the kind and document key of entity
func (s *Session) identity(entity interface{}) (*metadata.EntityModel, string, error) {
	model, err := s.registry.Model(reflect.TypeOf(entity))
	if err != nil {
		return nil, "", err
	}
	values, err := model.KeyValues(entity)
	if err != nil {
		return model, "", err
	}
	key, err := encodeKey(values)
	if err != nil {
		return model, "", fmt.Errorf("%s: %w", model.Name(), err)
	}
	return model, key, nil
}

func (s *Session) remember(entity interface{}) {
	model, key, err := s.identity(entity)
	if err != nil {
		return
	}
	s.mu.Lock()
	s.identities[identityOf(model.Name(), key)] = entity
	s.mu.Unlock()
}

func (s *Session) forget(entity interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, e := range s.identities {
		if e == entity {
			delete(s.identities, id)
		}
	}
}

func (s *Session) lookupIdentity(kind, key string) (interface{}, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.identities[identityOf(kind, key)]
	return e, ok
}

// Contains implements query.Tracker
func (s *Session) Contains(entity interface{}) bool {
	return s.tracker.Contains(entity)
}

// Track implements query.Tracker. Tracked entities resolve the identity of
// later rows with the same key.
func (s *Session) Track(entity interface{}) error {
	if s.tracker.Contains(entity) {
		return nil
	}
	if _, err := s.tracker.Add(entity); err != nil {
		return err
	}
	s.remember(entity)
	return nil
}

// partitionValue converts the session partition to the partition field's
// type. ok is false when the model is not partitioned or the session has no
// partition.
func (s *Session) partitionValue(model *metadata.EntityModel) (field string, value interface{}, ok bool, err error) {
	field = model.PartitionField()
	if field == "" || s.partition == nil {
		return "", nil, false, nil
	}
	prop, _ := model.Property(field)
	v := reflect.New(prop.Type()).Elem()
	if err := expr.AssignValue(v, s.partition); err != nil {
		return "", nil, false, fmt.Errorf("%s.%s: %w", model.Name(), field, err)
	}
	return field, v.Interface(), true, nil
}

// Query returns a tracked query over the stored entities of T confined to
// the session's partition. T must be a pointer to a registered entity type.
func Query[T any](s *Session) *query.Query[T] {
	q := query.From[T](&source{session: s}).Tracked(s)
	return constrain(s, q)
}

// Filter adds pred to a session query. A condition on the partition field
// in pred is rewritten to the session's partition.
func Filter[T any](s *Session, q *query.Query[T], pred *expr.Lambda) *query.Query[T] {
	return constrain(s, q.Where(pred))
}

// constrain replaces every partition condition in the combined predicate of
// q with one equality against the session's partition
func constrain[T any](s *Session, q *query.Query[T]) *query.Query[T] {
	if q.Err() != nil {
		return q
	}
	model, err := s.registry.Model(q.RowType())
	if err != nil {
		return q.Fail(err)
	}
	field, value, ok, err := s.partitionValue(model)
	if err != nil {
		return q.Fail(err)
	}
	if !ok {
		return q
	}

	pred := q.Predicate()
	for found := pred != nil; found; {
		if pred, found, err = filter.Remove(pred, q.RowType(), field); err != nil {
			return q.Fail(err)
		}
	}
	pred, err = filter.Ensure(pred, q.RowType(), field, value)
	if err != nil {
		return q.Fail(err)
	}
	return q.ReplaceFilters(pred)
}

// Add starts tracking a new entity. An unset partition field takes the
// session's partition.
func (s *Session) Add(entity interface{}) error {
	if v := reflect.ValueOf(entity); v.Kind() != reflect.Ptr || v.IsNil() {
		return fmt.Errorf("%T: %w", entity, tracking.ErrNotTrackable)
	}
	model, err := s.registry.Model(reflect.TypeOf(entity))
	if err != nil {
		return err
	}
	if err := s.applyPartition(model, entity); err != nil {
		return err
	}

	rec, err := s.tracker.Add(entity)
	if err != nil {
		return err
	}
	if err := rec.MarkCreated(); err != nil {
		return err
	}
	s.remember(entity)

	s.logger.Debug("added entity", zap.String("type", model.Name()))
	return nil
}

func (s *Session) applyPartition(model *metadata.EntityModel, entity interface{}) error {
	field, value, ok, err := s.partitionValue(model)
	if err != nil || !ok {
		return err
	}

	prop, _ := model.Property(field)
	fv := reflect.ValueOf(entity).Elem().FieldByIndex(prop.Field.Index)
	if fv.IsZero() {
		fv.Set(reflect.ValueOf(value))
		return nil
	}
	return s.checkPartition(model, entity)
}

// inPartition reports whether entity belongs to the session's partition.
// Every entity qualifies when the model or the session is unpartitioned.
func (s *Session) inPartition(model *metadata.EntityModel, entity interface{}) (bool, error) {
	field, value, ok, err := s.partitionValue(model)
	if err != nil || !ok {
		return err == nil, err
	}
	prop, _ := model.Property(field)
	fv := reflect.Indirect(reflect.ValueOf(entity)).FieldByIndex(prop.Field.Index)
	return expr.EqualValues(fv.Interface(), value), nil
}

// checkPartition fails with ErrPartitionMismatch when entity belongs to
// another partition. An unset partition field is a mismatch too.
func (s *Session) checkPartition(model *metadata.EntityModel, entity interface{}) error {
	ok, err := s.inPartition(model, entity)
	if err != nil {
		return err
	}
	if !ok {
		field := model.PartitionField()
		prop, _ := model.Property(field)
		fv := reflect.Indirect(reflect.ValueOf(entity)).FieldByIndex(prop.Field.Index)
		return fmt.Errorf("%s.%s = %v, session partition %v: %w",
			model.Name(), field, fv.Interface(), s.partition, ErrPartitionMismatch)
	}
	return nil
}

// Attach starts tracking an entity that already exists in the store
func (s *Session) Attach(entity interface{}) error {
	if v := reflect.ValueOf(entity); v.Kind() != reflect.Ptr || v.IsNil() {
		return fmt.Errorf("%T: %w", entity, tracking.ErrNotTrackable)
	}
	model, err := s.registry.Model(reflect.TypeOf(entity))
	if err != nil {
		return err
	}
	if err := s.checkPartition(model, entity); err != nil {
		return err
	}
	return s.Track(entity)
}

// Remove marks entity for deletion. An entity added in this session and not
// yet saved is simply dropped.
func (s *Session) Remove(entity interface{}) error {
	rec, ok := s.tracker.Get(entity)
	if !ok {
		if err := s.Attach(entity); err != nil {
			return err
		}
		rec, _ = s.tracker.Get(entity)
	}

	if rec.State() == tracking.StateCreated {
		s.tracker.Detach(rec)
		s.forget(entity)
		return nil
	}
	model, err := s.registry.Model(rec.Type)
	if err != nil {
		return err
	}
	if err := s.checkPartition(model, entity); err != nil {
		return err
	}
	return rec.MarkDeleted()
}

// detectChanges promotes unchanged records whose stored fields differ from
// their snapshot. Differences in calculated, transient or navigation fields
// are ignored.
func (s *Session) detectChanges() error {
	for _, rec := range s.tracker.Entries() {
		if rec.State() != tracking.StateNone {
			continue
		}
		model, err := s.registry.Model(rec.Type)
		if err != nil {
			return err
		}
		persisted := make(map[string]bool)
		for _, field := range model.PersistedFields() {
			persisted[field] = true
		}
		for _, field := range rec.ChangedFields() {
			if persisted[field] {
				if err := rec.MarkUpdated(); err != nil {
					return err
				}
				break
			}
		}
	}
	return nil
}

// HasChanges reports whether SaveChanges would write anything
func (s *Session) HasChanges() (bool, error) {
	if err := s.detectChanges(); err != nil {
		return false, err
	}
	return s.tracker.AnyChangesOutstanding(), nil
}

// SaveChanges writes every pending insert, update and delete as one batch
// and accepts the changes once the store has applied it. It returns the
// number of written documents. Nothing is written when a pending entity
// belongs to another partition.
func (s *Session) SaveChanges(ctx context.Context) (int, error) {
	if err := s.detectChanges(); err != nil {
		return 0, err
	}

	var ops []store.Op
	var deleted []interface{}
	for _, rec := range s.tracker.Entries() {
		state := rec.State()
		if !state.Pending() {
			continue
		}

		model, key, err := s.identity(rec.Entity)
		if err != nil {
			return 0, err
		}
		if err := s.checkPartition(model, rec.Entity); err != nil {
			return 0, err
		}
		op := store.Op{Kind: model.Name(), Key: key}
		if state == tracking.StateDeleted {
			op.Delete = true
			deleted = append(deleted, rec.Entity)
		} else {
			if op.Body, err = encodeEntity(model, rec.Entity); err != nil {
				return 0, err
			}
		}
		ops = append(ops, op)
	}

	if len(ops) == 0 {
		return 0, nil
	}
	if err := s.store.Apply(ctx, ops); err != nil {
		return 0, fmt.Errorf("failed to save changes: %w", err)
	}

	for _, entity := range deleted {
		s.forget(entity)
	}
	s.tracker.AcceptAll()

	s.logger.Info("saved changes", zap.Int("documents", len(ops)), zap.Int("deleted", len(deleted)))
	return len(ops), nil
}
