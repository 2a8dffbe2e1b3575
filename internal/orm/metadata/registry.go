// Package metadata provides the per-type entity model registry: primary
// keys, indexes, relationships and computed-property definitions.
package metadata

import (
	"fmt"
	"reflect"
	"sync"

	"go.uber.org/zap"
)

// Configurer is implemented by entity types that configure their own model.
// ConfigureModel is called on a zero value and must not call back into the
// registry.
type Configurer interface {
	ConfigureModel(b *Builder)
}

var configurerType = reflect.TypeFor[Configurer]()

// Option configures a Registry
type Option func(*Registry)

// WithLogger sets the logger used for build diagnostics
func WithLogger(logger *zap.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// Registry maps entity types to their models. Models are built at most once
// per type; concurrent first requests for the same type observe the same
// instance. A failed build is not cached.
type Registry struct {
	models map[reflect.Type]*EntityModel
	order  []reflect.Type
	mu     sync.RWMutex

	// buildMu serializes builds so a type is never built twice
	buildMu sync.Mutex
	logger  *zap.Logger
}

// NewRegistry creates an empty registry
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		models: make(map[reflect.Type]*EntityModel),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// entityType normalizes t to the underlying struct type
func entityType(t reflect.Type) (reflect.Type, error) {
	st := structType(t)
	if st == nil || st.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%v: %w", t, ErrNotEntityType)
	}
	return st, nil
}

// Lookup returns the model for t if it has already been built
func (r *Registry) Lookup(t reflect.Type) (*EntityModel, bool) {
	st, err := entityType(t)
	if err != nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.models[st]
	return m, ok
}

// Model returns the model for t, building it on first use. Types that
// implement Configurer are configured by it; other types get the model
// derived from their struct tags, which may be empty.
func (r *Registry) Model(t reflect.Type) (*EntityModel, error) {
	st, err := entityType(t)
	if err != nil {
		return nil, err
	}
	if m, ok := r.Lookup(st); ok {
		return m, nil
	}

	r.buildMu.Lock()
	defer r.buildMu.Unlock()

	// Check again, another caller may have finished the build
	if m, ok := r.Lookup(st); ok {
		return m, nil
	}
	return r.build(st, nil)
}

// ModelOf returns the model for T
func ModelOf[T any](r *Registry) (*EntityModel, error) {
	return r.Model(reflect.TypeFor[T]())
}

// Register builds the model for t with configure. configure runs after the
// struct tag conventions; when nil, a Configurer implementation is used if
// present. Registering a type that already has a model fails.
func (r *Registry) Register(t reflect.Type, configure func(*Builder)) (*EntityModel, error) {
	st, err := entityType(t)
	if err != nil {
		return nil, err
	}

	r.buildMu.Lock()
	defer r.buildMu.Unlock()

	if _, ok := r.Lookup(st); ok {
		return nil, fmt.Errorf("%s: %w", st.Name(), ErrDuplicateRegistration)
	}
	return r.build(st, configure)
}

// RegisterIfAbsent is like Register but returns the existing model instead
// of failing when t is already registered.
func (r *Registry) RegisterIfAbsent(t reflect.Type, configure func(*Builder)) (*EntityModel, error) {
	st, err := entityType(t)
	if err != nil {
		return nil, err
	}

	r.buildMu.Lock()
	defer r.buildMu.Unlock()

	if m, ok := r.Lookup(st); ok {
		return m, nil
	}
	return r.build(st, configure)
}

// build must be called with buildMu held
func (r *Registry) build(st reflect.Type, configure func(*Builder)) (*EntityModel, error) {
	b := newBuilder(st)
	b.discover()

	switch {
	case configure != nil:
		configure(b)
	case reflect.PointerTo(st).Implements(configurerType):
		reflect.New(st).Interface().(Configurer).ConfigureModel(b)
	}

	if err := b.Err(); err != nil {
		r.logger.Warn("entity model build failed",
			zap.String("entity", st.Name()),
			zap.Error(err),
		)
		return nil, fmt.Errorf("failed to build model for %s: %w", st.Name(), err)
	}

	model := b.model
	for _, rel := range model.relationships {
		rel.registry = r
	}

	r.mu.Lock()
	r.models[st] = model
	r.order = append(r.order, st)
	r.mu.Unlock()

	r.logger.Debug("entity model built",
		zap.String("entity", st.Name()),
		zap.Strings("primary_key", model.primaryKey),
		zap.Int("relationships", len(model.relationships)),
		zap.Int("calculated", len(model.CalculatedProperties())),
	)
	return model, nil
}

// Models returns the built models in build order
func (r *Registry) Models() []*EntityModel {
	r.mu.RLock()
	defer r.mu.RUnlock()

	models := make([]*EntityModel, 0, len(r.order))
	for _, t := range r.order {
		models = append(models, r.models[t])
	}
	return models
}

// Count returns the number of built models
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.models)
}
