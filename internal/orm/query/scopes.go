package query

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/conduit-lang/entitycore/internal/orm/expr"
	"github.com/conduit-lang/entitycore/internal/orm/filter"
)

var (
	// ErrUnknownScope is returned when a scope name is not registered
	ErrUnknownScope = errors.New("unknown scope")

	// ErrDuplicateScope is returned when a scope name is registered twice
	ErrDuplicateScope = errors.New("scope already registered")

	// ErrScopeParameter is returned when a scope parameter has no condition
	// in the template
	ErrScopeParameter = errors.New("scope parameter not found in template")

	// ErrScopeArguments is returned when Bind gets the wrong number of arguments
	ErrScopeArguments = errors.New("wrong number of scope arguments")
)

// Scope is a named filter template. For each parameter the template holds an
// equality between that field and a default literal; Bind swaps the
// literals for arguments.
type Scope struct {
	Name     string
	Params   []string
	template *expr.Lambda
}

// NewScope creates a scope. Every param must have a literal condition in
// template.
func NewScope(name string, template *expr.Lambda, params ...string) (*Scope, error) {
	if template == nil || template.Param == nil || template.Body == nil {
		return nil, fmt.Errorf("scope %s: %w", name, filter.ErrNilPredicate)
	}
	for _, p := range params {
		_, found, err := filter.Get(template, structType(template.Param.Type), p)
		if err != nil {
			return nil, fmt.Errorf("scope %s: %w", name, err)
		}
		if !found {
			return nil, fmt.Errorf("scope %s: %s: %w", name, p, ErrScopeParameter)
		}
	}
	return &Scope{Name: name, Params: params, template: template}, nil
}

// Template returns the unbound predicate
func (s *Scope) Template() *expr.Lambda {
	return s.template
}

// Bind returns the template with the parameter literals replaced by args,
// in parameter order
func (s *Scope) Bind(args ...interface{}) (*expr.Lambda, error) {
	if len(args) != len(s.Params) {
		return nil, fmt.Errorf("scope %s takes %d, got %d: %w", s.Name, len(s.Params), len(args), ErrScopeArguments)
	}

	pred := s.template
	t := structType(pred.Param.Type)
	for i, p := range s.Params {
		res, err := filter.NewModifier(filter.SetFilterValue, t, p, filter.WithValue(args[i])).Visit(pred)
		if err != nil {
			return nil, fmt.Errorf("scope %s: %w", s.Name, err)
		}
		pred = res.Tree
	}
	return pred, nil
}

// ScopeRegistry holds named scopes
type ScopeRegistry struct {
	mu     sync.RWMutex
	scopes map[string]*Scope
}

// NewScopeRegistry creates an empty scope registry
func NewScopeRegistry() *ScopeRegistry {
	return &ScopeRegistry{scopes: make(map[string]*Scope)}
}

// Register adds a scope
func (r *ScopeRegistry) Register(scope *Scope) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.scopes[scope.Name]; exists {
		return fmt.Errorf("%s: %w", scope.Name, ErrDuplicateScope)
	}
	r.scopes[scope.Name] = scope
	return nil
}

// Get retrieves a scope by name
func (r *ScopeRegistry) Get(name string) (*Scope, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	scope, ok := r.scopes[name]
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, ErrUnknownScope)
	}
	return scope, nil
}

// List returns the registered scope names in sorted order
func (r *ScopeRegistry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.scopes))
	for name := range r.scopes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// WithScope binds the named scope and adds it to q as a filter
func WithScope[T any](q *Query[T], registry *ScopeRegistry, name string, args ...interface{}) *Query[T] {
	scope, err := registry.Get(name)
	if err != nil {
		return q.Fail(err)
	}
	pred, err := scope.Bind(args...)
	if err != nil {
		return q.Fail(err)
	}
	return q.Where(pred)
}
