package query

import (
	"context"
	"iter"
	"reflect"
	"sync"
)

// Source produces the stored rows of an entity type. Rows are pointers to
// structs of type t. Sequences are single-pass.
type Source interface {
	Rows(ctx context.Context, t reflect.Type) iter.Seq2[interface{}, error]
}

// SliceSource is an in-memory Source holding rows of any number of types
type SliceSource struct {
	mu   sync.RWMutex
	rows map[reflect.Type][]interface{}
}

// NewSliceSource creates a source holding rows
func NewSliceSource(rows ...interface{}) *SliceSource {
	s := &SliceSource{rows: make(map[reflect.Type][]interface{})}
	s.Add(rows...)
	return s
}

// Add appends rows, grouped by their struct type
func (s *SliceSource) Add(rows ...interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, row := range rows {
		t := structType(reflect.TypeOf(row))
		s.rows[t] = append(s.rows[t], row)
	}
}

// Rows implements Source. The rows present when iteration starts are used.
func (s *SliceSource) Rows(ctx context.Context, t reflect.Type) iter.Seq2[interface{}, error] {
	return func(yield func(interface{}, error) bool) {
		s.mu.RLock()
		rows := append([]interface{}(nil), s.rows[structType(t)]...)
		s.mu.RUnlock()

		for _, row := range rows {
			if !yield(row, nil) {
				return
			}
		}
	}
}

// resolver adapts a Source to expr.Resolver for aggregate evaluation
type resolver struct {
	ctx    context.Context
	source Source
	cache  map[reflect.Type][]interface{}
}

func newResolver(ctx context.Context, source Source) *resolver {
	return &resolver{ctx: ctx, source: source, cache: make(map[reflect.Type][]interface{})}
}

// Resolve implements expr.Resolver. Rows of a type are read once per query
// execution.
func (r *resolver) Resolve(t reflect.Type) ([]interface{}, error) {
	st := structType(t)
	if rows, ok := r.cache[st]; ok {
		return rows, nil
	}

	var rows []interface{}
	for row, err := range r.source.Rows(r.ctx, st) {
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	r.cache[st] = rows
	return rows, nil
}

func structType(t reflect.Type) reflect.Type {
	for t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t
}
