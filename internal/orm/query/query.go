// Package query provides lazily evaluated, expression-based queries over
// entity rows, with optional identity tracking and computed properties.
package query

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"reflect"

	"github.com/conduit-lang/entitycore/internal/orm/expr"
)

var (
	// ErrNoRows is returned by First when the query yields nothing
	ErrNoRows = errors.New("query returned no rows")

	// ErrRowType is returned when a predicate or selector does not take the row type
	ErrRowType = errors.New("expression parameter does not match row type")

	// ErrWhereAfterSelect is returned when filtering a projected query
	ErrWhereAfterSelect = errors.New("where must precede select")

	// ErrResultType is returned when a row or projection is not of the result type
	ErrResultType = errors.New("unexpected result type")
)

// Tracker registers entities produced by tracked queries
type Tracker interface {
	Contains(entity interface{}) bool
	Track(entity interface{}) error
}

// Query reads rows from a Source, filters them with predicates over the row
// type and optionally projects each row to T. Queries are immutable; every
// builder method returns a new Query. Errors from building are reported when
// the query runs.
type Query[T any] struct {
	source   Source
	rowType  reflect.Type
	where    []*expr.Lambda
	selector *expr.Lambda
	tracker  Tracker
	mapper   func(ctx context.Context, v interface{}) (T, error)
	err      error
}

// From creates a query over the rows of T. T is normally a pointer to an
// entity struct.
func From[T any](source Source) *Query[T] {
	return &Query[T]{
		source:  source,
		rowType: structType(reflect.TypeFor[T]()),
		mapper:  assertResult[T],
	}
}

func assertResult[T any](_ context.Context, v interface{}) (T, error) {
	out, ok := v.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("%T is not %v: %w", v, reflect.TypeFor[T](), ErrResultType)
	}
	return out, nil
}

// Clone creates a copy of the query
func (q *Query[T]) Clone() *Query[T] {
	c := *q
	c.where = append([]*expr.Lambda(nil), q.where...)
	return &c
}

// Fail records err on a copy of the query. The first recorded error is
// reported when the query runs.
func (q *Query[T]) Fail(err error) *Query[T] {
	c := q.Clone()
	if c.err == nil {
		c.err = err
	}
	return c
}

// RowType returns the entity type rows are read as
func (q *Query[T]) RowType() reflect.Type {
	return q.rowType
}

// Source returns the row source
func (q *Query[T]) Source() Source {
	return q.source
}

// Err returns the first error recorded while building the query
func (q *Query[T]) Err() error {
	return q.err
}

func (q *Query[T]) checkParam(l *expr.Lambda) error {
	if l == nil || l.Param == nil || l.Body == nil {
		return fmt.Errorf("nil expression: %w", ErrRowType)
	}
	if structType(l.Param.Type) != q.rowType {
		return fmt.Errorf("expression over %v, rows are %v: %w", l.Param.Type, q.rowType, ErrRowType)
	}
	return nil
}

// Where adds a predicate over the row type. Predicates combine with &&.
func (q *Query[T]) Where(pred *expr.Lambda) *Query[T] {
	if q.selector != nil {
		return q.Fail(ErrWhereAfterSelect)
	}
	if err := q.checkParam(pred); err != nil {
		return q.Fail(err)
	}
	c := q.Clone()
	c.where = append(c.where, pred)
	return c
}

// Filters returns the predicates in the order they were added
func (q *Query[T]) Filters() []*expr.Lambda {
	return append([]*expr.Lambda(nil), q.where...)
}

// Predicate returns the filters combined into one lambda, or nil when the
// query is unfiltered
func (q *Query[T]) Predicate() *expr.Lambda {
	switch len(q.where) {
	case 0:
		return nil
	case 1:
		return q.where[0]
	}
	p := q.where[0].Param
	bodies := make([]expr.Node, len(q.where))
	for i, l := range q.where {
		bodies[i] = expr.ReplaceParameter(l.Body, l.Param, p)
	}
	return expr.NewLambda(p, expr.And(bodies...))
}

// ReplaceFilters swaps the predicates of the query
func (q *Query[T]) ReplaceFilters(preds ...*expr.Lambda) *Query[T] {
	for _, pred := range preds {
		if err := q.checkParam(pred); err != nil {
			return q.Fail(err)
		}
	}
	c := q.Clone()
	c.where = append([]*expr.Lambda(nil), preds...)
	return c
}

// Tracked registers every produced row with tracker unless it is already
// tracked. Projected queries are never tracked.
func (q *Query[T]) Tracked(tracker Tracker) *Query[T] {
	c := q.Clone()
	c.tracker = tracker
	return c
}

// Untracked removes tracking
func (q *Query[T]) Untracked() *Query[T] {
	return q.Tracked(nil)
}

// IsTracked returns true if the query registers its rows with a tracker
func (q *Query[T]) IsTracked() bool {
	return q.tracker != nil
}

// Tracker returns the tracker, or nil
func (q *Query[T]) Tracker() Tracker {
	return q.tracker
}

// Selector returns the projection from the row type to T, or nil
func (q *Query[T]) Selector() *expr.Lambda {
	return q.selector
}

// Select projects each result through sel, which maps T to T
func (q *Query[T]) Select(sel *expr.Lambda) *Query[T] {
	selector, err := q.compose(sel)
	if err != nil {
		return q.Fail(err)
	}
	c := q.Clone()
	c.selector = selector
	return c
}

// compose returns the row-level selector applying sel after the current one
func (q *Query[T]) compose(sel *expr.Lambda) (*expr.Lambda, error) {
	if sel == nil || sel.Param == nil || sel.Body == nil {
		return nil, fmt.Errorf("nil selector: %w", ErrRowType)
	}
	if q.selector == nil {
		if err := q.checkParam(sel); err != nil {
			return nil, err
		}
		return sel, nil
	}
	body := expr.ReplaceParameter(sel.Body, sel.Param, q.selector.Body)
	return expr.NewLambda(q.selector.Param, body), nil
}

// Project maps each result of q through sel into R
func Project[T, R any](q *Query[T], sel *expr.Lambda) *Query[R] {
	out := &Query[R]{
		source:  q.source,
		rowType: q.rowType,
		where:   append([]*expr.Lambda(nil), q.where...),
		mapper:  assertResult[R],
		err:     q.err,
	}
	if out.err != nil {
		return out
	}
	selector, err := q.compose(sel)
	if err != nil {
		out.err = err
		return out
	}
	out.selector = selector
	return out
}

// Iter runs the query lazily. The sequence is single-pass; each call to Iter
// reads the source again.
func (q *Query[T]) Iter(ctx context.Context) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		var zero T
		if q.err != nil {
			yield(zero, q.err)
			return
		}

		env := expr.NewEnv(newResolver(ctx, q.source))
		pred := q.Predicate()

		for row, err := range q.source.Rows(ctx, q.rowType) {
			if err == nil {
				err = ctx.Err()
			}
			if err != nil {
				yield(zero, err)
				return
			}

			if pred != nil {
				ok, err := expr.Test(pred, row, env)
				if err != nil {
					yield(zero, fmt.Errorf("evaluating %s: %w", pred, err))
					return
				}
				if !ok {
					continue
				}
			}

			v := row
			if q.selector != nil {
				v, err = expr.Invoke(q.selector, row, env)
				if err != nil {
					yield(zero, fmt.Errorf("evaluating %s: %w", q.selector, err))
					return
				}
			}

			out, err := q.mapper(ctx, v)
			if err == nil && q.tracker != nil && q.selector == nil {
				err = q.tracker.Track(out)
			}
			if err != nil {
				yield(zero, err)
				return
			}
			if !yield(out, nil) {
				return
			}
		}
	}
}

// ToSlice runs the query and collects the results
func (q *Query[T]) ToSlice(ctx context.Context) ([]T, error) {
	var results []T
	for v, err := range q.Iter(ctx) {
		if err != nil {
			return nil, err
		}
		results = append(results, v)
	}
	return results, nil
}

// First returns the first result
func (q *Query[T]) First(ctx context.Context) (T, error) {
	for v, err := range q.Iter(ctx) {
		return v, err
	}
	var zero T
	return zero, ErrNoRows
}

// Count returns the number of results
func (q *Query[T]) Count(ctx context.Context) (int, error) {
	n := 0
	for _, err := range q.Iter(ctx) {
		if err != nil {
			return 0, err
		}
		n++
	}
	return n, nil
}
