package query

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"github.com/conduit-lang/entitycore/internal/orm/expr"
	"github.com/conduit-lang/entitycore/internal/orm/metadata"
)

var (
	// ErrComputedNotSettable is returned when computed values cannot be
	// written back onto the entities a query yields
	ErrComputedNotSettable = errors.New("computed property is not settable")

	// ErrTrackedFieldRestriction is returned when persisted fields are
	// restricted in tracked mode
	ErrTrackedFieldRestriction = errors.New("persisted fields cannot be restricted in tracked mode")
)

type calcOptions struct {
	values    metadata.FilterValues
	persisted []string
}

// CalcOption configures AutoCalculate
type CalcOption func(*calcOptions)

// WithFilterValues passes values to parameterized calculations
func WithFilterValues(values metadata.FilterValues) CalcOption {
	return func(o *calcOptions) {
		o.values = values
	}
}

// WithPersistedFields restricts the persisted fields copied in untracked mode
func WithPersistedFields(fields ...string) CalcOption {
	return func(o *calcOptions) {
		o.persisted = fields
	}
}

// computed is a resolved calculated property
type computed struct {
	prop *metadata.EntityProperty
	body *expr.Lambda
}

// AutoCalculate makes q fill in the named calculated properties of T.
//
// Names that do not resolve to a calculated property are skipped. If nothing
// resolves the query is returned unchanged.
//
// Untracked, the rows are projected into fresh values of T holding the
// persisted fields and the computed values. Tracked, the computed values are
// written onto the entities themselves, which are registered with the
// query's tracker when q is tracked.
func AutoCalculate[T any](q *Query[T], registry *metadata.Registry, names []string, tracked bool, opts ...CalcOption) (*Query[T], error) {
	var o calcOptions
	for _, opt := range opts {
		opt(&o)
	}

	entityType := reflect.TypeFor[T]()
	model, err := registry.Model(entityType)
	if err != nil {
		return nil, err
	}

	props := resolveCalculated(model, names)
	if len(props) == 0 {
		return q, nil
	}

	if tracked && o.persisted != nil {
		return nil, ErrTrackedFieldRestriction
	}
	if tracked && (entityType.Kind() != reflect.Ptr || entityType.Elem().Kind() != reflect.Struct) {
		return nil, fmt.Errorf("%s.%s on %v values: %w", model.Name(), props[0].Name, entityType, ErrComputedNotSettable)
	}

	calcs := make([]computed, len(props))
	for i, prop := range props {
		l, err := prop.Calculation().Expression(o.values)
		if err != nil {
			return nil, err
		}
		calcs[i] = computed{prop: prop, body: l}
	}

	row := expr.Param("row", entityType)
	if tracked {
		return calculateTracked(q, row, calcs), nil
	}

	fields := o.persisted
	if fields == nil {
		fields = model.PersistedFields()
	}
	return calculateUntracked(q, model, row, calcs, fields)
}

// resolveCalculated returns the calculated properties named, deduplicated,
// in request order
func resolveCalculated(model *metadata.EntityModel, names []string) []*metadata.EntityProperty {
	seen := make(map[*metadata.EntityProperty]bool)
	var props []*metadata.EntityProperty
	for _, name := range names {
		prop, ok := model.Property(name)
		if !ok || !prop.IsCalculated() || seen[prop] {
			continue
		}
		seen[prop] = true
		props = append(props, prop)
	}
	return props
}

func splice(c computed, row *expr.Parameter) expr.Node {
	return expr.ReplaceParameter(c.body.Body, c.body.Param, row)
}

func calculateUntracked[T any](q *Query[T], model *metadata.EntityModel, row *expr.Parameter, calcs []computed, fields []string) (*Query[T], error) {
	computedNames := make(map[string]bool, len(calcs))
	for _, c := range calcs {
		computedNames[c.prop.Name] = true
	}

	bindings := make([]expr.Binding, 0, len(fields)+len(calcs))
	for _, f := range fields {
		if _, ok := model.Property(f); !ok {
			return nil, fmt.Errorf("%s persisted field %s: %w", model.Name(), f, metadata.ErrUnknownField)
		}
		if computedNames[f] {
			continue
		}
		bindings = append(bindings, expr.Bind(f, expr.Field(row, f)))
	}
	for _, c := range calcs {
		bindings = append(bindings, expr.Bind(c.prop.Name, splice(c, row)))
	}

	projection := expr.NewLambda(row, expr.Init(row.Type, bindings...))
	return q.Select(expr.SimplifyLambda(projection)).Untracked(), nil
}

func calculateTracked[T any](q *Query[T], row *expr.Parameter, calcs []computed) *Query[T] {
	values := make([]expr.Node, len(calcs))
	for i, c := range calcs {
		values[i] = splice(c, row)
	}
	carrier := expr.NewLambda(row, expr.Init(reflect.TypeFor[*Carrier[T]](),
		expr.Bind("Entity", row),
		expr.Bind("Values", expr.NewTuple(values...)),
	))

	projected := Project[T, *Carrier[T]](q, carrier)
	tracker := q.tracker

	return &Query[T]{
		source:   projected.source,
		rowType:  projected.rowType,
		where:    projected.where,
		selector: projected.selector,
		tracker:  tracker,
		err:      projected.err,
		mapper: func(ctx context.Context, v interface{}) (T, error) {
			var zero T
			c, err := assertResult[*Carrier[T]](ctx, v)
			if err != nil {
				return zero, err
			}

			target := reflect.ValueOf(c.Entity).Elem()
			for i, calc := range calcs {
				field := target.FieldByIndex(calc.prop.Field.Index)
				if err := expr.AssignValue(field, c.Values[i]); err != nil {
					return zero, fmt.Errorf("%s.%s: %w", target.Type().Name(), calc.prop.Name, err)
				}
			}

			if tracker != nil && !tracker.Contains(c.Entity) {
				if err := tracker.Track(c.Entity); err != nil {
					return zero, err
				}
			}
			return c.Entity, nil
		},
	}
}
