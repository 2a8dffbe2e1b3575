package metadata

import (
	"fmt"
	"reflect"

	"github.com/conduit-lang/entitycore/internal/orm/expr"
)

// EntityProperty holds per-field metadata
type EntityProperty struct {
	Name  string
	Field reflect.StructField

	calculation *Calculation
	lookup      *Lookup
	drillDown   *DrillDown
}

// Type returns the field type
func (p *EntityProperty) Type() reflect.Type {
	return p.Field.Type
}

// Calculation returns the computed-value definition, or nil
func (p *EntityProperty) Calculation() *Calculation {
	return p.calculation
}

// Lookup returns the lookup definition, or nil
func (p *EntityProperty) Lookup() *Lookup {
	return p.lookup
}

// DrillDown returns the drill-down definition, or nil
func (p *EntityProperty) DrillDown() *DrillDown {
	return p.drillDown
}

// IsCalculated returns true if the property has a calculation attached
func (p *EntityProperty) IsCalculated() bool {
	return p.calculation != nil
}

// CalculationFunc produces a calculation expression from filter values
type CalculationFunc func(FilterValues) (*expr.Lambda, error)

// Calculation is a computed-value definition. It is either a fixed expression
// or a factory parameterized by filter values.
type Calculation struct {
	owner         reflect.Type
	property      string
	build         CalculationFunc
	parameterized bool
}

// Parameterized returns true if the expression depends on filter values
func (c *Calculation) Parameterized() bool {
	return c.parameterized
}

// Expression produces the calculation expression. The result is a lambda
// over the owning entity type; anything else is an invalid calculation.
func (c *Calculation) Expression(values FilterValues) (*expr.Lambda, error) {
	l, err := c.build(values)
	if err != nil {
		return nil, fmt.Errorf("calculation %s.%s: %w", typeName(c.owner), c.property, err)
	}
	if l == nil || l.Param == nil || l.Body == nil {
		return nil, fmt.Errorf("calculation %s.%s produced no expression: %w", typeName(c.owner), c.property, ErrInvalidCalculation)
	}
	if structType(l.Param.Type) != c.owner {
		return nil, fmt.Errorf("calculation %s.%s takes %v, expected %v: %w",
			typeName(c.owner), c.property, l.Param.Type, c.owner, ErrInvalidCalculation)
	}
	return l, nil
}

// LookupFilter builds the candidate predicate for a lookup. owner is nil
// unless the lookup depends on the entity.
type LookupFilter func(owner interface{}) *expr.Lambda

// Lookup describes the candidate values for a property
type Lookup struct {
	Target          reflect.Type
	Filter          LookupFilter
	ValueSelector   *expr.Lambda
	DependsOnEntity bool
}

// Candidates returns the predicate selecting candidate rows for owner
func (l *Lookup) Candidates(owner interface{}) *expr.Lambda {
	if l.Filter == nil {
		return expr.NewLambda(expr.Param("t", l.Target), expr.True())
	}
	if !l.DependsOnEntity {
		owner = nil
	}
	return l.Filter(owner)
}

// DrillDownFunc adjusts a filter dictionary for a drill-down into the
// rows behind a value of owner.
type DrillDownFunc func(owner interface{}, filters map[string]interface{})

// DrillDown describes the navigation from a value to its detail rows
type DrillDown struct {
	Target   reflect.Type
	Populate DrillDownFunc
}

// Filters returns a fresh filter dictionary for owner
func (d *DrillDown) Filters(owner interface{}) map[string]interface{} {
	filters := make(map[string]interface{})
	if d.Populate != nil {
		d.Populate(owner, filters)
	}
	return filters
}
