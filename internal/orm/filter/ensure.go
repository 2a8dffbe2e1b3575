package filter

import (
	"reflect"

	"github.com/conduit-lang/entitycore/internal/orm/expr"
)

// Get returns the literal pred compares field against, if any
func Get(pred *expr.Lambda, entityType reflect.Type, field string) (interface{}, bool, error) {
	res, err := NewModifier(GetFilterValue, entityType, field).Visit(pred)
	if err != nil {
		return nil, false, err
	}
	return res.Value, res.Found, nil
}

// Remove drops the condition on field from pred
func Remove(pred *expr.Lambda, entityType reflect.Type, field string) (*expr.Lambda, bool, error) {
	res, err := NewModifier(RemoveFilter, entityType, field).Visit(pred)
	if err != nil {
		return nil, false, err
	}
	return res.Tree, res.Found, nil
}

// Ensure makes pred compare field against value. An existing condition on
// field gets its literal replaced; otherwise a new equality is combined with
// the predicate using &&. A nil pred yields the bare equality.
func Ensure(pred *expr.Lambda, entityType reflect.Type, field string, value interface{}) (*expr.Lambda, error) {
	if pred == nil {
		p := expr.Param("e", entityType)
		return expr.NewLambda(p, expr.Eq(expr.Field(p, field), expr.Const(value))), nil
	}

	res, err := NewModifier(SetFilterValue, entityType, field, WithValue(value)).Visit(pred)
	if err != nil {
		return nil, err
	}
	if res.Found {
		return res.Tree, nil
	}

	cond := expr.Eq(expr.Field(pred.Param, field), expr.Const(value))
	if expr.IsTrue(pred.Body) {
		return expr.NewLambda(pred.Param, cond), nil
	}
	return expr.NewLambda(pred.Param, expr.And(pred.Body, cond)), nil
}
