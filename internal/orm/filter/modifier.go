// Package filter reads and rewrites equality conditions inside predicate
// expressions. It is used to read, replace or drop the value a query is
// filtered on for a single field, such as a partition column.
package filter

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/conduit-lang/entitycore/internal/orm/expr"
)

var (
	// ErrParameterType is returned when the predicate is over a different entity type
	ErrParameterType = errors.New("predicate parameter type mismatch")

	// ErrNilPredicate is returned when no predicate is given
	ErrNilPredicate = errors.New("predicate is nil")

	// ErrMissingValue is returned when SetFilterValue has no value to set
	ErrMissingValue = errors.New("no value to set")
)

// Action selects what a Modifier does with the matched condition
type Action int

const (
	GetFilterValue Action = iota
	SetFilterValue
	RemoveFilter
)

// String returns the string representation of Action
func (a Action) String() string {
	switch a {
	case GetFilterValue:
		return "get"
	case SetFilterValue:
		return "set"
	case RemoveFilter:
		return "remove"
	default:
		return "unknown"
	}
}

// Result is the outcome of a Visit
type Result struct {
	// Tree is the rewritten predicate. It is the input predicate when
	// nothing changed.
	Tree *expr.Lambda
	// Found is set when a condition on the field exists
	Found bool
	// Value is the literal the field was compared against
	Value interface{}
}

// Modifier finds the condition comparing one field of the predicate's
// parameter with a literal. Recognised shapes are e.F == lit, lit == e.F and
// Equals(e.F, lit) in either argument order, reachable from the predicate
// root through &&, || and !. Only the first such condition in pre-order is
// acted upon.
type Modifier struct {
	action     Action
	entityType reflect.Type
	field      string
	value      interface{}
	hasValue   bool
}

// Option configures a Modifier
type Option func(*Modifier)

// WithValue sets the literal used by SetFilterValue
func WithValue(v interface{}) Option {
	return func(m *Modifier) {
		m.value = v
		m.hasValue = true
	}
}

// NewModifier creates a Modifier for field of entityType. field may be a
// dotted path.
func NewModifier(action Action, entityType reflect.Type, field string, opts ...Option) *Modifier {
	m := &Modifier{
		action:     action,
		entityType: entityType,
		field:      field,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// match is a located condition
type match struct {
	node  expr.Node
	value interface{}
}

// Visit applies the action to pred
func (m *Modifier) Visit(pred *expr.Lambda) (Result, error) {
	if pred == nil || pred.Param == nil || pred.Body == nil {
		return Result{}, ErrNilPredicate
	}
	if deref(pred.Param.Type) != deref(m.entityType) {
		return Result{}, fmt.Errorf("predicate over %v, expected %v: %w", pred.Param.Type, m.entityType, ErrParameterType)
	}
	if m.action == SetFilterValue && !m.hasValue {
		return Result{}, fmt.Errorf("set %s: %w", m.field, ErrMissingValue)
	}

	found, ok := m.find(pred.Body, pred.Param)
	if !ok {
		return Result{Tree: pred}, nil
	}

	result := Result{Tree: pred, Found: true, Value: found.value}
	switch m.action {
	case SetFilterValue:
		body := expr.Transform(pred.Body, func(n expr.Node) expr.Node {
			if n == found.node {
				return m.replaceLiteral(n, pred.Param)
			}
			return n
		})
		result.Tree = expr.NewLambda(pred.Param, body)
	case RemoveFilter:
		body := remove(pred.Body, found.node)
		if body == nil {
			body = expr.True()
		}
		result.Tree = expr.NewLambda(pred.Param, body)
	}
	return result, nil
}

// find searches the logical structure of n in pre-order
func (m *Modifier) find(n expr.Node, p *expr.Parameter) (match, bool) {
	switch e := n.(type) {
	case *expr.Binary:
		if e.Op == expr.OpEqual {
			if v, ok := m.literalFor(e.Left, e.Right, p); ok {
				return match{node: e, value: v}, true
			}
			return match{}, false
		}
		if !e.Op.IsLogical() {
			return match{}, false
		}
		if found, ok := m.find(e.Left, p); ok {
			return found, true
		}
		return m.find(e.Right, p)
	case *expr.Call:
		if e.Func == expr.FuncEquals && len(e.Args) == 2 {
			if v, ok := m.literalFor(e.Args[0], e.Args[1], p); ok {
				return match{node: e, value: v}, true
			}
		}
	case *expr.Unary:
		return m.find(e.Operand, p)
	}
	return match{}, false
}

// literalFor returns the literal if one side is the target field and the
// other a constant
func (m *Modifier) literalFor(a, b expr.Node, p *expr.Parameter) (interface{}, bool) {
	if m.isTargetField(a, p) {
		if c, ok := literal(b); ok {
			return c.Value, true
		}
	}
	if m.isTargetField(b, p) {
		if c, ok := literal(a); ok {
			return c.Value, true
		}
	}
	return nil, false
}

func (m *Modifier) isTargetField(n expr.Node, p *expr.Parameter) bool {
	n = unwrap(n)
	path := ""
	for {
		member, ok := n.(*expr.Member)
		if !ok {
			break
		}
		if path == "" {
			path = member.Field
		} else {
			path = member.Field + "." + path
		}
		n = unwrap(member.Operand)
	}
	param, ok := n.(*expr.Parameter)
	return ok && path == m.field && param == p
}

func (m *Modifier) replaceLiteral(n expr.Node, p *expr.Parameter) expr.Node {
	switch e := n.(type) {
	case *expr.Binary:
		if m.isTargetField(e.Left, p) {
			return &expr.Binary{Op: e.Op, Left: e.Left, Right: expr.Const(m.value)}
		}
		return &expr.Binary{Op: e.Op, Left: expr.Const(m.value), Right: e.Right}
	case *expr.Call:
		args := append([]expr.Node(nil), e.Args...)
		if m.isTargetField(args[0], p) {
			args[1] = expr.Const(m.value)
		} else {
			args[0] = expr.Const(m.value)
		}
		return &expr.Call{Func: e.Func, Args: args}
	}
	return n
}

// remove excises target from n. A nil result means n itself is gone.
func remove(n, target expr.Node) expr.Node {
	if n == target {
		return nil
	}
	switch e := n.(type) {
	case *expr.Binary:
		if !e.Op.IsLogical() {
			return n
		}
		left := remove(e.Left, target)
		if left == nil {
			return e.Right
		}
		right := remove(e.Right, target)
		if right == nil {
			return e.Left
		}
		if left == e.Left && right == e.Right {
			return n
		}
		return &expr.Binary{Op: e.Op, Left: left, Right: right}
	case *expr.Unary:
		operand := remove(e.Operand, target)
		if operand == nil {
			return nil
		}
		if operand == e.Operand {
			return n
		}
		return expr.Not(operand)
	}
	return n
}

func literal(n expr.Node) (*expr.Constant, bool) {
	c, ok := unwrap(n).(*expr.Constant)
	return c, ok
}

// unwrap strips conversions
func unwrap(n expr.Node) expr.Node {
	for {
		c, ok := n.(*expr.Conversion)
		if !ok {
			return n
		}
		n = c.Operand
	}
}

func deref(t reflect.Type) reflect.Type {
	for t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t
}
