package expr

import (
	"reflect"
	"strings"
)

// Param creates a lambda parameter of the given type
func Param(name string, t reflect.Type) *Parameter {
	return &Parameter{Name: name, Type: t}
}

// ParamOf creates a lambda parameter of type T
func ParamOf[T any](name string) *Parameter {
	return Param(name, reflect.TypeFor[T]())
}

// Field creates a member access. Dotted paths ("Customer.Name") produce a
// chain of Member nodes.
func Field(operand Node, path string) Node {
	node := operand
	for _, part := range strings.Split(path, ".") {
		node = &Member{Operand: node, Field: part}
	}
	return node
}

// Const creates a literal
func Const(v interface{}) *Constant {
	return &Constant{Value: v}
}

// True returns the literal true
func True() *Constant { return Const(true) }

// False returns the literal false
func False() *Constant { return Const(false) }

func Eq(l, r Node) *Binary  { return &Binary{Op: OpEqual, Left: l, Right: r} }
func Ne(l, r Node) *Binary  { return &Binary{Op: OpNotEqual, Left: l, Right: r} }
func Lt(l, r Node) *Binary  { return &Binary{Op: OpLessThan, Left: l, Right: r} }
func Le(l, r Node) *Binary  { return &Binary{Op: OpLessThanOrEqual, Left: l, Right: r} }
func Gt(l, r Node) *Binary  { return &Binary{Op: OpGreaterThan, Left: l, Right: r} }
func Ge(l, r Node) *Binary  { return &Binary{Op: OpGreaterThanOrEqual, Left: l, Right: r} }
func Add(l, r Node) *Binary { return &Binary{Op: OpAdd, Left: l, Right: r} }
func Sub(l, r Node) *Binary { return &Binary{Op: OpSub, Left: l, Right: r} }
func Mul(l, r Node) *Binary { return &Binary{Op: OpMul, Left: l, Right: r} }
func Div(l, r Node) *Binary { return &Binary{Op: OpDiv, Left: l, Right: r} }

// Or combines two conditions with ||
func Or(l, r Node) *Binary { return &Binary{Op: OpOr, Left: l, Right: r} }

// And left-folds the conditions with &&. No conditions yields true.
func And(nodes ...Node) Node {
	if len(nodes) == 0 {
		return True()
	}
	result := nodes[0]
	for _, n := range nodes[1:] {
		result = &Binary{Op: OpAnd, Left: result, Right: n}
	}
	return result
}

// Not negates a condition
func Not(n Node) *Unary { return &Unary{Operand: n} }

// Convert converts n to t
func Convert(n Node, t reflect.Type) *Conversion {
	return &Conversion{Operand: n, Type: t}
}

// Equals is the call form of equality
func Equals(a, b Node) *Call {
	return &Call{Func: FuncEquals, Args: []Node{a, b}}
}

// Contains tests whether the string s contains sub
func Contains(s, sub Node) *Call {
	return &Call{Func: FuncContains, Args: []Node{s, sub}}
}

// Count counts the rows of source that satisfy where (nil counts all rows)
func Count(source reflect.Type, where *Lambda) *Aggregate {
	return &Aggregate{Kind: AggregateCount, Source: source, Where: where}
}

// Sum adds up selector over the rows of source that satisfy where
func Sum(source reflect.Type, where, selector *Lambda) *Aggregate {
	return &Aggregate{Kind: AggregateSum, Source: source, Where: where, Selector: selector}
}

// NewTuple creates a Tuple
func NewTuple(items ...Node) *Tuple {
	return &Tuple{Items: items}
}

// Bind creates a MemberInit binding
func Bind(field string, value Node) Binding {
	return Binding{Field: field, Value: value}
}

// Init creates a MemberInit
func Init(t reflect.Type, bindings ...Binding) *MemberInit {
	return &MemberInit{Type: t, Bindings: bindings}
}

// NewLambda creates a Lambda
func NewLambda(p *Parameter, body Node) *Lambda {
	return &Lambda{Param: p, Body: body}
}

// LambdaOf builds a lambda over T, handing the parameter to build.
//
//	expr.LambdaOf[*Order]("e", func(e expr.Node) expr.Node {
//		return expr.Eq(expr.Field(e, "Partition"), expr.Const(1))
//	})
func LambdaOf[T any](name string, build func(p Node) Node) *Lambda {
	p := ParamOf[T](name)
	return NewLambda(p, build(p))
}
