// Package expr provides the expression trees used by the ORM core for
// predicates, calculated properties and projections.
//
// Trees are built explicitly with the constructors in this package, inspected
// with Walk, rewritten with Transform and evaluated against entity values with
// Eval. A tree is immutable once built; rewriting always produces new nodes for
// the changed path and shares the untouched subtrees.
package expr

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// Node is the interface implemented by all expression nodes
type Node interface {
	exprNode()
	String() string
}

// BinaryOp identifies the operator of a Binary node
type BinaryOp int

const (
	OpEqual BinaryOp = iota
	OpNotEqual
	OpLessThan
	OpLessThanOrEqual
	OpGreaterThan
	OpGreaterThanOrEqual
	OpAnd
	OpOr
	OpAdd
	OpSub
	OpMul
	OpDiv
)

// String returns the operator symbol
func (o BinaryOp) String() string {
	switch o {
	case OpEqual:
		return "=="
	case OpNotEqual:
		return "!="
	case OpLessThan:
		return "<"
	case OpLessThanOrEqual:
		return "<="
	case OpGreaterThan:
		return ">"
	case OpGreaterThanOrEqual:
		return ">="
	case OpAnd:
		return "&&"
	case OpOr:
		return "||"
	case OpAdd:
		return "+"
	case OpSub:
		return "-"
	case OpMul:
		return "*"
	case OpDiv:
		return "/"
	default:
		return "?"
	}
}

// IsComparison returns true for the relational operators
func (o BinaryOp) IsComparison() bool {
	return o >= OpEqual && o <= OpGreaterThanOrEqual
}

// IsLogical returns true for && and ||
func (o BinaryOp) IsLogical() bool {
	return o == OpAnd || o == OpOr
}

// Well-known Call functions
const (
	FuncEquals   = "Equals"
	FuncContains = "Contains"
)

// AggregateKind identifies the reduction of an Aggregate node
type AggregateKind int

const (
	AggregateCount AggregateKind = iota
	AggregateSum
)

// String returns the aggregate function name
func (k AggregateKind) String() string {
	switch k {
	case AggregateCount:
		return "Count"
	case AggregateSum:
		return "Sum"
	default:
		return "Aggregate"
	}
}

// Parameter is the single input of a Lambda. Parameters are compared by
// identity, never by name.
type Parameter struct {
	Name string
	Type reflect.Type
}

// Member reads a struct field from its operand, dereferencing pointers
type Member struct {
	Operand Node
	Field   string
}

// Constant is a literal value
type Constant struct {
	Value interface{}
}

// Binary is a comparison, logical connective or arithmetic operation
type Binary struct {
	Op    BinaryOp
	Left  Node
	Right Node
}

// Unary is a logical negation
type Unary struct {
	Operand Node
}

// Conversion converts its operand to Type. A conversion to an interface type
// is an upcast and carries no runtime effect.
type Conversion struct {
	Operand Node
	Type    reflect.Type
}

// Call invokes one of the well-known functions (FuncEquals, FuncContains)
type Call struct {
	Func string
	Args []Node
}

// Aggregate reduces the rows of another entity type. Where may reference
// parameters of enclosing lambdas, which makes the aggregate correlated.
type Aggregate struct {
	Kind     AggregateKind
	Source   reflect.Type
	Where    *Lambda
	Selector *Lambda
}

// Tuple evaluates to an ordered []interface{}
type Tuple struct {
	Items []Node
}

// Binding assigns Value to the named field inside a MemberInit
type Binding struct {
	Field string
	Value Node
}

// MemberInit constructs a new value of Type (a struct or pointer to struct)
// and assigns the bound fields
type MemberInit struct {
	Type     reflect.Type
	Bindings []Binding
}

// Lambda is a single-parameter function
type Lambda struct {
	Param *Parameter
	Body  Node
}

func (*Parameter) exprNode()  {}
func (*Member) exprNode()     {}
func (*Constant) exprNode()   {}
func (*Binary) exprNode()     {}
func (*Unary) exprNode()      {}
func (*Conversion) exprNode() {}
func (*Call) exprNode()       {}
func (*Aggregate) exprNode()  {}
func (*Tuple) exprNode()      {}
func (*MemberInit) exprNode() {}
func (*Lambda) exprNode()     {}

func (p *Parameter) String() string { return p.Name }

func (m *Member) String() string { return m.Operand.String() + "." + m.Field }

func (c *Constant) String() string {
	switch v := c.Value.(type) {
	case nil:
		return "nil"
	case string:
		return strconv.Quote(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func (b *Binary) String() string {
	return "(" + b.Left.String() + " " + b.Op.String() + " " + b.Right.String() + ")"
}

func (u *Unary) String() string { return "!" + u.Operand.String() }

func (c *Conversion) String() string {
	return "Convert(" + c.Operand.String() + ", " + c.Type.String() + ")"
}

func (c *Call) String() string {
	return c.Func + "(" + joinNodes(c.Args) + ")"
}

func (a *Aggregate) String() string {
	parts := []string{typeName(a.Source)}
	if a.Where != nil {
		parts = append(parts, a.Where.String())
	}
	if a.Selector != nil {
		parts = append(parts, a.Selector.String())
	}
	return a.Kind.String() + "(" + strings.Join(parts, ", ") + ")"
}

func (t *Tuple) String() string { return "[" + joinNodes(t.Items) + "]" }

func (m *MemberInit) String() string {
	parts := make([]string, len(m.Bindings))
	for i, b := range m.Bindings {
		parts[i] = b.Field + ": " + b.Value.String()
	}
	return "new " + typeName(m.Type) + "{" + strings.Join(parts, ", ") + "}"
}

func (l *Lambda) String() string { return l.Param.Name + " => " + l.Body.String() }

func joinNodes(nodes []Node) string {
	parts := make([]string, len(nodes))
	for i, n := range nodes {
		parts[i] = n.String()
	}
	return strings.Join(parts, ", ")
}

func typeName(t reflect.Type) string {
	if t == nil {
		return "<nil>"
	}
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}
