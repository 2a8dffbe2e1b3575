package expr

import "reflect"

// Simplify removes interface upcasts, which backends cannot translate, and
// folds trivial boolean structure (true && x, x || false, !!x).
func Simplify(n Node) Node {
	return Transform(n, simplifyNode)
}

// SimplifyLambda is Simplify for lambdas
func SimplifyLambda(l *Lambda) *Lambda {
	if l == nil {
		return nil
	}
	return Simplify(l).(*Lambda)
}

func simplifyNode(n Node) Node {
	switch e := n.(type) {
	case *Conversion:
		if e.Type.Kind() == reflect.Interface {
			return e.Operand
		}
	case *Unary:
		if inner, ok := e.Operand.(*Unary); ok {
			return inner.Operand
		}
	case *Binary:
		switch e.Op {
		case OpAnd:
			if isBool(e.Left, true) {
				return e.Right
			}
			if isBool(e.Right, true) {
				return e.Left
			}
		case OpOr:
			if isBool(e.Left, false) {
				return e.Right
			}
			if isBool(e.Right, false) {
				return e.Left
			}
		}
	}
	return n
}

func isBool(n Node, want bool) bool {
	c, ok := n.(*Constant)
	if !ok {
		return false
	}
	b, ok := c.Value.(bool)
	return ok && b == want
}

// IsTrue reports whether n is the literal true
func IsTrue(n Node) bool { return isBool(n, true) }
