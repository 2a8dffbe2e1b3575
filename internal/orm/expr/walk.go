package expr

// Walk traverses the tree in pre-order. Children of a node are visited only
// when fn returns true for it.
func Walk(n Node, fn func(Node) bool) {
	if n == nil || !fn(n) {
		return
	}
	for _, child := range children(n) {
		Walk(child, fn)
	}
}

func children(n Node) []Node {
	switch e := n.(type) {
	case *Member:
		return []Node{e.Operand}
	case *Binary:
		return []Node{e.Left, e.Right}
	case *Unary:
		return []Node{e.Operand}
	case *Conversion:
		return []Node{e.Operand}
	case *Call:
		return e.Args
	case *Aggregate:
		var out []Node
		if e.Where != nil {
			out = append(out, e.Where)
		}
		if e.Selector != nil {
			out = append(out, e.Selector)
		}
		return out
	case *Tuple:
		return e.Items
	case *MemberInit:
		out := make([]Node, len(e.Bindings))
		for i, b := range e.Bindings {
			out[i] = b.Value
		}
		return out
	case *Lambda:
		return []Node{e.Body}
	default:
		return nil
	}
}

// Transform rewrites the tree bottom-up. fn receives every node after its
// children have been transformed and returns the replacement (or the node
// itself). Nodes whose children are unchanged are reused as-is.
func Transform(n Node, fn func(Node) Node) Node {
	if n == nil {
		return nil
	}

	switch e := n.(type) {
	case *Member:
		if op := Transform(e.Operand, fn); op != e.Operand {
			n = &Member{Operand: op, Field: e.Field}
		}
	case *Binary:
		l, r := Transform(e.Left, fn), Transform(e.Right, fn)
		if l != e.Left || r != e.Right {
			n = &Binary{Op: e.Op, Left: l, Right: r}
		}
	case *Unary:
		if op := Transform(e.Operand, fn); op != e.Operand {
			n = &Unary{Operand: op}
		}
	case *Conversion:
		if op := Transform(e.Operand, fn); op != e.Operand {
			n = &Conversion{Operand: op, Type: e.Type}
		}
	case *Call:
		if args, changed := transformList(e.Args, fn); changed {
			n = &Call{Func: e.Func, Args: args}
		}
	case *Aggregate:
		where, selector := transformLambda(e.Where, fn), transformLambda(e.Selector, fn)
		if where != e.Where || selector != e.Selector {
			n = &Aggregate{Kind: e.Kind, Source: e.Source, Where: where, Selector: selector}
		}
	case *Tuple:
		if items, changed := transformList(e.Items, fn); changed {
			n = &Tuple{Items: items}
		}
	case *MemberInit:
		changed := false
		bindings := make([]Binding, len(e.Bindings))
		for i, b := range e.Bindings {
			v := Transform(b.Value, fn)
			if v != b.Value {
				changed = true
			}
			bindings[i] = Binding{Field: b.Field, Value: v}
		}
		if changed {
			n = &MemberInit{Type: e.Type, Bindings: bindings}
		}
	case *Lambda:
		if body := Transform(e.Body, fn); body != e.Body {
			n = &Lambda{Param: e.Param, Body: body}
		}
	}

	return fn(n)
}

func transformList(nodes []Node, fn func(Node) Node) ([]Node, bool) {
	changed := false
	out := make([]Node, len(nodes))
	for i, item := range nodes {
		out[i] = Transform(item, fn)
		if out[i] != item {
			changed = true
		}
	}
	return out, changed
}

func transformLambda(l *Lambda, fn func(Node) Node) *Lambda {
	if l == nil {
		return nil
	}
	out, ok := Transform(l, fn).(*Lambda)
	if !ok {
		// a lambda slot can only hold a lambda
		return l
	}
	return out
}

// ReplaceParameter substitutes every reference to p inside n with with
func ReplaceParameter(n Node, p *Parameter, with Node) Node {
	return Transform(n, func(node Node) Node {
		if node == Node(p) {
			return with
		}
		return node
	})
}

// References reports whether n refers to p
func References(n Node, p *Parameter) bool {
	found := false
	Walk(n, func(node Node) bool {
		if node == Node(p) {
			found = true
		}
		return !found
	})
	return found
}
