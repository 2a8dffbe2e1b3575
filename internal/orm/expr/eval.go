package expr

import (
	"cmp"
	"fmt"
	"math"
	"reflect"
	"strings"
	"time"
)

// Resolver supplies the rows of an entity type to Aggregate nodes
type Resolver interface {
	Resolve(t reflect.Type) ([]interface{}, error)
}

// ResolverFunc adapts a function to the Resolver interface
type ResolverFunc func(t reflect.Type) ([]interface{}, error)

// Resolve calls f
func (f ResolverFunc) Resolve(t reflect.Type) ([]interface{}, error) { return f(t) }

// Env holds parameter bindings for evaluation. Bindings form a chain so that
// nested lambdas see the parameters of their enclosing lambdas.
type Env struct {
	parent   *Env
	param    *Parameter
	value    interface{}
	resolver Resolver
}

// NewEnv creates an empty environment; r may be nil when no aggregates are evaluated
func NewEnv(r Resolver) *Env {
	return &Env{resolver: r}
}

// Bind returns a child environment with p bound to v. Bind is safe on a nil Env.
func (e *Env) Bind(p *Parameter, v interface{}) *Env {
	child := &Env{parent: e, param: p, value: v}
	if e != nil {
		child.resolver = e.resolver
	}
	return child
}

func (e *Env) lookup(p *Parameter) (interface{}, bool) {
	for env := e; env != nil; env = env.parent {
		if env.param == p {
			return env.value, true
		}
	}
	return nil, false
}

// Invoke evaluates the lambda body with its parameter bound to arg
func Invoke(l *Lambda, arg interface{}, env *Env) (interface{}, error) {
	return Eval(l.Body, env.Bind(l.Param, arg))
}

// Test evaluates a predicate lambda against arg
func Test(l *Lambda, arg interface{}, env *Env) (bool, error) {
	v, err := Invoke(l, arg, env)
	if err != nil {
		return false, err
	}
	return asBool(v)
}

// Eval evaluates n in env
func Eval(n Node, env *Env) (interface{}, error) {
	switch e := n.(type) {
	case *Parameter:
		v, ok := env.lookup(e)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnboundParameter, e.Name)
		}
		return v, nil

	case *Constant:
		return e.Value, nil

	case *Member:
		v, err := Eval(e.Operand, env)
		if err != nil {
			return nil, err
		}
		return fieldValue(v, e.Field)

	case *Binary:
		return evalBinary(e, env)

	case *Unary:
		b, err := evalBool(e.Operand, env)
		if err != nil {
			return nil, err
		}
		return !b, nil

	case *Conversion:
		v, err := Eval(e.Operand, env)
		if err != nil {
			return nil, err
		}
		return convertValue(v, e.Type)

	case *Call:
		return evalCall(e, env)

	case *Aggregate:
		return evalAggregate(e, env)

	case *Tuple:
		out := make([]interface{}, len(e.Items))
		for i, item := range e.Items {
			v, err := Eval(item, env)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil

	case *MemberInit:
		return evalMemberInit(e, env)

	case nil:
		return nil, fmt.Errorf("%w: nil node", ErrUnsupported)

	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupported, n)
	}
}

func evalBool(n Node, env *Env) (bool, error) {
	v, err := Eval(n, env)
	if err != nil {
		return false, err
	}
	return asBool(v)
}

func asBool(v interface{}) (bool, error) {
	if b, ok := v.(bool); ok {
		return b, nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Bool {
		return rv.Bool(), nil
	}
	return false, fmt.Errorf("%w: got %T", ErrNotBoolean, v)
}

func evalBinary(e *Binary, env *Env) (interface{}, error) {
	if e.Op.IsLogical() {
		l, err := evalBool(e.Left, env)
		if err != nil {
			return nil, err
		}
		if e.Op == OpAnd && !l {
			return false, nil
		}
		if e.Op == OpOr && l {
			return true, nil
		}
		return evalBool(e.Right, env)
	}

	l, err := Eval(e.Left, env)
	if err != nil {
		return nil, err
	}
	r, err := Eval(e.Right, env)
	if err != nil {
		return nil, err
	}

	switch e.Op {
	case OpEqual:
		return EqualValues(l, r), nil
	case OpNotEqual:
		return !EqualValues(l, r), nil
	case OpLessThan, OpLessThanOrEqual, OpGreaterThan, OpGreaterThanOrEqual:
		c, err := compareValues(l, r)
		if err != nil {
			return nil, err
		}
		switch e.Op {
		case OpLessThan:
			return c < 0, nil
		case OpLessThanOrEqual:
			return c <= 0, nil
		case OpGreaterThan:
			return c > 0, nil
		default:
			return c >= 0, nil
		}
	default:
		return arithmetic(e.Op, l, r)
	}
}

func evalCall(e *Call, env *Env) (interface{}, error) {
	args := make([]interface{}, len(e.Args))
	for i, a := range e.Args {
		v, err := Eval(a, env)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}

	switch e.Func {
	case FuncEquals:
		if len(args) != 2 {
			return nil, fmt.Errorf("%w: Equals takes 2 arguments, got %d", ErrUnsupported, len(args))
		}
		return EqualValues(args[0], args[1]), nil
	case FuncContains:
		if len(args) != 2 {
			return nil, fmt.Errorf("%w: Contains takes 2 arguments, got %d", ErrUnsupported, len(args))
		}
		s, ok1 := stringOf(args[0])
		sub, ok2 := stringOf(args[1])
		if !ok1 || !ok2 {
			return nil, fmt.Errorf("%w: Contains requires strings", ErrInvalidConversion)
		}
		return strings.Contains(s, sub), nil
	default:
		return nil, fmt.Errorf("%w: function %s", ErrUnsupported, e.Func)
	}
}

func evalAggregate(e *Aggregate, env *Env) (interface{}, error) {
	if env == nil || env.resolver == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoResolver, e.String())
	}
	if e.Kind == AggregateSum && e.Selector == nil {
		return nil, fmt.Errorf("%w: Sum requires a selector", ErrUnsupported)
	}

	rows, err := env.resolver.Resolve(e.Source)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s rows: %w", typeName(e.Source), err)
	}

	count := 0
	var sum numeric
	for _, row := range rows {
		if e.Where != nil {
			ok, err := Test(e.Where, row, env)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
		}

		if e.Kind == AggregateCount {
			count++
			continue
		}

		v, err := Invoke(e.Selector, row, env)
		if err != nil {
			return nil, err
		}
		n, ok := toNumeric(v)
		if !ok {
			return nil, fmt.Errorf("%w: cannot sum %T", ErrInvalidConversion, v)
		}
		sum = sum.add(n)
	}

	if e.Kind == AggregateCount {
		return count, nil
	}
	if sum.isFloat {
		return sum.f, nil
	}
	return sum.i, nil
}

func evalMemberInit(e *MemberInit, env *Env) (interface{}, error) {
	st := e.Type
	ptr := false
	if st.Kind() == reflect.Ptr {
		ptr = true
		st = st.Elem()
	}
	if st.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: cannot initialize %s", ErrUnsupported, e.Type)
	}

	out := reflect.New(st)
	for _, b := range e.Bindings {
		f := out.Elem().FieldByName(b.Field)
		if !f.IsValid() || !f.CanSet() {
			return nil, fmt.Errorf("%w: %s.%s", ErrUnknownField, st.Name(), b.Field)
		}
		v, err := Eval(b.Value, env)
		if err != nil {
			return nil, err
		}
		if err := AssignValue(f, v); err != nil {
			return nil, fmt.Errorf("field %s.%s: %w", st.Name(), b.Field, err)
		}
	}

	if ptr {
		return out.Interface(), nil
	}
	return out.Elem().Interface(), nil
}

func fieldValue(v interface{}, name string) (interface{}, error) {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Ptr || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil, fmt.Errorf("%w: .%s", ErrNilOperand, name)
		}
		rv = rv.Elem()
	}
	if !rv.IsValid() {
		return nil, fmt.Errorf("%w: .%s", ErrNilOperand, name)
	}
	if rv.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: %s on %s", ErrUnknownField, name, rv.Type())
	}

	f := rv.FieldByName(name)
	if !f.IsValid() || !f.CanInterface() {
		return nil, fmt.Errorf("%w: %s.%s", ErrUnknownField, rv.Type().Name(), name)
	}
	return f.Interface(), nil
}

// AssignValue stores v into dst, converting between numeric kinds, string
// kinds and pointer/value forms where that is lossless in intent.
func AssignValue(dst reflect.Value, v interface{}) error {
	if isNil(v) {
		dst.Set(reflect.Zero(dst.Type()))
		return nil
	}

	src := reflect.ValueOf(v)
	dt := dst.Type()
	switch {
	case src.Type().AssignableTo(dt):
		dst.Set(src)
	case isNumericKind(src.Kind()) && isNumericKind(dt.Kind()),
		src.Kind() == reflect.String && dt.Kind() == reflect.String:
		dst.Set(src.Convert(dt))
	case dt.Kind() == reflect.Ptr && src.Type().AssignableTo(dt.Elem()):
		p := reflect.New(dt.Elem())
		p.Elem().Set(src)
		dst.Set(p)
	default:
		return fmt.Errorf("%w: %s to %s", ErrInvalidConversion, src.Type(), dt)
	}
	return nil
}

func convertValue(v interface{}, t reflect.Type) (interface{}, error) {
	if t.Kind() == reflect.Interface {
		if v == nil || reflect.TypeOf(v).Implements(t) {
			return v, nil
		}
		return nil, fmt.Errorf("%w: %T does not implement %s", ErrInvalidConversion, v, t)
	}
	out := reflect.New(t).Elem()
	if err := AssignValue(out, v); err != nil {
		return nil, err
	}
	return out.Interface(), nil
}

// EqualValues compares two evaluated values. Numbers compare by value across
// kinds, string kinds by content and time.Time by instant.
func EqualValues(a, b interface{}) bool {
	if isNil(a) || isNil(b) {
		return isNil(a) && isNil(b)
	}
	if na, ok := toNumeric(a); ok {
		if nb, ok := toNumeric(b); ok {
			return compareNumeric(na, nb) == 0
		}
	}
	if sa, ok := stringOf(a); ok {
		if sb, ok := stringOf(b); ok {
			return sa == sb
		}
	}
	if ta, ok := a.(time.Time); ok {
		if tb, ok := b.(time.Time); ok {
			return ta.Equal(tb)
		}
	}
	return reflect.DeepEqual(a, b)
}

func compareValues(a, b interface{}) (int, error) {
	if na, ok := toNumeric(a); ok {
		if nb, ok := toNumeric(b); ok {
			return compareNumeric(na, nb), nil
		}
	}
	if sa, ok := stringOf(a); ok {
		if sb, ok := stringOf(b); ok {
			return strings.Compare(sa, sb), nil
		}
	}
	if ta, ok := a.(time.Time); ok {
		if tb, ok := b.(time.Time); ok {
			return ta.Compare(tb), nil
		}
	}
	return 0, fmt.Errorf("%w: %T and %T", ErrIncomparable, a, b)
}

func arithmetic(op BinaryOp, l, r interface{}) (interface{}, error) {
	if op == OpAdd {
		if sl, ok := stringOf(l); ok {
			if sr, ok := stringOf(r); ok {
				return sl + sr, nil
			}
		}
	}

	nl, ok1 := toNumeric(l)
	nr, ok2 := toNumeric(r)
	if !ok1 || !ok2 {
		return nil, fmt.Errorf("%w: %T %s %T", ErrInvalidConversion, l, op, r)
	}

	if !nl.isFloat && !nr.isFloat {
		switch op {
		case OpAdd:
			return nl.i + nr.i, nil
		case OpSub:
			return nl.i - nr.i, nil
		case OpMul:
			return nl.i * nr.i, nil
		case OpDiv:
			if nr.i == 0 {
				return nil, fmt.Errorf("%w: integer division by zero", ErrUnsupported)
			}
			return nl.i / nr.i, nil
		}
	}

	a, b := nl.float(), nr.float()
	switch op {
	case OpAdd:
		return a + b, nil
	case OpSub:
		return a - b, nil
	case OpMul:
		return a * b, nil
	case OpDiv:
		return a / b, nil
	}
	return nil, fmt.Errorf("%w: operator %s", ErrUnsupported, op)
}

type numeric struct {
	isFloat bool
	i       int64
	f       float64
}

func (n numeric) float() float64 {
	if n.isFloat {
		return n.f
	}
	return float64(n.i)
}

func (n numeric) add(o numeric) numeric {
	if !n.isFloat && !o.isFloat {
		return numeric{i: n.i + o.i}
	}
	return numeric{isFloat: true, f: n.float() + o.float()}
}

func toNumeric(v interface{}) (numeric, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return numeric{i: rv.Int()}, true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		u := rv.Uint()
		if u > math.MaxInt64 {
			return numeric{isFloat: true, f: float64(u)}, true
		}
		return numeric{i: int64(u)}, true
	case reflect.Float32, reflect.Float64:
		return numeric{isFloat: true, f: rv.Float()}, true
	default:
		return numeric{}, false
	}
}

func compareNumeric(a, b numeric) int {
	if !a.isFloat && !b.isFloat {
		return cmp.Compare(a.i, b.i)
	}
	return cmp.Compare(a.float(), b.float())
}

func stringOf(v interface{}) (string, bool) {
	if s, ok := v.(string); ok {
		return s, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.String {
		return rv.String(), true
	}
	return "", false
}

func isNumericKind(k reflect.Kind) bool {
	return k >= reflect.Int && k <= reflect.Float64
}

func isNil(v interface{}) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}

// StaticType returns the result type of n when it can be determined without
// evaluation, or nil.
func StaticType(n Node) reflect.Type {
	switch e := n.(type) {
	case *Parameter:
		return e.Type
	case *Constant:
		if e.Value == nil {
			return nil
		}
		return reflect.TypeOf(e.Value)
	case *Member:
		t := StaticType(e.Operand)
		for t != nil && t.Kind() == reflect.Ptr {
			t = t.Elem()
		}
		if t == nil || t.Kind() != reflect.Struct {
			return nil
		}
		f, ok := t.FieldByName(e.Field)
		if !ok {
			return nil
		}
		return f.Type
	case *Binary:
		if e.Op.IsComparison() || e.Op.IsLogical() {
			return reflect.TypeFor[bool]()
		}
		return StaticType(e.Left)
	case *Unary, *Call:
		return reflect.TypeFor[bool]()
	case *Conversion:
		return e.Type
	case *Aggregate:
		if e.Kind == AggregateCount {
			return reflect.TypeFor[int]()
		}
		if e.Selector != nil {
			return StaticType(e.Selector.Body)
		}
		return nil
	case *Tuple:
		return reflect.TypeFor[[]interface{}]()
	case *MemberInit:
		return e.Type
	default:
		return nil
	}
}
