package expr

import (
	"reflect"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
)

func TestNode_String(t *testing.T) {
	p := ParamOf[*account]("e")
	inv := ParamOf[*invoice]("i")

	tests := []struct {
		node Node
		want string
	}{
		{NewLambda(p, Eq(Field(p, "Partition"), Const(1))), "e => (e.Partition == 1)"},
		{Equals(Field(p, "Name"), Const("A")), `Equals(e.Name, "A")`},
		{Not(And(True(), Const(nil))), "!(true && nil)"},
		{Count(reflect.TypeFor[*invoice](), NewLambda(inv, Eq(Field(inv, "AccountID"), Field(p, "ID")))), "Count(invoice, i => (i.AccountID == e.ID))"},
		{Init(reflect.TypeFor[*account](), Bind("ID", Field(p, "ID"))), "new account{ID: e.ID}"},
		{NewTuple(Const(1), Const(2)), "[1, 2]"},
		{Convert(Field(p, "ID"), reflect.TypeFor[int64]()), "Convert(e.ID, int64)"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.node.String())
		})
	}
}

func TestWalk_PreOrder(t *testing.T) {
	p := ParamOf[*account]("e")
	tree := And(Eq(Field(p, "ID"), Const(1)), Not(Equals(Field(p, "Name"), Const("x"))))

	var visited []string
	Walk(tree, func(n Node) bool {
		visited = append(visited, reflect.TypeOf(n).Elem().Name())
		return true
	})

	want := []string{"Binary", "Binary", "Member", "Parameter", "Constant", "Unary", "Call", "Member", "Parameter", "Constant"}
	if diff := cmp.Diff(want, visited); diff != "" {
		t.Errorf("Walk order mismatch (-want +got):\n%s", diff)
	}
}

func TestWalk_Prune(t *testing.T) {
	p := ParamOf[*account]("e")
	tree := And(Eq(Field(p, "ID"), Const(1)), Const(true))

	count := 0
	Walk(tree, func(n Node) bool {
		count++
		_, isRoot := n.(*Binary)
		return isRoot && count == 1
	})
	assert.Equal(t, 3, count)
}

func TestTransform_SharesUnchangedSubtrees(t *testing.T) {
	p := ParamOf[*account]("e")
	left := Eq(Field(p, "ID"), Const(1))
	right := Eq(Field(p, "Name"), Const("a"))
	tree := And(left, right).(*Binary)

	out := Transform(tree, func(n Node) Node {
		if c, ok := n.(*Constant); ok && c.Value == "a" {
			return Const("b")
		}
		return n
	}).(*Binary)

	assert.NotSame(t, tree, out)
	assert.Same(t, left, out.Left)
	assert.Equal(t, `(e.Name == "b")`, out.Right.String())

	same := Transform(tree, func(n Node) Node { return n })
	assert.Same(t, tree, same)
}

func TestReplaceParameter(t *testing.T) {
	src := ParamOf[*account]("x")
	row := ParamOf[*account]("row")
	inv := ParamOf[*invoice]("i")
	body := Count(reflect.TypeFor[*invoice](), NewLambda(inv, Eq(Field(inv, "AccountID"), Field(src, "ID"))))

	out := ReplaceParameter(body, src, row)

	assert.Equal(t, "Count(invoice, i => (i.AccountID == row.ID))", out.String())
	assert.True(t, References(out, row))
	assert.False(t, References(out, src))
	assert.True(t, References(body, src))
}

func TestSimplify(t *testing.T) {
	p := ParamOf[*account]("e")
	cond := Eq(Field(p, "ID"), Const(1))
	iface := reflect.TypeFor[interface{ Any() }]()

	tests := []struct {
		name string
		in   Node
		want string
	}{
		{"interface upcast removed", Field(Convert(p, iface), "ID"), "e.ID"},
		{"concrete conversion kept", Convert(Field(p, "ID"), reflect.TypeFor[int64]()), "Convert(e.ID, int64)"},
		{"true and x", And(True(), cond), "(e.ID == 1)"},
		{"x and true", And(cond, True()), "(e.ID == 1)"},
		{"false or x", Or(False(), cond), "(e.ID == 1)"},
		{"double negation", Not(Not(cond)), "(e.ID == 1)"},
		{"nested fold", And(And(True(), True()), cond), "(e.ID == 1)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Simplify(tt.in).String())
		})
	}

	l := NewLambda(p, And(True(), cond))
	assert.Equal(t, "e => (e.ID == 1)", SimplifyLambda(l).String())
	assert.Nil(t, SimplifyLambda(nil))
}
