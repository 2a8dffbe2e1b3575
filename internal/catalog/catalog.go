// Package catalog holds the sample business entities the CLI works with:
// customers, their orders, order lines and the order status lookup table.
package catalog

import (
	"fmt"
	"reflect"

	"github.com/google/uuid"

	"github.com/conduit-lang/entitycore/internal/orm/expr"
	"github.com/conduit-lang/entitycore/internal/orm/metadata"
	"github.com/conduit-lang/entitycore/internal/orm/query"
	"github.com/conduit-lang/entitycore/internal/orm/tracking"
)

// Customer is a partitioned customer account. Name and Email changes are
// reported to the change tracker as they happen.
type Customer struct {
	tracking.Notifier `orm:"-" json:"-"`

	ID         uuid.UUID `orm:"key"`
	DataArea   string    `orm:"partition"`
	Name       string    `orm:"index"`
	Email      string    `orm:"unique"`
	Orders     []*Order
	OrderCount int `orm:"autocalc"`
}

// SetName changes the customer's name
func (c *Customer) SetName(name string) {
	tracking.Set(&c.Notifier, "Name", &c.Name, name)
}

// SetEmail changes the customer's email address
func (c *Customer) SetEmail(email string) {
	tracking.Set(&c.Notifier, "Email", &c.Email, email)
}

func (*Customer) OrderCountCalculation() *expr.Lambda {
	return expr.LambdaOf[*Customer]("c", func(c expr.Node) expr.Node {
		o := expr.ParamOf[*Order]("o")
		mine := expr.NewLambda(o, expr.Eq(expr.Field(o, "CustomerID"), expr.Field(c, "ID")))
		return expr.Count(reflect.TypeFor[Order](), mine)
	})
}

// Order belongs to a customer and has lines
type Order struct {
	ID         uuid.UUID `orm:"key"`
	DataArea   string    `orm:"partition"`
	CustomerID uuid.UUID `orm:"index"`
	Customer   *Customer
	Status     string `orm:"index"`
	Lines      []*OrderLine
	LineCount  int     `orm:"autocalc"`
	Total      float64 `orm:"autocalc"`
}

func (*Order) LineCountCalculation() *expr.Lambda {
	return expr.LambdaOf[*Order]("o", func(o expr.Node) expr.Node {
		return expr.Count(reflect.TypeFor[OrderLine](), linesOf(o, nil))
	})
}

// TotalCalculation sums the line amounts. The "min_amount" filter value
// leaves out smaller lines.
func (*Order) TotalCalculation(values metadata.FilterValues) *expr.Lambda {
	minAmount := values.Lookup("min_amount", 0.0)
	return expr.LambdaOf[*Order]("o", func(o expr.Node) expr.Node {
		l := expr.ParamOf[*OrderLine]("l")
		amount := expr.NewLambda(l, expr.Field(l, "Amount"))
		return expr.Sum(reflect.TypeFor[OrderLine](), linesOf(o, minAmount), amount)
	})
}

func linesOf(o expr.Node, minAmount interface{}) *expr.Lambda {
	l := expr.ParamOf[*OrderLine]("l")
	cond := expr.Node(expr.Eq(expr.Field(l, "OrderID"), expr.Field(o, "ID")))
	if minAmount != nil {
		cond = expr.And(cond, expr.Ge(expr.Field(l, "Amount"), expr.Const(minAmount)))
	}
	return expr.NewLambda(l, cond)
}

// ConfigureModel implements metadata.Configurer
func (Order) ConfigureModel(b *metadata.Builder) {
	metadata.BelongsTo[Customer](b, "Customer", "").
		ForeignKey("CustomerID").
		Inverse("Orders").
		OnDelete(metadata.DeleteCascade)

	b.Property("Status").Lookup(reflect.TypeFor[OrderStatus](), nil,
		expr.LambdaOf[*OrderStatus]("s", func(s expr.Node) expr.Node {
			return expr.Field(s, "Code")
		}), false)

	b.Property("LineCount").DrillDown(reflect.TypeFor[OrderLine](), func(owner interface{}, filters map[string]interface{}) {
		if o, ok := owner.(*Order); ok {
			filters["OrderID"] = o.ID
		}
	})
}

// OrderLine is one product line of an order
type OrderLine struct {
	ID      uuid.UUID `orm:"key"`
	OrderID uuid.UUID
	Order   *Order
	Product string
	Amount  float64
}

// ConfigureModel implements metadata.Configurer
func (OrderLine) ConfigureModel(b *metadata.Builder) {
	metadata.BelongsTo[Order](b, "Order", "").
		ForeignKey("OrderID").
		Inverse("Lines").
		OnDelete(metadata.DeleteCascade)
}

// OrderStatus is the lookup table for Order.Status
type OrderStatus struct {
	Code        string `orm:"key"`
	Description string
}

// Types returns the catalog entity types in registration order
func Types() []reflect.Type {
	return []reflect.Type{
		reflect.TypeFor[Customer](),
		reflect.TypeFor[OrderStatus](),
		reflect.TypeFor[Order](),
		reflect.TypeFor[OrderLine](),
	}
}

// Register builds the catalog models in registry. Types that already have a
// model are left as they are.
func Register(registry *metadata.Registry) ([]*metadata.EntityModel, error) {
	var models []*metadata.EntityModel
	for _, t := range Types() {
		m, err := registry.RegisterIfAbsent(t, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to register catalog: %w", err)
		}
		models = append(models, m)
	}
	return models, nil
}

// Statuses returns the standard order statuses
func Statuses() []*OrderStatus {
	return []*OrderStatus{
		{Code: "open", Description: "Open"},
		{Code: "shipped", Description: "Shipped"},
		{Code: "cancelled", Description: "Cancelled"},
	}
}

// Scopes returns the named order filters. "status" takes a status code.
func Scopes() *query.ScopeRegistry {
	status, err := query.NewScope("status", expr.LambdaOf[*Order]("o", func(o expr.Node) expr.Node {
		return expr.Eq(expr.Field(o, "Status"), expr.Const("open"))
	}), "Status")
	if err != nil {
		panic(err)
	}

	scopes := query.NewScopeRegistry()
	if err := scopes.Register(status); err != nil {
		panic(err)
	}
	return scopes
}

// NewCustomer creates a customer with a fresh ID and one open order per
// line amount group
func NewCustomer(name, email string, orders ...[]float64) []interface{} {
	c := &Customer{ID: uuid.New(), Name: name, Email: email}
	entities := []interface{}{c}
	for _, amounts := range orders {
		o := &Order{ID: uuid.New(), CustomerID: c.ID, Status: "open"}
		entities = append(entities, o)
		for i, amount := range amounts {
			entities = append(entities, &OrderLine{
				ID:      uuid.New(),
				OrderID: o.ID,
				Product: fmt.Sprintf("item-%d", i+1),
				Amount:  amount,
			})
		}
	}
	return entities
}
