package catalog

import (
	"context"
	"reflect"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conduit-lang/entitycore/internal/orm/metadata"
	"github.com/conduit-lang/entitycore/internal/orm/query"
	"github.com/conduit-lang/entitycore/internal/orm/session"
	"github.com/conduit-lang/entitycore/internal/orm/store/memory"
	"github.com/conduit-lang/entitycore/internal/orm/tracking"
)

func TestRegister(t *testing.T) {
	reg := metadata.NewRegistry()

	models, err := Register(reg)
	require.NoError(t, err)
	require.Len(t, models, 4)
	assert.Equal(t, 4, reg.Count())

	again, err := Register(reg)
	require.NoError(t, err)
	for i := range models {
		assert.Same(t, models[i], again[i])
	}

	customer := models[0]
	assert.Equal(t, "Customer", customer.Name())
	assert.Equal(t, []string{"ID"}, customer.PrimaryKey())
	assert.Equal(t, "DataArea", customer.PartitionField())
	assert.Equal(t, []string{"ID", "DataArea", "Name", "Email"}, customer.PersistedFields())
	assert.False(t, customer.IsPersisted("Notifier"))

	order := models[2]
	assert.Equal(t, []string{"ID", "DataArea", "CustomerID", "Status"}, order.PersistedFields())
	assert.Len(t, order.CalculatedProperties(), 2)

	rel, ok := order.Relationship("Customer")
	require.True(t, ok)
	assert.Equal(t, metadata.ManyToOne, rel.Kind)
	assert.Equal(t, metadata.DeleteCascade, rel.OnDelete)
	assert.Equal(t, "Customer", rel.ForeignNavigation)
	assert.Equal(t, "Orders", rel.PrincipalNavigation)
}

func TestOrderLookupAndDrillDown(t *testing.T) {
	reg := metadata.NewRegistry()
	_, err := Register(reg)
	require.NoError(t, err)

	order, err := metadata.ModelOf[Order](reg)
	require.NoError(t, err)

	status, ok := order.Property("Status")
	require.True(t, ok)
	require.NotNil(t, status.Lookup())
	assert.Equal(t, reflect.TypeFor[OrderStatus](), status.Lookup().Target)
	assert.Equal(t, "s => s.Code", status.Lookup().ValueSelector.String())

	lines, ok := order.Property("LineCount")
	require.True(t, ok)
	o := &Order{ID: uuid.New()}
	assert.Equal(t, map[string]interface{}{"OrderID": o.ID}, lines.DrillDown().Filters(o))
}

func TestCalculatedProperties(t *testing.T) {
	ctx := context.Background()
	reg := metadata.NewRegistry()
	_, err := Register(reg)
	require.NoError(t, err)

	entities := NewCustomer("acme", "ops@acme.test", []float64{10, 2.5}, []float64{1})
	src := query.NewSliceSource(entities...)

	customers, err := query.AutoCalculate(query.From[*Customer](src), reg, []string{"OrderCount"}, false)
	require.NoError(t, err)
	c, err := customers.First(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, c.OrderCount)

	orders, err := query.AutoCalculate(query.From[*Order](src), reg, []string{"LineCount", "Total"}, true,
		query.WithFilterValues(metadata.NewFilterValues(map[string]interface{}{"min_amount": 2.0})))
	require.NoError(t, err)
	rows, err := orders.ToSlice(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	totals := map[int]float64{}
	for _, o := range rows {
		totals[o.LineCount] = o.Total
	}
	assert.Equal(t, map[int]float64{2: 12.5, 1: 0}, totals)
}

func TestPartitionedSessions(t *testing.T) {
	ctx := context.Background()
	reg := metadata.NewRegistry()
	_, err := Register(reg)
	require.NoError(t, err)
	st := memory.New()

	writer := session.New(reg, st, session.WithPartition("12345"))
	for _, e := range NewCustomer("acme", "ops@acme.test", []float64{4}) {
		require.NoError(t, writer.Add(e))
	}
	n, err := writer.SaveChanges(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	other := session.New(reg, st, session.WithPartition("12346"))
	customers, err := session.Query[*Customer](other).ToSlice(ctx)
	require.NoError(t, err)
	assert.Empty(t, customers)

	reader := session.New(reg, st, session.WithPartition("12345"))
	customers, err = session.Query[*Customer](reader).ToSlice(ctx)
	require.NoError(t, err)
	require.Len(t, customers, 1)
	assert.Equal(t, "acme", customers[0].Name)

	orders, err := session.Query[*Order](reader).ToSlice(ctx)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, customers[0].ID, orders[0].CustomerID)
	assert.Equal(t, "12345", orders[0].DataArea)
}

func TestStatusScope(t *testing.T) {
	ctx := context.Background()
	reg := metadata.NewRegistry()
	_, err := Register(reg)
	require.NoError(t, err)
	st := memory.New()

	s := session.New(reg, st, session.WithPartition("12345"))
	for _, e := range NewCustomer("acme", "ops@acme.test", []float64{4}, []float64{9}) {
		require.NoError(t, s.Add(e))
	}
	_, err = s.SaveChanges(ctx)
	require.NoError(t, err)

	orders, err := session.Query[*Order](s).ToSlice(ctx)
	require.NoError(t, err)
	require.Len(t, orders, 2)
	orders[0].Status = "shipped"
	_, err = s.SaveChanges(ctx)
	require.NoError(t, err)

	scopes := Scopes()
	assert.Equal(t, []string{"status"}, scopes.List())

	reader := session.New(reg, st, session.WithPartition("12345"))
	shipped, err := query.WithScope(session.Query[*Order](reader), scopes, "status", "shipped").ToSlice(ctx)
	require.NoError(t, err)
	require.Len(t, shipped, 1)
	assert.Equal(t, orders[0].ID, shipped[0].ID)

	open, err := query.WithScope(session.Query[*Order](reader), scopes, "status", "open").Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, open)

	_, err = query.WithScope(session.Query[*Order](reader), scopes, "status").ToSlice(ctx)
	assert.ErrorIs(t, err, query.ErrScopeArguments)
}

func TestCustomerNotifiesChanges(t *testing.T) {
	ctx := context.Background()
	reg := metadata.NewRegistry()
	_, err := Register(reg)
	require.NoError(t, err)
	st := memory.New()

	seed := session.New(reg, st)
	require.NoError(t, seed.Add(&Customer{ID: uuid.New(), Name: "acme"}))
	_, err = seed.SaveChanges(ctx)
	require.NoError(t, err)

	s := session.New(reg, st)
	c, err := session.Query[*Customer](s).First(ctx)
	require.NoError(t, err)
	rec, ok := s.Tracker().Get(c)
	require.True(t, ok)

	c.SetName("acme")
	assert.Equal(t, tracking.StateNone, rec.State())

	c.SetEmail("ops@acme.test")
	assert.Equal(t, tracking.StateUpdated, rec.State())

	n, err := s.SaveChanges(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	fresh := session.New(reg, st)
	c, err = session.Query[*Customer](fresh).First(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ops@acme.test", c.Email)
}
