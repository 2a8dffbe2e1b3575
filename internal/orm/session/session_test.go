package session

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/conduit-lang/entitycore/internal/orm/expr"
	"github.com/conduit-lang/entitycore/internal/orm/metadata"
	"github.com/conduit-lang/entitycore/internal/orm/query"
	"github.com/conduit-lang/entitycore/internal/orm/store"
	"github.com/conduit-lang/entitycore/internal/orm/store/memory"
	"github.com/conduit-lang/entitycore/internal/orm/tracking"
)

type account struct {
	ID           int    `orm:"key"`
	DataArea     string `orm:"partition"`
	Name         string
	InvoiceCount int `orm:"autocalc"`
}

func (*account) InvoiceCountCalculation() *expr.Lambda {
	return expr.LambdaOf[*account]("a", func(a expr.Node) expr.Node {
		i := expr.ParamOf[*invoice]("i")
		match := expr.NewLambda(i, expr.Eq(expr.Field(i, "AccountID"), expr.Field(a, "ID")))
		return expr.Count(reflect.TypeFor[*invoice](), match)
	})
}

type invoice struct {
	ID        int `orm:"key"`
	AccountID int
	Amount    float64
}

type note struct {
	Text string
}

func nameIs(name string) *expr.Lambda {
	return expr.LambdaOf[*account]("a", func(a expr.Node) expr.Node {
		return expr.Eq(expr.Field(a, "Name"), expr.Const(name))
	})
}

func dataAreaIs(area string) *expr.Lambda {
	return expr.LambdaOf[*account]("a", func(a expr.Node) expr.Node {
		return expr.Eq(expr.Field(a, "DataArea"), expr.Const(area))
	})
}

func newSession(t *testing.T, reg *metadata.Registry, st store.Store, opts ...Option) *Session {
	t.Helper()
	opts = append([]Option{WithLogger(zaptest.NewLogger(t))}, opts...)
	return New(reg, st, opts...)
}

func TestSession_PartitionScenario(t *testing.T) {
	ctx := context.Background()
	reg := metadata.NewRegistry()
	st := memory.New()

	writer := newSession(t, reg, st, WithPartition("12345"))
	created := &account{ID: 1, Name: "acme"}
	require.NoError(t, writer.Add(created))
	assert.Equal(t, "12345", created.DataArea)

	n, err := writer.SaveChanges(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	other := newSession(t, reg, st, WithPartition("12346"))
	rows, err := Query[*account](other).ToSlice(ctx)
	require.NoError(t, err)
	assert.Empty(t, rows)

	same := newSession(t, reg, st, WithPartition("12345"))
	rows, err = Query[*account](same).ToSlice(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 1, rows[0].ID)
	assert.Equal(t, "acme", rows[0].Name)
	assert.Equal(t, "12345", rows[0].DataArea)
}

func TestSession_QueryPredicate(t *testing.T) {
	s := newSession(t, metadata.NewRegistry(), memory.New(), WithPartition("12345"))

	q := Query[*account](s)
	assert.Equal(t, `e => (e.DataArea == "12345")`, q.Predicate().String())

	q = Filter(s, q, nameIs("acme"))
	require.NoError(t, q.Err())
	assert.Equal(t, `e => ((e.Name == "acme") && (e.DataArea == "12345"))`, q.Predicate().String())

	// a caller cannot widen or move the partition
	q = Filter(s, Query[*account](s), dataAreaIs("12346"))
	assert.Equal(t, `e => (e.DataArea == "12345")`, q.Predicate().String())

	unpartitioned := newSession(t, metadata.NewRegistry(), memory.New())
	assert.Nil(t, Query[*account](unpartitioned).Predicate())
	assert.Nil(t, Query[*invoice](s).Predicate())
}

func TestSession_FilterCannotEscapePartition(t *testing.T) {
	ctx := context.Background()
	reg := metadata.NewRegistry()
	st := memory.New()

	for i, area := range []string{"12345", "12346"} {
		s := newSession(t, reg, st, WithPartition(area))
		require.NoError(t, s.Add(&account{ID: i + 1, Name: "acme"}))
		_, err := s.SaveChanges(ctx)
		require.NoError(t, err)
	}
	assert.Equal(t, 2, st.Len("account"))

	s := newSession(t, reg, st, WithPartition("12345"))
	rows, err := Filter(s, Query[*account](s), dataAreaIs("12346")).ToSlice(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "12345", rows[0].DataArea)
}

func TestSession_AddPartitionMismatch(t *testing.T) {
	s := newSession(t, metadata.NewRegistry(), memory.New(), WithPartition("12345"))

	err := s.Add(&account{ID: 1, DataArea: "12346"})
	assert.ErrorIs(t, err, ErrPartitionMismatch)
	assert.Equal(t, 0, s.Tracker().Len())

	require.NoError(t, s.Add(&account{ID: 2, DataArea: "12345"}))
	assert.Error(t, s.Add(account{ID: 3}))
}

func TestSession_IdentityResolution(t *testing.T) {
	ctx := context.Background()
	reg := metadata.NewRegistry()
	st := memory.New()
	seed(t, reg, st, &account{ID: 1, Name: "acme"}, &account{ID: 2, Name: "globex"})

	s := newSession(t, reg, st)
	first, err := Filter(s, Query[*account](s), nameIs("acme")).First(ctx)
	require.NoError(t, err)

	again, err := Filter(s, Query[*account](s), nameIs("acme")).First(ctx)
	require.NoError(t, err)
	assert.Same(t, first, again)
	assert.Equal(t, 1, s.Tracker().Len())

	// the tracked instance is returned even when the stored row differs
	first.Name = "renamed"
	rows, err := Query[*account](s).ToSlice(ctx)
	require.NoError(t, err)
	assert.Contains(t, rows, first)
	assert.Equal(t, 2, s.Tracker().Len())
}

func seed(t *testing.T, reg *metadata.Registry, st store.Store, entities ...interface{}) {
	t.Helper()
	s := New(reg, st)
	for _, e := range entities {
		require.NoError(t, s.Add(e))
	}
	_, err := s.SaveChanges(context.Background())
	require.NoError(t, err)
}

func TestSession_SaveUpdates(t *testing.T) {
	ctx := context.Background()
	reg := metadata.NewRegistry()
	st := memory.New()
	seed(t, reg, st, &account{ID: 1, Name: "acme"})

	s := newSession(t, reg, st)
	row, err := Query[*account](s).First(ctx)
	require.NoError(t, err)

	changed, err := s.HasChanges()
	require.NoError(t, err)
	assert.False(t, changed)

	row.Name = "acme corp"
	changed, err = s.HasChanges()
	require.NoError(t, err)
	assert.True(t, changed)

	n, err := s.SaveChanges(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	rec, ok := s.Tracker().Get(row)
	require.True(t, ok)
	assert.Equal(t, tracking.StateNone, rec.State())

	fresh := newSession(t, reg, st)
	row, err = Query[*account](fresh).First(ctx)
	require.NoError(t, err)
	assert.Equal(t, "acme corp", row.Name)
}

func TestSession_CalculatedValuesAreNotSaved(t *testing.T) {
	ctx := context.Background()
	reg := metadata.NewRegistry()
	st := memory.New()
	seed(t, reg, st,
		&account{ID: 1, Name: "acme"},
		&account{ID: 2, Name: "globex"},
		&invoice{ID: 1, AccountID: 2, Amount: 10},
		&invoice{ID: 2, AccountID: 2, Amount: 5},
	)

	s := newSession(t, reg, st)
	q, err := query.AutoCalculate(Query[*account](s), reg, []string{"InvoiceCount"}, true)
	require.NoError(t, err)

	rows, err := q.ToSlice(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	counts := map[int]int{}
	for _, r := range rows {
		counts[r.ID] = r.InvoiceCount
	}
	assert.Equal(t, map[int]int{1: 0, 2: 2}, counts)
	assert.Equal(t, 2, s.Tracker().Len())

	changed, err := s.HasChanges()
	require.NoError(t, err)
	assert.False(t, changed)

	n, err := s.SaveChanges(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSession_Remove(t *testing.T) {
	ctx := context.Background()
	reg := metadata.NewRegistry()
	st := memory.New()
	seed(t, reg, st, &account{ID: 1, Name: "acme"}, &account{ID: 2, Name: "globex"})

	s := newSession(t, reg, st)
	row, err := Filter(s, Query[*account](s), nameIs("acme")).First(ctx)
	require.NoError(t, err)
	require.NoError(t, s.Remove(row))

	// removing a detached instance attaches it as deleted
	require.NoError(t, s.Remove(&account{ID: 2}))

	n, err := s.SaveChanges(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 0, st.Len("account"))
	assert.Equal(t, 0, s.Tracker().Len())
}

func TestSession_RemoveUnsavedEntity(t *testing.T) {
	s := newSession(t, metadata.NewRegistry(), memory.New())
	e := &account{ID: 1}
	require.NoError(t, s.Add(e))
	require.NoError(t, s.Remove(e))

	changed, err := s.HasChanges()
	require.NoError(t, err)
	assert.False(t, changed)
	assert.False(t, s.Contains(e))
}

type ledger struct {
	ID         int    `orm:"key"`
	DataArea   string `orm:"partition"`
	EntryCount int    `orm:"autocalc"`
}

// EntryCountCalculation counts every entry, without correlating on a key
func (*ledger) EntryCountCalculation() *expr.Lambda {
	return expr.LambdaOf[*ledger]("l", func(expr.Node) expr.Node {
		return expr.Count(reflect.TypeFor[*entry](), nil)
	})
}

type entry struct {
	ID       int    `orm:"key"`
	DataArea string `orm:"partition"`
}

func TestSession_CalculationsStayInPartition(t *testing.T) {
	ctx := context.Background()
	reg := metadata.NewRegistry()
	st := memory.New()

	a := newSession(t, reg, st, WithPartition("A"))
	require.NoError(t, a.Add(&ledger{ID: 1}))
	require.NoError(t, a.Add(&entry{ID: 1}))
	_, err := a.SaveChanges(ctx)
	require.NoError(t, err)

	b := newSession(t, reg, st, WithPartition("B"))
	require.NoError(t, b.Add(&entry{ID: 2}))
	require.NoError(t, b.Add(&entry{ID: 3}))
	_, err = b.SaveChanges(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, st.Len("entry"))

	reader := newSession(t, reg, st, WithPartition("A"))
	n, err := Query[*entry](reader).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	for _, tracked := range []bool{false, true} {
		q, err := query.AutoCalculate(Query[*ledger](reader), reg, []string{"EntryCount"}, tracked)
		require.NoError(t, err)
		rows, err := q.ToSlice(ctx)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, 1, rows[0].EntryCount, "tracked=%v", tracked)
	}

	// an unpartitioned session sees every row
	all := newSession(t, reg, st)
	n, err = Query[*entry](all).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestSession_OtherPartitionIsReadOnly(t *testing.T) {
	ctx := context.Background()
	reg := metadata.NewRegistry()
	st := memory.New()

	owner := newSession(t, reg, st, WithPartition("B"))
	require.NoError(t, owner.Add(&account{ID: 2, Name: "globex"}))
	_, err := owner.SaveChanges(ctx)
	require.NoError(t, err)

	s := newSession(t, reg, st, WithPartition("A"))
	err = s.Remove(&account{ID: 2, DataArea: "B"})
	assert.ErrorIs(t, err, ErrPartitionMismatch)

	err = s.Attach(&account{ID: 2, DataArea: "B", Name: "renamed"})
	assert.ErrorIs(t, err, ErrPartitionMismatch)

	// an unset partition is not defaulted on attach
	err = s.Attach(&account{ID: 2})
	assert.ErrorIs(t, err, ErrPartitionMismatch)
	assert.Zero(t, s.Tracker().Len())

	// moving a tracked entity to another partition is caught on save
	mine := &account{ID: 3, Name: "acme"}
	require.NoError(t, s.Add(mine))
	mine.DataArea = "B"
	_, err = s.SaveChanges(ctx)
	assert.ErrorIs(t, err, ErrPartitionMismatch)

	n, err := s.SaveChanges(ctx)
	assert.Error(t, err)
	assert.Zero(t, n)

	rows, err := Query[*account](owner).ToSlice(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "globex", rows[0].Name)
	assert.Equal(t, 1, st.Len("account"))
}

func TestSession_AttachTracksUnchanged(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	s := newSession(t, metadata.NewRegistry(), st)

	e := &account{ID: 7, Name: "initech"}
	require.NoError(t, s.Attach(e))
	require.NoError(t, s.Attach(e))

	n, err := s.SaveChanges(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	e.Name = "initrode"
	n, err = s.SaveChanges(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, st.Len("account"))
}

func TestSession_SaveWithoutPrimaryKey(t *testing.T) {
	s := newSession(t, metadata.NewRegistry(), memory.New())
	require.NoError(t, s.Add(&note{Text: "hello"}))

	_, err := s.SaveChanges(context.Background())
	assert.ErrorIs(t, err, metadata.ErrNoPrimaryKey)
}

type failingStore struct {
	*memory.Store
}

func (failingStore) Apply(context.Context, []store.Op) error {
	return store.ErrConflict
}

func TestSession_FailedSaveKeepsChanges(t *testing.T) {
	s := newSession(t, metadata.NewRegistry(), failingStore{memory.New()})
	require.NoError(t, s.Add(&account{ID: 1}))

	_, err := s.SaveChanges(context.Background())
	assert.True(t, store.IsConflict(err))

	changed, err := s.HasChanges()
	require.NoError(t, err)
	assert.True(t, changed)
}

type brokenStore struct {
	*memory.Store
}

func (brokenStore) Scan(context.Context, string) ([]store.Document, error) {
	return nil, errors.New("scan failed")
}

func TestSession_QueryErrors(t *testing.T) {
	ctx := context.Background()

	s := newSession(t, metadata.NewRegistry(), brokenStore{memory.New()})
	_, err := Query[*account](s).ToSlice(ctx)
	assert.ErrorContains(t, err, "scan failed")

	st := memory.New()
	require.NoError(t, st.Apply(ctx, []store.Op{{Kind: "account", Key: "1", Body: []byte("not json")}}))
	s = newSession(t, metadata.NewRegistry(), st)
	_, err = Query[*account](s).ToSlice(ctx)
	assert.Error(t, err)

	s = newSession(t, metadata.NewRegistry(), memory.New(), WithPartition(struct{}{}))
	_, err = Query[*account](s).ToSlice(ctx)
	assert.ErrorIs(t, err, expr.ErrInvalidConversion)
}

func TestCodec(t *testing.T) {
	model, err := metadata.ModelOf[account](metadata.NewRegistry())
	require.NoError(t, err)

	body, err := encodeEntity(model, &account{ID: 3, DataArea: "A", Name: "x", InvoiceCount: 9})
	require.NoError(t, err)
	assert.JSONEq(t, `{"ID":3,"DataArea":"A","Name":"x"}`, string(body))

	out, err := decodeEntity(model, body)
	require.NoError(t, err)
	assert.Equal(t, &account{ID: 3, DataArea: "A", Name: "x"}, out)

	key, err := encodeKey([]interface{}{3})
	require.NoError(t, err)
	assert.Equal(t, "3", key)

	key, err = encodeKey([]interface{}{3, "b"})
	require.NoError(t, err)
	assert.Equal(t, `[3,"b"]`, key)

	_, err = encodeKey([]interface{}{""})
	assert.ErrorIs(t, err, ErrInvalidKey)
}
