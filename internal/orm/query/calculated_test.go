package query

import (
	"context"
	"reflect"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conduit-lang/entitycore/internal/orm/expr"
	"github.com/conduit-lang/entitycore/internal/orm/metadata"
	"github.com/conduit-lang/entitycore/internal/orm/tracking"
)

func countsByName(t *testing.T, rows []*parent) []int {
	t.Helper()
	sort.Slice(rows, func(i, j int) bool { return rows[i].Name < rows[j].Name })
	counts := make([]int, len(rows))
	for i, r := range rows {
		counts[i] = r.ChildCount
	}
	return counts
}

func TestAutoCalculate_Untracked(t *testing.T) {
	ctx := context.Background()
	src := fixture()
	reg := metadata.NewRegistry()

	q, err := AutoCalculate(From[*parent](src), reg, []string{"ChildCount", "Missing", "ChildCount"}, false)
	require.NoError(t, err)
	assert.False(t, q.IsTracked())
	assert.Equal(t,
		"row => new parent{ID: row.ID, Name: row.Name, ChildCount: Count(child, c => (c.ParentID == row.ID))}",
		q.Selector().String())

	rows, err := q.ToSlice(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []int{0, 0, 2}, countsByName(t, rows))

	// projected rows are fresh values; the stored rows are untouched
	stored, err := From[*parent](src).Where(nameIs("c")).First(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stored.ChildCount)
	for _, r := range rows {
		assert.NotSame(t, stored, r)
	}
}

func TestAutoCalculate_Tracked(t *testing.T) {
	ctx := context.Background()
	src := fixture()
	reg := metadata.NewRegistry()
	tr := tracking.NewTracker()

	q, err := AutoCalculate(From[*parent](src).Tracked(tr), reg, []string{"ChildCount"}, true)
	require.NoError(t, err)

	rows, err := q.ToSlice(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []int{0, 0, 2}, countsByName(t, rows))

	// the stored instances themselves carry the values and are tracked
	stored, err := From[*parent](src).Where(nameIs("c")).First(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.ChildCount)
	assert.Equal(t, 3, tr.Len())
	assert.True(t, tr.Contains(stored))
}

func TestAutoCalculate_TrackedWithoutTracker(t *testing.T) {
	q, err := AutoCalculate(From[*parent](fixture()), metadata.NewRegistry(), []string{"ChildCount"}, true)
	require.NoError(t, err)

	rows, err := q.ToSlice(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{0, 0, 2}, countsByName(t, rows))
}

func TestAutoCalculate_FilterValues(t *testing.T) {
	ctx := context.Background()
	values := metadata.NewFilterValues(map[string]interface{}{"min": 2.0})

	q, err := AutoCalculate(From[*parent](fixture()).Where(nameIs("c")), metadata.NewRegistry(),
		[]string{"Weight", "ChildCount"}, false, WithFilterValues(values))
	require.NoError(t, err)

	row, err := q.First(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2.5, row.Weight)
	assert.Equal(t, 2, row.ChildCount)

	q, err = AutoCalculate(From[*parent](fixture()).Where(nameIs("a")), metadata.NewRegistry(), []string{"Weight"}, true)
	require.NoError(t, err)
	row, err = q.First(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0.0, row.Weight)
}

func TestAutoCalculate_PersistedFields(t *testing.T) {
	q, err := AutoCalculate(From[*parent](fixture()), metadata.NewRegistry(), []string{"ChildCount"}, false,
		WithPersistedFields("Name"))
	require.NoError(t, err)
	assert.Equal(t,
		"row => new parent{Name: row.Name, ChildCount: Count(child, c => (c.ParentID == row.ID))}",
		q.Selector().String())

	rows, err := q.ToSlice(context.Background())
	require.NoError(t, err)
	for _, r := range rows {
		assert.Zero(t, r.ID)
	}

	_, err = AutoCalculate(From[*parent](fixture()), metadata.NewRegistry(), []string{"ChildCount"}, false,
		WithPersistedFields("Nope"))
	assert.ErrorIs(t, err, metadata.ErrUnknownField)
}

func TestAutoCalculate_NothingResolved(t *testing.T) {
	q := From[*parent](fixture())

	out, err := AutoCalculate(q, metadata.NewRegistry(), []string{"Name", "Missing"}, false)
	require.NoError(t, err)
	assert.Same(t, q, out)

	out, err = AutoCalculate(q, metadata.NewRegistry(), nil, true, WithPersistedFields("ID"))
	require.NoError(t, err)
	assert.Same(t, q, out)
}

func TestAutoCalculate_Errors(t *testing.T) {
	_, err := AutoCalculate(From[*parent](fixture()), metadata.NewRegistry(), []string{"ChildCount"}, true,
		WithPersistedFields("ID"))
	assert.ErrorIs(t, err, ErrTrackedFieldRestriction)

	_, err = AutoCalculate(From[parent](fixture()), metadata.NewRegistry(), []string{"ChildCount"}, true)
	assert.ErrorIs(t, err, ErrComputedNotSettable)

	reg := metadata.NewRegistry()
	_, err = reg.Register(reflect.TypeFor[parent](), func(b *metadata.Builder) {
		b.Property("Name").CalculateWith(func(metadata.FilterValues) (*expr.Lambda, error) {
			return childrenOf(expr.ParamOf[*parent]("p")), nil
		})
	})
	require.NoError(t, err)
	_, err = AutoCalculate(From[*parent](fixture()), reg, []string{"Name"}, false)
	assert.ErrorIs(t, err, metadata.ErrInvalidCalculation)
}
