package txnset

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	s "github.com/bnclabs/gosettings"
)

type item struct {
	ID  int
	Val string
}

func itemComparator() Comparator[item, int] {
	return Comparator[item, int]{
		Less:  func(a, b int) bool { return a < b },
		KeyOf: func(e item) int { return e.ID },
	}
}

func newTestSet(t *testing.T, variant Variant) *Set[item, int] {
	t.Helper()
	return New[item, int](t.Name(), itemComparator(), variant, s.Settings{})
}

func TestSetEmpty(t *testing.T) {
	for _, variant := range []Variant{VariantAVL, VariantMultiset} {
		set := newTestSet(t, variant)
		require.Equal(t, 0, set.Len())
		_, found := set.Find(1)
		require.False(t, found)
		require.NoError(t, set.Validate())
	}
}

func TestSetUpsertFind(t *testing.T) {
	for _, variant := range []Variant{VariantAVL, VariantMultiset} {
		set := newTestSet(t, variant)
		require.NoError(t, set.Upsert(item{ID: 1, Val: "a"}))
		require.NoError(t, set.Upsert(item{ID: 2, Val: "b"}))

		got, found := set.Find(1)
		require.True(t, found)
		require.Equal(t, "a", got.Val)
		require.Equal(t, 2, set.Len())

		require.NoError(t, set.Upsert(item{ID: 1, Val: "a2"}))
		got, found = set.Find(1)
		require.True(t, found)
		require.Equal(t, "a2", got.Val)
		require.Equal(t, 2, set.Len(), "upserting an existing id must not grow the visible count")

		require.NoError(t, set.Validate())
	}
}

func TestSetUpsertAll(t *testing.T) {
	set := newTestSet(t, VariantAVL)
	items := []item{{ID: 3, Val: "c"}, {ID: 1, Val: "a"}, {ID: 2, Val: "b"}}
	require.NoError(t, set.UpsertAll(items))
	require.Equal(t, 3, set.Len())
	for _, it := range items {
		got, found := set.Find(it.ID)
		require.True(t, found)
		require.Equal(t, it.Val, got.Val)
	}
}

func TestSetUpperBoundSkipsErasedIdentifiers(t *testing.T) {
	set := newTestSet(t, VariantAVL)
	require.NoError(t, set.Upsert(item{ID: 1}))
	require.NoError(t, set.Upsert(item{ID: 2}))
	require.NoError(t, set.Upsert(item{ID: 3}))

	got, found := set.UpperBound(1)
	require.True(t, found)
	require.Equal(t, 2, got.ID)

	require.NoError(t, set.EraseRange(2, 3))
	got, found = set.UpperBound(1)
	require.True(t, found)
	require.Equal(t, 3, got.ID, "erased identifiers must be skipped")

	_, found = set.UpperBound(3)
	require.False(t, found)
}

func TestSetRangeHalfOpen(t *testing.T) {
	set := newTestSet(t, VariantAVL)
	for i := 1; i <= 5; i++ {
		require.NoError(t, set.Upsert(item{ID: i}))
	}
	var ids []int
	set.Range(2, 4, func(e item) bool {
		ids = append(ids, e.ID)
		return true
	})
	require.Equal(t, []int{2, 3}, ids, "Range must be half-open: [2, 4) excludes 4")
}

func TestSetEraseRange(t *testing.T) {
	set := newTestSet(t, VariantAVL)
	for i := 1; i <= 5; i++ {
		require.NoError(t, set.Upsert(item{ID: i}))
	}
	require.NoError(t, set.EraseRange(2, 4))
	require.Equal(t, 3, set.Len())
	for _, id := range []int{1, 4, 5} {
		_, found := set.Find(id)
		require.True(t, found, "id %v should survive EraseRange([2,4))", id)
	}
	for _, id := range []int{2, 3} {
		_, found := set.Find(id)
		require.False(t, found, "id %v should be erased", id)
	}
}

func TestSetSampleRange(t *testing.T) {
	set := newTestSet(t, VariantAVL)
	for i := 1; i <= 10; i++ {
		require.NoError(t, set.Upsert(item{ID: i}))
	}
	rnd := rand.New(rand.NewSource(1))
	got, found := set.SampleRange(1, 11, rnd)
	require.True(t, found)
	require.GreaterOrEqual(t, got.ID, 1)
	require.LessOrEqual(t, got.ID, 10)
	require.Equal(t, int64(1), set.stats.samples)

	_, found = set.SampleRange(10, 10, rnd)
	require.False(t, found, "half-open range [10, 10) is empty")
}

func TestSetSampleReservoir(t *testing.T) {
	set := newTestSet(t, VariantAVL)
	for i := 1; i <= 100; i++ {
		require.NoError(t, set.Upsert(item{ID: i}))
	}
	rnd := rand.New(rand.NewSource(1))
	reservoir := set.SampleReservoir(1, 100, rnd, 10)
	require.Len(t, reservoir, 10)
	seen := make(map[int]bool)
	for _, it := range reservoir {
		require.False(t, seen[it.ID], "reservoir should not repeat an element")
		seen[it.ID] = true
	}
}

func TestSetClear(t *testing.T) {
	set := newTestSet(t, VariantAVL)
	require.NoError(t, set.Upsert(item{ID: 1}))
	require.NoError(t, set.Clear())
	require.Equal(t, 0, set.Len())
	_, found := set.Find(1)
	require.False(t, found)
}

func TestSetStats(t *testing.T) {
	set := newTestSet(t, VariantAVL)
	require.NoError(t, set.Upsert(item{ID: 1}))
	stats := set.Stats()
	require.Equal(t, int64(1), stats["upserts"])
	require.Equal(t, 1, stats["count"])
}
