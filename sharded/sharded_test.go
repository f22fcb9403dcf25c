package sharded

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	s "github.com/bnclabs/gosettings"

	"github.com/bnclabs/txnset"
)

type item struct {
	ID  int
	Val string
}

func itemComparator() txnset.Comparator[item, int] {
	return txnset.Comparator[item, int]{
		Less:  func(a, b int) bool { return a < b },
		KeyOf: func(e item) int { return e.ID },
	}
}

func newTestPartitioned(t *testing.T, numParts int) *Partitioned[item, int] {
	t.Helper()
	return New[item, int](t.Name(), itemComparator(), txnset.VariantAVL, s.Settings{}, numParts, nil)
}

func TestPartitionedUpsertFind(t *testing.T) {
	defer goleak.VerifyNone(t)

	p := newTestPartitioned(t, 4)
	for i := 0; i < 100; i++ {
		require.NoError(t, p.Upsert(item{ID: i, Val: "x"}))
	}
	require.Equal(t, 100, p.Len())
	for i := 0; i < 100; i++ {
		got, found := p.Find(i)
		require.True(t, found)
		require.Equal(t, "x", got.Val)
	}
	require.NoError(t, p.Validate())
}

func TestPartitionedUpsertAllViaInternalTransaction(t *testing.T) {
	defer goleak.VerifyNone(t)

	p := newTestPartitioned(t, 4)
	items := make([]item, 50)
	for i := range items {
		items[i] = item{ID: i, Val: "batch"}
	}
	require.NoError(t, p.UpsertAll(items))
	require.Equal(t, 50, p.Len())
}

func TestPartitionedUpperBoundAcrossShards(t *testing.T) {
	defer goleak.VerifyNone(t)

	p := newTestPartitioned(t, 4)
	for _, id := range []int{1, 2, 3, 4, 5, 6, 7, 8} {
		require.NoError(t, p.Upsert(item{ID: id}))
	}
	got, found := p.UpperBound(3)
	require.True(t, found)
	require.Equal(t, 4, got.ID)

	_, found = p.UpperBound(8)
	require.False(t, found)
}

func TestPartitionedRangeVisitsEveryShard(t *testing.T) {
	defer goleak.VerifyNone(t)

	p := newTestPartitioned(t, 4)
	for i := 0; i < 40; i++ {
		require.NoError(t, p.Upsert(item{ID: i}))
	}
	var mu sync.Mutex
	seen := make(map[int]bool)
	p.Range(0, 40, func(e item) bool {
		mu.Lock()
		seen[e.ID] = true
		mu.Unlock()
		return true
	})
	require.Len(t, seen, 40)
}

func TestPartitionedTransactionSpanningShards(t *testing.T) {
	defer goleak.VerifyNone(t)

	p := newTestPartitioned(t, 4)
	txn := p.Transaction()
	for i := 0; i < 20; i++ {
		require.NoError(t, txn.Upsert(item{ID: i, Val: "txn"}))
	}
	require.NoError(t, txn.Stage())
	require.NoError(t, txn.Commit())

	require.Equal(t, 20, p.Len())
	for i := 0; i < 20; i++ {
		got, found := p.Find(i)
		require.True(t, found)
		require.Equal(t, "txn", got.Val)
	}
}

func TestPartitionedTransactionConflict(t *testing.T) {
	defer goleak.VerifyNone(t)

	p := newTestPartitioned(t, 4)
	require.NoError(t, p.Upsert(item{ID: 1, Val: "a"}))

	txn := p.Transaction()
	require.NoError(t, txn.Watch(1))
	require.NoError(t, p.Upsert(item{ID: 1, Val: "b"}))
	require.NoError(t, txn.Upsert(item{ID: 1, Val: "conflicting"}))

	err := txn.Stage()
	require.Error(t, err)

	got, found := p.Find(1)
	require.True(t, found)
	require.Equal(t, "b", got.Val)
}

func TestPartitionedConcurrentWritesAcrossShards(t *testing.T) {
	defer goleak.VerifyNone(t)

	p := newTestPartitioned(t, 8)
	var wg sync.WaitGroup
	const goroutines, perGoroutine = 8, 100
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func(base int) {
			defer wg.Done()
			for i := 0; i < perGoroutine; i++ {
				require.NoError(t, p.Upsert(item{ID: base*perGoroutine + i}))
			}
		}(g)
	}
	wg.Wait()

	require.Equal(t, goroutines*perGoroutine, p.Len())
}
