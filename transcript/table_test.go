package transcript

import (
	"math"
	"sync"
	"testing"

	"github.com/grailbio/sdafish/logmath"
	"github.com/stretchr/testify/require"
)

func newFixtureTable(n int) *Table {
	entries := make([]*Transcript, n)
	for i := 0; i < n; i++ {
		entries[i] = &Transcript{ID: uint32(i), Name: "t", RefLength: 100}
	}
	return NewTable(entries)
}

func TestNewTableInitializesLogMassToUniformPrior(t *testing.T) {
	tb := newFixtureTable(4)
	want := logmath.LOG_1 - math.Log(4)
	for _, tr := range tb.All() {
		require.InDelta(t, want, tr.LogMass(), 1e-12)
	}
}

func TestGetOutOfRangeReturnsNil(t *testing.T) {
	tb := newFixtureTable(2)
	require.Nil(t, tb.Get(5))
	require.NotNil(t, tb.Get(0))
}

func TestAddTotalAndUniqueCount(t *testing.T) {
	tb := newFixtureTable(1)
	tr := tb.Get(0)
	tb.AddTotalCount(tr, 1)
	tb.AddTotalCount(tr, 1)
	tb.AddUniqueCount(tr, 1)
	require.Equal(t, uint64(2), tr.TotalCount())
	require.Equal(t, uint64(1), tr.UniqueCount())
}

func TestAddLogMassAccumulates(t *testing.T) {
	tb := newFixtureTable(1)
	tr := tb.Get(0)
	want := logmath.Add(logmath.Add(logmath.LOG_1, -1.0), -1.0)
	tb.AddLogMass(tr, -1.0)
	tb.AddLogMass(tr, -1.0)
	require.InDelta(t, want, tr.LogMass(), 1e-12)
}

// TestConcurrentUpdatesDoNotLoseWrites exercises the sharded-spinlock path
// under contention: many goroutines each add a fixed log-mass delta to the
// same transcript, and the final mass must equal what a sequential
// application of the same deltas would produce, within floating-point
// tolerance.
func TestConcurrentUpdatesDoNotLoseWrites(t *testing.T) {
	tb := newFixtureTable(1)
	tr := tb.Get(0)

	const goroutines = 64
	const perGoroutine = 200
	var wg sync.WaitGroup
	wg.Add(goroutines)
	for g := 0; g < goroutines; g++ {
		go func() {
			defer wg.Done()
			for i := 0; i < perGoroutine; i++ {
				tb.AddLogMass(tr, -5.0)
				tb.AddSharedCount(tr, 0.5)
			}
		}()
	}
	wg.Wait()

	want := logmath.LOG_1 // newFixtureTable(1)'s uniform prior, log(1/1)
	for i := 0; i < goroutines*perGoroutine; i++ {
		want = logmath.Add(want, -5.0)
	}
	require.InDelta(t, want, tr.LogMass(), 1e-6)
	require.InDelta(t, float64(goroutines*perGoroutine)*0.5, tr.SharedCount(), 1e-6)
}
