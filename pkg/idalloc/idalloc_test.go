package idalloc

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReserveDisjointAndContiguous(t *testing.T) {
	a := New(func(int32) (int32, error) { return 0, nil })

	first, err := a.Reserve(1, 5)
	require.NoError(t, err)
	require.Equal(t, int32(1), first)

	second, err := a.Reserve(1, 3)
	require.NoError(t, err)
	require.Equal(t, int32(6), second)

	max, err := a.CurrentMax(1)
	require.NoError(t, err)
	require.Equal(t, int32(8), max)
}

func TestReserveColdStartsFromCatalogWatermark(t *testing.T) {
	a := New(func(id int32) (int32, error) { return 100, nil })

	first, err := a.Reserve(1, 10)
	require.NoError(t, err)
	require.Equal(t, int32(101), first)
}

func TestReserveConcurrentIsSerializedAndDisjoint(t *testing.T) {
	a := New(func(int32) (int32, error) { return 0, nil })

	const workers = 20
	const perWorker = 50

	var wg sync.WaitGroup
	ranges := make(chan [2]int32, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			first, err := a.Reserve(1, perWorker)
			require.NoError(t, err)
			ranges <- [2]int32{first, first + perWorker}
		}()
	}
	wg.Wait()
	close(ranges)

	seen := make(map[int32]bool)
	for r := range ranges {
		for id := r[0]; id < r[1]; id++ {
			require.False(t, seen[id], "id %d reserved twice", id)
			seen[id] = true
		}
	}
	require.Len(t, seen, workers*perWorker)
}

func TestLocationsAreIndependent(t *testing.T) {
	a := New(func(int32) (int32, error) { return 0, nil })

	f1, err := a.Reserve(1, 5)
	require.NoError(t, err)
	f2, err := a.Reserve(2, 5)
	require.NoError(t, err)

	require.Equal(t, int32(1), f1)
	require.Equal(t, int32(1), f2)
}
