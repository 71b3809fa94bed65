package workerpool

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRunBoundsConcurrency(t *testing.T) {
	p := New(3)

	var current int32
	var max int32
	items := make([]int, 20)
	for i := range items {
		items[i] = i
	}

	errs := Run(context.Background(), p, items, func(ctx context.Context, item int) error {
		n := atomic.AddInt32(&current, 1)
		for {
			m := atomic.LoadInt32(&max)
			if n <= m || atomic.CompareAndSwapInt32(&max, m, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt32(&current, -1)
		return nil
	})

	for _, err := range errs {
		require.NoError(t, err)
	}
	require.LessOrEqual(t, int(max), 3)
}

func TestRunCollectsErrorsPerItem(t *testing.T) {
	p := New(4)
	items := []int{1, 2, 3}

	errs := Run(context.Background(), p, items, func(ctx context.Context, item int) error {
		if item == 2 {
			return errors.New("boom")
		}
		return nil
	})

	require.NoError(t, errs[0])
	require.Error(t, errs[1])
	require.NoError(t, errs[2])
}

func TestAcquireRespectsContextCancellation(t *testing.T) {
	p := New(1)
	release, err := p.Acquire(context.Background())
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = p.Acquire(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
