package async

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/coachpo/ctpgate/errs"
)

func TestPoolSubmitAndShutdown(t *testing.T) {
	defer goleak.VerifyNone(t)
	pool, err := NewPool(2, 4)
	require.NoError(t, err)

	var count atomic.Int32
	for i := 0; i < 4; i++ {
		require.NoError(t, pool.Submit(context.Background(), func(context.Context) error {
			count.Add(1)
			return nil
		}))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, pool.Shutdown(ctx))
	require.Equal(t, int32(4), count.Load())
}

func TestPoolRejectsWhenFullOrClosed(t *testing.T) {
	release := make(chan struct{})
	pool, err := NewPool(1, 0)
	require.NoError(t, err)

	started := make(chan struct{})
	require.NoError(t, pool.Enqueue(context.Background(), func(context.Context) error {
		close(started)
		<-release
		return nil
	}))
	<-started

	err = pool.Submit(context.Background(), func(context.Context) error { return nil })
	require.True(t, errs.Is(err, errs.CodeUnavailable), "got %v", err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err = pool.Enqueue(ctx, func(context.Context) error { return nil })
	require.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	require.NoError(t, pool.Shutdown(context.Background()))
	err = pool.Submit(context.Background(), func(context.Context) error { return nil })
	require.True(t, errs.Is(err, errs.CodeUnavailable))
}

func TestPoolCancelledContext(t *testing.T) {
	pool, err := NewPool(1, 1)
	require.NoError(t, err)
	defer pool.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = pool.Submit(ctx, func(context.Context) error { return nil })
	require.True(t, errors.Is(err, context.Canceled))
	require.Error(t, pool.Submit(context.Background(), nil))
}

func TestPoolReportsErrorsAndPanics(t *testing.T) {
	var mu sync.Mutex
	var seen []error
	pool, err := NewPool(1, 4, WithErrorHandler(func(err error) {
		mu.Lock()
		seen = append(seen, err)
		mu.Unlock()
	}))
	require.NoError(t, err)

	require.NoError(t, pool.Enqueue(context.Background(), func(context.Context) error { return errors.New("boom") }))
	require.NoError(t, pool.Enqueue(context.Background(), func(context.Context) error { panic("bad") }))
	require.NoError(t, pool.Shutdown(context.Background()))

	require.Len(t, seen, 2)
	require.EqualError(t, seen[0], "boom")
	require.Contains(t, seen[1].Error(), "panic")
}

func TestKeyedPoolPreservesOrderPerKey(t *testing.T) {
	defer goleak.VerifyNone(t)
	kp, err := NewKeyedPool(4, 16)
	require.NoError(t, err)

	var mu sync.Mutex
	got := map[string][]int{}
	for i := 0; i < 50; i++ {
		for _, key := range []string{"sim.1", "sim.2", "sim.3"} {
			key, i := key, i
			require.NoError(t, kp.Enqueue(context.Background(), key, func(context.Context) error {
				mu.Lock()
				got[key] = append(got[key], i)
				mu.Unlock()
				return nil
			}))
		}
	}
	require.NoError(t, kp.Shutdown(context.Background()))

	for key, seq := range got {
		require.Len(t, seq, 50, key)
		for i, v := range seq {
			require.Equal(t, i, v, fmt.Sprintf("%s out of order", key))
		}
	}
	require.Equal(t, kp.lane("sim.1"), kp.lane("sim.1"))
}

func TestNewPoolValidation(t *testing.T) {
	_, err := NewPool(0, 1)
	require.Error(t, err)
	_, err = NewKeyedPool(0, 1)
	require.Error(t, err)
}
