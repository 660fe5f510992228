package sessionpool

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAcquireRelease(t *testing.T) {
	ctx := context.Background()
	pool := New(1)

	require.NoError(t, pool.Acquire(ctx))

	err := pool.AcquireTimeout(ctx, time.Millisecond*50)
	require.ErrorIs(t, err, ErrExhausted)

	pool.Release()
	require.NoError(t, pool.AcquireTimeout(ctx, time.Millisecond*50))
	pool.Release()
}

func TestAcquireRespectsContext(t *testing.T) {
	pool := New(1)
	require.NoError(t, pool.Acquire(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond*50)
	defer cancel()

	err := pool.Acquire(ctx)
	require.True(t, errors.Is(err, context.DeadlineExceeded))
	pool.Release()
}

func TestNoDoubleHandOut(t *testing.T) {
	const capacity = 3
	pool := New(capacity)

	var mu sync.Mutex
	held := 0
	maxHeld := 0

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := pool.With(context.Background(), 0, func(ctx context.Context) error {
				mu.Lock()
				held++
				if held > maxHeld {
					maxHeld = held
				}
				mu.Unlock()

				time.Sleep(time.Millisecond * 5)

				mu.Lock()
				held--
				mu.Unlock()
				return nil
			})
			if err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	require.LessOrEqual(t, maxHeld, capacity)
}

func TestReleaseWithoutAcquirePanics(t *testing.T) {
	pool := New(1)
	require.Panics(t, func() { pool.Release() })
}

func TestWithReleasesOnError(t *testing.T) {
	pool := New(1)
	boom := errors.New("boom")

	err := pool.With(context.Background(), 0, func(ctx context.Context) error {
		return boom
	})
	require.ErrorIs(t, err, boom)

	// slot must be free again
	require.NoError(t, pool.AcquireTimeout(context.Background(), time.Millisecond*50))
	pool.Release()
}
