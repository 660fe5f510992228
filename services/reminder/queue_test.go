package reminder_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"avaremind-backend/services/reminder"

	"github.com/stretchr/testify/require"
)

func TestQueueRunsTasksInOrder(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	queue := reminder.NewQueue(ctx, 4)

	var order atomic.Int64
	var sawFirst, sawSecond int64
	first := queue.Submit(func(ctx context.Context) error {
		sawFirst = order.Add(1)
		return nil
	})
	second := queue.Submit(func(ctx context.Context) error {
		sawSecond = order.Add(1)
		return nil
	})

	require.NoError(t, first.Await(ctx, time.Second))
	require.NoError(t, second.Await(ctx, time.Second))
	require.Equal(t, int64(1), sawFirst)
	require.Equal(t, int64(2), sawSecond)
}

func TestQueuePropagatesTaskError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	queue := reminder.NewQueue(ctx, 1)

	boom := errors.New("scrape blew up")
	future := queue.Submit(func(ctx context.Context) error {
		return boom
	})
	require.ErrorIs(t, future.Await(ctx, time.Second), boom)
}

func TestAwaitIsBounded(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	queue := reminder.NewQueue(ctx, 2)

	release := make(chan struct{})
	queue.Submit(func(ctx context.Context) error {
		<-release
		return nil
	})
	stuck := queue.Submit(func(ctx context.Context) error {
		return nil
	})

	err := stuck.Await(ctx, time.Millisecond*50)
	require.ErrorIs(t, err, reminder.ErrAwaitTimeout)

	close(release)
	require.NoError(t, stuck.Await(ctx, time.Second))
}
