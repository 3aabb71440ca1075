package dispatcher

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestDispatcherIsolatesFailures(t *testing.T) {
	t.Parallel()

	tasks := []Task[int]{
		{Key: "A", Do: func(context.Context) (int, error) { return 0, errors.New("site down") }},
		{Key: "B", Do: func(context.Context) (int, error) { return 3, nil }},
		{Key: "C", Do: func(context.Context) (int, error) { panic("boom") }},
	}

	results := New[int](4, zap.NewNop()).Run(context.Background(), tasks)
	require.Len(t, results, 3)

	require.Equal(t, "A", results[0].Key)
	require.False(t, results[0].OK())
	require.Equal(t, "B", results[1].Key)
	require.True(t, results[1].OK())
	require.Equal(t, 3, results[1].Value)
	require.Equal(t, "C", results[2].Key)
	require.ErrorContains(t, results[2].Err, "panicked")
}

func TestDispatcherBoundsConcurrency(t *testing.T) {
	t.Parallel()

	var active, peak int32
	tasks := make([]Task[struct{}], 10)
	for i := range tasks {
		tasks[i] = Task[struct{}]{Key: "t", Do: func(context.Context) (struct{}, error) {
			n := atomic.AddInt32(&active, 1)
			for {
				p := atomic.LoadInt32(&peak)
				if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
					break
				}
			}
			time.Sleep(20 * time.Millisecond)
			atomic.AddInt32(&active, -1)
			return struct{}{}, nil
		}}
	}

	results := New[struct{}](2, nil).Run(context.Background(), tasks)
	require.Len(t, results, 10)
	for _, r := range results {
		require.True(t, r.OK())
	}
	require.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
	require.Equal(t, int32(2), atomic.LoadInt32(&peak))
}

func TestDispatcherEmptyAndDefaults(t *testing.T) {
	t.Parallel()

	d := New[string](0, nil)
	require.Equal(t, DefaultWorkers, d.workers)
	require.Empty(t, d.Run(context.Background(), nil))
}

func TestDispatcherPassesContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	tasks := []Task[bool]{{Key: "ctx", Do: func(ctx context.Context) (bool, error) {
		return ctx.Err() != nil, nil
	}}}
	results := New[bool](1, nil).Run(ctx, tasks)
	require.True(t, results[0].Value)
}
