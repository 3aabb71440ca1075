package politeness

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type recordingSleeper struct {
	calls []time.Duration
}

func (r *recordingSleeper) Sleep(_ context.Context, d time.Duration) {
	r.calls = append(r.calls, d)
}

func TestDelayNextStaysInRange(t *testing.T) {
	t.Parallel()

	d := New(2*time.Second, time.Second)
	for i := 0; i < 200; i++ {
		got := d.Next()
		require.GreaterOrEqual(t, got, 2*time.Second)
		require.Less(t, got, 3*time.Second)
	}
}

func TestDelayWaitUsesSleeper(t *testing.T) {
	t.Parallel()

	rec := &recordingSleeper{}
	d := New(time.Second, 0).WithSleeper(rec)
	d.Wait(context.Background())
	d.Wait(context.Background())
	require.Equal(t, []time.Duration{time.Second, time.Second}, rec.calls)

	var nilDelay *Delay
	nilDelay.Wait(context.Background())
}

func TestTimerSleeperHonorsContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	TimerSleeper{}.Sleep(ctx, time.Minute)
	require.Less(t, time.Since(start), time.Second)

	start = time.Now()
	TimerSleeper{}.Sleep(context.Background(), 10*time.Millisecond)
	require.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)
}
