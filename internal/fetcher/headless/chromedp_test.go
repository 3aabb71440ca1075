package headless

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/stretchr/testify/require"
)

type fakeBrowser struct {
	mu     sync.Mutex
	closed int
	urls   []string
}

func (b *fakeBrowser) Render(_ context.Context, url string, _ time.Duration) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.urls = append(b.urls, url)
	return "<html><body>" + url + "</body></html>", nil
}

func (b *fakeBrowser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed++
	return nil
}

type fakeLauncher struct {
	mu       sync.Mutex
	launches int
	err      error
	browser  *fakeBrowser
}

func (l *fakeLauncher) Launch(context.Context) (Browser, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.launches++
	if l.err != nil {
		return nil, l.err
	}
	return l.browser, nil
}

func TestResourceLifecycle(t *testing.T) {
	t.Parallel()

	launcher := &fakeLauncher{browser: &fakeBrowser{}}
	r := NewResource(launcher, nil)
	require.Equal(t, Uninitialized, r.State())

	// Releasing before use is a no-op.
	r.Release()
	require.Equal(t, Uninitialized, r.State())

	first, err := r.Acquire(context.Background())
	require.NoError(t, err)
	second, err := r.Acquire(context.Background())
	require.NoError(t, err)
	require.Same(t, first, second)
	require.Equal(t, 1, launcher.launches)
	require.Equal(t, Running, r.State())

	html, err := r.Render(context.Background(), "https://example.com/jobs", time.Millisecond)
	require.NoError(t, err)
	require.Contains(t, html, "https://example.com/jobs")
	require.Equal(t, 1, launcher.launches)

	r.Release()
	r.Release()
	require.Equal(t, Closed, r.State())
	require.Equal(t, 1, launcher.browser.closed)

	_, err = r.Acquire(context.Background())
	require.ErrorIs(t, err, ErrBrowserClosed)
	require.Equal(t, 1, launcher.launches)
}

func TestResourceConcurrentAcquireStartsOnce(t *testing.T) {
	t.Parallel()

	launcher := &fakeLauncher{browser: &fakeBrowser{}}
	r := NewResource(launcher, nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.Acquire(context.Background())
			require.NoError(t, err)
		}()
	}
	wg.Wait()
	require.Equal(t, 1, launcher.launches)
}

func TestResourceLaunchFailure(t *testing.T) {
	t.Parallel()

	boom := errors.New("chrome missing")
	r := NewResource(&fakeLauncher{err: boom}, nil)

	_, err := r.Render(context.Background(), "https://example.com", 0)
	require.ErrorIs(t, err, boom)
	require.Equal(t, Uninitialized, r.State())

	r.Release()
	require.Equal(t, Uninitialized, r.State())
}

func TestResourceWithoutLauncher(t *testing.T) {
	t.Parallel()

	_, err := NewResource(nil, nil).Acquire(context.Background())
	require.Error(t, err)
}

func TestStateString(t *testing.T) {
	t.Parallel()

	require.Equal(t, "uninitialized", Uninitialized.String())
	require.Equal(t, "running", Running.String())
	require.Equal(t, "closed", Closed.String())
	require.Equal(t, "state(7)", State(7).String())
}

func TestChromedpLauncherOptions(t *testing.T) {
	t.Parallel()

	base := len(chromedp.DefaultExecAllocatorOptions)
	plain := NewChromedpLauncher(Config{}).allocatorOptions()
	custom := NewChromedpLauncher(Config{UserAgent: "jobscout-test", ExecPath: "/usr/bin/chromium"}).allocatorOptions()

	require.Greater(t, len(plain), base)
	require.Len(t, custom, len(plain)+2)
}
