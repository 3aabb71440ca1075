package fetcher

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	collyfetcher "github.com/JakeFAU/jobscout/internal/fetcher/colly"
	"github.com/JakeFAU/jobscout/internal/fetcher/headless"
	"github.com/JakeFAU/jobscout/internal/hash/sha256"
	"github.com/JakeFAU/jobscout/internal/scraper"
)

type fakeSession struct {
	pages map[string]string
	err   error
	calls []string
}

func (s *fakeSession) Fetch(_ context.Context, url string) (collyfetcher.Response, error) {
	s.calls = append(s.calls, url)
	if s.err != nil {
		return collyfetcher.Response{}, s.err
	}
	body, ok := s.pages[url]
	if !ok {
		return collyfetcher.Response{}, errors.New("unexpected status 404")
	}
	return collyfetcher.Response{URL: url, StatusCode: 200, Body: []byte(body)}, nil
}

type fakeBrowser struct{ html string }

func (b fakeBrowser) Render(context.Context, string, time.Duration) (string, error) {
	return b.html, nil
}

func (fakeBrowser) Close() error { return nil }

type fakeResource struct {
	acquireErr error
	acquired   int
	released   int
}

func (r *fakeResource) Acquire(context.Context) (headless.Browser, error) {
	r.acquired++
	if r.acquireErr != nil {
		return nil, r.acquireErr
	}
	return fakeBrowser{html: "<html><body><p class=\"rendered\">js</p></body></html>"}, nil
}

func (r *fakeResource) Release() { r.released++ }

type countingDelay struct{ waits int }

func (d *countingDelay) Wait(context.Context) { d.waits++ }

type mapCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (c *mapCache) Get(_ context.Context, url string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.data[url]
	return b, ok, nil
}

func (c *mapCache) Set(_ context.Context, url string, body []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[url] = body
	return nil
}

type recordingArchive struct{ keys []string }

func (a *recordingArchive) PutObject(_ context.Context, path, _ string, r io.Reader) (string, error) {
	if _, err := io.ReadAll(r); err != nil {
		return "", err
	}
	a.keys = append(a.keys, path)
	return "mem://" + path, nil
}

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

func TestFetchSessionAppliesDelayOnSuccessAndFailure(t *testing.T) {
	t.Parallel()

	session := &fakeSession{pages: map[string]string{
		"https://remote.co/jobs/": "<html><body><h1>Jobs</h1></body></html>",
	}}
	delay := &countingDelay{}
	f := New(Options{Site: "Remote.co", Session: session, Delay: delay})

	doc, err := f.Fetch(context.Background(), scraper.FetchRequest{URL: "https://remote.co/jobs/"})
	require.NoError(t, err)
	require.Equal(t, "Jobs", doc.Find("h1").Text())
	require.Equal(t, 1, delay.waits)

	_, err = f.Fetch(context.Background(), scraper.FetchRequest{URL: "https://remote.co/missing"})
	require.ErrorIs(t, err, scraper.ErrFetch)
	require.Equal(t, 2, delay.waits)
}

func TestFetchDynamicUsesBrowser(t *testing.T) {
	t.Parallel()

	var resources []*fakeResource
	newBrowser := func() BrowserResource {
		r := &fakeResource{}
		resources = append(resources, r)
		return r
	}
	session := &fakeSession{}
	f := New(Options{Site: "FlexJobs", Session: session, Delay: &countingDelay{}, NewBrowser: newBrowser})

	doc, err := f.Fetch(context.Background(), scraper.FetchRequest{URL: "https://flexjobs.com/", RenderDynamic: true})
	require.NoError(t, err)
	require.Equal(t, "js", doc.Find(".rendered").Text())
	require.Empty(t, session.calls)
	require.Len(t, resources, 1)
	require.Equal(t, 1, resources[0].acquired)

	f.Release()
	require.Equal(t, 1, resources[0].released)
	require.Len(t, resources, 2, "a fresh resource is armed after release")

	f.Release()
	require.Equal(t, 1, resources[1].released)
}

func TestFetchUseHeadlessForcesBrowser(t *testing.T) {
	t.Parallel()

	resource := &fakeResource{}
	f := New(Options{
		Session:    &fakeSession{},
		Settings:   scraper.Settings{UseHeadless: true},
		NewBrowser: func() BrowserResource { return resource },
	})
	_, err := f.Fetch(context.Background(), scraper.FetchRequest{URL: "https://remote.co/jobs/"})
	require.NoError(t, err)
	require.Equal(t, 1, resource.acquired)
}

func TestFetchBrowserStartFailureIsResourceError(t *testing.T) {
	t.Parallel()

	resource := &fakeResource{acquireErr: errors.New("chrome not found")}
	f := New(Options{Session: &fakeSession{}, NewBrowser: func() BrowserResource { return resource }})
	_, err := f.Fetch(context.Background(), scraper.FetchRequest{URL: "https://flexjobs.com/", RenderDynamic: true})
	require.ErrorIs(t, err, scraper.ErrResource)

	noBrowser := New(Options{Session: &fakeSession{}})
	_, err = noBrowser.Fetch(context.Background(), scraper.FetchRequest{URL: "https://flexjobs.com/", RenderDynamic: true})
	require.ErrorIs(t, err, scraper.ErrResource)
	noBrowser.Release()
}

func TestFetchCacheHitSkipsNetworkAndDelay(t *testing.T) {
	t.Parallel()

	url := "https://weworkremotely.com/categories/remote-programming-jobs"
	session := &fakeSession{pages: map[string]string{url: "<html><body><li>one</li></body></html>"}}
	cache := &mapCache{data: map[string][]byte{}}
	delay := &countingDelay{}
	archive := &recordingArchive{}
	f := New(Options{
		Site:    "We Work Remotely",
		Session: session,
		Delay:   delay,
		Cache:   cache,
		Archive: archive,
		Hasher:  sha256.New(),
		Clock:   fixedClock{now: time.Date(2024, 5, 7, 12, 0, 0, 0, time.UTC)},
	})

	_, err := f.Fetch(context.Background(), scraper.FetchRequest{URL: url})
	require.NoError(t, err)
	doc, err := f.Fetch(context.Background(), scraper.FetchRequest{URL: url})
	require.NoError(t, err)
	require.Equal(t, "one", doc.Find("li").Text())

	require.Len(t, session.calls, 1)
	require.Equal(t, 1, delay.waits)
	require.Len(t, archive.keys, 1)
	require.Regexp(t, `^we-work-remotely/2024/05/07/[0-9a-f]{64}\.html$`, archive.keys[0])
}

func TestFetchTimeoutApplied(t *testing.T) {
	t.Parallel()

	var deadline time.Time
	session := sessionFunc(func(ctx context.Context, url string) (collyfetcher.Response, error) {
		deadline, _ = ctx.Deadline()
		return collyfetcher.Response{URL: url, StatusCode: 200, Body: []byte("<html></html>")}, nil
	})
	f := New(Options{Session: session, Settings: scraper.Settings{FetchTimeout: 2 * time.Second}})
	start := time.Now()
	_, err := f.Fetch(context.Background(), scraper.FetchRequest{URL: "https://remote.co/"})
	require.NoError(t, err)
	require.WithinDuration(t, start.Add(2*time.Second), deadline, 500*time.Millisecond)
}

type sessionFunc func(ctx context.Context, url string) (collyfetcher.Response, error)

func (f sessionFunc) Fetch(ctx context.Context, url string) (collyfetcher.Response, error) {
	return f(ctx, url)
}

func TestSlugAndArchiveKey(t *testing.T) {
	t.Parallel()

	require.Equal(t, "remote-co", Slug("Remote.co"))
	require.Equal(t, "we-work-remotely", Slug("  We Work Remotely! "))
	require.Equal(t, "remoteok/2023/12/01/abc.html", ArchiveKey("RemoteOK", time.Date(2023, 12, 1, 0, 0, 0, 0, time.UTC), "abc"))
}

func TestFetchRecordsSpanPerRequest(t *testing.T) {
	t.Parallel()

	recorder := tracetest.NewSpanRecorder()
	session := &fakeSession{pages: map[string]string{
		"https://remote.co/jobs/": "<html><body><h1>Jobs</h1></body></html>",
	}}
	f := New(Options{
		Site:           "Remote.co",
		Session:        session,
		Delay:          &countingDelay{},
		TracerProvider: sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)),
	})

	_, err := f.Fetch(context.Background(), scraper.FetchRequest{URL: "https://remote.co/jobs/"})
	require.NoError(t, err)
	_, err = f.Fetch(context.Background(), scraper.FetchRequest{URL: "https://remote.co/missing"})
	require.Error(t, err)

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	require.Equal(t, "fetcher.Fetch", spans[0].Name())
	require.Contains(t, spans[0].Attributes(), attribute.String("url.full", "https://remote.co/jobs/"))
	require.Contains(t, spans[0].Attributes(), attribute.String("jobscout.site", "Remote.co"))
	require.Equal(t, codes.Unset, spans[0].Status().Code)
	require.Equal(t, codes.Error, spans[1].Status().Code)
}
