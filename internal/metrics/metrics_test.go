package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSanitizeSite(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"standard http", "http://example.com/path", "example.com"},
		{"standard https", "https://Example.com/path", "example.com"},
		{"no scheme", "example.com/path", "example.com"},
		{"just host", "example.com", "example.com"},
		{"host with port", "example.com:8080", "example.com"},
		{"ip address", "192.168.1.1", "192.168.1.1"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeSite(tc.input); got != tc.expected {
				t.Errorf("SanitizeSite(%q) = %q; want %q", tc.input, got, tc.expected)
			}
		})
	}
}

func TestInit(t *testing.T) {
	// Call Init multiple times to test idempotency.
	Init()
	Init()

	if fetchesTotal == nil || listingsPersistedTotal == nil ||
		httpRequestsTotal == nil || httpRequestDurationSeconds == nil {
		t.Fatal("Init() did not initialize metrics collectors")
	}
}

func TestObserveFetch(t *testing.T) {
	ObserveFetch("https://Remote.co/jobs/page/2/", "session", "success", 512, 150*time.Millisecond)
	ObserveFetch("https://remote.co/jobs/", "session", "success", 0, 10*time.Millisecond)

	if val := testutil.ToFloat64(fetchesTotal.WithLabelValues("remote.co", "session", "success")); val != 2 {
		t.Errorf("Expected fetchesTotal to be 2, got %f", val)
	}
	if val := testutil.ToFloat64(fetchBytesTotal.WithLabelValues("remote.co")); val != 512 {
		t.Errorf("Expected fetchBytesTotal to be 512, got %f", val)
	}
}

func TestObservePersisted(t *testing.T) {
	ObservePersisted("FlexJobs", 3, 1)
	ObservePersistFailure("FlexJobs")
	ObserveScraped("FlexJobs", 4)
	ObserveSiteRun("FlexJobs", "success")

	if val := testutil.ToFloat64(listingsPersistedTotal.WithLabelValues("FlexJobs", "inserted")); val != 3 {
		t.Errorf("Expected 3 inserted, got %f", val)
	}
	if val := testutil.ToFloat64(listingsPersistedTotal.WithLabelValues("FlexJobs", "updated")); val != 1 {
		t.Errorf("Expected 1 updated, got %f", val)
	}
	if val := testutil.ToFloat64(persistFailuresTotal.WithLabelValues("FlexJobs")); val != 1 {
		t.Errorf("Expected 1 failure, got %f", val)
	}
	if val := testutil.ToFloat64(listingsScrapedTotal.WithLabelValues("FlexJobs")); val != 4 {
		t.Errorf("Expected 4 scraped, got %f", val)
	}
	if val := testutil.ToFloat64(siteRunsTotal.WithLabelValues("FlexJobs", "success")); val != 1 {
		t.Errorf("Expected 1 run, got %f", val)
	}
}

func TestActiveWorkers(t *testing.T) {
	IncActiveWorkers()
	IncActiveWorkers()
	DecActiveWorkers()
	if val := testutil.ToFloat64(activeWorkers); val != 1 {
		t.Errorf("Expected 1 active worker, got %f", val)
	}
	DecActiveWorkers()
}

// Fuzz test for SanitizeSite.
func FuzzSanitizeSite(f *testing.F) {
	testcases := []string{"http://example.com", "https://google.com", "ftp://example.com"}
	for _, tc := range testcases {
		f.Add(tc)
	}
	f.Fuzz(func(t *testing.T, orig string) {
		sanitized := SanitizeSite(orig)
		if sanitized == "" {
			t.Errorf("SanitizeSite(%q) returned an empty string", orig)
		}
	})
}
