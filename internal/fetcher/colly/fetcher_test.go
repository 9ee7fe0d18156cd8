package collyfetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/geo-harvester/internal/geo"
)

func TestFetcherBuildCollector(t *testing.T) {
	t.Parallel()

	f := New(Config{UserAgent: "coverage-agent", Timeout: time.Second})
	collector := f.buildCollector()
	if collector.UserAgent != "coverage-agent" {
		t.Fatalf("expected user agent override, got %q", collector.UserAgent)
	}
	if !collector.IgnoreRobotsTxt {
		t.Fatal("expected robots txt to be ignored by default")
	}
	if !collector.AllowURLRevisit {
		t.Fatal("expected revisits to be allowed")
	}

	f = New(Config{RespectRobots: true})
	if f.buildCollector().IgnoreRobotsTxt {
		t.Fatal("expected robots txt to be respected when configured")
	}
	if f.cfg.BaseURL != DefaultBaseURL {
		t.Fatalf("expected default base url, got %q", f.cfg.BaseURL)
	}
}

func TestConfigureCollectorHooks(t *testing.T) {
	t.Parallel()

	f := New(Config{BaseURL: "https://example.com/acc.cgi"})
	var result geo.Document
	var fetchErr error

	hooks := &stubHooks{}
	f.configureCollectorHooks(hooks, "GSE1", time.Now(), &result, &fetchErr)
	if hooks.onResponse == nil || hooks.onError == nil {
		t.Fatal("expected hooks to be registered")
	}

	hooks.onResponse(&colly.Response{
		StatusCode: http.StatusOK,
		Body:       []byte("body"),
		Request:    &colly.Request{URL: mustParseURL(t, "https://example.com/acc.cgi")},
	})
	if result.StatusCode != http.StatusOK || string(result.Body) != "body" || result.Key != "GSE1" {
		t.Fatalf("unexpected result: %+v", result)
	}

	hooks.onError(&colly.Response{StatusCode: http.StatusNotFound}, errors.New("Not Found"))
	var fe *geo.FetchError
	if !errors.As(fetchErr, &fe) {
		t.Fatalf("expected fetch error, got %v", fetchErr)
	}
	if fe.StatusCode != http.StatusNotFound || fe.Key != "GSE1" {
		t.Fatalf("unexpected fetch error: %+v", fe)
	}

	fetchErr = nil
	hooks.onError(nil, errors.New("boom"))
	if !errors.Is(fetchErr, geo.ErrFetch) {
		t.Fatalf("expected ErrFetch, got %v", fetchErr)
	}
}

func TestFetchPostsAccessionForm(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, r.ParseForm())
		_, _ = w.Write([]byte("<html>" + r.PostForm.Get("acc") + "</html>"))
	}))
	t.Cleanup(srv.Close)

	lim := &countingLimiter{}
	f := New(Config{BaseURL: srv.URL, Timeout: 5 * time.Second}, WithLimiter(lim))

	doc, err := f.Fetch(context.Background(), "GSE42")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, doc.StatusCode)
	require.Equal(t, "<html>GSE42</html>", string(doc.Body))
	require.Equal(t, "GSE42", doc.Key)

	// A second fetch of the same accession must not be deduplicated.
	_, err = f.Fetch(context.Background(), "GSE42")
	require.NoError(t, err)
	require.EqualValues(t, 2, lim.calls.Load())
}

func TestFetchReportsStatusFailures(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "missing", http.StatusNotFound)
	}))
	t.Cleanup(srv.Close)

	f := New(Config{BaseURL: srv.URL, Timeout: 5 * time.Second})
	_, err := f.Fetch(context.Background(), "GSE404")
	require.ErrorIs(t, err, geo.ErrFetch)

	var fe *geo.FetchError
	require.ErrorAs(t, err, &fe)
	require.Equal(t, http.StatusNotFound, fe.StatusCode)
	require.Equal(t, "GSE404", fe.Key)
}

func TestFetchHonorsContextCancellation(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-release
	}))
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := New(Config{BaseURL: srv.URL}).Fetch(ctx, "GSE1")
	require.ErrorIs(t, err, geo.ErrFetch)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestFetchStopsWhenLimiterFails(t *testing.T) {
	t.Parallel()

	f := New(Config{BaseURL: "http://127.0.0.1:1"}, WithLimiter(&countingLimiter{err: context.Canceled}))
	_, err := f.Fetch(context.Background(), "GSE1")
	require.ErrorIs(t, err, geo.ErrFetch)
	require.ErrorIs(t, err, context.Canceled)
}

func mustParseURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	return u
}

type stubHooks struct {
	onResponse colly.ResponseCallback
	onError    colly.ErrorCallback
}

func (s *stubHooks) OnResponse(cb colly.ResponseCallback) {
	s.onResponse = cb
}

func (s *stubHooks) OnError(cb colly.ErrorCallback) {
	s.onError = cb
}

type countingLimiter struct {
	calls atomic.Int32
	err   error
}

func (l *countingLimiter) Wait(context.Context, string) error {
	l.calls.Add(1)
	return l.err
}

func TestFetchStatusIgnoresResultOnError(t *testing.T) {
	t.Parallel()

	late := geo.Document{StatusCode: http.StatusOK}
	canceled := &geo.FetchError{Key: "GSE1", Err: context.Canceled}
	require.Equal(t, 0, fetchStatus(late, canceled))

	unavailable := &geo.FetchError{Key: "GSE1", StatusCode: http.StatusServiceUnavailable, Err: errors.New("503")}
	require.Equal(t, http.StatusServiceUnavailable, fetchStatus(late, unavailable))

	require.Equal(t, http.StatusOK, fetchStatus(late, nil))
	require.Equal(t, 0, fetchStatus(late, errors.New("boom")))
}
