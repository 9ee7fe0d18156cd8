// Package collyfetcher retrieves GEO accession pages using gocolly.
package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/geo-harvester/internal/geo"
	"github.com/JakeFAU/geo-harvester/internal/metrics"
)

// DefaultBaseURL is the GEO accession viewer endpoint.
const DefaultBaseURL = "https://www.ncbi.nlm.nih.gov/geo/query/acc.cgi"

// Config controls collector behavior.
type Config struct {
	BaseURL       string
	UserAgent     string
	RespectRobots bool
	// Timeout bounds each request; zero means no client-side timeout.
	Timeout time.Duration
}

// Limiter throttles outgoing requests.
type Limiter interface {
	Wait(ctx context.Context, url string) error
}

// Fetcher implements geo.DocumentFetcher by POSTing the accession form.
type Fetcher struct {
	cfg           Config
	limiter       Limiter
	logger        *zap.Logger
	baseCollector *colly.Collector
}

type collectorHooks interface {
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// Option customizes a Fetcher.
type Option func(*Fetcher)

// WithLimiter shares a politeness limiter across fetches.
func WithLimiter(l Limiter) Option {
	return func(f *Fetcher) { f.limiter = l }
}

// WithLogger attaches a logger.
func WithLogger(logger *zap.Logger) Option {
	return func(f *Fetcher) { f.logger = logger }
}

// New builds a Fetcher.
func New(cfg Config, opts ...Option) *Fetcher {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	c := colly.NewCollector(colly.Async(false))
	c.WithTransport(newHTTPTransport())
	// Clones share the backend client, so the timeout is set once here.
	c.SetRequestTimeout(cfg.Timeout)

	f := &Fetcher{
		cfg:           cfg,
		logger:        zap.NewNop(),
		baseCollector: c,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch posts acc=<key> to the accession viewer and returns the page. Any
// non-success response is reported as *geo.FetchError.
func (f *Fetcher) Fetch(ctx context.Context, key string) (geo.Document, error) {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx, f.cfg.BaseURL); err != nil {
			return geo.Document{}, &geo.FetchError{Key: key, URL: f.cfg.BaseURL, Err: err}
		}
	}

	var (
		result   geo.Document
		fetchErr error
	)
	start := time.Now()
	collector := f.buildCollector()
	f.configureCollectorHooks(collector, key, start, &result, &fetchErr)

	err := f.runCollector(ctx, collector, key, &fetchErr)
	metrics.ObserveFetch(key, fetchStatus(result, err), time.Since(start))
	if err != nil {
		f.logger.Debug("accession fetch failed", zap.String("accession", key), zap.Error(err))
		return geo.Document{}, err
	}
	return result, nil
}

func (f *Fetcher) buildCollector() *colly.Collector {
	collector := f.baseCollector.Clone()
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	collector.IgnoreRobotsTxt = !f.cfg.RespectRobots
	// The same accession may be fetched again by a later refresh.
	collector.AllowURLRevisit = true
	return collector
}

func (f *Fetcher) configureCollectorHooks(
	hooks collectorHooks,
	key string,
	start time.Time,
	result *geo.Document,
	fetchErr *error,
) {
	hooks.OnResponse(func(r *colly.Response) {
		*result = geo.Document{
			Key:        key,
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Body:       append([]byte(nil), r.Body...),
			Duration:   time.Since(start),
		}
	})

	hooks.OnError(func(r *colly.Response, err error) {
		fe := &geo.FetchError{Key: key, URL: f.cfg.BaseURL, Err: err}
		if r != nil {
			fe.StatusCode = r.StatusCode
			result.StatusCode = r.StatusCode
		}
		*fetchErr = fe
	})
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, key string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Post(f.cfg.BaseURL, map[string]string{"acc": key})
	}()

	select {
	case <-ctx.Done():
		return &geo.FetchError{Key: key, URL: f.cfg.BaseURL, Err: fmt.Errorf("colly fetch canceled: %w", ctx.Err())}
	case err := <-done:
		if *fetchErr != nil {
			return *fetchErr
		}
		if err != nil {
			var fe *geo.FetchError
			if errors.As(err, &fe) {
				return fe
			}
			return &geo.FetchError{Key: key, URL: f.cfg.BaseURL, Err: fmt.Errorf("colly post failed: %w", err)}
		}
		return nil
	}
}

// fetchStatus reports the status code to record for a finished fetch. On
// error the collector callbacks may still be running, so result is not read.
func fetchStatus(result geo.Document, err error) int {
	if err == nil {
		return result.StatusCode
	}
	var fe *geo.FetchError
	if errors.As(err, &fe) {
		return fe.StatusCode
	}
	return 0
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   16,
		IdleConnTimeout:       90 * time.Second,
	}
}
