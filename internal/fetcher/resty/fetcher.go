// Package restyfetcher performs plain GET requests against NCBI pages that do
// not need the accession form: platform listings and PubMed abstracts.
package restyfetcher

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/geo-harvester/internal/geo"
	"github.com/JakeFAU/geo-harvester/internal/metrics"
)

const (
	// DefaultPubMedURL is the PubMed article root.
	DefaultPubMedURL = "https://pubmed.ncbi.nlm.nih.gov"
	// NoAbstract is returned when an article page has no English abstract.
	NoAbstract = "None Available"

	abstractSelector = "div.abstract-content#eng-abstract"
)

// Limiter throttles outgoing requests.
type Limiter interface {
	Wait(ctx context.Context, url string) error
}

// Config controls the underlying resty client.
type Config struct {
	UserAgent string
	Timeout   time.Duration
	PubMedURL string
}

// Client implements geo.TextFetcher.
type Client struct {
	http      *resty.Client
	pubMedURL string
	limiter   Limiter
	logger    *zap.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithLimiter shares a politeness limiter with the client.
func WithLimiter(l Limiter) Option {
	return func(c *Client) { c.limiter = l }
}

// WithLogger attaches a logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// New builds a Client.
func New(cfg Config, opts ...Option) *Client {
	client := resty.New()
	if cfg.UserAgent != "" {
		client.SetHeader("User-Agent", cfg.UserAgent)
	}
	if cfg.Timeout > 0 {
		client.SetTimeout(cfg.Timeout)
	}
	pubMed := strings.TrimRight(cfg.PubMedURL, "/")
	if pubMed == "" {
		pubMed = DefaultPubMedURL
	}

	c := &Client{http: client, pubMedURL: pubMed, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get fetches rawURL and returns the body. Non-2xx responses become
// *geo.FetchError.
func (c *Client) Get(ctx context.Context, rawURL string) ([]byte, error) {
	key := accessionFromURL(rawURL)
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, rawURL); err != nil {
			return nil, &geo.FetchError{Key: key, URL: rawURL, Err: err}
		}
	}

	start := time.Now()
	res, err := c.http.R().SetContext(ctx).Get(rawURL)
	if err != nil {
		metrics.ObserveFetch(key, 0, time.Since(start))
		return nil, &geo.FetchError{Key: key, URL: rawURL, Err: fmt.Errorf("resty get: %w", err)}
	}
	metrics.ObserveFetch(key, res.StatusCode(), time.Since(start))
	if res.IsError() {
		return nil, &geo.FetchError{Key: key, URL: rawURL, StatusCode: res.StatusCode()}
	}
	return res.Body(), nil
}

// Abstract returns the English abstract text of a PubMed article, or
// NoAbstract when the page carries none.
func (c *Client) Abstract(ctx context.Context, pmid string) (string, error) {
	pmid = strings.TrimSpace(pmid)
	if pmid == "" {
		return "", fmt.Errorf("abstract: empty citation id")
	}
	body, err := c.Get(ctx, c.pubMedURL+"/"+url.PathEscape(pmid)+"/")
	if err != nil {
		return "", err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("abstract %s: %w: %w", pmid, geo.ErrParse, err)
	}
	sel := doc.Find(abstractSelector).First()
	if sel.Length() == 0 {
		c.logger.Debug("no abstract on article page", zap.String("pmid", pmid))
		return NoAbstract, nil
	}
	return strings.TrimSpace(sel.Text()), nil
}

// accessionFromURL recovers the acc query value for metrics labels.
func accessionFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Query().Get("acc")
}
