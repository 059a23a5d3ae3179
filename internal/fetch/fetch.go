// Package fetch downloads image bytes for the meme library.
package fetch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/gabriel-vasile/mimetype"

	domainerrors "github.com/feiju-bot/feiju/internal/errors"
)

const (
	// DefaultTimeout bounds one Fetch call, page resolution included.
	DefaultTimeout = 10 * time.Second

	// DefaultMaxBytes limits download size to prevent memory exhaustion.
	DefaultMaxBytes = 20 * 1024 * 1024 // 20MB

	// maxPageBytes limits how much of an HTML page is scanned for og:image.
	maxPageBytes = 1024 * 1024

	userAgent = "feiju/1.0 (+https://github.com/feiju-bot/feiju)"
)

// Fetcher retrieves the bytes behind a URL.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) ([]byte, error)
}

// Cache stores downloaded bodies by URL.
type Cache interface {
	Get(key string) ([]byte, bool, error)
	Set(key string, value []byte) error
}

// Limiter throttles requests per host.
type Limiter interface {
	Wait(ctx context.Context, key string) error
}

// Options configures a Client. Zero values select the defaults.
type Options struct {
	Timeout    time.Duration
	MaxBytes   int64
	Limiter    Limiter
	Cache      Cache
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client is the HTTP Fetcher. It never retries: a timeout or a non-2xx
// answer is reported as a network failure and the caller decides.
type Client struct {
	httpClient *http.Client
	timeout    time.Duration
	maxBytes   int64
	limiter    Limiter
	cache      Cache
	logger     *slog.Logger
}

var _ Fetcher = (*Client)(nil)

// NewClient creates a fetch client.
func NewClient(opts Options) *Client {
	c := &Client{
		httpClient: opts.HTTPClient,
		timeout:    opts.Timeout,
		maxBytes:   opts.MaxBytes,
		limiter:    opts.Limiter,
		cache:      opts.Cache,
		logger:     opts.Logger,
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	if c.maxBytes <= 0 {
		c.maxBytes = DefaultMaxBytes
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: c.timeout}
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// Fetch downloads rawURL. When the URL serves an HTML page, the page's
// og:image or twitter:image is followed once.
func (c *Client) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	u, err := parseURL(rawURL)
	if err != nil {
		return nil, err
	}

	if c.cache != nil {
		if data, ok, err := c.cache.Get(u.String()); err != nil {
			c.logger.Warn("fetch cache read failed", "url", u.Redacted(), "error", err)
		} else if ok {
			return data, nil
		}
	}

	fetchCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	data, err := c.get(fetchCtx, u, c.maxBytes)
	if err != nil {
		return nil, err
	}

	if isHTML(data) {
		imageURL, ok := extractImageURL(data, u)
		if !ok {
			return nil, domainerrors.CorruptMedia("page has no image")
		}
		c.logger.Debug("following page image", "page", u.Redacted(), "image", imageURL.Redacted())
		data, err = c.get(fetchCtx, imageURL, c.maxBytes)
		if err != nil {
			return nil, err
		}
	}

	if c.cache != nil {
		if err := c.cache.Set(u.String(), data); err != nil {
			c.logger.Warn("fetch cache write failed", "url", u.Redacted(), "error", err)
		}
	}
	return data, nil
}

func parseURL(rawURL string) (*url.URL, error) {
	if rawURL == "" {
		return nil, domainerrors.Validation("empty URL")
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, domainerrors.Validationf("invalid URL: %v", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, domainerrors.Validationf("unsupported URL scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, domainerrors.Validation("URL has no host")
	}
	return u, nil
}

// get performs one GET and reads at most limit bytes.
func (c *Client) get(ctx context.Context, u *url.URL, limit int64) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, u.Hostname()); err != nil {
			return nil, c.networkFailure(u, err, "rate limit wait")
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, domainerrors.Validationf("create request: %v", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "image/*, text/html;q=0.5, */*;q=0.1")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, c.networkFailure(u, err, "download")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, c.networkFailure(u, fmt.Errorf("status %d", resp.StatusCode), "download failed")
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, c.networkFailure(u, err, "read body")
	}
	if int64(len(data)) > limit {
		return nil, domainerrors.Validationf("download exceeds %d bytes", limit)
	}
	if len(data) == 0 {
		return nil, domainerrors.CorruptMedia("empty response body")
	}
	return data, nil
}

func (c *Client) networkFailure(u *url.URL, err error, msg string) error {
	c.logger.Warn("fetch failed", "url", u.Redacted(), "step", msg, "error", err)
	return domainerrors.NetworkFailure(err, msg)
}

// isHTML sniffs the body; Content-Type headers from image hosts are often wrong.
func isHTML(data []byte) bool {
	return mimetype.Detect(data).Is("text/html")
}
