package fetch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/nao1215/krk/internal/config"
	"golang.org/x/net/html/charset"
)

// DefaultRetryWait is the fixed wait between attempts.
const DefaultRetryWait = time.Second

// DefaultUserAgent is sent unless the document sets a User-Agent header.
const DefaultUserAgent = "krk"

// Fetcher retrieves page text with caching and retries.
// It is built once per run and is safe for concurrent use.
type Fetcher struct {
	client    *retryablehttp.Client
	headers   map[string]string
	cache     *Cache
	useCache  bool
	retryWait time.Duration
	transport http.RoundTripper
	logger    *slog.Logger
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithLogger sets the logger. Retry attempts are logged at debug level.
func WithLogger(logger *slog.Logger) Option {
	return func(f *Fetcher) {
		f.logger = logger
	}
}

// WithTransport replaces the HTTP transport. The proxy setting of the
// document is ignored when a transport is supplied.
func WithTransport(rt http.RoundTripper) Option {
	return func(f *Fetcher) {
		f.transport = rt
	}
}

// WithRetryWait overrides the wait between attempts.
func WithRetryWait(d time.Duration) Option {
	return func(f *Fetcher) {
		if d >= 0 {
			f.retryWait = d
		}
	}
}

// NewFetcher builds a Fetcher from the fetch section of a document.
func NewFetcher(cfg *config.FetchConfig, opts ...Option) (*Fetcher, error) {
	f := &Fetcher{
		headers:   cfg.Headers,
		useCache:  cfg.UseCache,
		retryWait: DefaultRetryWait,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	if cfg.CacheDir != "" {
		f.cache = NewCache(cfg.CacheDir)
	}
	for _, opt := range opts {
		opt(f)
	}

	transport := f.transport
	if transport == nil {
		base := http.DefaultTransport.(*http.Transport).Clone() //nolint:forcetypeassert // DefaultTransport is always *http.Transport
		if cfg.Proxy != "" {
			proxyURL, err := url.Parse(cfg.Proxy)
			if err != nil {
				return nil, fmt.Errorf("%w: %w", config.ErrInvalidProxy, err)
			}
			base.Proxy = http.ProxyURL(proxyURL)
		}
		transport = base
	}

	client := retryablehttp.NewClient()
	client.HTTPClient = &http.Client{
		Timeout:   cfg.TimeoutDuration(),
		Transport: transport,
	}
	client.RetryMax = cfg.Retries
	client.Logger = f.logger
	client.CheckRetry = retryTransportErrors
	client.Backoff = f.constantBackoff
	client.ErrorHandler = retryablehttp.PassthroughErrorHandler
	client.RequestLogHook = countAttempts
	f.client = client

	f.logger.Debug("fetcher configured",
		"timeout", cfg.TimeoutDuration(),
		"retries", cfg.Retries,
		"proxy", cfg.Proxy,
		"cache_dir", cfg.CacheDir,
		"use_cache", cfg.UseCache,
		headerGroup(cfg.Headers),
	)
	return f, nil
}

// headerGroup logs headers as a group so each one is sanitized by its name.
func headerGroup(headers map[string]string) slog.Attr {
	names := make([]string, 0, len(headers))
	for name := range headers {
		names = append(names, name)
	}
	sort.Strings(names)
	attrs := make([]any, 0, len(names))
	for _, name := range names {
		attrs = append(attrs, slog.String(name, headers[name]))
	}
	return slog.Group("headers", attrs...)
}

// Cache returns the response cache, or nil when no cache directory is set.
func (f *Fetcher) Cache() *Cache {
	return f.cache
}

// Fetch returns the text of rawURL.
//
// With caching enabled a cache hit is returned without any network access.
// Otherwise the page is requested, retrying transport failures, and the
// result is written to the cache directory whenever one is configured.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (string, error) {
	if f.useCache && f.cache != nil {
		text, ok, err := f.cache.Load(rawURL)
		if err != nil {
			return "", err
		}
		if ok {
			f.logger.Debug("cache hit", "url", rawURL)
			return text, nil
		}
	}

	text, err := f.get(ctx, rawURL)
	if err != nil {
		return "", err
	}

	if f.cache != nil {
		if err := f.cache.Store(rawURL, text); err != nil {
			return "", err
		}
	}
	return text, nil
}

func (f *Fetcher) get(ctx context.Context, rawURL string) (string, error) {
	var attempts atomic.Int32
	ctx = context.WithValue(ctx, attemptsKey{}, &attempts)

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("%w: GET %s: %w", ErrTransport, rawURL, err)
	}
	req.Header.Set("User-Agent", DefaultUserAgent)
	for k, v := range f.headers {
		req.Header.Set(k, v)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: GET %s failed after %d attempt(s): %w", ErrTransport, rawURL, attempts.Load(), err)
	}
	defer resp.Body.Close()

	f.logger.Debug("fetched page", "url", rawURL, "status", resp.StatusCode, "attempts", attempts.Load())

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w from %s: %w", ErrDecode, rawURL, err)
	}
	return decodeBody(raw, resp.Header.Get("Content-Type"), rawURL)
}

// decodeBody converts raw to UTF-8 using the Content-Type charset, a BOM or
// a meta tag. An empty body is an empty page.
func decodeBody(raw []byte, contentType, rawURL string) (string, error) {
	if len(raw) == 0 {
		return "", nil
	}
	body, err := charset.NewReader(bytes.NewReader(raw), contentType)
	if err != nil {
		return "", fmt.Errorf("%w from %s: %w", ErrDecode, rawURL, err)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return "", fmt.Errorf("%w from %s: %w", ErrDecode, rawURL, err)
	}
	return string(data), nil
}

func (f *Fetcher) constantBackoff(_, _ time.Duration, _ int, _ *http.Response) time.Duration {
	return f.retryWait
}

// retryTransportErrors retries only when no response was received.
// Any HTTP status, including 4xx and 5xx, ends the attempts.
func retryTransportErrors(ctx context.Context, _ *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	return err != nil, nil
}

type attemptsKey struct{}

func countAttempts(_ retryablehttp.Logger, req *http.Request, _ int) {
	if counter, ok := req.Context().Value(attemptsKey{}).(*atomic.Int32); ok {
		counter.Add(1)
	}
}
