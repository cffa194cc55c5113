// Package fetch downloads web pages and extracts their visible text.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hubenschmidt/go-pagesearch/core"
	"github.com/rs/zerolog"
	"golang.org/x/net/html/charset"
)

const (
	DefaultTimeout   = 10 * time.Second
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"
	DefaultMaxBytes  = 10 << 20
)

// Fetcher retrieves HTML over HTTP.
type Fetcher struct {
	client    *http.Client
	userAgent string
	maxBytes  int64
	logger    zerolog.Logger
}

type Option func(*Fetcher)

func WithTimeout(d time.Duration) Option {
	return func(f *Fetcher) {
		if d > 0 {
			f.client.Timeout = d
		}
	}
}

func WithUserAgent(ua string) Option {
	return func(f *Fetcher) {
		if ua != "" {
			f.userAgent = ua
		}
	}
}

// WithMaxBytes caps how much of a response body is read.
func WithMaxBytes(n int64) Option {
	return func(f *Fetcher) {
		if n > 0 {
			f.maxBytes = n
		}
	}
}

// WithHTTPClient replaces the underlying client. Its timeout is kept as is.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) {
		f.client = c
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(f *Fetcher) {
		f.logger = l
	}
}

func New(opts ...Option) *Fetcher {
	f := &Fetcher{
		client:    &http.Client{Timeout: DefaultTimeout},
		userAgent: DefaultUserAgent,
		maxBytes:  DefaultMaxBytes,
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch returns the page body decoded to UTF-8. Transport errors and non-2xx
// responses are reported as core.ErrUpstreamFetch.
func (f *Fetcher) Fetch(ctx context.Context, url string) (string, error) {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", core.NewOpError("fetch", url, core.Wrap(core.ErrInvalidInput, err))
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", core.NewOpError("fetch", url, core.Wrap(core.ErrUpstreamFetch, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		err := fmt.Errorf("%w: status %d", core.ErrUpstreamFetch, resp.StatusCode)
		return "", core.WithContext(core.NewOpError("fetch", url, err), "status", resp.StatusCode)
	}

	body, err := charset.NewReader(io.LimitReader(resp.Body, f.maxBytes), resp.Header.Get("Content-Type"))
	if err != nil {
		return "", core.NewOpError("fetch", url, core.Wrap(core.ErrUpstreamFetch, err))
	}

	var sb strings.Builder
	n, err := io.Copy(&sb, body)
	if err != nil {
		return "", core.NewOpError("fetch", url, core.Wrap(core.ErrUpstreamFetch, fmt.Errorf("read body: %w", err)))
	}

	f.logger.Debug().
		Str("url", url).
		Int("status", resp.StatusCode).
		Int64("bytes", n).
		Dur("elapsed", time.Since(start)).
		Msg("fetched page")

	return sb.String(), nil
}

// FetchText fetches a page and returns its cleaned visible text. A page that
// yields no text is core.ErrFetchOrParse.
func (f *Fetcher) FetchText(ctx context.Context, url string) (string, error) {
	page, err := f.Fetch(ctx, url)
	if err != nil {
		return "", err
	}

	text, err := ExtractText(page)
	if err != nil {
		return "", core.NewOpError("fetch.parse", url, core.Wrap(core.ErrFetchOrParse, err))
	}
	if text == "" {
		return "", core.NewOpError("fetch.parse", url, core.ErrFetchOrParse)
	}
	return text, nil
}
