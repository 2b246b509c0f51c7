package fetch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

const (
	// DefaultTimeout bounds a single request when no client is supplied.
	DefaultTimeout = 60 * time.Second

	// DefaultMaxBodySize is the largest body HTTPFetcher reads. Inlined
	// resources end up base64-encoded inside one document, so anything
	// bigger than this is not worth embedding.
	DefaultMaxBodySize = 32 * 1024 * 1024

	// DefaultUserAgent is sent when no user agent is configured.
	DefaultUserAgent = "freezedry/1.0 (+https://github.com/nao1215/freezedry)"

	// maxRedirects matches the limit net/http applies by default.
	maxRedirects = 10
)

// SiteHeaders returns the cookie and extra headers to send to host.
// It is called for every request, including each redirect hop's target.
type SiteHeaders func(host string) (cookie string, headers map[string]string)

// HTTPFetcher fetches http(s) URLs with an http.Client and decodes data:
// URLs locally.
type HTTPFetcher struct {
	client      *http.Client
	userAgent   string
	maxBodySize int64
	siteHeaders SiteHeaders
	logger      *slog.Logger
}

// HTTPOption configures an HTTPFetcher.
type HTTPOption func(*HTTPFetcher)

// WithHTTPClient sets the client used for requests. Pass a Tor client to
// archive .onion pages.
func WithHTTPClient(client *http.Client) HTTPOption {
	return func(f *HTTPFetcher) {
		if client != nil {
			f.client = client
		}
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) HTTPOption {
	return func(f *HTTPFetcher) {
		if ua != "" {
			f.userAgent = ua
		}
	}
}

// WithMaxBodySize sets the largest body that will be read.
// Zero or negative values keep the default.
func WithMaxBodySize(n int64) HTTPOption {
	return func(f *HTTPFetcher) {
		if n > 0 {
			f.maxBodySize = n
		}
	}
}

// WithSiteHeaders sets the per-host cookie and header lookup.
func WithSiteHeaders(lookup SiteHeaders) HTTPOption {
	return func(f *HTTPFetcher) {
		f.siteHeaders = lookup
	}
}

// WithHTTPLogger sets the logger.
func WithHTTPLogger(logger *slog.Logger) HTTPOption {
	return func(f *HTTPFetcher) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// NewHTTPFetcher creates an HTTPFetcher.
func NewHTTPFetcher(opts ...HTTPOption) *HTTPFetcher {
	f := &HTTPFetcher{
		client:      &http.Client{Timeout: DefaultTimeout},
		userAgent:   DefaultUserAgent,
		maxBodySize: DefaultMaxBodySize,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch retrieves rawURL. Redirects are followed and the final URL is
// reported in the response. Non-2xx answers fail with ErrHTTPStatus.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if IsDataURL(rawURL) {
		return DecodeDataURL(rawURL)
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL %q: %w", rawURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedScheme, u.Scheme)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	f.decorate(req)

	client := f.redirectingClient()
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %d for %s", ErrHTTPStatus, resp.StatusCode, rawURL)
	}
	if resp.ContentLength > f.maxBodySize {
		return nil, fmt.Errorf("%w: %d bytes for %s", ErrBodyTooLarge, resp.ContentLength, rawURL)
	}

	// Read one byte past the limit so an oversized body is detected rather
	// than silently truncated.
	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBodySize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read body of %s: %w", rawURL, err)
	}
	if int64(len(body)) > f.maxBodySize {
		return nil, fmt.Errorf("%w: more than %d bytes for %s", ErrBodyTooLarge, f.maxBodySize, rawURL)
	}

	finalURL := rawURL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}
	if finalURL != rawURL {
		f.logger.Debug("followed redirect", "from", rawURL, "to", finalURL)
	}

	return &Response{
		URL:         finalURL,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}, nil
}

// decorate sets the user agent and the site headers for req's host.
func (f *HTTPFetcher) decorate(req *http.Request) {
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "*/*")
	if f.siteHeaders == nil {
		return
	}
	cookie, headers := f.siteHeaders(req.URL.Hostname())
	if cookie != "" {
		if existing := req.Header.Get("Cookie"); existing != "" {
			req.Header.Set("Cookie", existing+"; "+cookie)
		} else {
			req.Header.Set("Cookie", cookie)
		}
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}
}

// redirectingClient returns a shallow copy of the client whose redirect
// policy re-applies per-host headers. A Cookie header set for one host must
// not leak to the next host in a redirect chain.
func (f *HTTPFetcher) redirectingClient() *http.Client {
	c := *f.client
	c.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if len(via) >= maxRedirects {
			return fmt.Errorf("stopped after %d redirects", maxRedirects)
		}
		if req.URL.Hostname() != via[len(via)-1].URL.Hostname() {
			req.Header.Del("Cookie")
		}
		f.decorate(req)
		return nil
	}
	return &c
}
