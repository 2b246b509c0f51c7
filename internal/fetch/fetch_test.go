package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestHTTPFetcher(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/a.png", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("0123456789"))
	})
	mux.HandleFunc("/moved.css", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/css/final.css", http.StatusFound)
	})
	mux.HandleFunc("/css/final.css", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/css")
		_, _ = w.Write([]byte("p{}"))
	})
	mux.HandleFunc("/missing", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	mux.HandleFunc("/big", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("x", 64)))
	})
	mux.HandleFunc("/echo", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(r.Header.Get("User-Agent") + "|" + r.Header.Get("Cookie") + "|" + r.Header.Get("X-Token")))
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	t.Run("returns body and content type", func(t *testing.T) {
		t.Parallel()

		resp, err := NewHTTPFetcher().Fetch(context.Background(), server.URL+"/a.png")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		want := &Response{URL: server.URL + "/a.png", ContentType: "image/png", Body: []byte("0123456789")}
		if diff := cmp.Diff(want, resp); diff != "" {
			t.Errorf("response mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("reports the post-redirect URL", func(t *testing.T) {
		t.Parallel()

		resp, err := NewHTTPFetcher().Fetch(context.Background(), server.URL+"/moved.css")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if resp.URL != server.URL+"/css/final.css" {
			t.Errorf("expected final URL, got %q", resp.URL)
		}
	})

	t.Run("non-2xx status fails", func(t *testing.T) {
		t.Parallel()

		_, err := NewHTTPFetcher().Fetch(context.Background(), server.URL+"/missing")
		if !errors.Is(err, ErrHTTPStatus) {
			t.Errorf("expected ErrHTTPStatus, got %v", err)
		}
	})

	t.Run("oversized body fails", func(t *testing.T) {
		t.Parallel()

		_, err := NewHTTPFetcher(WithMaxBodySize(16)).Fetch(context.Background(), server.URL+"/big")
		if !errors.Is(err, ErrBodyTooLarge) {
			t.Errorf("expected ErrBodyTooLarge, got %v", err)
		}
	})

	t.Run("sends user agent and site headers", func(t *testing.T) {
		t.Parallel()

		f := NewHTTPFetcher(
			WithUserAgent("test-agent"),
			WithSiteHeaders(func(string) (string, map[string]string) {
				return "session=abc", map[string]string{"X-Token": "t"}
			}),
		)
		resp, err := f.Fetch(context.Background(), server.URL+"/echo")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if string(resp.Body) != "test-agent|session=abc|t" {
			t.Errorf("unexpected echo %q", resp.Body)
		}
	})

	t.Run("cancelled context fails before any request", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := NewHTTPFetcher().Fetch(ctx, server.URL+"/a.png")
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})

	t.Run("unsupported scheme fails", func(t *testing.T) {
		t.Parallel()

		_, err := NewHTTPFetcher().Fetch(context.Background(), "ftp://ex.com/a.png")
		if !errors.Is(err, ErrUnsupportedScheme) {
			t.Errorf("expected ErrUnsupportedScheme, got %v", err)
		}
	})

	t.Run("decodes data URLs locally", func(t *testing.T) {
		t.Parallel()

		resp, err := NewHTTPFetcher().Fetch(context.Background(), "data:image/gif;base64,R0lG")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if resp.ContentType != "image/gif" || string(resp.Body) != "GIF" {
			t.Errorf("unexpected response %+v", resp)
		}
	})
}

func TestDecodeDataURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		url         string
		contentType string
		body        string
		wantErr     bool
	}{
		{name: "base64", url: "data:text/css;base64,cHt9", contentType: "text/css", body: "p{}"},
		{name: "unpadded base64", url: "data:text/plain;base64,YQ", contentType: "text/plain", body: "a"},
		{name: "percent-encoded", url: "data:text/plain,a%20b", contentType: "text/plain", body: "a b"},
		{name: "default media type", url: "data:,hello", contentType: defaultDataMediaType, body: "hello"},
		{name: "charset only", url: "data:;charset=utf-8,x", contentType: "text/plain;charset=utf-8", body: "x"},
		{name: "upper-case scheme", url: "DATA:text/plain,x", contentType: "text/plain", body: "x"},
		{name: "missing comma", url: "data:text/plain", wantErr: true},
		{name: "bad base64", url: "data:text/plain;base64,***", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			resp, err := DecodeDataURL(tt.url)
			if tt.wantErr {
				if !errors.Is(err, ErrMalformedDataURL) {
					t.Errorf("expected ErrMalformedDataURL, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if resp.ContentType != tt.contentType {
				t.Errorf("content type = %q, expected %q", resp.ContentType, tt.contentType)
			}
			if string(resp.Body) != tt.body {
				t.Errorf("body = %q, expected %q", resp.Body, tt.body)
			}
		})
	}
}

type memoryCache struct {
	mu    sync.Mutex
	items map[string]*Response
}

func (c *memoryCache) Get(_ context.Context, url string) (*Response, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.items[url]
	return r, ok, nil
}

func (c *memoryCache) Put(_ context.Context, url string, resp *Response) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[url] = resp
	return nil
}

func TestCached(t *testing.T) {
	t.Parallel()

	t.Run("second fetch is served from the cache", func(t *testing.T) {
		t.Parallel()

		calls := 0
		next := Func(func(_ context.Context, url string) (*Response, error) {
			calls++
			return &Response{URL: url, Body: []byte("x")}, nil
		})
		f := NewCached(next, &memoryCache{items: map[string]*Response{}}, nil)

		for range 2 {
			if _, err := f.Fetch(context.Background(), "https://ex.com/a"); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		}
		if calls != 1 {
			t.Errorf("expected 1 upstream call, got %d", calls)
		}
	})

	t.Run("failures are not cached", func(t *testing.T) {
		t.Parallel()

		cache := &memoryCache{items: map[string]*Response{}}
		next := Func(func(context.Context, string) (*Response, error) {
			return nil, ErrHTTPStatus
		})
		if _, err := NewCached(next, cache, nil).Fetch(context.Background(), "https://ex.com/a"); err == nil {
			t.Fatal("expected error")
		}
		if len(cache.items) != 0 {
			t.Errorf("expected empty cache, got %d items", len(cache.items))
		}
	})

	t.Run("data URLs bypass the cache", func(t *testing.T) {
		t.Parallel()

		cache := &memoryCache{items: map[string]*Response{}}
		next := Func(func(_ context.Context, url string) (*Response, error) {
			return DecodeDataURL(url)
		})
		if _, err := NewCached(next, cache, nil).Fetch(context.Background(), "data:,x"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(cache.items) != 0 {
			t.Errorf("expected empty cache, got %d items", len(cache.items))
		}
	})
}
