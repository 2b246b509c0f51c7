package fetch

import "context"

// Response is a fetched resource.
type Response struct {
	// URL is the final URL after redirects.
	URL string
	// ContentType is the declared Content-Type header, possibly empty.
	ContentType string
	// Body is the complete response body.
	Body []byte
}

// Fetcher retrieves the resource a URL points to.
// Implementations must be safe for concurrent use and should return
// promptly once ctx is done.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*Response, error)
}

// Func adapts an ordinary function to the Fetcher interface.
type Func func(ctx context.Context, url string) (*Response, error)

// Fetch calls f(ctx, url).
func (f Func) Fetch(ctx context.Context, url string) (*Response, error) {
	return f(ctx, url)
}
