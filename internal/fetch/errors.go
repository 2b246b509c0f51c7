package fetch

import "errors"

var (
	// ErrHTTPStatus is returned when the server answers with a non-2xx
	// status code. The wrapped message carries the code.
	ErrHTTPStatus = errors.New("unexpected HTTP status")

	// ErrBodyTooLarge is returned when a response body exceeds the
	// configured maximum size. Truncated bodies are never returned because
	// a truncated image or stylesheet would be inlined silently broken.
	ErrBodyTooLarge = errors.New("response body too large")

	// ErrMalformedDataURL is returned for data: URLs without a comma or with
	// an undecodable payload.
	ErrMalformedDataURL = errors.New("malformed data URL")

	// ErrUnsupportedScheme is returned for URLs that are neither http(s)
	// nor data:.
	ErrUnsupportedScheme = errors.New("unsupported URL scheme")
)
