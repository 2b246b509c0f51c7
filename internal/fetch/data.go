package fetch

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"
)

// defaultDataMediaType is the media type of a data: URL that names none.
const defaultDataMediaType = "text/plain;charset=US-ASCII"

// IsDataURL reports whether rawURL uses the data: scheme.
func IsDataURL(rawURL string) bool {
	return len(rawURL) >= 5 && strings.EqualFold(rawURL[:5], "data:")
}

// DecodeDataURL decodes a data: URL of the form
// data:[<media type>][;base64],<payload> into a Response whose URL is the
// data: URL itself.
func DecodeDataURL(rawURL string) (*Response, error) {
	if !IsDataURL(rawURL) {
		return nil, fmt.Errorf("%w: missing data: scheme", ErrMalformedDataURL)
	}
	header, payload, ok := strings.Cut(rawURL[5:], ",")
	if !ok {
		return nil, fmt.Errorf("%w: missing comma", ErrMalformedDataURL)
	}

	isBase64 := false
	mediaType := strings.TrimSpace(header)
	if i := strings.LastIndex(mediaType, ";"); i >= 0 && strings.EqualFold(strings.TrimSpace(mediaType[i+1:]), "base64") {
		isBase64 = true
		mediaType = strings.TrimSpace(mediaType[:i])
	}
	if mediaType == "" || strings.HasPrefix(mediaType, ";") {
		mediaType = "text/plain" + mediaType
		if !strings.Contains(mediaType, "charset=") {
			mediaType = defaultDataMediaType
		}
	}

	unescaped, err := url.PathUnescape(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedDataURL, err)
	}

	body := []byte(unescaped)
	if isBase64 {
		body, err = decodeBase64(unescaped)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformedDataURL, err)
		}
	}

	return &Response{URL: rawURL, ContentType: mediaType, Body: body}, nil
}

// decodeBase64 accepts padded and unpadded payloads with embedded ASCII
// whitespace, as browsers do.
func decodeBase64(s string) ([]byte, error) {
	s = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\n', '\f', '\r':
			return -1
		}
		return r
	}, s)
	if strings.HasSuffix(s, "=") || len(s)%4 == 0 {
		return base64.StdEncoding.DecodeString(s)
	}
	return base64.RawStdEncoding.DecodeString(s)
}

// EncodeDataURL returns body as a base64 data: URL with the given media
// type. Whitespace inside the media type is removed so that the URL stays a
// single attribute-safe token.
func EncodeDataURL(mediaType string, body []byte) string {
	mediaType = strings.Join(strings.Fields(mediaType), "")
	return "data:" + mediaType + ";base64," + base64.StdEncoding.EncodeToString(body)
}
