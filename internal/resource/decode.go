package resource

import (
	"bytes"
	"mime"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// charsetRule matches a leading @charset rule. Browsers only honour the
// exact form `@charset "label";` at the very start of the stylesheet.
var charsetRule = regexp.MustCompile(`^@charset "([^"]*)";`)

// decodeStylesheet converts stylesheet bytes to UTF-8 text. The encoding is
// chosen by byte order mark, then the Content-Type charset, then an
// @charset rule, then UTF-8.
func decodeStylesheet(body []byte, contentType string) string {
	var enc encoding.Encoding
	if label := contentTypeCharset(contentType); label != "" {
		enc, _ = charset.Lookup(label)
	}
	if enc == nil {
		if m := charsetRule.FindSubmatch(body); m != nil {
			var name string
			enc, name = charset.Lookup(string(m[1]))
			// A UTF-16 @charset can only be read as ASCII, which
			// means the file was not UTF-16 after all.
			if strings.HasPrefix(name, "utf-16") {
				enc = nil
			}
		}
	}
	if enc == nil {
		enc = unicode.UTF8
	}
	return decode(body, enc)
}

// decode converts body with enc, letting a byte order mark override it.
// Undecodable input is kept as is.
func decode(body []byte, enc encoding.Encoding) string {
	out, _, err := transform.Bytes(unicode.BOMOverride(enc.NewDecoder()), body)
	if err != nil {
		return string(bytes.TrimPrefix(body, []byte("\xef\xbb\xbf")))
	}
	if !utf8.Valid(out) {
		return string(body)
	}
	return string(out)
}

// contentTypeCharset returns the charset parameter of a Content-Type.
func contentTypeCharset(contentType string) string {
	if contentType == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	return params["charset"]
}
