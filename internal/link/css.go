package link

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"

	tdparse "github.com/tdewolff/parse/v2"
	"github.com/tdewolff/parse/v2/css"

	"github.com/nao1215/freezedry/internal/liveview"
)

// TokenizeStylesheet finds every URL reference in stylesheet text: the
// target of @import (category style), url() inside @font-face (font) and any
// other url() (image). The span category carries the link category.
//
// Text the lexer rejects, such as unterminated strings or unbalanced braces,
// has no tokens at all so that it is preserved verbatim.
func TokenizeStylesheet(text string) []liveview.Span {
	spans, _ := scanStylesheet(text)
	return spans
}

// WellFormedStylesheet reports whether the lexer accepts text. Stylesheets
// that are not well formed have no links.
func WellFormedStylesheet(text string) bool {
	_, ok := scanStylesheet(text)
	return ok
}

func scanStylesheet(text string) ([]liveview.Span, bool) {
	l := css.NewLexer(tdparse.NewInputString(text))

	var spans []liveview.Span
	pos := 0
	depth := 0
	fontFaceDepth := 0
	pendingFontFace := false
	pendingImport := false
	pendingURLFunc := false

	category := func() string {
		switch {
		case pendingImport:
			return string(CategoryStyle)
		case fontFaceDepth > 0:
			return string(CategoryFont)
		default:
			return string(CategoryImage)
		}
	}

	for {
		tt, data := l.Next()
		if tt == css.ErrorToken {
			if l.Err() != io.EOF {
				return nil, false
			}
			break
		}

		start, end := pos, pos+len(data)
		if end > len(text) || text[start:end] != string(data) {
			// Offsets no longer line up with the input.
			return nil, false
		}
		pos = end

		switch tt {
		case css.BadStringToken, css.BadURLToken:
			return nil, false
		case css.WhitespaceToken, css.CommentToken:
		case css.AtKeywordToken:
			name := strings.ToLower(string(data))
			pendingImport = name == "@import"
			pendingFontFace = name == "@font-face"
			pendingURLFunc = false
		case css.LeftBraceToken:
			depth++
			if pendingFontFace && fontFaceDepth == 0 {
				fontFaceDepth = depth
			}
			pendingFontFace = false
			pendingImport = false
		case css.RightBraceToken:
			if depth == 0 {
				return nil, false
			}
			if depth == fontFaceDepth {
				fontFaceDepth = 0
			}
			depth--
		case css.SemicolonToken:
			pendingImport = false
			pendingFontFace = false
			pendingURLFunc = false
		case css.URLToken:
			if s, e, ok := urlTokenBounds(string(data)); ok {
				spans = append(spans, liveview.Span{Start: start + s, End: start + e, Category: category()})
			}
			pendingImport = false
		case css.FunctionToken:
			pendingURLFunc = strings.EqualFold(string(data), "url(")
		case css.StringToken:
			if (pendingImport || pendingURLFunc) && len(data) >= 2 && end-1 > start+1 {
				spans = append(spans, liveview.Span{Start: start + 1, End: end - 1, Category: category()})
			}
			pendingImport = false
			pendingURLFunc = false
		default:
			pendingURLFunc = false
		}
	}

	if depth != 0 || pos != len(text) {
		return nil, false
	}
	return spans, true
}

// urlTokenBounds returns the bounds of the reference inside a url() token,
// without surrounding whitespace and quotes.
func urlTokenBounds(tok string) (int, int, bool) {
	open := strings.IndexByte(tok, '(')
	if open < 0 {
		return 0, 0, false
	}
	start := open + 1
	end := len(tok)
	if strings.HasSuffix(tok, ")") {
		end--
	}
	for start < end && isCSSSpace(tok[start]) {
		start++
	}
	for end > start && isCSSSpace(tok[end-1]) {
		end--
	}
	if end-start >= 2 {
		if q := tok[start]; (q == '"' || q == '\'') && tok[end-1] == q {
			start++
			end--
		}
	}
	if end <= start {
		return 0, 0, false
	}
	return start, end, true
}

func isCSSSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f'
}

// Stylesheet returns a link for every URL reference in v, resolved against
// base. All stylesheet links are embedded.
func Stylesheet(v *liveview.View, base string) []*Link {
	tokens := v.Tokens()
	links := make([]*Link, 0, len(tokens))
	for _, tok := range tokens {
		cat, err := tok.Category()
		if err != nil {
			continue
		}
		start, end, err := tok.Range()
		if err != nil {
			continue
		}
		l := New(tok, base, true, Category(cat), Provenance{Start: start, End: end})
		l.css = true
		links = append(links, l)
	}
	return links
}

// unescapeCSS decodes the escapes of a CSS string or url() body.
func unescapeCSS(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' {
			b.WriteByte(s[i])
			continue
		}
		i++
		if i == len(s) {
			break
		}
		switch c := s[i]; {
		case c == '\n' || c == '\f':
		case c == '\r':
			if i+1 < len(s) && s[i+1] == '\n' {
				i++
			}
		case isHexDigit(c):
			j := i
			for j < len(s) && j-i < 6 && isHexDigit(s[j]) {
				j++
			}
			r, _ := strconv.ParseUint(s[i:j], 16, 32)
			if r == 0 || r > utf8.MaxRune || (r >= 0xD800 && r <= 0xDFFF) {
				r = utf8.RuneError
			}
			b.WriteRune(rune(r))
			if j < len(s) && isCSSSpace(s[j]) {
				if s[j] == '\r' && j+1 < len(s) && s[j+1] == '\n' {
					j++
				}
				j++
			}
			i = j - 1
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// escapeCSS escapes s so it reads back unchanged both inside url() and
// inside a quoted string.
func escapeCSS(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case c == '(' || c == ')' || c == '\'' || c == '"' || c == '\\':
			b.WriteByte('\\')
			b.WriteByte(c)
		case c <= ' ' || c == 0x7f:
			fmt.Fprintf(&b, "\\%x ", c)
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

func isHexDigit(c byte) bool {
	return '0' <= c && c <= '9' || 'a' <= c && c <= 'f' || 'A' <= c && c <= 'F'
}
