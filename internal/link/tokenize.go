package link

import (
	"strings"

	"github.com/nao1215/freezedry/internal/liveview"
)

// isHTMLSpace reports whether c is ASCII whitespace as HTML defines it.
func isHTMLSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\f' || c == '\r'
}

// TokenizeWhole treats the whole value, minus surrounding whitespace, as a
// single URL. An empty value has no tokens.
func TokenizeWhole(text string) []liveview.Span {
	start, end := 0, len(text)
	for start < end && isHTMLSpace(text[start]) {
		start++
	}
	for end > start && isHTMLSpace(text[end-1]) {
		end--
	}
	if start == end {
		return nil
	}
	return []liveview.Span{{Start: start, End: end}}
}

// TokenizeSpaceList treats every whitespace-separated word as a URL.
func TokenizeSpaceList(text string) []liveview.Span {
	return tokenizeList(text, isHTMLSpace)
}

// TokenizeCommaList treats every comma-separated item, trimmed, as a URL.
func TokenizeCommaList(text string) []liveview.Span {
	var spans []liveview.Span
	pos := 0
	for pos <= len(text) {
		next := strings.IndexByte(text[pos:], ',')
		end := len(text)
		if next >= 0 {
			end = pos + next
		}
		for _, s := range TokenizeWhole(text[pos:end]) {
			spans = append(spans, liveview.Span{Start: pos + s.Start, End: pos + s.End})
		}
		if next < 0 {
			break
		}
		pos = end + 1
	}
	return spans
}

func tokenizeList(text string, sep func(byte) bool) []liveview.Span {
	var spans []liveview.Span
	i := 0
	for i < len(text) {
		for i < len(text) && sep(text[i]) {
			i++
		}
		start := i
		for i < len(text) && !sep(text[i]) {
			i++
		}
		if i > start {
			spans = append(spans, liveview.Span{Start: start, End: i})
		}
	}
	return spans
}

// TokenizeSrcset finds the URL of every image candidate in a srcset value:
// "a.png 1x, b.png 2x". Descriptors are skipped, and commas inside
// parentheses do not end a candidate.
func TokenizeSrcset(text string) []liveview.Span {
	var spans []liveview.Span
	i := 0
	for i < len(text) {
		for i < len(text) && (isHTMLSpace(text[i]) || text[i] == ',') {
			i++
		}
		if i >= len(text) {
			break
		}
		start := i
		for i < len(text) && !isHTMLSpace(text[i]) {
			i++
		}
		end := i
		// A URL directly followed by commas ends the candidate; the
		// commas are not part of the URL.
		trailing := false
		for end > start && text[end-1] == ',' {
			end--
			trailing = true
		}
		if end > start {
			spans = append(spans, liveview.Span{Start: start, End: end})
		}
		if trailing {
			continue
		}
		depth := 0
		for i < len(text) {
			c := text[i]
			if c == '(' {
				depth++
			} else if c == ')' && depth > 0 {
				depth--
			} else if c == ',' && depth == 0 {
				i++
				break
			}
			i++
		}
	}
	return spans
}

// TokenizeRefresh finds the URL in a meta refresh directive such as
// "5; url=/next". A directive without a URL has no tokens.
func TokenizeRefresh(text string) []liveview.Span {
	i := 0
	for i < len(text) && isHTMLSpace(text[i]) {
		i++
	}
	for i < len(text) && (text[i] >= '0' && text[i] <= '9' || text[i] == '.') {
		i++
	}
	for i < len(text) && isHTMLSpace(text[i]) {
		i++
	}
	if i >= len(text) || (text[i] != ';' && text[i] != ',') {
		return nil
	}
	i++
	for i < len(text) && isHTMLSpace(text[i]) {
		i++
	}
	if len(text)-i >= 3 && strings.EqualFold(text[i:i+3], "url") {
		j := i + 3
		for j < len(text) && isHTMLSpace(text[j]) {
			j++
		}
		if j < len(text) && text[j] == '=' {
			i = j + 1
			for i < len(text) && isHTMLSpace(text[i]) {
				i++
			}
		}
	}
	if i >= len(text) {
		return nil
	}
	end := len(text)
	if q := text[i]; q == '"' || q == '\'' {
		i++
		if k := strings.IndexByte(text[i:], q); k >= 0 {
			end = i + k
		}
	}
	for end > i && isHTMLSpace(text[end-1]) {
		end--
	}
	if end <= i {
		return nil
	}
	return []liveview.Span{{Start: i, End: end}}
}
