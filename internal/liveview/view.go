package liveview

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

// ErrStaleToken is returned when a token handle refers to a position that no
// longer exists in the current text.
var ErrStaleToken = errors.New("stale token handle")

// Span is one token found by a Tokenizer: the byte range [Start, End) of the
// text plus an optional category chosen by the tokenizer.
type Span struct {
	Start    int
	End      int
	Category string
}

// Tokenizer finds the tokens of a text. Spans must be sorted and must not
// overlap. A tokenizer never fails: malformed input yields no spans.
type Tokenizer func(text string) []Span

// View is a live, editable list of tokens over text owned by someone else.
type View struct {
	tokenize Tokenizer
	read     func() string
	write    func(string)

	mu sync.Mutex

	// seen is the raw text the parts below were derived from.
	seen   string
	parsed bool

	// glue has len(values)+1 entries: glue[0] values[0] glue[1] ... glue[n].
	glue       []string
	values     []string
	categories []string
}

// Token is a handle to the index-th token of a View.
type Token struct {
	view  *View
	index int
}

// New creates a View. read returns the current text; write stores a new
// one. write may be nil for read-only text, in which case edits are kept
// only in the view.
func New(tokenize Tokenizer, read func() string, write func(string)) *View {
	return &View{
		tokenize: tokenize,
		read:     read,
		write:    write,
	}
}

// Tokens returns a handle for every token in the current text.
func (v *View) Tokens() []*Token {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.refresh()
	tokens := make([]*Token, len(v.values))
	for i := range v.values {
		tokens[i] = &Token{view: v, index: i}
	}
	return tokens
}

// Len returns the number of tokens in the current text.
func (v *View) Len() int {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.refresh()
	return len(v.values)
}

// Text returns the current text as rebuilt from glue and token values.
func (v *View) Text() string {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.refresh()
	return v.compose()
}

// Commit writes the rebuilt text through if it differs from the current one.
func (v *View) Commit() {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.commit()
}

// refresh re-reads the text and re-tokenizes it when it changed.
// The caller must hold v.mu.
func (v *View) refresh() {
	text := v.read()
	if v.parsed && text == v.seen {
		return
	}
	v.seen = text
	v.parsed = true
	v.split(text, v.tokenize(text))
}

// split cuts text into glue and values along spans. Invalid spans degrade
// to a single glue part, preserving the text verbatim.
func (v *View) split(text string, spans []Span) {
	if !validSpans(spans, len(text)) {
		spans = nil
	}

	v.glue = make([]string, 0, len(spans)+1)
	v.values = make([]string, 0, len(spans))
	v.categories = make([]string, 0, len(spans))

	pos := 0
	for _, s := range spans {
		v.glue = append(v.glue, text[pos:s.Start])
		v.values = append(v.values, text[s.Start:s.End])
		v.categories = append(v.categories, s.Category)
		pos = s.End
	}
	v.glue = append(v.glue, text[pos:])
}

func validSpans(spans []Span, n int) bool {
	prev := 0
	for _, s := range spans {
		if s.Start < prev || s.End < s.Start || s.End > n {
			return false
		}
		prev = s.End
	}
	return true
}

func (v *View) compose() string {
	var b strings.Builder
	for i, value := range v.values {
		b.WriteString(v.glue[i])
		b.WriteString(value)
	}
	b.WriteString(v.glue[len(v.glue)-1])
	return b.String()
}

// commit must be called with v.mu held.
func (v *View) commit() {
	composed := v.compose()
	if composed == v.read() {
		v.seen = composed
		return
	}
	if v.write == nil {
		return
	}
	v.write(composed)
	// The parts already describe composed, so they stay valid unless the
	// writer stored something else.
	if v.read() == composed {
		v.seen = composed
	} else {
		v.parsed = false
	}
}

// lookup re-validates the handle against the current text.
// The caller must hold v.mu.
func (t *Token) lookup() error {
	t.view.refresh()
	if t.index < 0 || t.index >= len(t.view.values) {
		return fmt.Errorf("%w: index %d, text now has %d tokens", ErrStaleToken, t.index, len(t.view.values))
	}
	return nil
}

// Index returns the position of the token within its view.
func (t *Token) Index() int {
	return t.index
}

// Value returns the token's current value.
func (t *Token) Value() (string, error) {
	t.view.mu.Lock()
	defer t.view.mu.Unlock()

	if err := t.lookup(); err != nil {
		return "", err
	}
	return t.view.values[t.index], nil
}

// Category returns the category the tokenizer assigned to the token.
func (t *Token) Category() (string, error) {
	t.view.mu.Lock()
	defer t.view.mu.Unlock()

	if err := t.lookup(); err != nil {
		return "", err
	}
	return t.view.categories[t.index], nil
}

// Range returns the byte range the token currently occupies in the text.
func (t *Token) Range() (start, end int, err error) {
	t.view.mu.Lock()
	defer t.view.mu.Unlock()

	if err := t.lookup(); err != nil {
		return 0, 0, err
	}
	for i := 0; i < t.index; i++ {
		start += len(t.view.glue[i]) + len(t.view.values[i])
	}
	start += len(t.view.glue[t.index])
	return start, start + len(t.view.values[t.index]), nil
}

// Set replaces the token's value and commits the rebuilt text.
func (t *Token) Set(value string) error {
	t.view.mu.Lock()
	defer t.view.mu.Unlock()

	if err := t.lookup(); err != nil {
		return err
	}
	t.view.values[t.index] = value
	t.view.commit()
	return nil
}
