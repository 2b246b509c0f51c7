package link

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"golang.org/x/net/html"

	"github.com/nao1215/freezedry/internal/liveview"
)

// ErrResourceAlreadySet is returned when a second resource is attached to a
// link. Every link owns at most one resource.
var ErrResourceAlreadySet = errors.New("link already has a resource")

// Category is the kind of subresource a link points to.
type Category string

// Link categories. CategoryNone marks links that are not subresources, such
// as hyperlinks and form actions.
const (
	CategoryNone     Category = ""
	CategoryStyle    Category = "style"
	CategoryScript   Category = "script"
	CategoryImage    Category = "image"
	CategoryDocument Category = "document"
	CategoryAudio    Category = "audio"
	CategoryVideo    Category = "video"
	CategoryFont     Category = "font"
	CategoryObject   Category = "object"
	CategoryEmbed    Category = "embed"
	CategoryTrack    Category = "track"
)

// String returns the category name, or "none".
func (c Category) String() string {
	if c == CategoryNone {
		return "none"
	}
	return string(c)
}

// Resource is the content a link was resolved to. It is implemented by the
// resource package; it is declared here so links can own one.
type Resource interface {
	// URL is the final, post-redirect location of the resource.
	URL() string
	// Content is the resource serialized with all its current edits.
	Content() []byte
	// ContentType is the media type used when the resource is inlined.
	ContentType() string
	// Links are the outgoing links, computed once at construction.
	Links() []*Link
}

// Provenance tells where a link was found. Attribute links set Node and
// Attribute. Stylesheet links set the byte range of the reference within the
// stylesheet text; links from inline styles set all three.
type Provenance struct {
	Node      *html.Node
	Attribute string
	Start     int
	End       int
}

// Link is one URL occurrence inside a document or stylesheet.
type Link struct {
	// inner is set on links created by Reparent; all state lives there.
	inner *Link
	from  Provenance

	token    *liveview.Token
	base     string
	embedded bool
	category Category
	// css marks references written in CSS syntax, which may carry escapes.
	css bool

	mu       sync.Mutex
	resource Resource
}

// New creates a link over a token. base is the absolute URL relative
// references are resolved against.
func New(token *liveview.Token, base string, embedded bool, category Category, from Provenance) *Link {
	return &Link{
		token:    token,
		base:     base,
		embedded: embedded,
		category: category,
		from:     from,
	}
}

// Reparent returns a link that shares everything with inner except its
// provenance.
func Reparent(inner *Link, from Provenance) *Link {
	return &Link{inner: inner, from: from}
}

func (l *Link) target() *Link {
	if l.inner != nil {
		return l.inner.target()
	}
	return l
}

// Reference returns the literal reference as currently written.
// CSS escapes are decoded.
func (l *Link) Reference() (string, error) {
	t := l.target()
	v, err := t.token.Value()
	if err != nil || !t.css {
		return v, err
	}
	return unescapeCSS(v), nil
}

// SetReference rewrites the literal reference in the underlying text,
// escaping it when the link lives in CSS.
func (l *Link) SetReference(ref string) error {
	t := l.target()
	if t.css {
		ref = escapeCSS(ref)
	}
	return t.token.Set(ref)
}

// Base returns the URL relative references are resolved against.
func (l *Link) Base() string {
	return l.target().base
}

// Target returns the reference resolved against the link's base. It
// reports false when the reference or base cannot be parsed or the result
// is not absolute; such links must never be fetched.
func (l *Link) Target() (string, bool) {
	ref, err := l.Reference()
	if err != nil {
		return "", false
	}
	return Resolve(l.Base(), ref)
}

// Embedded reports whether the link points to a subresource of its document.
func (l *Link) Embedded() bool {
	return l.target().embedded
}

// Category returns the kind of subresource the link points to.
func (l *Link) Category() Category {
	return l.target().category
}

// From returns where the link was found.
func (l *Link) From() Provenance {
	return l.from
}

// Resource returns the attached resource, or nil.
func (l *Link) Resource() Resource {
	t := l.target()
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.resource
}

// SetResource attaches r. It fails with ErrResourceAlreadySet when a
// resource is already attached.
func (l *Link) SetResource(r Resource) error {
	t := l.target()
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.resource != nil {
		return fmt.Errorf("%w: %s", ErrResourceAlreadySet, t.resource.URL())
	}
	t.resource = r
	return nil
}

// Resolve resolves ref against base and reports whether the result is an
// absolute URL.
func Resolve(base, ref string) (string, bool) {
	b, err := url.Parse(base)
	if err != nil {
		return "", false
	}
	r, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return "", false
	}
	u := b.ResolveReference(r)
	if !u.IsAbs() {
		return "", false
	}
	return u.String(), true
}

// StripFragment returns rawURL without its fragment and the fragment
// including its leading '#'. The fragment is "" when rawURL has no '#'.
func StripFragment(rawURL string) (string, string) {
	if i := strings.IndexByte(rawURL, '#'); i >= 0 {
		return rawURL[:i], rawURL[i:]
	}
	return rawURL, ""
}
