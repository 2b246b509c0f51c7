package resource

import (
	"bytes"
	"fmt"

	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"

	"github.com/nao1215/freezedry/internal/dom"
	"github.com/nao1215/freezedry/internal/link"
)

// DocumentContentType is the media type of serialized documents. Documents
// are always re-serialized as UTF-8.
const DocumentContentType = "text/html;charset=utf-8"

// FrameAccessor returns the document currently loaded in a live frame
// element and its URL, or a nil node when the frame is inaccessible (for
// example because it is cross-origin).
type FrameAccessor func(frame *html.Node) (doc *html.Node, url string)

// Document is an HTML document resource. It owns its tree; nothing outside
// the snapshot holds a reference to it.
type Document struct {
	url  string
	node *html.Node
	base string

	links []*link.Link

	// originals maps cloned frame elements to their live counterparts.
	originals map[*html.Node]*html.Node
}

// NewDocument wraps a tree the caller hands over. url is the document's
// own location.
func NewDocument(node *html.Node, url string) *Document {
	base := link.DocumentBase(node, url)
	return &Document{
		url:   url,
		node:  node,
		base:  base,
		links: link.Document(node, base),
	}
}

// CloneDocument deep-clones a live tree so that later changes to it do not
// affect the snapshot. Frame elements of the clone remember their live
// counterparts for OriginalFrame.
func CloneDocument(live *html.Node, url string) *Document {
	originals := make(map[*html.Node]*html.Node)
	clone := dom.Clone(live, func(orig, c *html.Node) {
		if dom.IsElement(orig, "iframe") || dom.IsElement(orig, "frame") {
			originals[c] = orig
		}
	})
	d := NewDocument(clone, url)
	d.originals = originals
	return d
}

// ParseDocument parses fetched markup. The encoding is taken from the
// Content-Type, a byte order mark or <meta charset>, as browsers do.
func ParseDocument(body []byte, url, contentType string) (*Document, error) {
	r, err := charset.NewReader(bytes.NewReader(body), contentType)
	if err != nil {
		return nil, fmt.Errorf("failed to decode document %s: %w", url, err)
	}
	node, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse document %s: %w", url, err)
	}
	return NewDocument(node, url), nil
}

// URL returns the document's own location.
func (d *Document) URL() string { return d.url }

// Node returns the document tree.
func (d *Document) Node() *html.Node { return d.node }

// Base returns the URL relative references in the document resolve against.
func (d *Document) Base() string { return d.base }

// Content serializes the tree with all edits made so far.
func (d *Document) Content() []byte {
	var buf bytes.Buffer
	if err := html.Render(&buf, d.node); err != nil {
		return nil
	}
	return buf.Bytes()
}

// ContentType returns DocumentContentType.
func (d *Document) ContentType() string { return DocumentContentType }

// Links returns every link in the document's attributes, style attributes
// and <style> elements, as found when the document was created.
func (d *Document) Links() []*link.Link {
	return d.links
}

// OriginalFrame returns the live frame element a cloned frame element was
// copied from, or nil.
func (d *Document) OriginalFrame(clone *html.Node) *html.Node {
	return d.originals[clone]
}
