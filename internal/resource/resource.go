// Package resource implements the three kinds of node in a snapshot tree:
// Document, Stylesheet and Leaf. All of them satisfy link.Resource.
package resource

import (
	"errors"
	"fmt"
	"mime"
	"net/http"

	"github.com/nao1215/freezedry/internal/link"
)

// ErrUnsupportedCategory is returned by New for categories that have no
// constructor, such as scripts.
var ErrUnsupportedCategory = errors.New("unsupported resource category")

// Constructor builds a resource from fetched bytes. url is the final,
// post-redirect URL and contentType the declared Content-Type, if any.
type Constructor func(body []byte, url, contentType string) (link.Resource, error)

// constructors maps each supported category to its constructor. Scripts are
// absent on purpose: they are stripped from snapshots.
var constructors = map[link.Category]Constructor{
	link.CategoryDocument: newDocument,
	link.CategoryStyle:    newStylesheet,
	link.CategoryImage:    newLeaf,
	link.CategoryAudio:    newLeaf,
	link.CategoryVideo:    newLeaf,
	link.CategoryFont:     newLeaf,
	link.CategoryObject:   newLeaf,
	link.CategoryEmbed:    newLeaf,
	link.CategoryTrack:    newLeaf,
}

// Supported reports whether resources of category c can be built.
func Supported(c link.Category) bool {
	_, ok := constructors[c]
	return ok
}

// New builds the resource for a link of category c.
func New(c link.Category, body []byte, url, contentType string) (link.Resource, error) {
	construct, ok := constructors[c]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedCategory, c)
	}
	return construct(body, url, contentType)
}

func newDocument(body []byte, url, contentType string) (link.Resource, error) {
	return ParseDocument(body, url, contentType)
}

func newStylesheet(body []byte, url, contentType string) (link.Resource, error) {
	return ParseStylesheet(body, url, contentType), nil
}

func newLeaf(body []byte, url, contentType string) (link.Resource, error) {
	return NewLeaf(body, url, contentType), nil
}

// Leaf is a resource without outgoing links, such as an image or a font.
type Leaf struct {
	url         string
	body        []byte
	contentType string
}

// NewLeaf creates a Leaf. When contentType is empty or unparsable the type
// is sniffed from the content.
func NewLeaf(body []byte, url, contentType string) *Leaf {
	if _, _, err := mime.ParseMediaType(contentType); err != nil {
		contentType = http.DetectContentType(body)
	}
	return &Leaf{url: url, body: body, contentType: contentType}
}

// URL returns the location the bytes were fetched from.
func (l *Leaf) URL() string { return l.url }

// Content returns the raw bytes.
func (l *Leaf) Content() []byte { return l.body }

// ContentType returns the declared or sniffed media type.
func (l *Leaf) ContentType() string { return l.contentType }

// Links returns nil; leaves have no links.
func (l *Leaf) Links() []*link.Link { return nil }
