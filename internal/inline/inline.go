// Package inline replaces references to fetched subresources with data:
// URLs that carry the subresource content.
package inline

import (
	"errors"
	"fmt"

	"github.com/nao1215/freezedry/internal/dom"
	"github.com/nao1215/freezedry/internal/fetch"
	"github.com/nao1215/freezedry/internal/link"
)

// ErrNoResource is returned when a link without an attached resource is
// inlined.
var ErrNoResource = errors.New("link has no resource")

// originalPrefix prefixes the attribute that keeps a pre-inlining value.
const originalPrefix = "data-original-"

// Options controls inlining.
type Options struct {
	// PreserveOriginalReference keeps the attribute value as it was before
	// the first inlining on data-original-<attribute>.
	PreserveOriginalReference bool
}

// Link rewrites the reference of l to a data: URL holding the content of
// its resource. Integrity metadata on the owning element is removed since
// it no longer matches the rewritten reference. The resource must already
// be dried, since its content is captured here.
func Link(l *link.Link, opts Options) error {
	res := l.Resource()
	if res == nil {
		return ErrNoResource
	}

	from := l.From()
	if from.Node != nil {
		if opts.PreserveOriginalReference && from.Attribute != "" {
			key := originalPrefix + from.Attribute
			if _, ok := dom.Attr(from.Node, key); !ok {
				dom.SetAttr(from.Node, key, dom.GetAttr(from.Node, from.Attribute))
			}
		}
		dom.RemoveAttr(from.Node, "integrity")
	}

	if err := l.SetReference(fetch.EncodeDataURL(res.ContentType(), res.Content())); err != nil {
		return fmt.Errorf("failed to inline %s: %w", res.URL(), err)
	}
	return nil
}
