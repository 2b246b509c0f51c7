package resource

import (
	"github.com/nao1215/freezedry/internal/link"
	"github.com/nao1215/freezedry/internal/liveview"
)

// StylesheetContentType is the media type of serialized stylesheets.
const StylesheetContentType = "text/css;charset=utf-8"

// Stylesheet is a CSS resource. Its links are the @import targets and url()
// references of the text. Text the scanner cannot make sense of has no
// links and is kept byte for byte.
type Stylesheet struct {
	url   string
	text  string
	view  *liveview.View
	links []*link.Link
}

// NewStylesheet creates a Stylesheet from decoded text.
func NewStylesheet(text, url string) *Stylesheet {
	s := &Stylesheet{url: url, text: text}
	// The view serializes all reads and writes of s.text.
	s.view = liveview.New(link.TokenizeStylesheet,
		func() string { return s.text },
		func(t string) { s.text = t },
	)
	s.links = link.Stylesheet(s.view, url)
	return s
}

// ParseStylesheet decodes fetched stylesheet bytes and creates a Stylesheet.
func ParseStylesheet(body []byte, url, contentType string) *Stylesheet {
	return NewStylesheet(decodeStylesheet(body, contentType), url)
}

// URL returns the stylesheet's location.
func (s *Stylesheet) URL() string { return s.url }

// Text returns the current stylesheet text.
func (s *Stylesheet) Text() string { return s.view.Text() }

// Content returns the current text as UTF-8 bytes.
func (s *Stylesheet) Content() []byte { return []byte(s.view.Text()) }

// ContentType returns StylesheetContentType.
func (s *Stylesheet) ContentType() string { return StylesheetContentType }

// Links returns the stylesheet's links.
func (s *Stylesheet) Links() []*link.Link { return s.links }
