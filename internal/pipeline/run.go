package pipeline

import (
	"time"

	"golang.org/x/net/html"

	"github.com/nao1215/freezedry/internal/model"
	"github.com/nao1215/freezedry/internal/resource"
)

// Run is the state of one snapshot.
type Run struct {
	// URL is the document URL. For fetched documents it is replaced by the
	// post-redirect URL during capture.
	URL string

	// Live is the caller's document. When nil, capture fetches URL.
	Live *html.Node

	// Root is the snapshot's own copy of the document, set by capture.
	Root *resource.Document

	// Snapshot records the outcome of every subresource.
	Snapshot *model.Snapshot

	// Output is the final markup, set by render.
	Output string
}

// NewRun creates a Run for url started at t. live may be nil.
func NewRun(url string, live *html.Node, t time.Time) *Run {
	return &Run{
		URL:      url,
		Live:     live,
		Snapshot: model.NewSnapshot(url, t),
	}
}
