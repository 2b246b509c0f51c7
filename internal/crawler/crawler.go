package crawler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"golang.org/x/net/html"
	"golang.org/x/sync/errgroup"

	"github.com/nao1215/freezedry/internal/dom"
	"github.com/nao1215/freezedry/internal/dry"
	"github.com/nao1215/freezedry/internal/fetch"
	"github.com/nao1215/freezedry/internal/inline"
	"github.com/nao1215/freezedry/internal/link"
	"github.com/nao1215/freezedry/internal/model"
	"github.com/nao1215/freezedry/internal/resource"
)

// DefaultMaxDepth is the deepest level of subresources that is expanded.
// Links of the root are at depth 1. Zero expands without a depth bound.
const DefaultMaxDepth = 0

// Recorder receives the outcome of every embedded link the crawler visits.
// Implementations must be safe for concurrent use.
type Recorder interface {
	Record(rec model.ResourceRecord)
}

// Hook runs on a link once the resource attached to it has been fully
// expanded. It is called with the crawler's mutation lock held.
type Hook func(l *link.Link) error

// DryAndInline returns the default completion hook: the child resource is
// dried and its reference in the parent replaced with a data: URL.
func DryAndInline(opts inline.Options) Hook {
	return func(l *link.Link) error {
		if err := dry.Resource(l.Resource()); err != nil {
			return fmt.Errorf("failed to dry %s: %w", l.Resource().URL(), err)
		}
		return inline.Link(l, opts)
	}
}

// Crawler expands resource trees.
type Crawler struct {
	fetcher fetch.Fetcher
	logger  *slog.Logger

	maxDepth    int
	concurrency int

	frames   resource.FrameAccessor
	recorder Recorder
	complete Hook

	// mu guards resource text. Links are read under it as well, since a
	// sibling's completion hook may rewrite the element they live on.
	mu sync.Mutex
}

// Option configures a Crawler.
type Option func(*Crawler)

// WithLogger sets the logger. Per-link failures are logged at debug level.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Crawler) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMaxDepth sets the deepest level that is expanded. 0 means no limit;
// negative values are ignored.
func WithMaxDepth(depth int) Option {
	return func(c *Crawler) {
		if depth >= 0 {
			c.maxDepth = depth
		}
	}
}

// WithConcurrency limits how many siblings are processed at once.
// 0 means no limit.
func WithConcurrency(n int) Option {
	return func(c *Crawler) {
		if n >= 0 {
			c.concurrency = n
		}
	}
}

// WithFrameAccessor sets the function used to read live frame documents.
func WithFrameAccessor(frames resource.FrameAccessor) Option {
	return func(c *Crawler) {
		c.frames = frames
	}
}

// WithRecorder sets where link outcomes are reported.
func WithRecorder(r Recorder) Option {
	return func(c *Crawler) {
		c.recorder = r
	}
}

// WithCompletionHook replaces the default DryAndInline hook.
func WithCompletionHook(h Hook) Option {
	return func(c *Crawler) {
		if h != nil {
			c.complete = h
		}
	}
}

// New creates a Crawler that fetches through fetcher.
func New(fetcher fetch.Fetcher, opts ...Option) *Crawler {
	c := &Crawler{
		fetcher:  fetcher,
		logger:   slog.Default(),
		maxDepth: DefaultMaxDepth,
		complete: DryAndInline(inline.Options{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Crawl expands root. It returns when every branch has settled, even after
// ctx is done. The returned error only reports failures of the completion
// hook; fetch and parse failures are recorded per link.
func (c *Crawler) Crawl(ctx context.Context, root link.Resource) error {
	own, _ := link.StripFragment(root.URL())
	return c.expand(ctx, root, []string{own}, 1)
}

// expand processes the links of res. ancestors holds the fragment-less URLs
// of res and everything above it.
func (c *Crawler) expand(ctx context.Context, res link.Resource, ancestors []string, depth int) error {
	var g errgroup.Group
	if c.concurrency > 0 {
		g.SetLimit(c.concurrency)
	}

	links := res.Links()
	errs := make([]error, len(links))
	for i, l := range links {
		if !l.Embedded() || l.Resource() != nil {
			continue
		}
		target, ok := c.admit(ctx, l, ancestors, depth)
		if !ok {
			continue
		}
		g.Go(func() error {
			errs[i] = c.visit(ctx, res, l, target, ancestors, depth)
			return errs[i]
		})
	}
	if err := g.Wait(); err != nil {
		return errors.Join(errs...)
	}
	return nil
}

// admit decides whether l is fetched, recording why when it is not.
func (c *Crawler) admit(ctx context.Context, l *link.Link, ancestors []string, depth int) (string, bool) {
	c.mu.Lock()
	ref, _ := l.Reference() //nolint:errcheck // only used for reporting
	target, resolved := l.Target()
	c.mu.Unlock()

	rec := model.ResourceRecord{Reference: ref, Category: l.Category().String(), Depth: depth}
	if !resource.Supported(l.Category()) {
		rec.Status = model.StatusUnsupported
		c.record(rec)
		return "", false
	}
	if !resolved {
		rec.Status = model.StatusUnresolvable
		c.record(rec)
		return "", false
	}
	rec.Reference = target

	withoutFragment, _ := link.StripFragment(target)
	switch {
	case slices.Contains(ancestors, withoutFragment):
		rec.Status = model.StatusCycle
	case c.maxDepth > 0 && depth > c.maxDepth:
		rec.Status = model.StatusDepthLimit
	case ctx.Err() != nil:
		rec.Status = model.StatusCancelled
	default:
		return target, true
	}
	c.record(rec)
	return "", false
}

// visit loads the resource of l, expands it and runs the completion hook.
func (c *Crawler) visit(ctx context.Context, parent link.Resource, l *link.Link, target string, ancestors []string, depth int) error {
	rec := model.ResourceRecord{Reference: target, Category: l.Category().String(), Depth: depth}

	child, fromFrame, err := c.load(ctx, parent, l, target)
	if err != nil {
		rec.Status = model.StatusFailed
		if ctx.Err() != nil {
			rec.Status = model.StatusCancelled
		}
		rec.Error = err.Error()
		c.logger.Debug("subresource not loaded", "url", target, "error", err)
		c.record(rec)
		return nil
	}
	rec.URL = child.URL()
	rec.FromFrame = fromFrame

	c.mu.Lock()
	err = l.SetResource(child)
	c.mu.Unlock()
	if err != nil {
		return err
	}

	childKey, _ := link.StripFragment(child.URL())
	targetKey, _ := link.StripFragment(target)
	childAncestors := append(slices.Clone(ancestors), targetKey)
	if childKey != targetKey {
		childAncestors = append(childAncestors, childKey)
	}
	expandErr := c.expand(ctx, child, childAncestors, depth+1)

	c.mu.Lock()
	hookErr := c.complete(l)
	content := child.Content()
	c.mu.Unlock()

	if hookErr != nil {
		rec.Status = model.StatusFailed
		rec.Error = hookErr.Error()
		c.record(rec)
		return errors.Join(expandErr, hookErr)
	}
	rec.Status = model.StatusInlined
	rec.ContentType = child.ContentType()
	rec.Size = len(content)
	rec.Digest = model.Digest(content)
	c.record(rec)
	return expandErr
}

// load returns the resource for l: a clone of the live frame document when
// one is accessible, otherwise the fetched and parsed target.
func (c *Crawler) load(ctx context.Context, parent link.Resource, l *link.Link, target string) (link.Resource, bool, error) {
	if frame := c.liveFrame(parent, l); frame != nil && c.frames != nil {
		if doc, url := c.frames(frame); doc != nil {
			if url == "" {
				url = target
			}
			return resource.CloneDocument(doc, url), true, nil
		}
	}

	resp, err := c.fetcher.Fetch(ctx, target)
	if err != nil {
		return nil, false, err
	}
	child, err := resource.New(l.Category(), resp.Body, resp.URL, resp.ContentType)
	if err != nil {
		return nil, false, err
	}
	return child, false, nil
}

// liveFrame returns the live frame element behind a document link, or nil.
func (c *Crawler) liveFrame(parent link.Resource, l *link.Link) *html.Node {
	if l.Category() != link.CategoryDocument {
		return nil
	}
	n := l.From().Node
	if !dom.IsElement(n, "iframe") && !dom.IsElement(n, "frame") {
		return nil
	}
	if doc, ok := parent.(*resource.Document); ok {
		if orig := doc.OriginalFrame(n); orig != nil {
			return orig
		}
	}
	return n
}

func (c *Crawler) record(rec model.ResourceRecord) {
	if c.recorder != nil {
		c.recorder.Record(rec)
	}
}
