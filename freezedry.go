package freezedry

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/net/html"

	"github.com/nao1215/freezedry/internal/crawler"
	"github.com/nao1215/freezedry/internal/fetch"
	"github.com/nao1215/freezedry/internal/model"
	"github.com/nao1215/freezedry/internal/pipeline"
	"github.com/nao1215/freezedry/internal/resource"
)

// Types shared with the internal packages.
type (
	// Fetcher loads the bytes behind a URL.
	Fetcher = fetch.Fetcher

	// FetchFunc adapts a function to Fetcher.
	FetchFunc = fetch.Func

	// Response is what a Fetcher returns: the post-redirect URL, the
	// Content-Type and the body.
	Response = fetch.Response

	// FrameAccessor returns the document loaded in a live frame element,
	// or nil when it cannot be read.
	FrameAccessor = resource.FrameAccessor

	// Recorder is told the outcome of every embedded reference.
	Recorder = crawler.Recorder

	// ResourceRecord is one outcome passed to a Recorder.
	ResourceRecord = model.ResourceRecord
)

// ErrNoDocument is returned by Freeze for a nil document.
var ErrNoDocument = pipeline.ErrNoDocument

// DefaultContentPolicy is the Content-Security-Policy written into
// snapshots unless WithContentPolicy changes it. It only lets the page load
// what it carries inline.
const DefaultContentPolicy = pipeline.DefaultContentPolicy

type options struct {
	timeout       time.Duration
	documentURL   string
	frames        FrameAccessor
	fetcher       Fetcher
	preserve      bool
	logger        *slog.Logger
	maxDepth      int
	concurrency   int
	contentPolicy string
	provenance    bool
	timestamp     time.Time
	recorder      Recorder
}

// Option configures Freeze and FreezeURL.
type Option func(*options)

// WithTimeout cancels fetching after d. Zero, the default, means no limit.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		o.timeout = d
	}
}

// WithDocumentURL sets the URL relative references of the root document
// resolve against. Freeze has no other way to learn it.
func WithDocumentURL(url string) Option {
	return func(o *options) {
		o.documentURL = url
	}
}

// WithFrameAccessor lets Freeze read the current document of <iframe> and
// <frame> elements instead of fetching their src.
func WithFrameAccessor(frames FrameAccessor) Option {
	return func(o *options) {
		o.frames = frames
	}
}

// WithFetcher replaces the default HTTP fetcher.
func WithFetcher(f Fetcher) Option {
	return func(o *options) {
		if f != nil {
			o.fetcher = f
		}
	}
}

// WithPreserveOriginalReference keeps every rewritten attribute's original
// value on a data-original-<attribute> attribute.
func WithPreserveOriginalReference(preserve bool) Option {
	return func(o *options) {
		o.preserve = preserve
	}
}

// WithLogger sets the logger. The default is slog.Default.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMaxDepth sets how deeply nested resources are inlined. Links of the
// root document are at depth 1, and 0 removes the bound.
func WithMaxDepth(depth int) Option {
	return func(o *options) {
		if depth >= 0 {
			o.maxDepth = depth
		}
	}
}

// WithConcurrency limits how many links of one resource are fetched at
// once. Zero means no limit.
func WithConcurrency(n int) Option {
	return func(o *options) {
		if n >= 0 {
			o.concurrency = n
		}
	}
}

// WithContentPolicy sets the Content-Security-Policy <meta> of the output.
// An empty policy leaves it out.
func WithContentPolicy(policy string) Option {
	return func(o *options) {
		o.contentPolicy = policy
	}
}

// WithProvenance switches the snapshot-url and snapshot-date <meta>
// elements on or off. They are on by default.
func WithProvenance(enable bool) Option {
	return func(o *options) {
		o.provenance = enable
	}
}

// WithTimestamp sets the time recorded as the snapshot date.
func WithTimestamp(t time.Time) Option {
	return func(o *options) {
		o.timestamp = t
	}
}

// WithRecorder reports the outcome of every embedded reference to r.
// Record may be called from several goroutines.
func WithRecorder(r Recorder) Option {
	return func(o *options) {
		o.recorder = r
	}
}

func newOptions(opts []Option) *options {
	o := &options{
		logger:        slog.Default(),
		maxDepth:      crawler.DefaultMaxDepth,
		contentPolicy: DefaultContentPolicy,
		provenance:    true,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.fetcher == nil {
		o.fetcher = fetch.NewHTTPFetcher(fetch.WithHTTPLogger(o.logger))
	}
	if o.timestamp.IsZero() {
		o.timestamp = time.Now()
	}
	return o
}

func (o *options) pipeline(frames FrameAccessor) *pipeline.Pipeline {
	return pipeline.DefaultPipeline(o.fetcher,
		[]pipeline.Option{pipeline.WithLogger(o.logger)},
		pipeline.WithPipelineMaxDepth(o.maxDepth),
		pipeline.WithPipelineConcurrency(o.concurrency),
		pipeline.WithPipelineFrameAccessor(frames),
		pipeline.WithPipelinePreserveOriginalReference(o.preserve),
		pipeline.WithPipelineContentPolicy(o.contentPolicy),
		pipeline.WithPipelineProvenance(o.provenance),
		pipeline.WithPipelineRecorder(o.recorder),
	)
}

// Freeze returns a self-contained copy of doc. doc itself is not modified.
func Freeze(ctx context.Context, doc *html.Node, opts ...Option) (string, error) {
	if doc == nil {
		return "", ErrNoDocument
	}
	o := newOptions(opts)
	return o.run(ctx, pipeline.NewRun(o.documentURL, doc, o.timestamp), o.frames)
}

// FreezeURL fetches the document at url and returns its self-contained
// copy. Frames are always fetched.
func FreezeURL(ctx context.Context, url string, opts ...Option) (string, error) {
	o := newOptions(opts)
	return o.run(ctx, pipeline.NewRun(url, nil, o.timestamp), nil)
}

func (o *options) run(ctx context.Context, run *pipeline.Run, frames FrameAccessor) (string, error) {
	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}
	if err := o.pipeline(frames).Execute(ctx, run); err != nil {
		return "", err
	}
	return run.Output, nil
}
