package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/nao1215/freezedry/internal/crawler"
	"github.com/nao1215/freezedry/internal/dom"
	"github.com/nao1215/freezedry/internal/dry"
	"github.com/nao1215/freezedry/internal/fetch"
	"github.com/nao1215/freezedry/internal/inline"
	"github.com/nao1215/freezedry/internal/link"
	"github.com/nao1215/freezedry/internal/metadata"
	"github.com/nao1215/freezedry/internal/model"
	"github.com/nao1215/freezedry/internal/resource"
)

// ErrNoDocument is returned by CaptureStep when a run has neither a live
// document nor a fetcher to load one with.
var ErrNoDocument = errors.New("no document to capture")

// CaptureStep creates the snapshot's root resource. A live document is
// deep-cloned; otherwise the run's URL is fetched and parsed.
type CaptureStep struct {
	fetcher fetch.Fetcher
	logger  *slog.Logger
}

// CaptureStepOption configures a CaptureStep.
type CaptureStepOption func(*CaptureStep)

// WithCaptureLogger sets a custom logger for the capture step.
func WithCaptureLogger(logger *slog.Logger) CaptureStepOption {
	return func(s *CaptureStep) {
		s.logger = logger
	}
}

// NewCaptureStep creates a capture step. fetcher may be nil when every run
// carries a live document.
func NewCaptureStep(fetcher fetch.Fetcher, opts ...CaptureStepOption) *CaptureStep {
	s := &CaptureStep{
		fetcher: fetcher,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the step name.
func (s *CaptureStep) Name() string {
	return "capture"
}

// Do executes the capture step.
func (s *CaptureStep) Do(ctx context.Context, run *Run) error {
	if run.Live != nil {
		run.Root = resource.CloneDocument(run.Live, run.URL)
		return nil
	}
	if s.fetcher == nil {
		return ErrNoDocument
	}

	resp, err := s.fetcher.Fetch(ctx, run.URL)
	if err != nil {
		return fmt.Errorf("failed to fetch %s: %w", run.URL, err)
	}
	doc, err := resource.ParseDocument(resp.Body, resp.URL, resp.ContentType)
	if err != nil {
		return err
	}
	if resp.URL != run.URL {
		s.logger.Debug("document redirected", "from", run.URL, "to", resp.URL)
	}
	run.URL = resp.URL
	run.Root = doc
	return nil
}

// CrawlStep expands the root resource. Every subresource is inspected for
// metadata, dried and inlined as its branch completes.
type CrawlStep struct {
	fetcher fetch.Fetcher

	maxDepth    int
	concurrency int
	frames      resource.FrameAccessor
	inline      inline.Options
	recorders   []crawler.Recorder

	logger *slog.Logger
}

// CrawlStepOption configures a CrawlStep.
type CrawlStepOption func(*CrawlStep)

// WithCrawlMaxDepth sets the deepest level that is expanded.
func WithCrawlMaxDepth(depth int) CrawlStepOption {
	return func(s *CrawlStep) {
		s.maxDepth = depth
	}
}

// WithCrawlConcurrency limits how many siblings are fetched at once.
func WithCrawlConcurrency(n int) CrawlStepOption {
	return func(s *CrawlStep) {
		s.concurrency = n
	}
}

// WithCrawlFrameAccessor sets the function used to read live frames.
func WithCrawlFrameAccessor(frames resource.FrameAccessor) CrawlStepOption {
	return func(s *CrawlStep) {
		s.frames = frames
	}
}

// WithCrawlPreserveOriginalReference keeps pre-inlining attribute values on
// data-original-* attributes.
func WithCrawlPreserveOriginalReference(preserve bool) CrawlStepOption {
	return func(s *CrawlStep) {
		s.inline.PreserveOriginalReference = preserve
	}
}

// WithCrawlRecorder adds a recorder that sees every link outcome next to
// the run's snapshot. Nil recorders are ignored.
func WithCrawlRecorder(r crawler.Recorder) CrawlStepOption {
	return func(s *CrawlStep) {
		if r != nil {
			s.recorders = append(s.recorders, r)
		}
	}
}

// WithCrawlLogger sets a custom logger for the crawl step.
func WithCrawlLogger(logger *slog.Logger) CrawlStepOption {
	return func(s *CrawlStep) {
		s.logger = logger
	}
}

// NewCrawlStep creates a crawl step that fetches through fetcher.
func NewCrawlStep(fetcher fetch.Fetcher, opts ...CrawlStepOption) *CrawlStep {
	s := &CrawlStep{
		fetcher:  fetcher,
		maxDepth: crawler.DefaultMaxDepth,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the step name.
func (s *CrawlStep) Name() string {
	return "crawl"
}

// Do executes the crawl step.
func (s *CrawlStep) Do(ctx context.Context, run *Run) error {
	inlineLink := crawler.DryAndInline(s.inline)
	hook := func(l *link.Link) error {
		metadata.Inspect(run.Snapshot, l)
		return inlineLink(l)
	}

	c := crawler.New(s.fetcher,
		crawler.WithLogger(s.logger),
		crawler.WithMaxDepth(s.maxDepth),
		crawler.WithConcurrency(s.concurrency),
		crawler.WithFrameAccessor(s.frames),
		crawler.WithRecorder(append(recorders{run.Snapshot}, s.recorders...)),
		crawler.WithCompletionHook(hook),
	)
	if err := c.Crawl(ctx, run.Root); err != nil {
		return fmt.Errorf("failed to crawl %s: %w", run.URL, err)
	}

	s.logger.Info("crawl completed",
		"url", run.URL,
		"resources", len(run.Snapshot.Records()),
	)
	return nil
}

// recorders fans one outcome out to several recorders.
type recorders []crawler.Recorder

func (rs recorders) Record(r model.ResourceRecord) {
	for _, rec := range rs {
		rec.Record(r)
	}
}

// DryStep dries the root document: links are absolutized and scripts,
// event handlers and <base> are removed.
type DryStep struct{}

// NewDryStep creates a dry step.
func NewDryStep() *DryStep {
	return &DryStep{}
}

// Name returns the step name.
func (s *DryStep) Name() string {
	return "dry"
}

// Do executes the dry step.
func (s *DryStep) Do(_ context.Context, run *Run) error {
	if err := dry.Resource(run.Root); err != nil {
		return fmt.Errorf("failed to dry %s: %w", run.URL, err)
	}
	return nil
}

// DefaultContentPolicy only allows resources carried inside the snapshot.
// References that could not be inlined stay unloadable.
const DefaultContentPolicy = "default-src 'none'; img-src data:; media-src data:; " +
	"style-src data: 'unsafe-inline'; font-src data:; frame-src data:; object-src data:"

// SnapshotDateFormat is the layout of the snapshot-date meta element.
const SnapshotDateFormat = time.RFC1123

// FinishStep adds markup describing the snapshot to the root's <head>.
// Each addition can be switched on or off independently.
type FinishStep struct {
	charset       bool
	contentPolicy string
	provenance    bool
}

// FinishStepOption configures a FinishStep.
type FinishStepOption func(*FinishStep)

// WithCharsetMeta declares UTF-8 in a <meta charset>, replacing any
// earlier declaration. On by default.
func WithCharsetMeta(enable bool) FinishStepOption {
	return func(s *FinishStep) {
		s.charset = enable
	}
}

// WithContentPolicyMeta adds a Content-Security-Policy <meta> with the given
// policy, replacing existing ones. An empty policy adds none, which is the
// default.
func WithContentPolicyMeta(policy string) FinishStepOption {
	return func(s *FinishStep) {
		s.contentPolicy = policy
	}
}

// WithProvenanceMeta adds snapshot-url and snapshot-date <meta> elements.
// On by default.
func WithProvenanceMeta(enable bool) FinishStepOption {
	return func(s *FinishStep) {
		s.provenance = enable
	}
}

// NewFinishStep creates a finish step.
func NewFinishStep(opts ...FinishStepOption) *FinishStep {
	s := &FinishStep{charset: true, provenance: true}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the step name.
func (s *FinishStep) Name() string {
	return "finish"
}

// Do executes the finish step.
func (s *FinishStep) Do(_ context.Context, run *Run) error {
	root := run.Root.Node()
	head := ensureHead(root)
	if head == nil {
		return nil
	}

	// Inserted in reverse so the charset declaration ends up first.
	if s.provenance {
		prependMeta(head, "name", "snapshot-date", run.Snapshot.DateArchived.UTC().Format(SnapshotDateFormat))
		prependMeta(head, "name", "snapshot-url", run.URL)
	}
	if s.contentPolicy != "" {
		removeAll(root, "//meta[lower-case(@http-equiv)='content-security-policy']")
		prependMeta(head, "http-equiv", "Content-Security-Policy", s.contentPolicy)
	}
	if s.charset {
		removeAll(root, "//meta[@charset]")
		removeAll(root, "//meta[lower-case(@http-equiv)='content-type']")
		prependMeta(head, "charset", "utf-8", "")
	}
	return nil
}

// ensureHead returns the <head> of root, creating one in <html> if needed.
func ensureHead(root *html.Node) *html.Node {
	if head := dom.Find(root, "head"); head != nil {
		return head
	}
	htmlElem := dom.Find(root, "html")
	if htmlElem == nil {
		return nil
	}
	head := &html.Node{Type: html.ElementNode, Data: "head", DataAtom: atom.Head}
	htmlElem.InsertBefore(head, htmlElem.FirstChild)
	return head
}

// prependMeta inserts <meta key="val" content="content"> as the first child
// of head. content is omitted when empty.
func prependMeta(head *html.Node, key, val, content string) {
	meta := &html.Node{Type: html.ElementNode, Data: "meta", DataAtom: atom.Meta}
	meta.Attr = append(meta.Attr, html.Attribute{Key: key, Val: val})
	if content != "" {
		meta.Attr = append(meta.Attr, html.Attribute{Key: "content", Val: content})
	}
	head.InsertBefore(meta, head.FirstChild)
}

func removeAll(root *html.Node, selector string) {
	nodes, err := htmlquery.QueryAll(root, selector)
	if err != nil {
		return
	}
	for _, n := range nodes {
		if n.Parent != nil {
			n.Parent.RemoveChild(n)
		}
	}
}

// RenderStep serializes the root into the run's output.
type RenderStep struct{}

// NewRenderStep creates a render step.
func NewRenderStep() *RenderStep {
	return &RenderStep{}
}

// Name returns the step name.
func (s *RenderStep) Name() string {
	return "render"
}

// Do executes the render step.
func (s *RenderStep) Do(_ context.Context, run *Run) error {
	out, err := dom.Render(run.Root.Node())
	if err != nil {
		return fmt.Errorf("failed to render %s: %w", run.URL, err)
	}
	run.Output = out
	run.Snapshot.Finish([]byte(out), time.Since(run.Snapshot.DateArchived))
	return nil
}

// DefaultPipelineConfig holds configuration for the default pipeline.
type DefaultPipelineConfig struct {
	// MaxDepth is the deepest level of subresources that is expanded.
	MaxDepth int

	// Concurrency limits sibling fetches; 0 means no limit.
	Concurrency int

	// FrameAccessor reads live frame documents. Only used for runs that
	// carry a live document.
	FrameAccessor resource.FrameAccessor

	// PreserveOriginalReference keeps pre-inlining values on
	// data-original-* attributes.
	PreserveOriginalReference bool

	// ContentPolicy is the Content-Security-Policy added to the output, or
	// "" for none.
	ContentPolicy string

	// Provenance adds snapshot-url and snapshot-date meta elements.
	Provenance bool

	// Recorder also receives every link outcome.
	Recorder crawler.Recorder
}

// DefaultPipelineOption configures a DefaultPipelineConfig.
type DefaultPipelineOption func(*DefaultPipelineConfig)

// WithPipelineMaxDepth sets the maximum depth.
func WithPipelineMaxDepth(depth int) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.MaxDepth = depth
	}
}

// WithPipelineConcurrency sets the sibling fetch limit.
func WithPipelineConcurrency(n int) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.Concurrency = n
	}
}

// WithPipelineFrameAccessor sets the live frame accessor.
func WithPipelineFrameAccessor(frames resource.FrameAccessor) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.FrameAccessor = frames
	}
}

// WithPipelinePreserveOriginalReference keeps original references.
func WithPipelinePreserveOriginalReference(preserve bool) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.PreserveOriginalReference = preserve
	}
}

// WithPipelineContentPolicy sets the Content-Security-Policy of the output.
func WithPipelineContentPolicy(policy string) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.ContentPolicy = policy
	}
}

// WithPipelineProvenance switches the snapshot-url and snapshot-date meta
// elements on or off.
func WithPipelineProvenance(enable bool) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.Provenance = enable
	}
}

// WithPipelineRecorder sets an extra recorder for link outcomes.
func WithPipelineRecorder(r crawler.Recorder) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.Recorder = r
	}
}

// DefaultPipeline creates a pipeline with the standard steps: capture,
// crawl, dry, finish and render.
func DefaultPipeline(fetcher fetch.Fetcher, pipelineOpts []Option, configOpts ...DefaultPipelineOption) *Pipeline {
	p := New(pipelineOpts...)

	cfg := &DefaultPipelineConfig{
		MaxDepth:   crawler.DefaultMaxDepth,
		Provenance: true,
	}
	for _, opt := range configOpts {
		opt(cfg)
	}

	p.AddSteps(
		NewCaptureStep(fetcher, WithCaptureLogger(p.logger)),
		NewCrawlStep(fetcher,
			WithCrawlMaxDepth(cfg.MaxDepth),
			WithCrawlConcurrency(cfg.Concurrency),
			WithCrawlFrameAccessor(cfg.FrameAccessor),
			WithCrawlPreserveOriginalReference(cfg.PreserveOriginalReference),
			WithCrawlRecorder(cfg.Recorder),
			WithCrawlLogger(p.logger),
		),
		NewDryStep(),
		NewFinishStep(
			WithContentPolicyMeta(cfg.ContentPolicy),
			WithProvenanceMeta(cfg.Provenance),
		),
		NewRenderStep(),
	)
	return p
}
