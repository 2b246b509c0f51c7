package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultBatchConcurrency is how many URLs are archived at once by default.
const DefaultBatchConcurrency = 4

// BatchProcessor archives several URLs concurrently. Every URL gets a fresh
// pipeline from the factory and its own Run.
type BatchProcessor struct {
	pipelineFactory func() *Pipeline
	concurrency     int
	runTimeout      time.Duration
	logger          *slog.Logger

	// now stamps new runs.
	now func() time.Time

	results []*Run
	mu      sync.Mutex
}

// BatchOption configures a BatchProcessor.
type BatchOption func(*BatchProcessor)

// WithBatchLogger sets a custom logger for batch processing.
func WithBatchLogger(logger *slog.Logger) BatchOption {
	return func(b *BatchProcessor) {
		b.logger = logger
	}
}

// WithConcurrency sets the maximum number of concurrent snapshots.
func WithConcurrency(n int) BatchOption {
	return func(b *BatchProcessor) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

// WithRunTimeout bounds every snapshot of the batch. A snapshot that runs
// out of time is finished with what it has, like any cancelled run.
func WithRunTimeout(d time.Duration) BatchOption {
	return func(b *BatchProcessor) {
		if d > 0 {
			b.runTimeout = d
		}
	}
}

// WithClock sets the function used to timestamp runs.
func WithClock(now func() time.Time) BatchOption {
	return func(b *BatchProcessor) {
		if now != nil {
			b.now = now
		}
	}
}

// NewBatchProcessor creates a new BatchProcessor.
func NewBatchProcessor(pipelineFactory func() *Pipeline, opts ...BatchOption) *BatchProcessor {
	bp := &BatchProcessor{
		pipelineFactory: pipelineFactory,
		concurrency:     DefaultBatchConcurrency,
		now:             time.Now,
		results:         make([]*Run, 0),
	}
	for _, opt := range opts {
		opt(bp)
	}
	if bp.logger == nil {
		bp.logger = slog.Default()
	}
	return bp
}

// ProcessBatch archives urls and returns one Run per URL, in input order.
// A failed snapshot does not stop the others; its error is recorded on its
// Run. URLs not yet started when ctx is done have a nil Run.
func (bp *BatchProcessor) ProcessBatch(ctx context.Context, urls []string) ([]*Run, error) {
	bp.logger.Info("starting batch processing",
		"total_urls", len(urls),
		"concurrency", bp.concurrency,
	)
	startTime := time.Now()

	bp.results = make([]*Run, len(urls))
	err := bp.each(ctx, urls, func(run *Run, i int) {
		bp.mu.Lock()
		bp.results[i] = run
		bp.mu.Unlock()
	})

	bp.logger.Info("batch processing complete",
		"total_urls", len(urls),
		"elapsed", time.Since(startTime),
	)
	return bp.results, err
}

// ProcessBatchWithCallback archives urls and calls callback for every
// finished Run with the URL's index. callback may be called concurrently.
func (bp *BatchProcessor) ProcessBatchWithCallback(ctx context.Context, urls []string, callback func(run *Run, index int)) error {
	bp.logger.Info("starting batch processing with callback",
		"total_urls", len(urls),
		"concurrency", bp.concurrency,
	)
	return bp.each(ctx, urls, callback)
}

func (bp *BatchProcessor) each(ctx context.Context, urls []string, done func(run *Run, index int)) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(bp.concurrency)

	for i, url := range urls {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			bp.logger.Info("archiving",
				"url", url,
				"index", i+1,
				"total", len(urls),
			)
			runCtx, cancel := gctx, context.CancelFunc(func() {})
			if bp.runTimeout > 0 {
				runCtx, cancel = context.WithTimeout(gctx, bp.runTimeout)
			}
			defer cancel()

			run := NewRun(url, nil, bp.now())
			if err := bp.pipelineFactory().Execute(runCtx, run); err != nil {
				bp.logger.Warn("snapshot failed", "url", url, "error", err)
			}
			done(run, i)
			return nil
		})
	}
	return g.Wait()
}
