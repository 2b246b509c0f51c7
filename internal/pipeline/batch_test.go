package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// TestBatchProcessorNew tests the BatchProcessor constructor.
func TestBatchProcessorNew(t *testing.T) {
	t.Parallel()

	t.Run("creates processor with defaults", func(t *testing.T) {
		t.Parallel()

		bp := NewBatchProcessor(func() *Pipeline { return New() })
		if bp.concurrency != DefaultBatchConcurrency {
			t.Errorf("expected default concurrency %d, got %d", DefaultBatchConcurrency, bp.concurrency)
		}
		if bp.logger == nil {
			t.Error("expected non-nil logger")
		}
	})

	t.Run("ignores non-positive concurrency", func(t *testing.T) {
		t.Parallel()

		bp := NewBatchProcessor(func() *Pipeline { return New() }, WithConcurrency(0))
		if bp.concurrency != DefaultBatchConcurrency {
			t.Errorf("expected concurrency %d, got %d", DefaultBatchConcurrency, bp.concurrency)
		}
	})
}

// TestBatchProcessorProcessBatch tests batch processing.
func TestBatchProcessorProcessBatch(t *testing.T) {
	t.Parallel()

	t.Run("returns one run per url in input order", func(t *testing.T) {
		t.Parallel()

		stamp := time.Date(2026, 5, 6, 7, 8, 9, 0, time.UTC)
		bp := NewBatchProcessor(func() *Pipeline {
			p := New()
			p.AddStep(&mockStep{
				name: "output",
				doFunc: func(_ context.Context, run *Run) error {
					run.Output = "archived " + run.URL
					return nil
				},
			})
			return p
		}, WithClock(func() time.Time { return stamp }))

		urls := []string{"https://a.example/", "https://b.example/", "https://c.example/"}
		runs, err := bp.ProcessBatch(context.Background(), urls)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(runs) != 3 {
			t.Fatalf("expected 3 runs, got %d", len(runs))
		}
		for i, run := range runs {
			if run.Output != "archived "+urls[i] {
				t.Errorf("run %d: unexpected output %q", i, run.Output)
			}
			if !run.Snapshot.DateArchived.Equal(stamp) {
				t.Errorf("run %d: unexpected timestamp %v", i, run.Snapshot.DateArchived)
			}
		}
	})

	t.Run("respects concurrency limit", func(t *testing.T) {
		t.Parallel()

		var current, peak atomic.Int32
		var mu sync.Mutex
		bp := NewBatchProcessor(func() *Pipeline {
			p := New()
			p.AddStep(&mockStep{
				name: "slow",
				doFunc: func(_ context.Context, _ *Run) error {
					n := current.Add(1)
					mu.Lock()
					if n > peak.Load() {
						peak.Store(n)
					}
					mu.Unlock()
					time.Sleep(20 * time.Millisecond)
					current.Add(-1)
					return nil
				},
			})
			return p
		}, WithConcurrency(2))

		if _, err := bp.ProcessBatch(context.Background(), []string{"a", "b", "c", "d", "e"}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if peak.Load() > 2 {
			t.Errorf("expected at most 2 concurrent runs, got %d", peak.Load())
		}
	})

	t.Run("failed snapshots do not stop the batch", func(t *testing.T) {
		t.Parallel()

		bp := NewBatchProcessor(func() *Pipeline {
			p := New()
			p.AddStep(&mockStep{
				name: "fails-for-b",
				doFunc: func(_ context.Context, run *Run) error {
					if run.URL == "b" {
						return errors.New("boom")
					}
					return nil
				},
			})
			return p
		})

		runs, err := bp.ProcessBatch(context.Background(), []string{"a", "b", "c"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if runs[1].Snapshot.Error != "boom" {
			t.Errorf("expected error on run b, got %q", runs[1].Snapshot.Error)
		}
		if runs[0].Snapshot.Error != "" || runs[2].Snapshot.Error != "" {
			t.Error("other runs must succeed")
		}
	})

	t.Run("run timeout cuts each snapshot short", func(t *testing.T) {
		t.Parallel()

		bp := NewBatchProcessor(func() *Pipeline {
			p := New()
			p.AddStep(&mockStep{
				name: "waits",
				doFunc: func(ctx context.Context, _ *Run) error {
					<-ctx.Done()
					return nil
				},
			})
			return p
		}, WithRunTimeout(10*time.Millisecond))

		runs, err := bp.ProcessBatch(context.Background(), []string{"a", "b"})
		if err != nil {
			t.Fatalf("a timed out run is not a batch error, got %v", err)
		}
		for _, run := range runs {
			if !run.Snapshot.TimedOut {
				t.Errorf("run %s should be marked as timed out", run.URL)
			}
		}
	})

	t.Run("cancelled context", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		bp := NewBatchProcessor(func() *Pipeline { return New() })
		if _, err := bp.ProcessBatch(ctx, []string{"a", "b"}); !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})
}

// TestBatchProcessorProcessBatchWithCallback tests streaming results.
func TestBatchProcessorProcessBatchWithCallback(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	seen := make(map[int]string)
	bp := NewBatchProcessor(func() *Pipeline { return New() })

	err := bp.ProcessBatchWithCallback(context.Background(), []string{"a", "b"}, func(run *Run, index int) {
		mu.Lock()
		defer mu.Unlock()
		seen[index] = run.URL
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if seen[0] != "a" || seen[1] != "b" {
		t.Errorf("unexpected callbacks %v", seen)
	}
}
