package pipeline

import (
	"context"
	"log/slog"

	"github.com/nao1215/freezedry/internal/model"
)

// Step is one stage of a snapshot.
type Step interface {
	// Do executes the step. Problems that only affect part of the snapshot
	// are recorded in run.Snapshot; an error means the snapshot cannot be
	// produced.
	Do(ctx context.Context, run *Run) error

	// Name returns the step's name for logging purposes.
	Name() string
}

// Pipeline executes steps in order.
type Pipeline struct {
	steps  []Step
	logger *slog.Logger

	// continueOnError keeps executing after a step fails.
	continueOnError bool
}

// Option is a function that configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets a custom logger for the pipeline.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithContinueOnError configures the pipeline to continue execution
// even when a step fails. The first error is still recorded on the snapshot.
func WithContinueOnError(continueOnError bool) Option {
	return func(p *Pipeline) {
		p.continueOnError = continueOnError
	}
}

// New creates a new Pipeline with the given options.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{
		steps: make([]Step, 0),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p
}

// AddStep appends a step to the pipeline.
func (p *Pipeline) AddStep(step Step) {
	p.steps = append(p.steps, step)
}

// AddSteps appends multiple steps to the pipeline.
func (p *Pipeline) AddSteps(steps ...Step) {
	p.steps = append(p.steps, steps...)
}

// Execute runs all steps in sequence. A done context does not stop the
// pipeline; it marks the snapshot as timed out and the remaining steps work
// with what has been collected.
func (p *Pipeline) Execute(ctx context.Context, run *Run) error {
	p.logger.Debug("starting snapshot", "url", run.URL, "steps", p.StepNames())
	for _, step := range p.steps {
		if ctx.Err() != nil && !run.Snapshot.TimedOut {
			p.logger.Warn("snapshot cut short",
				"step", step.Name(),
				"reason", ctx.Err(),
			)
			markCutShort(run, ctx.Err())
		}

		p.logger.Debug("executing step",
			"step", step.Name(),
			"url", run.URL,
		)

		if err := step.Do(ctx, run); err != nil {
			p.logger.Error("step failed",
				"step", step.Name(),
				"url", run.URL,
				"error", err,
			)
			if run.Snapshot.Error == "" {
				run.Snapshot.Error = err.Error()
			}
			if !p.continueOnError {
				return err
			}
		}
	}
	if ctx.Err() != nil && !run.Snapshot.TimedOut {
		markCutShort(run, ctx.Err())
	}
	return nil
}

func markCutShort(run *Run, reason error) {
	run.Snapshot.TimedOut = true
	run.Snapshot.AddFinding(model.FindingCancelled, "Snapshot Cut Short",
		"the run ended before every subresource was fetched: "+reason.Error(), run.URL, "")
}

// StepNames returns the names of all steps in execution order.
func (p *Pipeline) StepNames() []string {
	names := make([]string, len(p.steps))
	for i, step := range p.steps {
		names[i] = step.Name()
	}
	return names
}
