package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/nao1215/krk/internal/model"
)

// PageState carries a page through the steps of a Pipeline.
type PageState struct {
	// Position is the 0-based index of the page in fetch order.
	Position int

	// URL is the page address.
	URL string

	// Markup is the fetched text. It is set by FetchStep.
	Markup string

	// Tree is the extraction result. It is set by ExtractStep.
	Tree model.Tree

	// FetchedAt is when the page text became available.
	FetchedAt time.Time
}

// Page returns the finished page record.
func (s *PageState) Page() model.Page {
	return model.Page{
		Position:  s.Position,
		URL:       s.URL,
		FetchedAt: s.FetchedAt,
		Tree:      s.Tree,
	}
}

// Step is a single stage of page processing.
type Step interface {
	// Do executes the step on the page.
	// An error aborts the processing of this page.
	Do(ctx context.Context, page *PageState) error

	// Name returns the step's name for logging purposes.
	Name() string
}

// Pipeline executes steps in order for one page at a time.
type Pipeline struct {
	steps  []Step
	logger *slog.Logger
}

// Option is a function that configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets a custom logger for the pipeline.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
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

// Execute runs every step on page.
// Cancellation is checked before each step; the first failing step ends
// the execution and its error is returned.
func (p *Pipeline) Execute(ctx context.Context, page *PageState) error {
	for _, step := range p.steps {
		select {
		case <-ctx.Done():
			p.logger.Warn("pipeline cancelled",
				"step", step.Name(),
				"url", page.URL,
				"reason", ctx.Err(),
			)
			return ctx.Err()
		default:
		}

		p.logger.Debug("executing step",
			"step", step.Name(),
			"url", page.URL,
		)

		if err := step.Do(ctx, page); err != nil {
			p.logger.Error("step failed",
				"step", step.Name(),
				"url", page.URL,
				"error", err,
			)
			return err
		}
	}
	return nil
}

// StepCount returns the number of steps in the pipeline.
func (p *Pipeline) StepCount() int {
	return len(p.steps)
}

// StepNames returns the names of all steps in execution order.
func (p *Pipeline) StepNames() []string {
	names := make([]string, len(p.steps))
	for i, step := range p.steps {
		names[i] = step.Name()
	}
	return names
}
