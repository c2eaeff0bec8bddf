package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/nao1215/krk/internal/config"
	"github.com/nao1215/krk/internal/crawler"
	"github.com/nao1215/krk/internal/extract"
	"github.com/nao1215/krk/internal/fetch"
	"github.com/nao1215/krk/internal/model"
	"github.com/nao1215/krk/internal/selector"
)

// Result holds the pages of a finished run in fetch order.
type Result struct {
	// URLs is the resolved list of pages, after pagination.
	URLs []string

	// Pages holds one entry per URL.
	Pages []model.Page
}

// Trees returns the extracted trees in fetch order.
func (r *Result) Trees() []model.Tree {
	trees := make([]model.Tree, len(r.Pages))
	for i, p := range r.Pages {
		trees[i] = p.Tree
	}
	return trees
}

// Output returns the value handed to writers: the tree itself for a single
// page, or the list of trees otherwise.
func (r *Result) Output() any {
	trees := r.Trees()
	if len(trees) == 1 {
		return trees[0]
	}
	return trees
}

// Runner executes scrape documents.
type Runner struct {
	logger      *slog.Logger
	progress    io.Writer
	recorder    Recorder
	fetchOpts   []fetch.Option
	extractOpts []extract.Option
	resolver    *selector.Resolver
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithRunnerLogger sets the logger shared by every component of a run.
func WithRunnerLogger(logger *slog.Logger) RunnerOption {
	return func(r *Runner) {
		r.logger = logger
	}
}

// WithProgress writes "[i/n] url" lines to w as pages are processed.
func WithProgress(w io.Writer) RunnerOption {
	return func(r *Runner) {
		r.progress = w
	}
}

// WithRecorder records every finished page.
func WithRecorder(recorder Recorder) RunnerOption {
	return func(r *Runner) {
		r.recorder = recorder
	}
}

// WithFetchOptions passes options to the Fetcher built for each run.
func WithFetchOptions(opts ...fetch.Option) RunnerOption {
	return func(r *Runner) {
		r.fetchOpts = append(r.fetchOpts, opts...)
	}
}

// WithExtractOptions passes options to the Extractor built for each run.
func WithExtractOptions(opts ...extract.Option) RunnerOption {
	return func(r *Runner) {
		r.extractOpts = append(r.extractOpts, opts...)
	}
}

// NewRunner creates a Runner.
func NewRunner(opts ...RunnerOption) *Runner {
	r := &Runner{
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		progress: io.Discard,
		resolver: selector.NewResolver(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run fetches and extracts every page described by doc.
// The document must already be validated.
func (r *Runner) Run(ctx context.Context, doc *config.Document) (*Result, error) {
	fetcher, err := fetch.NewFetcher(&doc.Config,
		append([]fetch.Option{fetch.WithLogger(r.logger)}, r.fetchOpts...)...)
	if err != nil {
		return nil, err
	}
	pacer := fetch.NewPacer(doc.Config.DelayDuration())
	extractor := extract.NewExtractor(append([]extract.Option{
		extract.WithLogger(r.logger),
		extract.WithResolver(r.resolver),
	}, r.extractOpts...)...)

	urls, err := r.resolveURLs(ctx, doc, fetcher, extractor, pacer)
	if err != nil {
		return nil, err
	}

	p := New(WithLogger(r.logger))
	p.AddSteps(NewFetchStep(fetcher, pacer), NewExtractStep(extractor, doc.Data))
	if r.recorder != nil {
		p.AddStep(NewRecordStep(r.recorder))
	}
	r.logger.Debug("starting run", "pages", len(urls), "steps", p.StepNames())

	result := &Result{URLs: urls, Pages: make([]model.Page, 0, len(urls))}
	for i, u := range urls {
		fmt.Fprintf(r.progress, "[%d/%d] %s\n", i+1, len(urls), u)

		page := &PageState{Position: i, URL: u}
		if err := p.Execute(ctx, page); err != nil {
			return nil, fmt.Errorf("page %d (%s): %w", i+1, u, err)
		}
		result.Pages = append(result.Pages, page.Page())
	}

	r.logger.Info("run complete", "pages", len(result.Pages))
	return result, nil
}

// resolveURLs returns the configured URLs, expanded by pagination when
// exactly one URL is configured.
func (r *Runner) resolveURLs(ctx context.Context, doc *config.Document, fetcher crawler.Fetcher,
	extractor crawler.Extractor, pacer crawler.Pacer) ([]string, error) {
	urls := doc.Config.Targets()
	if doc.Config.Pagination == nil {
		return urls, nil
	}
	if len(urls) != 1 {
		r.logger.Warn("pagination requires exactly one URL, ignoring it", "urls", len(urls))
		return urls, nil
	}

	paginator := crawler.NewPaginator(fetcher, extractor,
		crawler.WithLogger(r.logger),
		crawler.WithPacer(pacer),
		crawler.WithResolver(r.resolver),
	)
	expanded, err := paginator.URLs(ctx, urls[0], doc.Config.Pagination, doc.Data)
	if err != nil {
		return nil, fmt.Errorf("pagination failed: %w", err)
	}
	fmt.Fprintf(r.progress, "Scraping %d pages\n", len(expanded))
	return expanded, nil
}
