package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/nao1215/krk/internal/config"
	"github.com/nao1215/krk/internal/crawler"
	"github.com/nao1215/krk/internal/model"
)

// FetchStep waits on the pacer and retrieves the page text.
type FetchStep struct {
	fetcher crawler.Fetcher
	pacer   crawler.Pacer
}

// NewFetchStep creates a FetchStep. pacer may be nil.
func NewFetchStep(fetcher crawler.Fetcher, pacer crawler.Pacer) *FetchStep {
	return &FetchStep{fetcher: fetcher, pacer: pacer}
}

// Name returns the step name.
func (s *FetchStep) Name() string {
	return "fetch"
}

// Do executes the fetch step.
func (s *FetchStep) Do(ctx context.Context, page *PageState) error {
	if s.pacer != nil {
		if err := s.pacer.Wait(ctx); err != nil {
			return err
		}
		defer s.pacer.Done()
	}

	markup, err := s.fetcher.Fetch(ctx, page.URL)
	if err != nil {
		return err
	}
	page.Markup = markup
	page.FetchedAt = time.Now()
	return nil
}

// ExtractStep evaluates the schema against the fetched text.
type ExtractStep struct {
	extractor crawler.Extractor
	schema    config.Schema
}

// NewExtractStep creates an ExtractStep.
func NewExtractStep(extractor crawler.Extractor, schema config.Schema) *ExtractStep {
	return &ExtractStep{extractor: extractor, schema: schema}
}

// Name returns the step name.
func (s *ExtractStep) Name() string {
	return "extract"
}

// Do executes the extract step.
func (s *ExtractStep) Do(ctx context.Context, page *PageState) error {
	tree, err := s.extractor.Extract(ctx, page.Markup, s.schema)
	if err != nil {
		return err
	}
	page.Tree = tree
	return nil
}

// Recorder persists finished pages, for example in the run history.
type Recorder interface {
	RecordPage(ctx context.Context, page model.Page) error
}

// RecordStep hands the finished page to a Recorder.
type RecordStep struct {
	recorder Recorder
}

// NewRecordStep creates a RecordStep.
func NewRecordStep(recorder Recorder) *RecordStep {
	return &RecordStep{recorder: recorder}
}

// Name returns the step name.
func (s *RecordStep) Name() string {
	return "record"
}

// Do executes the record step.
func (s *RecordStep) Do(ctx context.Context, page *PageState) error {
	if err := s.recorder.RecordPage(ctx, page.Page()); err != nil {
		return fmt.Errorf("failed to record page: %w", err)
	}
	return nil
}
