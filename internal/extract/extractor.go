package extract

import (
	"context"
	"io"
	"log/slog"
	"runtime"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/nao1215/krk/internal/config"
	"github.com/nao1215/krk/internal/model"
	"github.com/nao1215/krk/internal/selector"
	"github.com/nao1215/krk/internal/transform"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/sync/errgroup"
)

// Extractor evaluates schemas against HTML markup.
// It is safe for concurrent use.
type Extractor struct {
	logger      *slog.Logger
	resolver    *selector.Resolver
	concurrency int
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithLogger sets the logger used for degradation messages.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Extractor) {
		e.logger = logger
	}
}

// WithConcurrency limits the number of fields evaluated at once per level.
// Values below 1 are ignored.
func WithConcurrency(n int) Option {
	return func(e *Extractor) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// WithResolver shares a selector cache between extractors.
func WithResolver(r *selector.Resolver) Option {
	return func(e *Extractor) {
		if r != nil {
			e.resolver = r
		}
	}
}

// NewExtractor creates an Extractor.
func NewExtractor(opts ...Option) *Extractor {
	e := &Extractor{
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		resolver:    selector.NewResolver(),
		concurrency: runtime.GOMAXPROCS(0),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract parses markup as a full document and extracts schema from it.
// The returned tree has exactly the field names of schema.
func (e *Extractor) Extract(ctx context.Context, markup string, schema config.Schema) (model.Tree, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		e.logger.Debug("failed to parse document, extracting from empty document", "error", err)
		doc = emptyDocument()
	}
	return e.ExtractSelection(ctx, doc.Selection, schema)
}

// ExtractSelection extracts schema from the descendants of root.
func (e *Extractor) ExtractSelection(ctx context.Context, root *goquery.Selection, schema config.Schema) (model.Tree, error) {
	names := schema.Names()
	values := make([]model.Value, len(names))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)

	for i, name := range names {
		field := schema[name]
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			v, err := e.extractField(gctx, root, name, field)
			if err != nil {
				return err
			}
			values[i] = v
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	tree := make(model.Tree, len(names))
	for i, name := range names {
		tree.Insert(name, values[i])
	}
	return tree, nil
}

func (e *Extractor) extractField(ctx context.Context, root *goquery.Selection, name string, field *config.FieldSchema) (model.Value, error) {
	matcher, err := e.resolver.Compile(field.Selector)
	if err != nil {
		return model.Value{}, err
	}

	matches := root.FindMatcher(matcher)
	if field.IsGroup() {
		return e.extractGroup(ctx, matches, field.Nested)
	}

	opts := field.TransformOptions()
	if field.Nth >= matches.Length() {
		e.logger.Debug("no element at position, using default",
			"field", name, "selector", field.Selector, "nth", field.Nth, "matches", matches.Length())
		return transform.Run(field.DefaultValue(), opts), nil
	}

	return transform.Run(e.rawValue(matches.Eq(field.Nth), name, field), opts), nil
}

// rawValue reads the attribute named by field.Attr, or the inner markup.
func (e *Extractor) rawValue(elem *goquery.Selection, name string, field *config.FieldSchema) string {
	if field.Attr != "" {
		v, _ := elem.Attr(field.Attr)
		return v
	}

	inner, err := elem.Html()
	if err != nil {
		e.logger.Debug("failed to render element", "field", name, "error", err)
		return ""
	}
	return inner
}

func (e *Extractor) extractGroup(ctx context.Context, matches *goquery.Selection, nested config.Schema) (model.Value, error) {
	children := make([]model.Tree, matches.Length())

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)

	matches.Each(func(i int, elem *goquery.Selection) {
		g.Go(func() error {
			fragment := e.fragmentOf(elem)
			child, err := e.ExtractSelection(gctx, fragment.Selection, nested)
			if err != nil {
				return err
			}
			children[i] = child
			return nil
		})
	})

	if err := g.Wait(); err != nil {
		return model.Value{}, err
	}
	return model.List(children), nil
}

// fragmentOf serializes elem to outer markup and parses it back as a
// standalone fragment. The element itself is part of the fragment, so a
// nested selector may match it.
func (e *Extractor) fragmentOf(elem *goquery.Selection) *goquery.Document {
	outer, err := goquery.OuterHtml(elem)
	if err != nil {
		e.logger.Debug("failed to serialize group element, using empty fragment", "error", err)
		return emptyDocument()
	}

	nodes, err := html.ParseFragment(strings.NewReader(outer), fragmentContext(elem))
	if err != nil {
		e.logger.Debug("failed to parse group fragment, using empty fragment", "error", err)
		return emptyDocument()
	}

	root := &html.Node{Type: html.DocumentNode}
	for _, n := range nodes {
		root.AppendChild(n)
	}
	return goquery.NewDocumentFromNode(root)
}

// fragmentContext returns a detached copy of elem's parent to parse the
// fragment in, so table rows and list items keep their tags.
// Elements directly under the document or <html> are parsed in <body>.
func fragmentContext(elem *goquery.Selection) *html.Node {
	body := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	if len(elem.Nodes) == 0 {
		return body
	}

	parent := elem.Nodes[0].Parent
	if parent == nil || parent.Type != html.ElementNode || parent.DataAtom == atom.Html {
		return body
	}
	return &html.Node{
		Type:      html.ElementNode,
		Data:      parent.Data,
		DataAtom:  parent.DataAtom,
		Namespace: parent.Namespace,
	}
}

func emptyDocument() *goquery.Document {
	return goquery.NewDocumentFromNode(&html.Node{Type: html.DocumentNode})
}
