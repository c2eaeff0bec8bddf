package crawler

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/nao1215/krk/internal/config"
	"github.com/nao1215/krk/internal/model"
	"github.com/nao1215/krk/internal/selector"
)

// Fetcher returns the text of a page.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (string, error)
}

// Extractor evaluates a schema against page markup.
type Extractor interface {
	Extract(ctx context.Context, markup string, schema config.Schema) (model.Tree, error)
}

// Pacer spaces requests. Wait is called before a request and Done after it
// finished, successfully or not.
type Pacer interface {
	Wait(ctx context.Context) error
	Done()
}

// absoluteURL matches strings starting with a URL scheme.
var absoluteURL = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9+.-]*://`)

// Paginator generates page URLs. It holds the fetch and extract capabilities
// needed by the next-link strategy and by stopOnEmpty checks.
type Paginator struct {
	fetcher   Fetcher
	extractor Extractor
	pacer     Pacer
	resolver  *selector.Resolver
	logger    *slog.Logger
}

// PaginatorOption configures a Paginator.
type PaginatorOption func(*Paginator)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) PaginatorOption {
	return func(p *Paginator) {
		p.logger = logger
	}
}

// WithPacer sets the pacer waited on before each fetch.
func WithPacer(pacer Pacer) PaginatorOption {
	return func(p *Paginator) {
		p.pacer = pacer
	}
}

// WithResolver shares a selector cache.
func WithResolver(r *selector.Resolver) PaginatorOption {
	return func(p *Paginator) {
		if r != nil {
			p.resolver = r
		}
	}
}

// NewPaginator creates a Paginator.
func NewPaginator(fetcher Fetcher, extractor Extractor, opts ...PaginatorOption) *Paginator {
	p := &Paginator{
		fetcher:   fetcher,
		extractor: extractor,
		resolver:  selector.NewResolver(),
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// URLs returns the pages to scrape for base.
// A nil spec, or one that configures neither strategy, yields just base.
func (p *Paginator) URLs(ctx context.Context, base string, spec *config.PaginationSpec, schema config.Schema) ([]string, error) {
	switch spec.Strategy() {
	case config.StrategyPattern:
		return p.patternURLs(ctx, base, spec, schema)
	case config.StrategyNextLink:
		return p.nextLinkURLs(ctx, base, spec, schema)
	default:
		return []string{base}, nil
	}
}

func (p *Paginator) patternURLs(ctx context.Context, base string, spec *config.PaginationSpec, schema config.Schema) ([]string, error) {
	start, end := spec.FirstPage(), spec.LastPage()
	p.logger.Info("using page pattern pagination",
		"pattern", spec.PagePattern, "start", start, "end", end, "stop_on_empty", spec.StopOnEmpty)

	urls := []string{}
	if end < start {
		return urls, nil
	}
	// The loop exits after page == end so an end of math.MaxInt cannot wrap.
	for page := start; ; page++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		pageURL := PageURL(base, spec.PagePattern, page)

		if spec.StopOnEmpty && page > start {
			empty, err := p.isEmpty(ctx, pageURL, schema)
			if err != nil {
				return nil, err
			}
			if empty {
				p.logger.Warn("empty page, stopping pagination", "page", page, "url", pageURL)
				break
			}
		}

		p.logger.Debug("generated page URL", "page", page, "url", pageURL)
		urls = append(urls, pageURL)
		if page == end {
			break
		}
	}
	return urls, nil
}

// isEmpty fetches and extracts pageURL. A failed fetch counts as not empty
// so the page stays in the list; a schema error is returned.
func (p *Paginator) isEmpty(ctx context.Context, pageURL string, schema config.Schema) (bool, error) {
	markup, err := p.fetch(ctx, pageURL)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return false, ctxErr
		}
		p.logger.Warn("failed to check page, keeping it", "url", pageURL, "error", err)
		return false, nil
	}

	tree, err := p.extractor.Extract(ctx, markup, schema)
	if err != nil {
		return false, err
	}
	return tree.IsEmpty(), nil
}

func (p *Paginator) nextLinkURLs(ctx context.Context, base string, spec *config.PaginationSpec, schema config.Schema) ([]string, error) {
	limit := spec.PageLimit()
	p.logger.Info("using next link pagination",
		"selector", spec.NextSelector, "max_pages", limit, "stop_on_empty", spec.StopOnEmpty)

	next, err := p.resolver.Compile(spec.NextSelector)
	if err != nil {
		return nil, err
	}

	current := base
	urls := []string{current}

	for len(urls) < limit {
		markup, err := p.fetch(ctx, current)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch page %d: %w", len(urls), err)
		}

		if spec.StopOnEmpty {
			tree, err := p.extractor.Extract(ctx, markup, schema)
			if err != nil {
				return nil, err
			}
			if tree.IsEmpty() {
				p.logger.Warn("empty page, stopping pagination", "page", len(urls), "url", current)
				break
			}
		}

		href, found, err := findNextHref(markup, next)
		if err != nil {
			return nil, err
		}
		if !found {
			p.logger.Info("no next link found, stopping pagination", "page", len(urls))
			break
		}
		if href == "" {
			p.logger.Warn("next link has no href, stopping pagination", "page", len(urls))
			break
		}

		current = ResolveNextHref(current, href)
		urls = append(urls, current)
		p.logger.Debug("found next page", "page", len(urls), "url", current)
	}

	if len(urls) >= limit {
		p.logger.Warn("reached max pages limit", "max_pages", limit)
	}
	return urls, nil
}

func (p *Paginator) fetch(ctx context.Context, rawURL string) (string, error) {
	if p.pacer != nil {
		if err := p.pacer.Wait(ctx); err != nil {
			return "", err
		}
		defer p.pacer.Done()
	}
	return p.fetcher.Fetch(ctx, rawURL)
}

// findNextHref returns the href of the first element matching next.
// found is false when nothing matches; href is empty when the element has
// no href attribute.
func findNextHref(markup string, next *selector.Matcher) (href string, found bool, err error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return "", false, fmt.Errorf("failed to parse page: %w", err)
	}

	link := doc.FindMatcher(next).First()
	if link.Length() == 0 {
		return "", false, nil
	}
	href, _ = link.Attr("href")
	return href, true, nil
}

// PageURL builds the URL of page number page from a pagePattern.
// The placeholder is substituted; a pattern without one is appended to base.
// A result that is not absolute is prefixed with base.
func PageURL(base, pattern string, page int) string {
	n := strconv.Itoa(page)

	var u string
	if strings.Contains(pattern, config.PagePlaceholder) {
		u = strings.ReplaceAll(pattern, config.PagePlaceholder, n)
	} else {
		u = base + pattern
	}

	if !absoluteURL.MatchString(u) {
		u = base + u
	}
	return u
}

// ResolveNextHref resolves href against the URL of the page it was found on.
// Absolute hrefs pass through, root-relative hrefs keep the scheme and host
// of current, and other hrefs replace the last path segment of current.
func ResolveNextHref(current, href string) string {
	href = strings.TrimSpace(href)
	if absoluteURL.MatchString(href) {
		return href
	}

	if ref, err := url.Parse(href); err == nil {
		if cur, err := url.Parse(current); err == nil && cur.Scheme != "" && cur.Host != "" {
			return cur.ResolveReference(ref).String()
		}
	}

	if strings.HasPrefix(href, "/") {
		parts := strings.SplitN(current, "/", 4)
		return strings.Join(parts[:min(len(parts), 3)], "/") + href
	}
	if i := strings.LastIndex(current, "/"); i >= 0 {
		return current[:i] + "/" + href
	}
	return current + "/" + href
}

