package crawler

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"

	"github.com/nao1215/krk/internal/config"
	"github.com/nao1215/krk/internal/extract"
)

var errUnreachable = errors.New("unreachable")

// fakeFetcher serves pages from a map and records requested URLs.
type fakeFetcher struct {
	mu    sync.Mutex
	pages map[string]string
	calls []string
}

func (f *fakeFetcher) Fetch(_ context.Context, rawURL string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, rawURL)
	page, ok := f.pages[rawURL]
	if !ok {
		return "", fmt.Errorf("%w: %s", errUnreachable, rawURL)
	}
	return page, nil
}

func intPtr(i int) *int { return &i }

func equalURLs(t *testing.T, got, want []string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("expected %d URLs %v, got %d %v", len(want), want, len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("URL %d: expected %q, got %q", i, want[i], got[i])
		}
	}
}

var itemSchema = config.Schema{"items": {Selector: "li", Nested: config.Schema{"name": {Selector: "li"}}}}

func TestPatternURLs(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		base string
		spec *config.PaginationSpec
		want []string
	}{
		{
			name: "placeholder suffix is prefixed with base",
			base: "https://x.test/",
			spec: &config.PaginationSpec{PagePattern: "?page={page}", StartPage: intPtr(1), EndPage: intPtr(3)},
			want: []string{"https://x.test/?page=1", "https://x.test/?page=2", "https://x.test/?page=3"},
		},
		{
			name: "absolute pattern is used as is",
			base: "https://x.test/",
			spec: &config.PaginationSpec{PagePattern: "https://y.test/list/{page}", StartPage: intPtr(4), EndPage: intPtr(5)},
			want: []string{"https://y.test/list/4", "https://y.test/list/5"},
		},
		{
			name: "pattern without placeholder is appended",
			base: "https://x.test",
			spec: &config.PaginationSpec{PagePattern: "/all", EndPage: intPtr(2)},
			want: []string{"https://x.test/all", "https://x.test/all"},
		},
		{
			name: "maxPages bounds the range",
			base: "https://x.test/",
			spec: &config.PaginationSpec{PagePattern: "p{page}", StartPage: intPtr(2), MaxPages: 3},
			want: []string{"https://x.test/p2", "https://x.test/p3", "https://x.test/p4"},
		},
		{
			name: "ten pages by default",
			base: "https://x.test/",
			spec: &config.PaginationSpec{PagePattern: "?p={page}"},
			want: []string{
				"https://x.test/?p=1", "https://x.test/?p=2", "https://x.test/?p=3", "https://x.test/?p=4", "https://x.test/?p=5",
				"https://x.test/?p=6", "https://x.test/?p=7", "https://x.test/?p=8", "https://x.test/?p=9", "https://x.test/?p=10",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			fetcher := &fakeFetcher{}
			p := NewPaginator(fetcher, extract.NewExtractor())
			got, err := p.URLs(context.Background(), tt.base, tt.spec, itemSchema)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			equalURLs(t, got, tt.want)
			if len(fetcher.calls) != 0 {
				t.Errorf("expected no fetches without stopOnEmpty, got %v", fetcher.calls)
			}
		})
	}
}

func TestPatternStopOnEmpty(t *testing.T) {
	t.Parallel()

	t.Run("drops the first empty page and stops", func(t *testing.T) {
		t.Parallel()

		fetcher := &fakeFetcher{pages: map[string]string{
			"https://x.test/?p=2": "<ul><li>b</li></ul>",
			"https://x.test/?p=3": "<p>nothing</p>",
			"https://x.test/?p=4": "<ul><li>d</li></ul>",
		}}
		p := NewPaginator(fetcher, extract.NewExtractor())
		spec := &config.PaginationSpec{PagePattern: "?p={page}", EndPage: intPtr(5), StopOnEmpty: true}

		got, err := p.URLs(context.Background(), "https://x.test/", spec, itemSchema)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		equalURLs(t, got, []string{"https://x.test/?p=1", "https://x.test/?p=2"})
		equalURLs(t, fetcher.calls, []string{"https://x.test/?p=2", "https://x.test/?p=3"})
	})

	t.Run("unbounded end page stops at the first empty body", func(t *testing.T) {
		t.Parallel()

		fetcher := &fakeFetcher{pages: map[string]string{
			"https://x.test/?p=2": "<ul><li>b</li></ul>",
			"https://x.test/?p=3": "",
		}}
		p := NewPaginator(fetcher, extract.NewExtractor())
		spec := &config.PaginationSpec{PagePattern: "?p={page}", EndPage: intPtr(math.MaxInt), StopOnEmpty: true}

		got, err := p.URLs(context.Background(), "https://x.test/", spec, itemSchema)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		equalURLs(t, got, []string{"https://x.test/?p=1", "https://x.test/?p=2"})
	})

	t.Run("fetch failure keeps the page", func(t *testing.T) {
		t.Parallel()

		fetcher := &fakeFetcher{pages: map[string]string{
			"https://x.test/?p=3": "<ul><li>c</li></ul>",
		}}
		p := NewPaginator(fetcher, extract.NewExtractor())
		spec := &config.PaginationSpec{PagePattern: "?p={page}", EndPage: intPtr(3), StopOnEmpty: true}

		got, err := p.URLs(context.Background(), "https://x.test/", spec, itemSchema)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		equalURLs(t, got, []string{"https://x.test/?p=1", "https://x.test/?p=2", "https://x.test/?p=3"})
	})

	t.Run("zero and false count as content", func(t *testing.T) {
		t.Parallel()

		fetcher := &fakeFetcher{pages: map[string]string{
			"https://x.test/2": "<span>0</span>",
		}}
		schema := config.Schema{"n": {Selector: "span", ToNumber: true}}
		p := NewPaginator(fetcher, extract.NewExtractor())
		spec := &config.PaginationSpec{PagePattern: "{page}", EndPage: intPtr(2), StopOnEmpty: true}

		got, err := p.URLs(context.Background(), "https://x.test/", spec, schema)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		equalURLs(t, got, []string{"https://x.test/1", "https://x.test/2"})
	})
}

func TestPatternURLsEndOfRange(t *testing.T) {
	t.Parallel()

	t.Run("last page is math.MaxInt", func(t *testing.T) {
		t.Parallel()

		p := NewPaginator(&fakeFetcher{}, extract.NewExtractor())
		spec := &config.PaginationSpec{PagePattern: "?p={page}", StartPage: intPtr(math.MaxInt - 1), EndPage: intPtr(math.MaxInt)}

		got, err := p.URLs(context.Background(), "https://x.test/", spec, itemSchema)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		equalURLs(t, got, []string{
			fmt.Sprintf("https://x.test/?p=%d", math.MaxInt-1),
			fmt.Sprintf("https://x.test/?p=%d", math.MaxInt),
		})
	})

	t.Run("end before start yields nothing", func(t *testing.T) {
		t.Parallel()

		p := NewPaginator(&fakeFetcher{}, extract.NewExtractor())
		spec := &config.PaginationSpec{PagePattern: "?p={page}", StartPage: intPtr(5), EndPage: intPtr(2)}

		got, err := p.URLs(context.Background(), "https://x.test/", spec, itemSchema)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(got) != 0 {
			t.Errorf("expected no URLs, got %v", got)
		}
	})
}

func TestNextLinkURLs(t *testing.T) {
	t.Parallel()

	pages := map[string]string{
		"https://x.test/list/a": `<ul><li>1</li></ul><a class="next" href="b">next</a>`,
		"https://x.test/list/b": `<ul><li>2</li></ul><a class="next" href="/list/c?x=1">next</a>`,
		"https://x.test/list/c?x=1": `<ul><li>3</li></ul><a class="next" href="https://y.test/d">next</a>`,
		"https://y.test/d": `<ul></ul><a class="next">no href</a>`,
	}

	t.Run("follows links until none is left", func(t *testing.T) {
		t.Parallel()

		fetcher := &fakeFetcher{pages: pages}
		p := NewPaginator(fetcher, extract.NewExtractor())
		spec := &config.PaginationSpec{NextSelector: "a.next"}

		got, err := p.URLs(context.Background(), "https://x.test/list/a", spec, itemSchema)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		equalURLs(t, got, []string{
			"https://x.test/list/a",
			"https://x.test/list/b",
			"https://x.test/list/c?x=1",
			"https://y.test/d",
		})
	})

	t.Run("maxPages bounds the sequence", func(t *testing.T) {
		t.Parallel()

		fetcher := &fakeFetcher{pages: pages}
		p := NewPaginator(fetcher, extract.NewExtractor())
		spec := &config.PaginationSpec{NextSelector: "a.next", MaxPages: 2}

		got, err := p.URLs(context.Background(), "https://x.test/list/a", spec, itemSchema)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		equalURLs(t, got, []string{"https://x.test/list/a", "https://x.test/list/b"})
		if len(fetcher.calls) != 1 {
			t.Errorf("expected 1 fetch, got %v", fetcher.calls)
		}
	})

	t.Run("stop on empty keeps the empty page", func(t *testing.T) {
		t.Parallel()

		fetcher := &fakeFetcher{pages: map[string]string{
			"https://x.test/1": `<ul><li>1</li></ul><a class="next" href="2">next</a>`,
			"https://x.test/2": `<ul></ul><a class="next" href="3">next</a>`,
		}}
		p := NewPaginator(fetcher, extract.NewExtractor())
		spec := &config.PaginationSpec{NextSelector: "a.next", StopOnEmpty: true}

		got, err := p.URLs(context.Background(), "https://x.test/1", spec, itemSchema)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		equalURLs(t, got, []string{"https://x.test/1", "https://x.test/2"})
	})

	t.Run("fetch failure is fatal", func(t *testing.T) {
		t.Parallel()

		p := NewPaginator(&fakeFetcher{}, extract.NewExtractor())
		spec := &config.PaginationSpec{NextSelector: "a.next"}

		if _, err := p.URLs(context.Background(), "https://x.test/", spec, itemSchema); !errors.Is(err, errUnreachable) {
			t.Errorf("expected fetch error, got %v", err)
		}
	})

	t.Run("paces every fetch", func(t *testing.T) {
		t.Parallel()

		pacer := &countingPacer{}
		p := NewPaginator(&fakeFetcher{pages: pages}, extract.NewExtractor(), WithPacer(pacer))
		spec := &config.PaginationSpec{NextSelector: "a.next"}

		if _, err := p.URLs(context.Background(), "https://x.test/list/a", spec, itemSchema); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if pacer.waits != 4 || pacer.dones != 4 {
			t.Errorf("expected 4 waits and 4 dones, got %d and %d", pacer.waits, pacer.dones)
		}
	})
}

type countingPacer struct {
	waits int
	dones int
}

func (c *countingPacer) Wait(_ context.Context) error {
	if c.waits != c.dones {
		return errors.New("wait before the previous request finished")
	}
	c.waits++
	return nil
}

func (c *countingPacer) Done() {
	c.dones++
}

func TestURLsWithoutStrategy(t *testing.T) {
	t.Parallel()

	p := NewPaginator(&fakeFetcher{}, extract.NewExtractor())
	for _, spec := range []*config.PaginationSpec{nil, {}, {MaxPages: 3, StopOnEmpty: true}} {
		got, err := p.URLs(context.Background(), "https://x.test/", spec, itemSchema)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		equalURLs(t, got, []string{"https://x.test/"})
	}
}

func TestResolveNextHref(t *testing.T) {
	t.Parallel()

	tests := []struct {
		current string
		href    string
		want    string
	}{
		{"https://x.test/a/b", "https://y.test/c", "https://y.test/c"},
		{"https://x.test/a/b", "http://y.test/", "http://y.test/"},
		{"https://x.test/a/b", "/root?p=2", "https://x.test/root?p=2"},
		{"https://x.test/a/b", "c", "https://x.test/a/c"},
		{"https://x.test/a/", "page2.html", "https://x.test/a/page2.html"},
		{"https://x.test/a/b?p=1", "?p=2", "https://x.test/a/b?p=2"},
		{"https://x.test:8080/a", " /z ", "https://x.test:8080/z"},
	}

	for _, tt := range tests {
		if got := ResolveNextHref(tt.current, tt.href); got != tt.want {
			t.Errorf("ResolveNextHref(%q, %q) = %q, want %q", tt.current, tt.href, got, tt.want)
		}
	}
}

func TestPageURL(t *testing.T) {
	t.Parallel()

	if got := PageURL("https://x.test/", "?page={page}&again={page}", 7); got != "https://x.test/?page=7&again=7" {
		t.Errorf("unexpected URL %q", got)
	}
}
