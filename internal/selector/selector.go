package selector

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
)

// ErrInvalidSelector is returned when a selector string cannot be compiled.
var ErrInvalidSelector = errors.New("invalid selector")

// Matcher is a compiled CSS selector.
// It is immutable and safe for concurrent use.
type Matcher struct {
	source   string
	compiled cascadia.Selector
}

// Compile parses a CSS selector (including comma-separated groups).
func Compile(source string) (*Matcher, error) {
	if strings.TrimSpace(source) == "" {
		return nil, fmt.Errorf("%w: selector is empty", ErrInvalidSelector)
	}

	compiled, err := cascadia.Compile(source)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %w", ErrInvalidSelector, source, err)
	}

	return &Matcher{source: source, compiled: compiled}, nil
}

// String returns the selector source.
func (m *Matcher) String() string {
	return m.source
}

// Match reports whether n matches the selector.
func (m *Matcher) Match(n *html.Node) bool {
	return m.compiled.Match(n)
}

// MatchAll returns n and its descendants that match, in document order.
func (m *Matcher) MatchAll(n *html.Node) []*html.Node {
	return m.compiled.MatchAll(n)
}

// Filter returns the nodes that match the selector.
func (m *Matcher) Filter(nodes []*html.Node) []*html.Node {
	return m.compiled.Filter(nodes)
}

// Resolver compiles selectors and caches the result per source string.
// Fields in a schema are evaluated for every page and every group element,
// so the same selectors are requested over and over.
type Resolver struct {
	cache sync.Map
}

// NewResolver creates an empty Resolver.
func NewResolver() *Resolver {
	return &Resolver{}
}

// Compile returns the cached matcher for source, compiling it on first use.
// Failures are not cached.
func (r *Resolver) Compile(source string) (*Matcher, error) {
	if cached, ok := r.cache.Load(source); ok {
		return cached.(*Matcher), nil //nolint:forcetypeassert // only *Matcher is stored
	}

	m, err := Compile(source)
	if err != nil {
		return nil, err
	}

	actual, _ := r.cache.LoadOrStore(source, m)
	return actual.(*Matcher), nil //nolint:forcetypeassert // only *Matcher is stored
}
