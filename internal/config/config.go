package config

import (
	"errors"
	"fmt"
	"math"
	"net/url"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/nao1215/krk/internal/selector"
	"github.com/nao1215/krk/internal/transform"
)

// Default configuration values.
// These values are applied by ApplyDefaults when the document leaves the
// corresponding key unset.
const (
	// AppName is the application name used for XDG directory paths.
	AppName = "krk"

	// DefaultTimeout is the per-request timeout in seconds.
	DefaultTimeout = 30

	// DefaultStartPage is the first page number of the pattern strategy.
	DefaultStartPage = 1

	// DefaultPatternPages is the number of pages generated by the pattern
	// strategy when neither endPage nor maxPages is set.
	DefaultPatternPages = 10

	// DefaultMaxPages bounds the next-link strategy when maxPages is unset.
	// A site whose "next" link never disappears would otherwise be followed
	// forever.
	DefaultMaxPages = 1000

	// PagePlaceholder is substituted with the page number in pagePattern.
	PagePlaceholder = "{page}"
)

// Document is a complete scrape document.
type Document struct {
	// Config describes how pages are fetched.
	Config FetchConfig `yaml:"config"`

	// Data is the field schema applied to every page.
	Data Schema `yaml:"data"`
}

// FetchConfig holds the fetch settings of a document.
type FetchConfig struct {
	// URL is a single target URL.
	URL string `yaml:"url,omitempty"`

	// URLs is a list of target URLs, fetched after URL in order.
	URLs []string `yaml:"urls,omitempty"`

	// Headers are added to every request.
	Headers map[string]string `yaml:"headers,omitempty"`

	// Timeout is the per-request timeout in seconds.
	// Zero means DefaultTimeout.
	Timeout int `yaml:"timeout,omitempty"`

	// Retries is the number of additional attempts after a transport failure.
	Retries int `yaml:"retries,omitempty"`

	// Delay is the pause between requests in milliseconds.
	Delay int `yaml:"delay,omitempty"`

	// Proxy is an optional proxy URL (http, https or socks5).
	Proxy string `yaml:"proxy,omitempty"`

	// CacheDir is the directory holding cached responses.
	// Fetched pages are written there whenever it is set.
	CacheDir string `yaml:"cacheDir,omitempty"`

	// UseCache enables reading responses from CacheDir.
	UseCache bool `yaml:"useCache,omitempty"`

	// Pagination expands a single URL into a sequence of pages.
	Pagination *PaginationSpec `yaml:"pagination,omitempty"`
}

// PaginationSpec selects one of the two pagination strategies.
// PagePattern wins when both PagePattern and NextSelector are set.
type PaginationSpec struct {
	// PagePattern is a URL or URL suffix containing PagePlaceholder.
	PagePattern string `yaml:"pagePattern,omitempty"`

	// StartPage is the first page number. Nil means DefaultStartPage.
	StartPage *int `yaml:"startPage,omitempty"`

	// EndPage is the last page number, inclusive.
	EndPage *int `yaml:"endPage,omitempty"`

	// MaxPages limits the number of pages for either strategy.
	MaxPages int `yaml:"maxPages,omitempty"`

	// NextSelector is a CSS selector for the "next page" link.
	NextSelector string `yaml:"nextSelector,omitempty"`

	// StopOnEmpty stops pagination at the first page whose extraction is empty.
	StopOnEmpty bool `yaml:"stopOnEmpty,omitempty"`
}

// Strategy names the pagination strategy in effect.
type Strategy string

const (
	// StrategyNone means the pagination block is present but configures nothing usable.
	StrategyNone Strategy = "none"
	// StrategyPattern generates URLs from PagePattern.
	StrategyPattern Strategy = "pattern"
	// StrategyNextLink follows NextSelector from page to page.
	StrategyNextLink Strategy = "next-link"
)

// Strategy returns the strategy selected by p.
func (p *PaginationSpec) Strategy() Strategy {
	switch {
	case p == nil:
		return StrategyNone
	case p.PagePattern != "":
		return StrategyPattern
	case p.NextSelector != "":
		return StrategyNextLink
	default:
		return StrategyNone
	}
}

// FirstPage returns StartPage or DefaultStartPage.
func (p *PaginationSpec) FirstPage() int {
	if p.StartPage == nil {
		return DefaultStartPage
	}
	return *p.StartPage
}

// LastPage returns the last page number of the pattern strategy:
// EndPage if set, otherwise derived from MaxPages, otherwise a fixed
// DefaultPatternPages window.
func (p *PaginationSpec) LastPage() int {
	start := p.FirstPage()
	switch {
	case p.EndPage != nil:
		return *p.EndPage
	case p.MaxPages > 0:
		return lastPageOf(start, p.MaxPages)
	default:
		return lastPageOf(start, DefaultPatternPages)
	}
}

// lastPageOf returns start+count-1, saturating at math.MaxInt.
func lastPageOf(start, count int) int {
	if start > math.MaxInt-(count-1) {
		return math.MaxInt
	}
	return start + count - 1
}

// PageLimit returns the safety bound of the next-link strategy.
func (p *PaginationSpec) PageLimit() int {
	if p.MaxPages > 0 {
		return p.MaxPages
	}
	return DefaultMaxPages
}

// Schema maps field names to extraction rules.
type Schema map[string]*FieldSchema

// Names returns the field names in lexicographic order.
func (s Schema) Names() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// FieldSchema is the extraction rule for a single field.
// A field with Nested set is a group field: every match produces one nested
// tree and all keys other than Selector are ignored.
type FieldSchema struct {
	Selector  string   `yaml:"selector"`
	Attr      string   `yaml:"attr,omitempty"`
	Nested    Schema   `yaml:"data,omitempty"`
	Trim      *bool    `yaml:"trim,omitempty"`
	Nth       int      `yaml:"nth,omitempty"`
	Default   *string  `yaml:"default,omitempty"`
	Regex     string   `yaml:"regex,omitempty"`
	Replace   []string `yaml:"replace,omitempty"`
	Uppercase bool     `yaml:"uppercase,omitempty"`
	Lowercase bool     `yaml:"lowercase,omitempty"`
	StripHTML bool     `yaml:"stripHtml,omitempty"`
	ToNumber  bool     `yaml:"toNumber,omitempty"`
	ToBoolean bool     `yaml:"toBoolean,omitempty"`
}

// IsGroup reports whether f is a group field.
func (f *FieldSchema) IsGroup() bool {
	return f.Nested != nil
}

// TrimEnabled reports whether whitespace is trimmed. It defaults to true.
func (f *FieldSchema) TrimEnabled() bool {
	return f.Trim == nil || *f.Trim
}

// DefaultValue returns the fallback used when nothing matches.
func (f *FieldSchema) DefaultValue() string {
	if f.Default == nil {
		return ""
	}
	return *f.Default
}

// TransformOptions converts the rule into transformation pipeline options.
func (f *FieldSchema) TransformOptions() transform.Options {
	return transform.Options{
		Trim:      f.TrimEnabled(),
		StripHTML: f.StripHTML,
		Regex:     f.Regex,
		Replace:   f.Replace,
		Uppercase: f.Uppercase,
		Lowercase: f.Lowercase,
		ToNumber:  f.ToNumber,
		ToBoolean: f.ToBoolean,
	}
}

// Targets returns the configured URLs in fetch order: URL first, then URLs.
func (c *FetchConfig) Targets() []string {
	targets := make([]string, 0, len(c.URLs)+1)
	if c.URL != "" {
		targets = append(targets, c.URL)
	}
	return append(targets, c.URLs...)
}

// TimeoutDuration returns the request timeout.
func (c *FetchConfig) TimeoutDuration() time.Duration {
	if c.Timeout <= 0 {
		return DefaultTimeout * time.Second
	}
	return time.Duration(c.Timeout) * time.Second
}

// DelayDuration returns the pause between requests.
func (c *FetchConfig) DelayDuration() time.Duration {
	return time.Duration(c.Delay) * time.Millisecond
}

// ApplyDefaults fills unset values with their defaults.
func (d *Document) ApplyDefaults() {
	if d.Config.Timeout == 0 {
		d.Config.Timeout = DefaultTimeout
	}
	if p := d.Config.Pagination; p != nil && p.StartPage == nil {
		start := DefaultStartPage
		p.StartPage = &start
	}
	if d.Data == nil {
		d.Data = Schema{}
	}
}

// Validate checks the document for configuration errors.
// Every returned error wraps ErrInvalidConfig.
func (d *Document) Validate() error {
	if err := d.Config.validate(); err != nil {
		return invalid(err)
	}
	if err := d.Data.validate("data"); err != nil {
		return invalid(err)
	}
	return nil
}

func (c *FetchConfig) validate() error {
	targets := c.Targets()
	if len(targets) == 0 {
		return ErrNoURL
	}
	for _, target := range targets {
		if err := validateURL(target); err != nil {
			return err
		}
	}

	if c.Timeout < 0 {
		return ErrInvalidTimeout
	}
	if c.Retries < 0 {
		return ErrInvalidRetries
	}
	if c.Delay < 0 {
		return ErrInvalidDelay
	}
	if c.Proxy != "" {
		u, err := url.Parse(c.Proxy)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%w: %q", ErrInvalidProxy, c.Proxy)
		}
	}

	return c.Pagination.validate()
}

func (p *PaginationSpec) validate() error {
	if p == nil {
		return nil
	}
	if p.MaxPages < 0 {
		return fmt.Errorf("%w: maxPages must be non-negative", ErrInvalidPagination)
	}
	if p.StartPage != nil && p.EndPage != nil && *p.EndPage < *p.StartPage {
		return fmt.Errorf("%w: endPage %d is before startPage %d", ErrInvalidPagination, *p.EndPage, *p.StartPage)
	}
	if p.Strategy() == StrategyNextLink {
		if _, err := selector.Compile(p.NextSelector); err != nil {
			return fmt.Errorf("pagination.nextSelector: %w", err)
		}
	}
	return nil
}

func (s Schema) validate(path string) error {
	for _, name := range s.Names() {
		field := s[name]
		fieldPath := path + "." + name
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("%w: empty field name in %s", ErrInvalidField, path)
		}
		if field == nil {
			return fmt.Errorf("%w: %s has no rule", ErrInvalidField, fieldPath)
		}
		if _, err := selector.Compile(field.Selector); err != nil {
			return fmt.Errorf("%s: %w", fieldPath, err)
		}
		if field.IsGroup() {
			if err := field.Nested.validate(fieldPath); err != nil {
				return err
			}
			continue
		}
		if field.Nth < 0 {
			return fmt.Errorf("%w: %s.nth must be non-negative", ErrInvalidField, fieldPath)
		}
	}
	return nil
}

func validateURL(raw string) error {
	u, err := url.ParseRequestURI(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%w: %q", ErrInvalidURL, raw)
	}
	return nil
}

func invalid(err error) error {
	if errors.Is(err, ErrInvalidConfig) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
}

// XDGDataDir returns the directory holding the run history database.
// Typically ~/.local/share/krk on Linux.
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the directory searched for documents by default.
// Typically ~/.config/krk on Linux.
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// XDGCacheDir returns the default response cache directory.
// Typically ~/.cache/krk on Linux.
func XDGCacheDir() string {
	return filepath.Join(xdg.CacheHome, AppName)
}
