package transform

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/nao1215/krk/internal/model"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Options selects the steps applied to a raw value.
type Options struct {
	// Trim removes leading and trailing whitespace.
	Trim bool
	// StripHTML re-parses the value as an HTML fragment and keeps only its text.
	StripHTML bool
	// Regex replaces the value with the first match of the expression.
	Regex string
	// Replace holds a literal [old, new] pair. Any other length is ignored.
	Replace []string
	// Uppercase maps the value to upper case. It takes precedence over Lowercase.
	Uppercase bool
	// Lowercase maps the value to lower case.
	Lowercase bool
	// ToNumber coerces the result to a float64.
	ToNumber bool
	// ToBoolean coerces the result to a boolean. Ignored when ToNumber is set.
	ToBoolean bool
}

// truthy lists the strings coerced to true.
var truthy = map[string]struct{}{
	"true": {},
	"1":    {},
	"yes":  {},
	"on":   {},
}

// regexCache holds compiled expressions keyed by source.
var regexCache sync.Map

// Run applies the transformation steps to raw and coerces the result.
func Run(raw string, opts Options) model.Value {
	return Coerce(Apply(raw, opts), opts)
}

// Apply runs the string steps of the pipeline in order.
func Apply(raw string, opts Options) string {
	value := raw

	if opts.Trim {
		value = strings.TrimSpace(value)
	}

	if opts.StripHTML {
		value = StripMarkup(value)
	}

	if opts.Regex != "" {
		if re := cachedRegex(opts.Regex); re != nil {
			if loc := re.FindStringIndex(value); loc != nil {
				value = value[loc[0]:loc[1]]
			}
		}
	}

	if len(opts.Replace) == 2 {
		value = strings.ReplaceAll(value, opts.Replace[0], opts.Replace[1])
	}

	switch {
	case opts.Uppercase:
		value = cases.Upper(language.Und).String(value)
	case opts.Lowercase:
		value = cases.Lower(language.Und).String(value)
	}

	return value
}

// Coerce converts a transformed string into a typed value.
func Coerce(value string, opts Options) model.Value {
	switch {
	case opts.ToNumber:
		if f, ok := ParseNumber(value); ok {
			return model.Number(f)
		}
		return model.Text(value)
	case opts.ToBoolean:
		return model.Bool(ParseBool(value))
	default:
		return model.Text(value)
	}
}

// ParseNumber parses the trimmed value as a float64.
// Out-of-range values parse to an infinity.
func ParseNumber(value string) (float64, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		if errors.Is(err, strconv.ErrRange) {
			return f, true
		}
		return 0, false
	}
	return f, true
}

// ParseBool reports whether the value reads as true.
// Anything outside the truthy set is false.
func ParseBool(value string) bool {
	_, ok := truthy[strings.ToLower(strings.TrimSpace(value))]
	return ok
}

// StripMarkup parses value as an HTML body fragment and concatenates its
// text nodes in document order. Entities are decoded.
func StripMarkup(value string) string {
	context := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(strings.NewReader(value), context)
	if err != nil {
		return value
	}

	var sb strings.Builder
	for _, n := range nodes {
		collectText(n, &sb)
	}
	return sb.String()
}

func collectText(n *html.Node, sb *strings.Builder) {
	if n.Type == html.TextNode {
		sb.WriteString(n.Data)
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, sb)
	}
}

// cachedRegex returns the compiled expression for pattern, or nil when it
// does not compile. Invalid patterns are remembered as well.
func cachedRegex(pattern string) *regexp.Regexp {
	if cached, ok := regexCache.Load(pattern); ok {
		re, _ := cached.(*regexp.Regexp)
		return re
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		regexCache.Store(pattern, (*regexp.Regexp)(nil))
		return nil
	}
	regexCache.Store(pattern, re)
	return re
}
