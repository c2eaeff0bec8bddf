package report

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/nao1215/krk/internal/model"
)

// Format names an output format.
type Format string

const (
	// FormatJSON writes JSON.
	FormatJSON Format = "json"
	// FormatCSV writes CSV.
	FormatCSV Format = "csv"
	// FormatMarkdown writes a Markdown table.
	FormatMarkdown Format = "markdown"
)

// ErrUnknownFormat is returned for an unsupported output format name.
var ErrUnknownFormat = errors.New("unknown output format")

// Formats returns the supported format names.
func Formats() []string {
	return []string{string(FormatJSON), string(FormatCSV), string(FormatMarkdown)}
}

// Writer defines the interface for result output.
type Writer interface {
	// Write outputs the trees, one per page in fetch order.
	// Returns the number of bytes written and any error encountered.
	Write(trees []model.Tree) (int, error)
}

// NewWriter returns the writer for format.
// The format name is case-insensitive and "md" is accepted for Markdown.
func NewWriter(format string, output io.Writer) (Writer, error) {
	switch Format(strings.ToLower(format)) {
	case FormatJSON, "":
		return NewJSONWriter(output, WithPrettyPrint()), nil
	case FormatCSV:
		return NewCSVWriter(output), nil
	case FormatMarkdown, "md":
		return NewMarkdownWriter(output), nil
	default:
		return nil, fmt.Errorf("%w: %q (supported: %s)", ErrUnknownFormat, format, strings.Join(Formats(), ", "))
	}
}

// baseWriter provides common functionality for report writers.
type baseWriter struct {
	output io.Writer
}

// newBaseWriter creates a baseWriter with the given output destination.
func newBaseWriter(output io.Writer) baseWriter {
	return baseWriter{output: output}
}

// countingWriter counts the bytes written through it.
type countingWriter struct {
	w io.Writer
	n int
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += n
	return n, err
}
