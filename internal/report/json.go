package report

import (
	"encoding/json"
	"io"

	"github.com/nao1215/krk/internal/model"
)

// JSONWriter outputs results in JSON format.
// A single page is written as one object, several pages as an array.
// Markup inside values is written verbatim, without < style escapes.
type JSONWriter struct {
	baseWriter

	// indentPrefix is the prefix for each line in indented output.
	indentPrefix string

	// indentString is the indentation string. Empty means compact output.
	indentString string
}

// JSONWriterOption configures a JSONWriter.
type JSONWriterOption func(*JSONWriter)

// WithIndent enables pretty-printed JSON output.
// The prefix is prepended to each line, and indent is used for each level.
func WithIndent(prefix, indent string) JSONWriterOption {
	return func(w *JSONWriter) {
		w.indentPrefix = prefix
		w.indentString = indent
	}
}

// WithPrettyPrint enables pretty-printed JSON with two-space indentation.
func WithPrettyPrint() JSONWriterOption {
	return WithIndent("", "  ")
}

// NewJSONWriter creates a JSONWriter that outputs to the given writer.
// Output is compact unless an indent option is given.
func NewJSONWriter(output io.Writer, opts ...JSONWriterOption) *JSONWriter {
	w := &JSONWriter{
		baseWriter: newBaseWriter(output),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write outputs the trees in JSON format.
func (w *JSONWriter) Write(trees []model.Tree) (int, error) {
	if len(trees) == 1 {
		return w.WriteValue(trees[0])
	}
	if trees == nil {
		trees = []model.Tree{}
	}
	return w.WriteValue(trees)
}

// WriteValue encodes any value with the writer's settings.
// The output ends with a newline.
func (w *JSONWriter) WriteValue(v any) (int, error) {
	cw := &countingWriter{w: w.output}
	enc := json.NewEncoder(cw)
	enc.SetEscapeHTML(false)
	if w.indentPrefix != "" || w.indentString != "" {
		enc.SetIndent(w.indentPrefix, w.indentString)
	}
	err := enc.Encode(v)
	return cw.n, err
}
