package report

import (
	"encoding/csv"
	"io"

	"github.com/nao1215/krk/internal/model"
)

// CSVWriter outputs one row per page.
// The header is the sorted union of top-level field names across all pages.
// Group values are embedded as JSON and missing fields are left empty.
type CSVWriter struct {
	baseWriter
}

// NewCSVWriter creates a CSVWriter that outputs to the given writer.
func NewCSVWriter(output io.Writer) *CSVWriter {
	return &CSVWriter{baseWriter: newBaseWriter(output)}
}

// Write outputs the trees in CSV format.
func (w *CSVWriter) Write(trees []model.Tree) (int, error) {
	cw := &countingWriter{w: w.output}
	out := csv.NewWriter(cw)

	header := model.UnionKeys(trees)
	if err := out.Write(header); err != nil {
		return cw.n, err
	}
	for _, tree := range trees {
		if err := out.Write(Row(tree, header)); err != nil {
			return cw.n, err
		}
	}

	out.Flush()
	return cw.n, out.Error()
}

// Row renders tree as cells in the order of header.
func Row(tree model.Tree, header []string) []string {
	row := make([]string, len(header))
	for i, name := range header {
		if v, ok := tree[name]; ok {
			row[i] = v.String()
		}
	}
	return row
}
