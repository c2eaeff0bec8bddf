// Package report serializes extraction results and run history.
//
// This package contains writers for different output formats:
//   - JSONWriter: the result tree, or a list of trees for several pages
//   - CSVWriter: one row per page, one column per top-level field
//   - MarkdownWriter: a table of the results and the run history
//
// Writers implement the Writer interface, allowing the CLI to pick one by
// name with NewWriter.
package report
