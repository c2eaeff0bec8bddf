package report

import (
	"io"
	"strconv"
	"strings"

	"github.com/nao1215/krk/internal/database"
	"github.com/nao1215/krk/internal/model"
	"github.com/nao1215/markdown"
)

// historyTimeFormat is how timestamps are shown in history tables.
const historyTimeFormat = "2006-01-02 15:04:05"

// MarkdownWriter outputs results and run history as Markdown tables.
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{
		baseWriter: newBaseWriter(output),
	}
}

// Write outputs the trees as a table with one row per page.
func (w *MarkdownWriter) Write(trees []model.Tree) (int, error) {
	md := markdown.NewMarkdown(w.output)

	md.H1("Scrape Result")
	md.PlainText("")

	if len(trees) == 0 || len(model.UnionKeys(trees)) == 0 {
		md.PlainText("No data extracted.")
		return len(md.String()), md.Build()
	}

	header := model.UnionKeys(trees)
	rows := make([][]string, 0, len(trees))
	for _, tree := range trees {
		rows = append(rows, escapeCells(Row(tree, header)))
	}
	md.Table(markdown.TableSet{
		Header: header,
		Rows:   rows,
	})

	return len(md.String()), md.Build()
}

// WriteRuns outputs the run history.
func (w *MarkdownWriter) WriteRuns(runs []database.Run) (int, error) {
	md := markdown.NewMarkdown(w.output)

	md.H1("Run History")
	md.PlainText("")

	if len(runs) == 0 {
		md.PlainText("No runs recorded.")
		return len(md.String()), md.Build()
	}

	rows := make([][]string, 0, len(runs))
	for _, run := range runs {
		rows = append(rows, escapeCells([]string{
			run.ID,
			run.Source,
			run.StartedAt.Local().Format(historyTimeFormat),
			formatFinished(run),
			strconv.Itoa(run.PageCount),
			string(run.Status),
			run.Error,
		}))
	}
	md.Table(markdown.TableSet{
		Header: []string{"ID", "Source", "Started", "Finished", "Pages", "Status", "Error"},
		Rows:   rows,
	})

	return len(md.String()), md.Build()
}

// WriteRun outputs one run and the URLs of its pages.
func (w *MarkdownWriter) WriteRun(run *database.Run, pages []model.Page) (int, error) {
	md := markdown.NewMarkdown(w.output)

	md.H1("Run " + run.ID)
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Field", "Value"},
		Rows: escapeRows([][]string{
			{"Source", run.Source},
			{"Started", run.StartedAt.Local().Format(historyTimeFormat)},
			{"Finished", formatFinished(*run)},
			{"Status", string(run.Status)},
			{"Pages", strconv.Itoa(run.PageCount)},
			{"Error", run.Error},
		}),
	})
	md.PlainText("")

	md.H2("Pages")
	md.PlainText("")
	if len(pages) == 0 {
		md.PlainText("No pages recorded.")
		return len(md.String()), md.Build()
	}

	items := make([]string, 0, len(pages))
	for _, p := range pages {
		items = append(items, p.URL)
	}
	md.BulletList(items...)

	return len(md.String()), md.Build()
}

func formatFinished(run database.Run) string {
	if run.FinishedAt.IsZero() {
		return "-"
	}
	return run.FinishedAt.Local().Format(historyTimeFormat)
}

// cellEscaper keeps cell content on one line and inside its column.
var cellEscaper = strings.NewReplacer("|", `\|`, "\r\n", " ", "\n", " ", "\r", " ")

func escapeCells(cells []string) []string {
	for i, c := range cells {
		cells[i] = cellEscaper.Replace(c)
	}
	return cells
}

func escapeRows(rows [][]string) [][]string {
	for _, r := range rows {
		escapeCells(r)
	}
	return rows
}
