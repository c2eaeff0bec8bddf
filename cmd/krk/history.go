package main

import (
	"errors"
	"fmt"

	"github.com/nao1215/krk/internal/config"
	"github.com/nao1215/krk/internal/database"
	"github.com/nao1215/krk/internal/model"
	"github.com/nao1215/krk/internal/report"
	"github.com/spf13/cobra"
)

// defaultHistoryLimit is the number of runs listed by default.
const defaultHistoryLimit = 20

// NewHistoryCmd creates the history command.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "Show runs recorded with scrape --save",
		Long: `History lists the runs recorded in the history database, newest first.

With a run ID (or a unique prefix of one) it shows that run and the URLs of
its pages. With --data the extracted records of the run are printed as JSON
instead.

Examples:
  # List the latest runs
  krk history

  # Show one run
  krk history 3f2c9a

  # Print the data extracted by a run
  krk history --data 3f2c9a`,
		Args: cobra.MaximumNArgs(1),
		RunE: runHistoryCmd,
	}

	cmd.Flags().IntP("limit", "n", defaultHistoryLimit, "Maximum number of runs to list")
	cmd.Flags().Bool("data", false, "Print the extracted records of the run as JSON")
	cmd.Flags().String("db-dir", config.XDGDataDir(), "Directory of the history database")

	return cmd
}

func runHistoryCmd(cmd *cobra.Command, args []string) error {
	limit, err := cmd.Flags().GetInt("limit")
	if err != nil {
		return err
	}
	showData, err := cmd.Flags().GetBool("data")
	if err != nil {
		return err
	}
	dbDir, err := cmd.Flags().GetString("db-dir")
	if err != nil {
		return err
	}
	if showData && len(args) == 0 {
		return errors.New("--data requires a run ID")
	}

	opts := database.DefaultOptions()
	opts.CreateIfNotExists = false
	db, err := database.Open(dbDir, opts)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	if len(args) == 0 {
		runs, err := db.ListRuns(ctx, limit)
		if err != nil {
			return err
		}
		_, err = report.NewMarkdownWriter(out).WriteRuns(runs)
		return err
	}

	run, err := db.GetRun(ctx, args[0])
	if err != nil {
		return fmt.Errorf("failed to look up run %q: %w", args[0], err)
	}
	pages, err := db.GetRunPages(ctx, run.ID)
	if err != nil {
		return err
	}

	if showData {
		trees := make([]model.Tree, len(pages))
		for i, p := range pages {
			trees[i] = p.Tree
		}
		_, err = report.NewJSONWriter(out, report.WithPrettyPrint()).Write(trees)
		return err
	}
	_, err = report.NewMarkdownWriter(out).WriteRun(run, pages)
	return err
}
