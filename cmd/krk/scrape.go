package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/nao1215/krk/internal/config"
	"github.com/nao1215/krk/internal/database"
	"github.com/nao1215/krk/internal/extract"
	klog "github.com/nao1215/krk/internal/log"
	"github.com/nao1215/krk/internal/pipeline"
	"github.com/nao1215/krk/internal/report"
	"github.com/spf13/cobra"
)

// scrapeOptions holds the flag values of the scrape command.
type scrapeOptions struct {
	documentPath string
	output       string
	format       string
	useCache     bool
	cacheDir     string
	save         bool
	dbDir        string
	jobs         int
	verbose      bool
	logJSON      bool
}

// NewScrapeCmd creates the scrape command.
func NewScrapeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scrape [document]",
		Short: "Fetch the pages of a document and extract its fields",
		Long: `Scrape loads a scrape document, fetches every page it describes and prints
the extracted data.

Without an argument the document is looked up as krk.yaml in the current
directory, then in the krk config directory. A single page produces one
record; several pages (a URL list or pagination) produce a list of records.
Progress is written to stderr so stdout can be piped.

Examples:
  # Scrape with the document in the current directory
  krk scrape

  # Write CSV to a file
  krk scrape -f csv -o items.csv shop.yaml

  # Reuse cached responses, fetching only what is missing
  krk scrape --cache shop.yaml

  # Record the run in the history database
  krk scrape --save shop.yaml`,
		Args: cobra.MaximumNArgs(1),
		RunE: runScrapeCmd,
	}

	cmd.Flags().StringP("output", "o", "",
		"Write the result to the specified file path (creates directories if needed)")
	cmd.Flags().StringP("format", "f", string(report.FormatJSON),
		"Output format: "+strings.Join(report.Formats(), ", "))
	cmd.Flags().Bool("cache", false,
		"Read responses from the cache directory instead of the network when present")
	cmd.Flags().String("cache-dir", "",
		"Response cache directory (overrides the document; default with --cache: "+config.XDGCacheDir()+")")
	cmd.Flags().Bool("save", false,
		"Record the run and its pages in the history database")
	cmd.Flags().String("db-dir", config.XDGDataDir(),
		"Directory of the history database")
	cmd.Flags().IntP("jobs", "j", 0,
		"Number of elements extracted in parallel per selector (0 uses GOMAXPROCS)")
	cmd.Flags().Bool("log-json", false,
		"Write logs as JSON")

	return cmd
}

func runScrapeCmd(cmd *cobra.Command, args []string) error {
	opts, err := scrapeOptionsFromFlags(cmd, args)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return runScrape(ctx, opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
}

// scrapeOptionsFromFlags collects flag values into scrapeOptions.
func scrapeOptionsFromFlags(cmd *cobra.Command, args []string) (*scrapeOptions, error) {
	opts := &scrapeOptions{verbose: getVerboseFlag(cmd)}
	if len(args) > 0 {
		opts.documentPath = args[0]
	}

	var err error
	if opts.output, err = cmd.Flags().GetString("output"); err != nil {
		return nil, err
	}
	if opts.format, err = cmd.Flags().GetString("format"); err != nil {
		return nil, err
	}
	if opts.useCache, err = cmd.Flags().GetBool("cache"); err != nil {
		return nil, err
	}
	if opts.cacheDir, err = cmd.Flags().GetString("cache-dir"); err != nil {
		return nil, err
	}
	if opts.save, err = cmd.Flags().GetBool("save"); err != nil {
		return nil, err
	}
	if opts.dbDir, err = cmd.Flags().GetString("db-dir"); err != nil {
		return nil, err
	}
	if opts.logJSON, err = cmd.Flags().GetBool("log-json"); err != nil {
		return nil, err
	}
	if opts.jobs, err = cmd.Flags().GetInt("jobs"); err != nil {
		return nil, err
	}
	if opts.jobs < 0 {
		return nil, fmt.Errorf("--jobs must not be negative: %d", opts.jobs)
	}
	return opts, nil
}

// getVerboseFlag retrieves the verbose flag from the command or its parent.
func getVerboseFlag(cmd *cobra.Command) bool {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		verbose, err = cmd.Root().PersistentFlags().GetBool("verbose")
		if err != nil {
			return false
		}
	}
	return verbose
}

// setupLogger creates the secure logger used by every component.
func setupLogger(w io.Writer, verbose, asJSON bool) *slog.Logger {
	if asJSON {
		return klog.NewSecureJSONLogger(w, verbose)
	}
	return klog.NewSecureLogger(w, verbose)
}

// loadDocument finds, loads and adjusts the scrape document.
func loadDocument(opts *scrapeOptions) (*config.Document, string, error) {
	path := config.FindConfigFile(opts.documentPath)
	if path == "" {
		if opts.documentPath != "" {
			return nil, "", fmt.Errorf("%w: %s", config.ErrConfigNotFound, opts.documentPath)
		}
		return nil, "", fmt.Errorf("%w: no %s in the current directory or %s (run 'krk init' to create one)",
			config.ErrConfigNotFound, config.DefaultConfigFile, config.XDGConfigDir())
	}

	doc, err := config.LoadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to load %s: %w", path, err)
	}

	if opts.cacheDir != "" {
		doc.Config.CacheDir = opts.cacheDir
	}
	if opts.useCache {
		doc.Config.UseCache = true
		if doc.Config.CacheDir == "" {
			doc.Config.CacheDir = config.XDGCacheDir()
		}
	}
	return doc, path, nil
}

// runScrape executes a scrape and writes the result to stdout or opts.output.
func runScrape(ctx context.Context, opts *scrapeOptions, stdout, stderr io.Writer) (err error) {
	// Reject a bad format before any network access.
	if _, err := report.NewWriter(opts.format, io.Discard); err != nil {
		return err
	}

	logger := setupLogger(stderr, opts.verbose, opts.logJSON)
	slog.SetDefault(logger)

	doc, path, err := loadDocument(opts)
	if err != nil {
		return err
	}

	runnerOpts := []pipeline.RunnerOption{
		pipeline.WithRunnerLogger(logger),
		pipeline.WithProgress(stderr),
	}
	if opts.jobs > 0 {
		runnerOpts = append(runnerOpts, pipeline.WithExtractOptions(extract.WithConcurrency(opts.jobs)))
	}

	if opts.save {
		db, openErr := database.Open(opts.dbDir, database.DefaultOptions())
		if openErr != nil {
			return fmt.Errorf("failed to open database: %w", openErr)
		}
		defer db.Close()

		absPath, absErr := filepath.Abs(path)
		if absErr != nil {
			absPath = path
		}
		run, beginErr := db.BeginRun(ctx, absPath)
		if beginErr != nil {
			return beginErr
		}
		runnerOpts = append(runnerOpts, pipeline.WithRecorder(db.Recorder(run.ID)))

		defer func() {
			// The run is finished even after cancellation.
			finishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			if finishErr := db.FinishRun(finishCtx, run.ID, err); finishErr != nil {
				logger.Error("failed to finish run", "run", run.ID, "error", finishErr)
				return
			}
			fmt.Fprintf(stderr, "Saved run %s\n", run.ID)
		}()
	}

	startTime := time.Now()
	result, err := pipeline.NewRunner(runnerOpts...).Run(ctx, doc)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return fmt.Errorf("scrape interrupted: %w", err)
		}
		return err
	}
	logger.Info("scrape finished", "pages", len(result.Pages), "elapsed", time.Since(startTime).Round(time.Millisecond))

	return writeResult(opts, result, stdout)
}

// writeResult writes the trees of result in the requested format.
func writeResult(opts *scrapeOptions, result *pipeline.Result, stdout io.Writer) error {
	output := stdout
	if opts.output != "" {
		dir := filepath.Dir(opts.output)
		if dir != "." {
			if err := os.MkdirAll(dir, 0750); err != nil {
				return fmt.Errorf("failed to create output directory: %w", err)
			}
		}

		f, err := os.OpenFile(opts.output, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		output = f
	}

	writer, err := report.NewWriter(opts.format, output)
	if err != nil {
		return err
	}
	if _, err := writer.Write(result.Trees()); err != nil {
		return fmt.Errorf("failed to write result: %w", err)
	}
	return nil
}
