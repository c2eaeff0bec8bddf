package main

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/nao1215/krk/internal/config"
	"github.com/spf13/cobra"
)

//go:embed templates/krk.yaml
var documentTemplate []byte

// NewInitCmd creates the init command.
func NewInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a template scrape document",
		Long: `Init writes a commented krk.yaml scrape document to the current directory.

The template shows every fetch setting (headers, retries, delay, proxy,
cache, pagination) and each kind of field rule, so it can be edited into a
working document.

Examples:
  # Create krk.yaml in the current directory
  krk init

  # Write the template somewhere else
  krk init -o scrapers/news.yaml

  # Overwrite an existing file
  krk init -f`,
		Args: cobra.NoArgs,
		RunE: runInitCmd,
	}

	cmd.Flags().StringP("output", "o", config.DefaultConfigFile, "Output file path for the document")
	cmd.Flags().BoolP("force", "f", false, "Overwrite an existing file")

	return cmd
}

func runInitCmd(cmd *cobra.Command, _ []string) error {
	outputPath, err := cmd.Flags().GetString("output")
	if err != nil {
		return err
	}
	force, err := cmd.Flags().GetBool("force")
	if err != nil {
		return err
	}

	if !force {
		if _, err := os.Stat(outputPath); err == nil {
			return fmt.Errorf("document already exists: %s (use -f to overwrite)", outputPath)
		}
	}

	if dir := filepath.Dir(outputPath); dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	if err := os.WriteFile(outputPath, documentTemplate, 0600); err != nil {
		return fmt.Errorf("failed to write document: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Created scrape document: %s\n", outputPath)
	fmt.Fprintf(out, "Edit the url and data sections, then run: krk scrape %s\n", outputPath)
	return nil
}
