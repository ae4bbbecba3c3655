package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/program-crawler/internal/crawler"
)

func newCrawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Crawls every listing row into the result store",
		Long: `Reads the listing CSV, resolves each program link against crawl.base_url and
runs the fetch, extract and validate pipeline in waves until every row has a
result. Rows that keep failing are stored with an error after
crawl.max_global_retries attempts.`,
		RunE: runCrawlCommand,
	}
	cmd.Flags().String("input", "", "listing CSV (overrides crawl.input_path)")
	cmd.Flags().String("output", "", "results JSON file (forces the file backend)")
	return cmd
}

func runCrawlCommand(cmd *cobra.Command, _ []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	cfg, err := resolveConfig(cmd.Context())
	if err != nil {
		return err
	}

	f, err := os.Open(cfg.Crawl.InputPath)
	if err != nil {
		return fmt.Errorf("open listings: %w", err)
	}
	defer func() { _ = f.Close() }()
	listings, err := crawler.ReadListings(f)
	if err != nil {
		return fmt.Errorf("read listings %s: %w", cfg.Crawl.InputPath, err)
	}
	tasks := crawler.TasksFromListings(cfg.Crawl.BaseURL, listings)
	appInstance.Logger().Info("crawl starting",
		zap.String("input", cfg.Crawl.InputPath),
		zap.Int("listings", len(tasks)),
	)

	summary, err := appInstance.Crawl(cmd.Context(), tasks)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(summary); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}
	return nil
}
