// Package cmd implements the program-crawler command line.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/program-crawler/internal/app"
	"github.com/JakeFAU/program-crawler/internal/config"
	"github.com/JakeFAU/program-crawler/internal/crawler"
)

var cfgFile string

type appKeyType string

const (
	appKey    appKeyType = "app"
	configKey appKeyType = "config"
)

// App is what the commands need from the wired application. Tests swap in
// a fake through newApp.
type App interface {
	Crawl(ctx context.Context, tasks []crawler.CrawlTask) (crawler.RunSummary, error)
	Reindex(ctx context.Context) (int, error)
	Serve(ctx context.Context) error
	Close(ctx context.Context) error
	Logger() *zap.Logger
}

var newApp = func(ctx context.Context, cfg config.Config) (App, error) {
	return app.Build(ctx, cfg)
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "program-crawler",
		Short: "Crawls education programme pages into structured records and serves search over them.",
		Long: `program-crawler reads a programme listing CSV, fetches every programme page,
extracts a structured record with a language model, validates it in a second
pass, and stores one result per listing row. The serve command indexes those
results and exposes keyword, vector and model-weighted search plus a streaming
filter assistant over HTTP.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := applyFlagOverrides(cmd, &cfg); err != nil {
				return err
			}
			appInstance, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			ctx := context.WithValue(cmd.Context(), configKey, cfg)
			cmd.SetContext(context.WithValue(ctx, appKey, appInstance))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if appInstance, ok := cmd.Context().Value(appKey).(App); ok && appInstance != nil {
				if err := appInstance.Close(context.Background()); err != nil {
					appInstance.Logger().Warn("close failed", zap.Error(err))
				}
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (defaults plus PROGRAM_CRAWLER_* environment when empty)")
	cmd.AddCommand(newCrawlCmd(), newServeCmd(), newIndexCmd())
	return cmd
}

// applyFlagOverrides copies explicitly set command flags onto cfg.
func applyFlagOverrides(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Lookup("input") != nil && flags.Changed("input") {
		v, err := flags.GetString("input")
		if err != nil {
			return err
		}
		cfg.Crawl.InputPath = v
	}
	if flags.Lookup("output") != nil && flags.Changed("output") {
		v, err := flags.GetString("output")
		if err != nil {
			return err
		}
		cfg.Storage.Backend = "file"
		cfg.Storage.ResultsPath = v
	}
	if flags.Lookup("port") != nil && flags.Changed("port") {
		v, err := flags.GetInt("port")
		if err != nil {
			return err
		}
		cfg.Server.Port = v
	}
	return cfg.Validate()
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

func resolveConfig(ctx context.Context) (config.Config, error) {
	cfg, ok := ctx.Value(configKey).(config.Config)
	if !ok {
		return config.Config{}, errors.New("configuration not loaded")
	}
	return cfg, nil
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
