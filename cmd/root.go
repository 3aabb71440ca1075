// Package cmd defines the jobscout command line: scrape, serve, and listings.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/jobscout/internal/config"
	"github.com/JakeFAU/jobscout/internal/scraper"
	"github.com/JakeFAU/jobscout/internal/server"
)

// Service is the orchestration surface commands drive.
type Service interface {
	Sites() []string
	HasSite(name string) bool
	ScrapeSite(ctx context.Context, name string) []scraper.Listing
	ScrapeAll(ctx context.Context) map[string][]scraper.Listing
	GetJobListings(ctx context.Context, filter scraper.Filter, limit, offset int) []scraper.Listing
}

// App is what commands need from the built application. Tests substitute a fake.
type App interface {
	Logger() *zap.Logger
	Service() Service
	Run(ctx context.Context) error
	Close(ctx context.Context) error
}

type appKeyType struct{}

var appKey appKeyType

type serverApp struct {
	*server.App
}

func (a serverApp) Service() Service { return a.Manager() }

// newApp is the application factory. Tests replace it.
var newApp = func(ctx context.Context, cfg config.Config) (App, error) {
	app, err := server.Build(ctx, cfg)
	if err != nil {
		return nil, err //nolint:wrapcheck // wrapped by the caller
	}
	return serverApp{App: app}, nil
}

// loadConfig reads .env (when present) and then the config file plus JOBSCOUT_ env overrides.
var loadConfig = func(path, envFile string) (config.Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return config.Config{}, fmt.Errorf("load %s: %w", envFile, err)
		}
	}
	return config.Load(path) //nolint:wrapcheck // config errors are already descriptive
}

func newRootCmd() *cobra.Command {
	var cfgFile, envFile string
	cmd := &cobra.Command{
		Use:   "jobscout",
		Short: "Scrape job listings from configured sites into one store.",
		Long: `jobscout collects job listings from several job boards, normalizes them into one
record shape, and upserts them into a store keyed by listing URL. Run a one-off
scrape, serve the HTTP API with an optional schedule, or query stored listings.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cfgFile, envFile)
			if err != nil {
				return fmt.Errorf("load configuration: %w", err)
			}
			appInstance, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},

		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return nil //nolint:nilerr // nothing was built
			}
			if _, serving := cmd.Annotations[annotationOwnsShutdown]; serving {
				return nil
			}
			return appInstance.Close(cmd.Context()) //nolint:wrapcheck // close errors are joined and descriptive
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML); env vars prefixed JOBSCOUT_ override it")
	cmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before configuration")

	cmd.AddCommand(newScrapeCmd(), newServeCmd(), newListingsCmd())
	return cmd
}

// annotationOwnsShutdown marks commands whose RunE closes the app itself.
const annotationOwnsShutdown = "owns-shutdown"

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
