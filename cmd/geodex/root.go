package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/geodex/geodex/internal/asset"
	"github.com/geodex/geodex/internal/backend"
	"github.com/geodex/geodex/internal/config"
	"github.com/geodex/geodex/internal/data"
	"github.com/geodex/geodex/internal/driver"
	"github.com/geodex/geodex/internal/logging"
	"github.com/geodex/geodex/internal/metrics"
	"github.com/geodex/geodex/internal/provider"
	"github.com/geodex/geodex/internal/repository"
)

var (
	cfgFile       string
	driverName    string
	useDB         bool
	serveMetrics  bool
	logLevel      string
	logFormat     string
	awsRegion     string
	queryCacheTTL time.Duration

	cfg    *config.Configuration
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "geodex",
	Short: "geodex - geospatial asset archive and product inventory",
	Long: `geodex manages per-driver archives of remote sensing assets:
fetching them from their providers, archiving them into a canonical
tile/date layout, and inventorying the products derived from them.`,
	SilenceUsage:      true,
	PersistentPreRunE: initApp,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&cfgFile, "config", "c", "", "configuration file (YAML)")
	pf.StringVarP(&driverName, "driver", "d", "", "data source driver (e.g. landsat, modis)")
	pf.BoolVar(&useDB, "db", false, "use the database inventory backend")
	pf.BoolVar(&serveMetrics, "metrics", false, "expose Prometheus metrics")
	pf.StringVar(&logLevel, "log-level", "", "log level override (DEBUG, INFO, WARN, ERROR)")
	pf.StringVar(&logFormat, "log-format", "", "log format override (console, json)")
	pf.StringVar(&awsRegion, "aws-region", "us-west-2", "region for S3-backed providers")
	pf.DurationVar(&queryCacheTTL, "query-cache-ttl", 15*time.Minute, "remote listing cache TTL")

	rootCmd.AddCommand(archiveCmd)
	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(inventoryCmd)
	rootCmd.AddCommand(processCmd)
	rootCmd.AddCommand(watchCmd)
}

func initApp(cmd *cobra.Command, args []string) error {
	cfg = config.NewDefault()
	if cfgFile != "" {
		if err := cfg.LoadFromFile(cfgFile); err != nil {
			return err
		}
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return err
	}
	if logLevel != "" {
		cfg.Global.LogLevel = logLevel
	}
	if logFormat != "" {
		cfg.Global.LogFormat = logFormat
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger = logging.New(cfg.Global.LogLevel, cfg.Global.LogFormat)
	return nil
}

// app bundles everything a subcommand needs for one driver's archive.
type app struct {
	repo     *repository.Repository
	inv      backend.Inventory
	archiver *asset.Archiver
	fetcher  *data.Fetcher
	log      *slog.Logger
	met      *metrics.Collector

	pool *pgxpool.Pool
}

func buildApp(ctx context.Context) (*app, error) {
	d, err := driver.Lookup(driverName)
	if err != nil {
		return nil, err
	}
	rc, err := cfg.Repo(d.Name)
	if err != nil {
		return nil, err
	}
	repo, err := repository.New(d, rc)
	if err != nil {
		return nil, err
	}
	if err := repo.EnsurePaths(); err != nil {
		return nil, err
	}

	log := logging.ForDriver(logger, d.Name)

	var met *metrics.Collector
	if serveMetrics {
		met, err = metrics.NewCollector(&metrics.Config{
			Enabled:   true,
			Port:      cfg.Global.MetricsPort,
			Path:      "/metrics",
			Namespace: "geodex",
		})
		if err != nil {
			return nil, err
		}
		if err := met.Start(ctx); err != nil {
			return nil, err
		}
	}

	a := &app{repo: repo, log: log, met: met}

	a.inv = backend.NewFilesystem(repo)
	if useDB || cfg.Database.Enabled {
		pool, err := backend.Connect(ctx, cfg.Database.DSN)
		if err != nil {
			return nil, err
		}
		if err := backend.EnsureSchema(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
		a.pool = pool
		a.inv = backend.NewDatabase(pool, d.Name)
	}

	a.archiver = asset.NewArchiver(repo, a.inv, log, met)
	a.fetcher = data.NewFetcher(repo, a.inv, remotes(ctx, rc), a.archiver, log, met)
	return a, nil
}

// remotes wires one provider per source kind, each behind a circuit
// breaker and a query cache.
func remotes(ctx context.Context, rc config.RepoConfig) map[string]provider.Remote {
	guard := func(r provider.Remote, source string) provider.Remote {
		g := provider.NewGuarded(r, source, provider.BreakerConfig{
			OnStateChange: func(source, from, to string) {
				logger.Warn("remote circuit state change",
					"source", source, "from", from, "to", to)
			},
		})
		return provider.NewCached(g, queryCacheTTL)
	}
	out := map[string]provider.Remote{
		"http": guard(provider.NewHTTP(provider.HTTPOptions{
			Timeout:     cfg.Fetch.Timeout,
			Username:    rc.Username,
			Password:    rc.Password,
			MaxAttempts: cfg.Fetch.MaxAttempts,
		}), "http"),
	}
	if s3p, err := provider.NewS3(ctx, awsRegion); err == nil {
		out["s3"] = guard(s3p, "s3")
	} else {
		logger.Warn("S3 provider unavailable", "error", err)
	}
	return out
}

func (a *app) Close() {
	if a.pool != nil {
		a.pool.Close()
	}
}
