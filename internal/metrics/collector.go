package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector exposes Prometheus metrics for archive, fetch and process
// operations.
type Collector struct {
	config   *Config
	registry *prometheus.Registry

	archivedCounter    *prometheus.CounterVec
	quarantinedCounter *prometheus.CounterVec
	overwrittenCounter *prometheus.CounterVec
	productsDeleted    *prometheus.CounterVec
	fetchCounter       *prometheus.CounterVec
	fetchErrors        *prometheus.CounterVec
	processErrors      *prometheus.CounterVec
	archiveDuration    *prometheus.HistogramVec
	fetchDuration      *prometheus.HistogramVec

	server *http.Server
}

// Config represents metrics configuration
type Config struct {
	Enabled   bool   `yaml:"enabled"`
	Port      int    `yaml:"port"`
	Path      string `yaml:"path"`
	Namespace string `yaml:"namespace"`
}

// NewCollector creates a new metrics collector
func NewCollector(config *Config) (*Collector, error) {
	if config == nil {
		config = &Config{
			Enabled:   true,
			Port:      9110,
			Path:      "/metrics",
			Namespace: "geodex",
		}
	}

	if !config.Enabled {
		return &Collector{config: config}, nil
	}

	registry := prometheus.NewRegistry()
	c := &Collector{config: config, registry: registry}

	ns := config.Namespace

	c.archivedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Name: "assets_archived_total",
		Help: "Asset files hard-linked into the canonical archive",
	}, []string{"driver", "asset_type"})

	c.quarantinedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Name: "assets_quarantined_total",
		Help: "Candidate files that failed inspection and were quarantined",
	}, []string{"driver"})

	c.overwrittenCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Name: "assets_overwritten_total",
		Help: "Archived assets replaced by a newer version",
	}, []string{"driver", "asset_type"})

	c.productsDeleted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Name: "stale_products_deleted_total",
		Help: "Product files removed because their source asset changed",
	}, []string{"driver"})

	c.fetchCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Name: "fetch_attempts_total",
		Help: "Remote fetch attempts per asset type",
	}, []string{"driver", "asset_type"})

	c.fetchErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Name: "fetch_errors_total",
		Help: "Remote fetch attempts that failed",
	}, []string{"driver", "asset_type"})

	c.processErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Name: "process_errors_total",
		Help: "Per-date processing failures",
	}, []string{"driver"})

	c.archiveDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: ns, Name: "archive_duration_seconds",
		Help:    "Duration of batch archive operations",
		Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
	}, []string{"driver"})

	c.fetchDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: ns, Name: "fetch_duration_seconds",
		Help:    "Duration of single-asset fetches",
		Buckets: prometheus.ExponentialBuckets(0.1, 4, 8),
	}, []string{"driver", "asset_type"})

	for _, col := range []prometheus.Collector{
		c.archivedCounter, c.quarantinedCounter, c.overwrittenCounter,
		c.productsDeleted, c.fetchCounter, c.fetchErrors, c.processErrors,
		c.archiveDuration, c.fetchDuration,
	} {
		if err := registry.Register(col); err != nil {
			return nil, fmt.Errorf("failed to register metrics: %w", err)
		}
	}

	return c, nil
}

// Start serves the metrics endpoint until the context is canceled.
func (c *Collector) Start(ctx context.Context) error {
	if !c.config.Enabled {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(c.config.Path, promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))

	c.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", c.config.Port),
		Handler:           mux,
		ReadHeaderTimeout: 30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		if err := c.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Printf("metrics server error: %v\n", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = c.server.Shutdown(shutdownCtx)
	}()

	return nil
}

// enabled reports whether metric vectors were initialized.
func (c *Collector) enabled() bool {
	return c != nil && c.config != nil && c.config.Enabled
}

// RecordArchived increments the archived-assets counter.
func (c *Collector) RecordArchived(driver, assetType string) {
	if c.enabled() {
		c.archivedCounter.WithLabelValues(driver, assetType).Inc()
	}
}

// RecordQuarantined increments the quarantine counter.
func (c *Collector) RecordQuarantined(driver string) {
	if c.enabled() {
		c.quarantinedCounter.WithLabelValues(driver).Inc()
	}
}

// RecordOverwritten increments the superseded-assets counter.
func (c *Collector) RecordOverwritten(driver, assetType string) {
	if c.enabled() {
		c.overwrittenCounter.WithLabelValues(driver, assetType).Inc()
	}
}

// RecordProductsDeleted adds to the stale-product invalidation counter.
func (c *Collector) RecordProductsDeleted(driver string, n int) {
	if c.enabled() {
		c.productsDeleted.WithLabelValues(driver).Add(float64(n))
	}
}

// RecordFetch records one fetch attempt and its outcome and duration.
func (c *Collector) RecordFetch(driver, assetType string, d time.Duration, err error) {
	if !c.enabled() {
		return
	}
	c.fetchCounter.WithLabelValues(driver, assetType).Inc()
	c.fetchDuration.WithLabelValues(driver, assetType).Observe(d.Seconds())
	if err != nil {
		c.fetchErrors.WithLabelValues(driver, assetType).Inc()
	}
}

// RecordProcessError increments per-date processing failures.
func (c *Collector) RecordProcessError(driver string) {
	if c.enabled() {
		c.processErrors.WithLabelValues(driver).Inc()
	}
}

// ObserveArchive records the duration of a batch archive call.
func (c *Collector) ObserveArchive(driver string, d time.Duration) {
	if c.enabled() {
		c.archiveDuration.WithLabelValues(driver).Observe(d.Seconds())
	}
}
