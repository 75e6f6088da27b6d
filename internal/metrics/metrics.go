// Package metrics exposes Prometheus metrics for watcher runs.
package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Enrichment outcomes.
const (
	EnrichSummarized  = "summarized"
	EnrichFallback    = "fallback"
	EnrichUnavailable = "unavailable"
)

// Collector records run, enrichment, and delivery metrics.
type Collector struct {
	runs          *prometheus.CounterVec
	candidates    prometheus.Gauge
	newItems      prometheus.Counter
	enrichments   *prometheus.CounterVec
	deliveries    *prometheus.CounterVec
	runDuration   prometheus.Histogram
	lastRunFinish prometheus.Gauge
}

// NewCollector creates a Collector and registers its metrics on reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bulletinwatch_runs_total",
			Help: "Watcher runs by outcome.",
		}, []string{"outcome"}),
		candidates: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bulletinwatch_last_run_candidates",
			Help: "Candidates listed by the most recent run.",
		}),
		newItems: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bulletinwatch_new_items_total",
			Help: "Bulletins detected as new.",
		}),
		enrichments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bulletinwatch_enrichments_total",
			Help: "Enriched items by summary outcome.",
		}, []string{"result"}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bulletinwatch_deliveries_total",
			Help: "Notification deliveries by status.",
		}, []string{"status"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "bulletinwatch_run_duration_seconds",
			Help:    "Wall time of watcher runs.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		}),
		lastRunFinish: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bulletinwatch_last_run_timestamp_seconds",
			Help: "Unix time the most recent run finished.",
		}),
	}

	reg.MustRegister(
		c.runs,
		c.candidates,
		c.newItems,
		c.enrichments,
		c.deliveries,
		c.runDuration,
		c.lastRunFinish,
	)

	return c
}

// RecordRun records a finished run. Outcome is "ok" or "error".
func (c *Collector) RecordRun(outcome string, candidates, newItems int, started, finished time.Time) {
	c.runs.WithLabelValues(outcome).Inc()
	c.candidates.Set(float64(candidates))
	c.newItems.Add(float64(newItems))
	c.runDuration.Observe(finished.Sub(started).Seconds())
	c.lastRunFinish.Set(float64(finished.Unix()))
}

// RecordEnrichment records the summary outcome of one item.
func (c *Collector) RecordEnrichment(result string) {
	c.enrichments.WithLabelValues(result).Inc()
}

// RecordDelivery records the status of the batched notification.
func (c *Collector) RecordDelivery(status string) {
	c.deliveries.WithLabelValues(status).Inc()
}

// Handler returns the HTTP handler for Prometheus scrapes.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// WriteTextfile writes the gathered metrics in the node_exporter textfile
// format. Cron-driven runs use it since they exit before any scrape.
func WriteTextfile(gatherer prometheus.Gatherer, path string) error {
	if err := prometheus.WriteToTextfile(path, gatherer); err != nil {
		return fmt.Errorf("writing metrics textfile: %w", err)
	}
	return nil
}
