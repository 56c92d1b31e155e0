/*
Package metrics provides Prometheus observability for the pipeline and
the anomaly engine.

PURPOSE:
  One struct holds every metric the service exports. Components receive a
  *Metrics and call the observe methods; a nil receiver is a no-op, so
  library code and tests never need a registry.
*/
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// Dataset ingestion, labelled by category
	FilesRead          *prometheus.CounterVec
	FilesSkipped       *prometheus.CounterVec
	RowsRead           *prometheus.CounterVec
	RowsKept           *prometheus.CounterVec
	RowsDroppedBadDate *prometheus.CounterVec
	RowsQuarantined    *prometheus.CounterVec

	// Pipeline runs
	PipelineRuns     prometheus.Counter
	PipelineDuration prometheus.Histogram
	AnalysisRows     prometheus.Gauge

	// Anomaly engine, for the last full scoring pass
	RecordsScored    prometheus.Gauge
	AnomaliesFlagged prometheus.Gauge
}

// New creates and registers all metrics on the default registry. Call it
// once per process; hand nil to components that should not record.
func New() *Metrics {
	category := []string{"category"}
	return &Metrics{
		FilesRead: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "sentinel_dataset_files_read_total",
			Help: "Source files successfully read, by category",
		}, category),
		FilesSkipped: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "sentinel_dataset_files_skipped_total",
			Help: "Source files skipped as unreadable, by category",
		}, category),
		RowsRead: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "sentinel_dataset_rows_read_total",
			Help: "Raw rows read from source files, by category",
		}, category),
		RowsKept: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "sentinel_dataset_rows_kept_total",
			Help: "Rows kept after date and region screening, by category",
		}, category),
		RowsDroppedBadDate: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "sentinel_dataset_rows_dropped_bad_date_total",
			Help: "Rows dropped for unparseable dates, by category",
		}, category),
		RowsQuarantined: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "sentinel_dataset_rows_quarantined_total",
			Help: "Rows held out for unrecognized regions, by category",
		}, category),

		PipelineRuns: promauto.NewCounter(prometheus.CounterOpts{
			Name: "sentinel_pipeline_runs_total",
			Help: "Completed pipeline runs",
		}),
		PipelineDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "sentinel_pipeline_duration_seconds",
			Help:    "Duration of a full load, aggregate and merge pass",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		AnalysisRows: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "sentinel_analysis_rows",
			Help: "Rows in the merged analysis table from the last run",
		}),

		RecordsScored: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "sentinel_records_scored",
			Help: "Records scored in the last full anomaly pass",
		}),
		AnomaliesFlagged: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "sentinel_anomalies_flagged",
			Help: "Records flagged anomalous in the last full anomaly pass",
		}),
	}
}

// LoadObservation is one category's ingestion outcome.
type LoadObservation struct {
	Category           string
	FilesRead          int
	FilesSkipped       int
	RowsRead           int
	RowsKept           int
	RowsDroppedBadDate int
	RowsQuarantined    int
}

// ObserveLoad records one category load.
func (m *Metrics) ObserveLoad(o LoadObservation) {
	if m == nil {
		return
	}
	m.FilesRead.WithLabelValues(o.Category).Add(float64(o.FilesRead))
	m.FilesSkipped.WithLabelValues(o.Category).Add(float64(o.FilesSkipped))
	m.RowsRead.WithLabelValues(o.Category).Add(float64(o.RowsRead))
	m.RowsKept.WithLabelValues(o.Category).Add(float64(o.RowsKept))
	m.RowsDroppedBadDate.WithLabelValues(o.Category).Add(float64(o.RowsDroppedBadDate))
	m.RowsQuarantined.WithLabelValues(o.Category).Add(float64(o.RowsQuarantined))
}

// ObservePipelineRun records a completed run and the size of its output.
func (m *Metrics) ObservePipelineRun(rows int, d time.Duration) {
	if m == nil {
		return
	}
	m.PipelineRuns.Inc()
	m.PipelineDuration.Observe(d.Seconds())
	m.AnalysisRows.Set(float64(rows))
}

// ObserveScoring records the outcome of a full anomaly pass.
func (m *Metrics) ObserveScoring(scored, flagged int) {
	if m == nil {
		return
	}
	m.RecordsScored.Set(float64(scored))
	m.AnomaliesFlagged.Set(float64(flagged))
}

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}
