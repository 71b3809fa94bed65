// Package metrics exposes Prometheus instrumentation for the indexer,
// identifier, thumbnailer, and job runtime.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Catalog metrics
	LocationsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "latticefs_locations_total",
			Help: "Total number of registered locations",
		},
	)

	FilePathsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "latticefs_file_paths_total",
			Help: "Total number of file_path rows by location",
		},
		[]string{"location_id"},
	)

	ObjectsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "latticefs_objects_total",
			Help: "Total number of distinct objects",
		},
	)

	// Indexer metrics
	IndexerEntriesDiscovered = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "latticefs_indexer_entries_discovered_total",
			Help: "Entries discovered by a walk, by location",
		},
		[]string{"location_id"},
	)

	IndexerEntriesInserted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "latticefs_indexer_entries_inserted_total",
			Help: "New file_path rows inserted, by location",
		},
		[]string{"location_id"},
	)

	IndexerEntriesDeleted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "latticefs_indexer_entries_deleted_total",
			Help: "file_path rows removed during full reconciliation, by location",
		},
		[]string{"location_id"},
	)

	IndexerRunDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "latticefs_indexer_run_duration_seconds",
			Help:    "Time to complete one indexer run, by mode",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"mode"},
	)

	// Identifier metrics
	IdentifierFilesHashed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "latticefs_identifier_files_hashed_total",
			Help: "Total number of files hashed by the identifier",
		},
	)

	IdentifierObjectsCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "latticefs_identifier_objects_created_total",
			Help: "Total number of new Objects created by the identifier",
		},
	)

	IdentifierObjectsLinked = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "latticefs_identifier_objects_linked_total",
			Help: "Total number of file_paths linked to an existing Object",
		},
	)

	IdentifierChunkDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "latticefs_identifier_chunk_duration_seconds",
			Help:    "Time to process one identifier chunk",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Thumbnailer metrics
	ThumbnailsGenerated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "latticefs_thumbnails_generated_total",
			Help: "Total number of thumbnails generated",
		},
	)

	ThumbnailsReused = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "latticefs_thumbnails_reused_total",
			Help: "Total number of thumbnail requests satisfied by an existing file",
		},
	)

	ThumbnailsFailed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "latticefs_thumbnails_failed_total",
			Help: "Total number of thumbnail encode failures",
		},
	)

	// Job runtime metrics
	JobsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "latticefs_jobs_total",
			Help: "Number of jobs by state",
		},
		[]string{"state"},
	)

	JobDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "latticefs_job_duration_seconds",
			Help:    "Time from job start to completion, by kind",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	JobRetries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "latticefs_job_retries_total",
			Help: "Total number of step retries due to transient catalog errors",
		},
		[]string{"kind"},
	)

	// Event bus metrics
	EventBusDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "latticefs_eventbus_dropped_total",
			Help: "Events dropped from a subscriber's buffer due to overflow",
		},
		[]string{"kind"},
	)
)

func init() {
	prometheus.MustRegister(LocationsTotal)
	prometheus.MustRegister(FilePathsTotal)
	prometheus.MustRegister(ObjectsTotal)
	prometheus.MustRegister(IndexerEntriesDiscovered)
	prometheus.MustRegister(IndexerEntriesInserted)
	prometheus.MustRegister(IndexerEntriesDeleted)
	prometheus.MustRegister(IndexerRunDuration)
	prometheus.MustRegister(IdentifierFilesHashed)
	prometheus.MustRegister(IdentifierObjectsCreated)
	prometheus.MustRegister(IdentifierObjectsLinked)
	prometheus.MustRegister(IdentifierChunkDuration)
	prometheus.MustRegister(ThumbnailsGenerated)
	prometheus.MustRegister(ThumbnailsReused)
	prometheus.MustRegister(ThumbnailsFailed)
	prometheus.MustRegister(JobsTotal)
	prometheus.MustRegister(JobDuration)
	prometheus.MustRegister(JobRetries)
	prometheus.MustRegister(EventBusDropped)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
