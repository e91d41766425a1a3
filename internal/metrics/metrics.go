// Package metrics defines the Prometheus collectors exported by docgraph.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Indexing pipeline
	IndexingDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "docgraph_indexing_duration_seconds",
			Help:    "Time spent per indexing pipeline stage",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
		},
		[]string{"stage"},
	)

	DocumentsIndexed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docgraph_documents_indexed_total",
			Help: "Total number of indexing attempts by outcome",
		},
		[]string{"status"},
	)

	// Providers
	EmbeddingRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docgraph_embedding_requests_total",
			Help: "Embedding provider calls by outcome",
		},
		[]string{"provider", "status"},
	)

	ExtractionRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docgraph_extraction_requests_total",
			Help: "Entity extraction calls by provider and outcome",
		},
		[]string{"provider", "outcome"},
	)

	// Queues
	QueueJobs = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "docgraph_queue_jobs",
			Help: "Jobs per queue and state",
		},
		[]string{"queue", "state"},
	)

	JobsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docgraph_jobs_processed_total",
			Help: "Jobs handled by the worker pool by outcome",
		},
		[]string{"queue", "outcome"},
	)

	// Search
	SearchFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "docgraph_search_fallbacks_total",
		Help: "Searches answered by the filename fallback",
	})
)

// ObserveStage records a stage duration.
func ObserveStage(stage string, d time.Duration) {
	IndexingDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// Serve exposes /metrics on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx) //nolint:errcheck
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
