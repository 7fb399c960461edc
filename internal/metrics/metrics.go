// Package metrics defines the Prometheus collectors of the index and search
// paths and exposes an HTTP handler for scraping.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors.
type Metrics struct {
	DocsIndexedTotal   prometheus.Counter
	DocsDeletedTotal   prometheus.Counter
	IndexFlushesTotal  *prometheus.CounterVec
	MergesTotal        *prometheus.CounterVec
	Segments           prometheus.Gauge
	SearchQueriesTotal *prometheus.CounterVec
	SearchLatency      *prometheus.HistogramVec
	SearchResultsCount prometheus.Histogram
	ExplainsTotal      prometheus.Counter

	gatherer prometheus.Gatherer
}

// New creates the collectors and registers them with reg. A nil reg uses a
// fresh private registry.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		DocsIndexedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "relevance_docs_indexed_total",
				Help: "Total documents indexed.",
			},
		),
		DocsDeletedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "relevance_docs_deleted_total",
				Help: "Total delete requests.",
			},
		),
		IndexFlushesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relevance_index_flushes_total",
				Help: "Total index flush operations by status.",
			},
			[]string{"status"},
		),
		MergesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relevance_merges_total",
				Help: "Total segment merges by status.",
			},
			[]string{"status"},
		),
		Segments: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "relevance_segments",
				Help: "Number of live segments.",
			},
		),
		SearchQueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relevance_search_queries_total",
				Help: "Total search queries by similarity and result type (hit, zero_result, error).",
			},
			[]string{"similarity", "result_type"},
		),
		SearchLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "relevance_search_latency_seconds",
				Help:    "Search query latency in seconds.",
				Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"similarity"},
		),
		SearchResultsCount: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "relevance_search_results_count",
				Help:    "Number of results returned per search query.",
				Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 1000},
			},
		),
		ExplainsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "relevance_explains_total",
				Help: "Total score explanations produced.",
			},
		),
		gatherer: reg,
	}

	reg.MustRegister(
		m.DocsIndexedTotal,
		m.DocsDeletedTotal,
		m.IndexFlushesTotal,
		m.MergesTotal,
		m.Segments,
		m.SearchQueriesTotal,
		m.SearchLatency,
		m.SearchResultsCount,
		m.ExplainsTotal,
	)

	return m
}

// ObserveSearch records one search with its similarity, latency and hits.
func (m *Metrics) ObserveSearch(similarity string, elapsed time.Duration, hits int, err error) {
	if m == nil {
		return
	}
	result := "hit"
	switch {
	case err != nil:
		result = "error"
	case hits == 0:
		result = "zero_result"
	}
	m.SearchQueriesTotal.WithLabelValues(similarity, result).Inc()
	m.SearchLatency.WithLabelValues(similarity).Observe(elapsed.Seconds())
	if err == nil {
		m.SearchResultsCount.Observe(float64(hits))
	}
}

// Handler returns the Prometheus scrape HTTP handler for these metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// StartServer serves /metrics on port until ctx is cancelled.
func (m *Metrics) StartServer(ctx context.Context, port int) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
