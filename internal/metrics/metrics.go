package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	PostingRuns = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "keibareview_posting_runs_total",
		Help: "Total review posting runs",
	})
	ReviewsPosted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "keibareview_reviews_posted_total",
		Help: "Review writes by outcome",
	}, []string{"outcome"})
	FallbackDrafts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "keibareview_fallback_drafts_total",
		Help: "Drafts that used the fallback text",
	})
	RunDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "keibareview_run_duration_seconds",
		Help:    "Posting run duration seconds",
		Buckets: prometheus.DefBuckets,
	})
	StoreRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "keibareview_store_requests_total",
		Help: "Hosted store HTTP requests by method and status class",
	}, []string{"method", "status"})
)

func init() {
	prometheus.MustRegister(PostingRuns, ReviewsPosted, FallbackDrafts, RunDuration, StoreRequests)
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveRun records a run duration.
func ObserveRun(start time.Time) {
	RunDuration.Observe(time.Since(start).Seconds())
}

// IncPosted counts a review write with outcome "succeeded" or "failed".
func IncPosted(outcome string) { ReviewsPosted.WithLabelValues(outcome).Inc() }

// IncStoreRequest counts a store call.
func IncStoreRequest(method, status string) { StoreRequests.WithLabelValues(method, status).Inc() }
