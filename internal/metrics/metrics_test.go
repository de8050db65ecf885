package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestMetricsExposure(t *testing.T) {
	PostingRuns.Inc()
	IncPosted("succeeded")
	IncPosted("failed")
	FallbackDrafts.Inc()
	IncStoreRequest("GET", "2xx")
	ObserveRun(time.Now().Add(-1500 * time.Millisecond))

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics status: %d", rec.Code)
	}
	body := rec.Body.String()
	for _, m := range []string{
		"keibareview_posting_runs_total",
		`keibareview_reviews_posted_total{outcome="failed"}`,
		"keibareview_fallback_drafts_total",
		"keibareview_run_duration_seconds",
		`keibareview_store_requests_total{method="GET",status="2xx"}`,
	} {
		if !strings.Contains(body, m) {
			t.Fatalf("expected metric %s in body", m)
		}
	}
}
