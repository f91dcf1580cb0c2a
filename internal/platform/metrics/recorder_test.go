package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecorder_CountsAndServes(t *testing.T) {
	t.Parallel()

	r := New()
	r.JobEnqueued("map_alert_check", true)
	r.JobEnqueued("map_alert_check", true)
	r.JobProcessed("driver_notification_check", "sent", 2*time.Second)
	r.CacheLookup(true)
	r.CacheLookup(false)

	if got := testutil.ToFloat64(r.jobsEnqueued.WithLabelValues("map_alert_check", "ok")); got != 2 {
		t.Fatalf("jobs enqueued got=%v want=2", got)
	}
	if got := testutil.ToFloat64(r.cacheLookups.WithLabelValues("miss")); got != 1 {
		t.Fatalf("cache misses got=%v want=1", got)
	}

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "tm_alerts_jobs_processed_total") {
		t.Fatalf("metrics output missing jobs_processed_total:\n%s", body)
	}
}

func TestRecorder_NilIsNoop(t *testing.T) {
	t.Parallel()

	var r *Recorder
	r.JobEnqueued("x", false)
	r.EmailResult("sent")
	r.CircuitState("leaderboard", true)
	if r.Registry() != nil {
		t.Fatalf("nil recorder must not expose a registry")
	}
}
