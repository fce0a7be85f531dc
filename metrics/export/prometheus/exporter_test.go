package prometheus

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ProjectSCARS/bentoauth"
)

type fakeSource struct {
	snapshot bentoauth.MetricsSnapshot
	dropped  uint64
}

func (f fakeSource) MetricsSnapshot() bentoauth.MetricsSnapshot { return f.snapshot }
func (f fakeSource) AuditDropped() uint64                       { return f.dropped }

func TestScrapeIncludesCounterAndHistogram(t *testing.T) {
	exp := NewExporterFromSource(fakeSource{
		snapshot: bentoauth.MetricsSnapshot{
			Counters: map[bentoauth.MetricID]uint64{
				bentoauth.MetricLoginSuccess: 7,
			},
			Histograms: map[bentoauth.MetricID][]uint64{
				bentoauth.MetricValidateLatency: {1, 2, 3, 4, 5, 6, 7, 8},
			},
		},
		dropped: 2,
	})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	exp.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	out := rec.Body.String()
	if !strings.Contains(out, "bentoauth_login_success_total 7") {
		t.Fatalf("missing login success counter in scrape:\n%s", out)
	}
	if !strings.Contains(out, `bentoauth_validate_latency_seconds_bucket{le="0.005"} 1`) {
		t.Fatalf("missing first histogram bucket in scrape:\n%s", out)
	}
	if !strings.Contains(out, `bentoauth_validate_latency_seconds_bucket{le="+Inf"} 36`) {
		t.Fatalf("missing +Inf cumulative bucket in scrape:\n%s", out)
	}
	if !strings.Contains(out, "bentoauth_validate_latency_seconds_count 36") {
		t.Fatalf("missing histogram count in scrape:\n%s", out)
	}
	if !strings.Contains(out, "bentoauth_audit_dropped_total 2") {
		t.Fatalf("missing audit dropped counter in scrape:\n%s", out)
	}
}

func TestScrapeZeroSnapshotExportsZeroes(t *testing.T) {
	exp := NewExporterFromSource(fakeSource{
		snapshot: bentoauth.MetricsSnapshot{
			Counters:   map[bentoauth.MetricID]uint64{},
			Histograms: map[bentoauth.MetricID][]uint64{},
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	exp.Handler().ServeHTTP(rec, req)

	out := rec.Body.String()
	if !strings.Contains(out, "bentoauth_login_failure_total 0") {
		t.Fatalf("expected zero-valued counters in scrape:\n%s", out)
	}
}

func TestHandlerContentType(t *testing.T) {
	exp := NewExporterFromSource(fakeSource{
		snapshot: bentoauth.MetricsSnapshot{
			Counters:   map[bentoauth.MetricID]uint64{bentoauth.MetricLoginSuccess: 1},
			Histograms: map[bentoauth.MetricID][]uint64{},
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	exp.Handler().ServeHTTP(rec, req)

	if got := rec.Header().Get("Content-Type"); !strings.Contains(got, "text/plain") {
		t.Fatalf("content type = %q", got)
	}
}
