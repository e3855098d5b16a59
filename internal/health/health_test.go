package health

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nadzzz/dunning/internal/message"
)

func get(t *testing.T, h http.Handler, path string) (int, string) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	body, _ := io.ReadAll(rec.Body)
	return rec.Code, string(body)
}

func TestProbes(t *testing.T) {
	state := message.HealthUnhealthy
	s := New(0, WithStatus(func(context.Context) *message.HealthStatus {
		return &message.HealthStatus{Status: state, Models: map[message.Language]bool{message.LanguageRU: state != message.HealthUnhealthy}}
	}))
	h := s.Handler()

	if code, _ := get(t, h, "/healthz"); code != http.StatusOK {
		t.Errorf("healthz = %d, want 200", code)
	}
	if code, body := get(t, h, "/readyz"); code != http.StatusServiceUnavailable || !strings.Contains(body, "not_ready") {
		t.Errorf("readyz before SetReady = %d %s", code, body)
	}

	s.SetReady(true)
	if code, body := get(t, h, "/readyz"); code != http.StatusServiceUnavailable || !strings.Contains(body, `"unhealthy"`) {
		t.Errorf("readyz without models = %d %s", code, body)
	}

	state = message.HealthDegraded
	if code, body := get(t, h, "/readyz"); code != http.StatusOK || !strings.Contains(body, `"ru":true`) {
		t.Errorf("readyz degraded = %d %s", code, body)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "dunning_test_total", Help: "test"})
	reg.MustRegister(c)
	c.Inc()

	code, body := get(t, New(0, WithGatherer(reg)).Handler(), "/metrics")
	if code != http.StatusOK || !strings.Contains(body, "dunning_test_total 1") {
		t.Errorf("metrics = %d\n%s", code, body)
	}

	if code, _ := get(t, New(0).Handler(), "/metrics"); code != http.StatusNotFound {
		t.Errorf("metrics without gatherer = %d, want 404", code)
	}
}
