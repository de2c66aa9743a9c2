package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestCounter(t *testing.T) {
	c := NewCounter("test_counter_total", "a test counter")
	c.Inc()
	c.Add(4)

	if c.Value() != 5 {
		t.Errorf("Value() = %d, want 5", c.Value())
	}

	out := c.prometheus()
	if !strings.Contains(out, "# TYPE test_counter_total counter") {
		t.Errorf("missing TYPE line: %s", out)
	}
	if !strings.Contains(out, "test_counter_total 5") {
		t.Errorf("missing value line: %s", out)
	}
}

func TestGauge(t *testing.T) {
	g := NewGauge("test_gauge", "a test gauge")
	g.Set(10)
	g.Inc()
	g.Dec()
	g.Dec()

	if g.Value() != 9 {
		t.Errorf("Value() = %d, want 9", g.Value())
	}
}

func TestHistogram(t *testing.T) {
	h := NewHistogram("test_seconds", "a test histogram", []float64{0.1, 1, 5})
	h.Observe(0.05)
	h.Observe(0.5)
	h.ObserveDuration(2 * time.Second)

	out := h.prometheus()
	for _, want := range []string{
		`test_seconds_bucket{le="0.1"} 1`,
		`test_seconds_bucket{le="1"} 2`,
		`test_seconds_bucket{le="5"} 3`,
		`test_seconds_bucket{le="+Inf"} 3`,
		"test_seconds_count 3",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in:\n%s", want, out)
		}
	}
}

func TestExposeAndHandler(t *testing.T) {
	c := NewCounter("test_expose_total", "exposed counter")
	c.Inc()

	if !strings.Contains(Expose(), "test_expose_total 1") {
		t.Error("Expose() should include registered metrics")
	}

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	if rec.Code != 200 {
		t.Errorf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("content type = %q", ct)
	}
	if !strings.Contains(rec.Body.String(), "test_expose_total") {
		t.Error("handler body should include metrics")
	}
}

func TestDefaultMetricsRegistered(t *testing.T) {
	out := Expose()
	for _, name := range []string{
		"tunnelkit_starts_total",
		"tunnelkit_state",
		"tunnelkit_resolution_failures_total",
		"tunnelkit_path_events_total",
		"tunnelkit_settings_install_seconds",
	} {
		if !strings.Contains(out, name) {
			t.Errorf("default metric %q not registered", name)
		}
	}
}
