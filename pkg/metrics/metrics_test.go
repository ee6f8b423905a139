package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Sternrassler/storefront-client/pkg/loader"
	"github.com/Sternrassler/storefront-client/pkg/throttle"
	"github.com/prometheus/client_golang/prometheus"
)

func TestRegistry(t *testing.T) {
	if Registry == nil {
		t.Error("Registry should not be nil")
	}
	if Registry != prometheus.DefaultRegisterer {
		t.Error("Registry should be the default Prometheus registerer")
	}
}

func TestHandler_ServesStorefrontMetrics(t *testing.T) {
	// Touch the throttle and loader packages so their vectors have samples.
	throttle.New(throttle.DefaultInterval, func() {}, throttle.WithScheduler(func(time.Duration, func()) {})).Call()
	_ = loader.DefaultPageSize

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	for _, name := range []string{"storefront_throttle_calls_total", "storefront_loader_items_appended_total"} {
		if !strings.Contains(string(body), name) {
			t.Errorf("Expected %s in output", name)
		}
	}
}

func TestNames_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for _, name := range Names {
		if seen[name] {
			t.Errorf("duplicate metric name %s", name)
		}
		if !strings.HasPrefix(name, "storefront_") {
			t.Errorf("metric %s lacks the storefront_ prefix", name)
		}
		seen[name] = true
	}
}
