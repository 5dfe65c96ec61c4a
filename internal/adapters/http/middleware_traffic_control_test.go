package httpadapter

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/kirillkom/care-assistant/internal/config"
	"github.com/kirillkom/care-assistant/internal/observability/metrics"
)

func TestRateLimitMiddlewareReturns429(t *testing.T) {
	handler := newTestRouter(t, config.Config{
		APIRateLimitRPS:   1,
		APIRateLimitBurst: 1,
	}, Services{}, nil)

	req1 := httptest.NewRequest(http.MethodGet, "/v1/command-centre", nil)
	res1 := httptest.NewRecorder()
	handler.ServeHTTP(res1, req1)
	if res1.Code != http.StatusOK {
		t.Fatalf("first request expected 200, got %d", res1.Code)
	}

	req2 := httptest.NewRequest(http.MethodGet, "/v1/command-centre", nil)
	res2 := httptest.NewRecorder()
	handler.ServeHTTP(res2, req2)
	if res2.Code != http.StatusTooManyRequests {
		t.Fatalf("second request expected 429, got %d", res2.Code)
	}
	if res2.Header().Get("Retry-After") == "" {
		t.Fatalf("expected Retry-After header for 429 response")
	}

	health := httptest.NewRecorder()
	handler.ServeHTTP(health, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if health.Code != http.StatusOK {
		t.Fatalf("healthz should bypass rate limiting, got %d", health.Code)
	}
}

func TestBackpressureMiddlewareReturns503WhenSaturated(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan int, 1)

	var mu sync.Mutex
	var rejected []string
	base := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started <- struct{}{}
		<-release
		w.WriteHeader(http.StatusNoContent)
	})
	handler := backpressureMiddleware(base, 1, 20*time.Millisecond, func(reason string) {
		mu.Lock()
		rejected = append(rejected, reason)
		mu.Unlock()
	})

	go func() {
		req := httptest.NewRequest(http.MethodGet, "/v1/command-centre", nil)
		res := httptest.NewRecorder()
		handler.ServeHTTP(res, req)
		done <- res.Code
	}()

	<-started

	req2 := httptest.NewRequest(http.MethodGet, "/v1/command-centre", nil)
	res2 := httptest.NewRecorder()
	handler.ServeHTTP(res2, req2)
	if res2.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 for saturated backpressure gate, got %d", res2.Code)
	}

	var resp map[string]any
	if err := json.NewDecoder(bytes.NewReader(res2.Body.Bytes())).Decode(&resp); err != nil {
		t.Fatalf("decode overload response: %v", err)
	}
	if resp["error"] == "" {
		t.Fatalf("expected overload error message in response")
	}

	close(release)

	select {
	case code := <-done:
		if code != http.StatusNoContent {
			t.Fatalf("first request expected 204, got %d", code)
		}
	case <-time.After(1 * time.Second):
		t.Fatalf("timed out waiting for first request completion")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(rejected) != 1 || rejected[0] != "overloaded" {
		t.Fatalf("expected one overloaded rejection, got %v", rejected)
	}
}

func TestRejectionsAreCounted(t *testing.T) {
	httpMetrics := metrics.NewHTTPServerMetrics("care-api-test")
	handler := newTestRouter(t, config.Config{APIRateLimitRPS: 1, APIRateLimitBurst: 1}, Services{}, httpMetrics)

	for i := 0; i < 3; i++ {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/command-centre", nil))
	}

	gatherer, ok := httpMetrics.Registerer().(prometheus.Gatherer)
	if !ok {
		t.Fatalf("expected registry to implement prometheus.Gatherer")
	}
	series, err := testutil.GatherAndCount(gatherer, "care_http_rejected_requests_total")
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if series != 1 {
		t.Fatalf("expected one rejected series, got %d", series)
	}
}

func TestPanicsAreContainedByAccessLog(t *testing.T) {
	handler := accessLogMiddleware(quietLogger(), http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/v1/command-centre", nil))
	if res.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 after panic, got %d", res.Code)
	}
}
