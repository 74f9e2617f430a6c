package metrics

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHealthz(t *testing.T) {
	ok := Check{Name: "postgres", Fn: func(context.Context) error { return nil }}
	down := Check{Name: "redis", Fn: func(context.Context) error { return errors.New("connection refused") }}

	rr := httptest.NewRecorder()
	Handler(ok).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != http.StatusOK || rr.Body.String() != "ok" {
		t.Fatalf("healthy: %d %q", rr.Code, rr.Body)
	}

	rr = httptest.NewRecorder()
	Handler(ok, down).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != http.StatusServiceUnavailable || !strings.HasPrefix(rr.Body.String(), "redis not healthy") {
		t.Fatalf("unhealthy: %d %q", rr.Code, rr.Body)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	rr := httptest.NewRecorder()
	Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "go_goroutines") {
		t.Fatalf("metrics: %d", rr.Code)
	}
}
