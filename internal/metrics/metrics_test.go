package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestHTTPMetricsUsesRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(HTTPMetricsMiddleware)
	r.Get("/organizations/{orgID}/members", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "/organizations/{orgID}/members", "418"))
	for _, id := range []string{"a", "b"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/organizations/"+id+"/members", nil))
	}
	after := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "/organizations/{orgID}/members", "418"))
	if after-before != 2 {
		t.Fatalf("counted %v requests, want 2", after-before)
	}
}

func TestObserveOperation(t *testing.T) {
	before := testutil.ToFloat64(membershipOperations.WithLabelValues("invite", "ok"))
	ObserveOperation("invite", "ok")
	if got := testutil.ToFloat64(membershipOperations.WithLabelValues("invite", "ok")); got != before+1 {
		t.Fatalf("counter = %v", got)
	}
}
