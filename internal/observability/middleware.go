package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// OpsMux builds the coordinator's operational HTTP surface: a Prometheus
// scrape endpoint and a liveness probe. This is deliberately the only HTTP
// surface the coordinator exposes — the payment/saga/routing APIs are
// in-process ports (§6), not a REST API, per the Non-goals on outer
// transport surfaces. Grounded on the teacher's promhttp wiring in
// cmd/gateway/main.go.
func OpsMux(metrics *Metrics) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}
