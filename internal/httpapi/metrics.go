package httpapi

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// requestsTotal counts every request the monitoring surface serves, by
// route and response status, for the /metrics Prometheus exposition.
var requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "prime_httpapi_requests_total",
	Help: "Requests served by the operator monitoring HTTP surface, by route and status.",
}, []string{"route", "status"})

// statusRecorder wraps a ResponseWriter to capture the status code a
// handler actually wrote, since net/http doesn't expose it otherwise.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// instrument wraps h so every request against route increments
// requestsTotal, regardless of auth outcome.
func instrument(route string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		h(rec, r)
		requestsTotal.WithLabelValues(route, http.StatusText(rec.status)).Inc()
	}
}
