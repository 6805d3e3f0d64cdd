package observability

import "github.com/prometheus/client_golang/prometheus"

var (
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldx_http_requests_total",
			Help: "Total HTTP requests handled, by method, path and status.",
		},
		[]string{"method", "path", "status"},
	)
	httpErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldx_http_errors_total",
			Help: "Total HTTP requests ending in a domain error, by code.",
		},
		[]string{"code"},
	)
	ticketOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldx_ticket_operations_total",
			Help: "Ticket mutations performed, by operation and outcome.",
		},
		[]string{"operation", "outcome"},
	)
)

func init() {
	prometheus.MustRegister(httpRequests, httpErrors, ticketOps)
}

// RecordRequest increments the request counter.
func RecordRequest(method, path, status string) {
	httpRequests.WithLabelValues(method, path, status).Inc()
}

// RecordError increments the domain error counter.
func RecordError(code string) {
	httpErrors.WithLabelValues(code).Inc()
}

// RecordTicketOp increments the ticket operation counter.
func RecordTicketOp(operation string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	ticketOps.WithLabelValues(operation, outcome).Inc()
}
