package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	SubmissionsCreated    prometheus.Counter
	SubmissionsRejected   prometheus.Counter
	ReviewDecisions       *prometheus.CounterVec
	AttachmentBytesStored prometheus.Counter
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		SubmissionsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "veriform_submissions_created_total",
			Help: "Total number of submissions accepted into the registry",
		}),
		SubmissionsRejected: promauto.NewCounter(prometheus.CounterOpts{
			Name: "veriform_submissions_rejected_total",
			Help: "Total number of submissions rejected at validation or uniqueness checks",
		}),
		ReviewDecisions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "veriform_review_decisions_total",
			Help: "Total number of review status updates, labelled by resulting status",
		}, []string{"status"}),
		AttachmentBytesStored: promauto.NewCounter(prometheus.CounterOpts{
			Name: "veriform_attachment_bytes_stored_total",
			Help: "Total attachment bytes written to the store",
		}),
	}
}
