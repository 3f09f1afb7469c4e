package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Service holds the client's prometheus collectors. A single instance is
// constructed at startup and passed to the protocol components.
type Service struct {
	PurchasesTotal     *prometheus.CounterVec
	InferenceTotal     *prometheus.CounterVec
	CandidateFailures  *prometheus.CounterVec
	ProbeDuration      prometheus.Histogram
	ResultPollAttempts prometheus.Histogram
}

// New registers the client collectors on the given registerer. Pass
// prometheus.DefaultRegisterer in production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Service {
	factory := promauto.With(reg)
	return &Service{
		PurchasesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "inference_client_credit_pack_purchases_total",
			Help: "Credit pack purchase outcomes.",
		}, []string{"outcome"}),
		InferenceTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "inference_client_inference_requests_total",
			Help: "Inference request outcomes.",
		}, []string{"outcome"}),
		CandidateFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "inference_client_candidate_failures_total",
			Help: "Per-candidate supernode failures by taxonomy.",
		}, []string{"reason"}),
		ProbeDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "inference_client_probe_duration_seconds",
			Help:    "Supernode liveness probe latency.",
			Buckets: prometheus.DefBuckets,
		}),
		ResultPollAttempts: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "inference_client_result_poll_attempts",
			Help:    "Poll attempts needed before an inference result was available.",
			Buckets: []float64{1, 2, 5, 10, 20, 40, 60},
		}),
	}
}
