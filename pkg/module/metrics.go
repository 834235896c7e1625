package module

import (
	"github.com/prometheus/client_golang/prometheus"
)

// EventRecorder receives audit events, *log.Recorder satisfies it
type EventRecorder interface {
	Record(key, owner string, payload interface{})
}

func record(r EventRecorder, key, owner string, payload interface{}) {
	if r != nil {
		r.Record(key, owner, payload)
	}
}

var (
	requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "oracle",
			Name:      "inference_requests_total",
			Help:      "Inference requests entering each status.",
		},
		[]string{"status"},
	)
	keysIssued = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "oracle",
		Name:      "api_keys_issued_total",
		Help:      "API keys created.",
	})
	keysRevoked = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "oracle",
		Name:      "api_keys_revoked_total",
		Help:      "API keys revoked.",
	})
	quotaRejections = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "oracle",
		Name:      "api_key_quota_rejections_total",
		Help:      "createKey calls rejected by the per owner quota.",
	})
	casConflicts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "oracle",
			Name:      "cas_conflicts_total",
			Help:      "Compare-and-set writes that lost a race and were retried.",
		},
		[]string{"table"},
	)
	reputationErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "oracle",
		Name:      "reputation_update_errors_total",
		Help:      "Terminal transitions whose provider counters could not be updated.",
	})
)

// Collectors everything the module exports, registered by the server
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{requestsTotal, keysIssued, keysRevoked, quotaRejections,
		casConflicts, reputationErrors}
}
