// Package metrics exposes Prometheus counters for quoting and orchestration.
package metrics

import (
	"context"
	"sync"
	"time"

	"github.com/aman-zulfiqar/pairswap/internal/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// QuotesTotal counts quotes by kind (exact_in, exact_out) and result
	// (ok, empty_pool, invalid, no_pair, error).
	QuotesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pairswap_quotes_total",
			Help: "Quotes computed by kind and result",
		},
		[]string{"kind", "result"},
	)

	// StepsTotal counts steps reaching a status.
	StepsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pairswap_steps_total",
			Help: "Orchestration steps by kind and status",
		},
		[]string{"kind", "status"},
	)

	// SessionsTotal counts sessions by plan and outcome (started,
	// succeeded, step_failed, idle).
	SessionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pairswap_sessions_total",
			Help: "Orchestration sessions by plan and outcome",
		},
		[]string{"plan", "outcome"},
	)

	ConfirmationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pairswap_confirmation_seconds",
			Help:    "Time from submission to final step status",
			Buckets: []float64{1, 2, 5, 10, 20, 30, 60, 120, 300},
		},
		[]string{"kind"},
	)

	// RPCRetries counts retried chain calls by JSON-RPC method.
	RPCRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pairswap_rpc_retries_total",
			Help: "Retried RPC calls by method",
		},
		[]string{"method"},
	)

	APIRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pairswap_api_requests_total",
			Help: "HTTP API requests by route and status code",
		},
		[]string{"route", "code"},
	)
)

// RecordQuote counts one quote attempt.
func RecordQuote(kind, result string) {
	QuotesTotal.WithLabelValues(kind, result).Inc()
}

// RecordRetry is an rpc.RetryConfig.OnRetry hook.
func RecordRetry(method string) {
	RPCRetries.WithLabelValues(method).Inc()
}

// Observer turns session events into metrics. It implements the
// orchestrator's event sink.
type Observer struct {
	mu        sync.Mutex
	submitted map[stepKey]time.Time
}

type stepKey struct {
	session string
	index   int
}

func NewObserver() *Observer {
	return &Observer{submitted: make(map[stepKey]time.Time)}
}

func (o *Observer) HandleEvent(_ context.Context, ev *models.SessionEvent) error {
	key := stepKey{ev.SessionID, ev.StepIndex}

	o.mu.Lock()
	defer o.mu.Unlock()

	switch ev.State {
	case "running":
		if ev.StepIndex == 0 && ev.StepStatus == "pending" {
			SessionsTotal.WithLabelValues(ev.PlanKind, "started").Inc()
		}
	case "succeeded", "step_failed", "idle":
		SessionsTotal.WithLabelValues(ev.PlanKind, ev.State).Inc()
	}

	switch ev.StepStatus {
	case "submitted":
		o.submitted[key] = ev.Timestamp
		StepsTotal.WithLabelValues(ev.StepKind, ev.StepStatus).Inc()
	case "confirmed", "failed":
		StepsTotal.WithLabelValues(ev.StepKind, ev.StepStatus).Inc()
		if at, ok := o.submitted[key]; ok {
			ConfirmationSeconds.WithLabelValues(ev.StepKind).Observe(ev.Timestamp.Sub(at).Seconds())
			delete(o.submitted, key)
		}
	}

	if ev.Terminal() || ev.State == "idle" {
		for k := range o.submitted {
			if k.session == ev.SessionID {
				delete(o.submitted, k)
			}
		}
	}
	return nil
}

// Pending returns how many submitted steps await a final status.
func (o *Observer) Pending() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.submitted)
}
