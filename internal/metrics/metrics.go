// Package metrics exposes prometheus counters for the device ingestion and
// billing paths.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/fx"
)

type Metrics struct {
	CapturesAccepted prometheus.Counter
	CapturesDenied   *prometheus.CounterVec
	WebhookEvents    *prometheus.CounterVec
	SweepOutcomes    *prometheus.CounterVec
}

func New() *Metrics {
	return &Metrics{
		CapturesAccepted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "smartmailbox",
			Name:      "captures_accepted_total",
			Help:      "Device captures accepted after entitlement and usage checks.",
		}),
		CapturesDenied: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "smartmailbox",
			Name:      "captures_denied_total",
			Help:      "Device captures denied, by reason.",
		}, []string{"reason"}),
		WebhookEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "smartmailbox",
			Name:      "webhook_events_total",
			Help:      "Payment provider webhook events received, by type.",
		}, []string{"type"}),
		SweepOutcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "smartmailbox",
			Name:      "sweep_outcomes_total",
			Help:      "Scheduled sweep results, by job and outcome.",
		}, []string{"job", "outcome"}),
	}
}

// Module wires the metrics registry.
var Module = fx.Module("metrics",
	fx.Provide(New),
)
