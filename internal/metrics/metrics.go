package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	EventsSeen       prometheus.Counter
	Relayed          prometheus.Counter
	FilterRejected   prometheus.Counter
	ScheduleRejected prometheus.Counter
	DeliveryFailures prometheus.Counter
	FallbackUses     prometheus.Counter
	AuditLogFailures prometheus.Counter
	LiveWorkers      prometheus.Gauge
}

// New creates the relay metrics registered against reg. Tests pass a fresh
// registry so repeated construction does not collide.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		EventsSeen: factory.NewCounter(prometheus.CounterOpts{
			Name: "telegram_relay_events_seen_total",
			Help: "Total number of incoming chat events observed",
		}),
		Relayed: factory.NewCounter(prometheus.CounterOpts{
			Name: "telegram_relay_forward_successes_total",
			Help: "Total number of successfully forwarded messages",
		}),
		FilterRejected: factory.NewCounter(prometheus.CounterOpts{
			Name: "telegram_relay_filter_rejected_total",
			Help: "Messages rejected by mapping filters",
		}),
		ScheduleRejected: factory.NewCounter(prometheus.CounterOpts{
			Name: "telegram_relay_schedule_rejected_total",
			Help: "Messages skipped because the mapping schedule was closed",
		}),
		DeliveryFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "telegram_relay_forward_failures_total",
			Help: "Deliveries that exhausted every fallback",
		}),
		FallbackUses: factory.NewCounter(prometheus.CounterOpts{
			Name: "telegram_relay_fallback_uses_total",
			Help: "Deliveries that needed an alternate destination id or degraded media",
		}),
		AuditLogFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "telegram_relay_audit_log_failures_total",
			Help: "Best-effort audit log writes that failed",
		}),
		LiveWorkers: factory.NewGauge(prometheus.GaugeOpts{
			Name: "telegram_relay_live_workers",
			Help: "Number of live worker processes tracked by the supervisor",
		}),
	}
}
