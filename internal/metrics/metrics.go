package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry bundles every engine metric behind one Prometheus registry.
type Registry struct {
	reg *prometheus.Registry

	ObservationsRecorded prometheus.Counter
	PollErrors           prometheus.Counter
	AlertsRaised         *prometheus.CounterVec // by severity
	Adjustments          *prometheus.CounterVec // by status
	CooldownRejections   prometheus.Counter
	AdjustmentsExpired   prometheus.Counter
	PollDurationSec      prometheus.Histogram
	VariantsTracked      prometheus.Gauge
}

// NewRegistry creates and registers all engine metrics.
func NewRegistry() *Registry {
	r := prometheus.NewRegistry()

	observations := prometheus.NewCounter(prometheus.CounterOpts{Name: "pricewatch_observations_recorded_total"})
	pollErrors := prometheus.NewCounter(prometheus.CounterOpts{Name: "pricewatch_poll_errors_total"})
	alerts := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "pricewatch_alerts_raised_total"}, []string{"severity"})
	adjustments := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "pricewatch_adjustments_total"}, []string{"status"})
	cooldowns := prometheus.NewCounter(prometheus.CounterOpts{Name: "pricewatch_cooldown_rejections_total"})
	expired := prometheus.NewCounter(prometheus.CounterOpts{Name: "pricewatch_adjustments_expired_total"})
	pollDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "pricewatch_poll_duration_seconds",
		Buckets: prometheus.DefBuckets,
	})
	variants := prometheus.NewGauge(prometheus.GaugeOpts{Name: "pricewatch_variants_tracked"})

	r.MustRegister(observations, pollErrors, alerts, adjustments, cooldowns, expired, pollDuration, variants)
	return &Registry{
		reg:                  r,
		ObservationsRecorded: observations,
		PollErrors:           pollErrors,
		AlertsRaised:         alerts,
		Adjustments:          adjustments,
		CooldownRejections:   cooldowns,
		AdjustmentsExpired:   expired,
		PollDurationSec:      pollDuration,
		VariantsTracked:      variants,
	}
}

// Handler serves the registry in Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}
