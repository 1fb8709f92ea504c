package metrics

import (
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// DefaultNamespace prefixes every exported metric name.
const DefaultNamespace = "subnotif"

// Prometheus is a Collector backed by client_golang. Collectors are created
// and registered on first use.
type Prometheus struct {
	reg       prometheus.Registerer
	namespace string
	once      sync.Once

	established *prometheus.CounterVec
	terminated  *prometheus.CounterVec
	modified    *prometheus.CounterVec
	active      prometheus.Gauge
	sent        *prometheus.CounterVec
	excluded    *prometheus.CounterVec
	drain       *prometheus.HistogramVec
}

var _ Collector = (*Prometheus)(nil)

// NewPrometheus creates a collector registering with reg
// (prometheus.DefaultRegisterer if nil) under namespace
// (DefaultNamespace if empty).
func NewPrometheus(reg prometheus.Registerer, namespace string) *Prometheus {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = DefaultNamespace
	}
	return &Prometheus{reg: reg, namespace: namespace}
}

func (p *Prometheus) ensureRegistered() {
	p.once.Do(func() {
		p.established = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "subscriptions",
			Name:      "established_total",
			Help:      "Subscriptions established, by discipline.",
		}, []string{"discipline"})
		p.terminated = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "subscriptions",
			Name:      "terminated_total",
			Help:      "Subscriptions terminated, by discipline and reason.",
		}, []string{"discipline", "reason"})
		p.modified = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "subscriptions",
			Name:      "modified_total",
			Help:      "Successful subscription modifications, by discipline.",
		}, []string{"discipline"})
		p.active = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: p.namespace,
			Subsystem: "subscriptions",
			Name:      "active",
			Help:      "Subscriptions currently registered.",
		})
		p.sent = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "notifications",
			Name:      "sent_total",
			Help:      "Notifications written to subscribers, by discipline and kind.",
		}, []string{"discipline", "kind"})
		p.excluded = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "notifications",
			Name:      "excluded_total",
			Help:      "Events dropped by filter or access control, by discipline and cause.",
		}, []string{"discipline", "cause"})
		p.drain = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Subsystem: "subscriptions",
			Name:      "drain_seconds",
			Help:      "Time terminate waited for in-flight deliveries.",
			Buckets:   []float64{0.0001, 0.001, 0.01, 0.1, 0.5, 1, 2, 5},
		}, []string{"timed_out"})

		p.reg.MustRegister(p.established)
		p.reg.MustRegister(p.terminated)
		p.reg.MustRegister(p.modified)
		p.reg.MustRegister(p.active)
		p.reg.MustRegister(p.sent)
		p.reg.MustRegister(p.excluded)
		p.reg.MustRegister(p.drain)
	})
}

// SubscriptionEstablished increments the established counter.
func (p *Prometheus) SubscriptionEstablished(discipline string) {
	p.ensureRegistered()
	p.established.WithLabelValues(discipline).Inc()
}

// SubscriptionTerminated increments the terminated counter.
func (p *Prometheus) SubscriptionTerminated(discipline, reason string) {
	p.ensureRegistered()
	p.terminated.WithLabelValues(discipline, reason).Inc()
}

// SubscriptionModified increments the modified counter.
func (p *Prometheus) SubscriptionModified(discipline string) {
	p.ensureRegistered()
	p.modified.WithLabelValues(discipline).Inc()
}

// SetActiveSubscriptions sets the active gauge.
func (p *Prometheus) SetActiveSubscriptions(n int) {
	p.ensureRegistered()
	p.active.Set(float64(n))
}

// NotificationSent increments the sent counter.
func (p *Prometheus) NotificationSent(discipline, kind string) {
	p.ensureRegistered()
	p.sent.WithLabelValues(discipline, kind).Inc()
}

// NotificationExcluded increments the excluded counter.
func (p *Prometheus) NotificationExcluded(discipline, cause string) {
	p.ensureRegistered()
	p.excluded.WithLabelValues(discipline, cause).Inc()
}

// ObserveDrain records a drain duration.
func (p *Prometheus) ObserveDrain(seconds float64, timedOut bool) {
	p.ensureRegistered()
	p.drain.WithLabelValues(strconv.FormatBool(timedOut)).Observe(seconds)
}
