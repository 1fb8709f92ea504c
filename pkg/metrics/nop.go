package metrics

// Nop discards all metrics.
type Nop struct{}

var _ Collector = (*Nop)(nil)

// NewNop creates a no-op collector.
func NewNop() *Nop {
	return &Nop{}
}

// SubscriptionEstablished discards the metric.
func (*Nop) SubscriptionEstablished(string) {}

// SubscriptionTerminated discards the metric.
func (*Nop) SubscriptionTerminated(string, string) {}

// SubscriptionModified discards the metric.
func (*Nop) SubscriptionModified(string) {}

// SetActiveSubscriptions discards the metric.
func (*Nop) SetActiveSubscriptions(int) {}

// NotificationSent discards the metric.
func (*Nop) NotificationSent(string, string) {}

// NotificationExcluded discards the metric.
func (*Nop) NotificationExcluded(string, string) {}

// ObserveDrain discards the metric.
func (*Nop) ObserveDrain(float64, bool) {}
