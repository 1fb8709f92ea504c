package metrics

// Exclusion causes reported to NotificationExcluded.
const (
	CauseFilter = "filter"
	CauseAccess = "access"
)

// Collector receives subscription metrics. Implementations must be safe for
// concurrent use; the delivery methods are called on delivery paths.
type Collector interface {
	// SubscriptionEstablished counts a successful establish.
	SubscriptionEstablished(discipline string)

	// SubscriptionTerminated counts a finished subscription by reason.
	SubscriptionTerminated(discipline, reason string)

	// SubscriptionModified counts a successful modify.
	SubscriptionModified(discipline string)

	// SetActiveSubscriptions reports the number of registered subscriptions.
	SetActiveSubscriptions(n int)

	// NotificationSent counts a notification written to a subscriber.
	NotificationSent(discipline, kind string)

	// NotificationExcluded counts an event dropped by filter or access check.
	NotificationExcluded(discipline, cause string)

	// ObserveDrain records how long terminate waited for in-flight
	// deliveries, and whether the wait timed out.
	ObserveDrain(seconds float64, timedOut bool)
}

// OrNop returns c, or a Nop collector when c is nil.
func OrNop(c Collector) Collector {
	if c == nil {
		return NewNop()
	}
	return c
}
