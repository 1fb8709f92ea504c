package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestNop(t *testing.T) {
	c := OrNop(nil)
	require.IsType(t, &Nop{}, c)

	require.NotPanics(t, func() {
		c.SubscriptionEstablished("stream")
		c.SubscriptionTerminated("push", "kill")
		c.SubscriptionModified("stream")
		c.SetActiveSubscriptions(-1)
		c.NotificationSent("stream", "event")
		c.NotificationExcluded("stream", CauseAccess)
		c.ObserveDrain(0.5, true)
	})
}

func TestPrometheusLazyRegistration(t *testing.T) {
	reg := prometheus.NewPedanticRegistry()
	p := NewPrometheus(reg, "")

	families, err := reg.Gather()
	require.NoError(t, err)
	require.Empty(t, families)

	p.SetActiveSubscriptions(3)
	families, err = reg.Gather()
	require.NoError(t, err)
	require.NotEmpty(t, families)
	require.Equal(t, float64(3), testutil.ToFloat64(p.active))
}

func TestPrometheusCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := NewPrometheus(reg, "test")

	p.SubscriptionEstablished("stream")
	p.SubscriptionEstablished("stream")
	p.SubscriptionTerminated("stream", "stop-time")
	p.NotificationSent("push", "push-update")
	p.NotificationExcluded("stream", CauseFilter)
	p.NotificationExcluded("stream", CauseFilter)
	p.NotificationExcluded("stream", CauseAccess)
	p.ObserveDrain(0.001, false)

	require.Equal(t, float64(2), testutil.ToFloat64(p.established.WithLabelValues("stream")))
	require.Equal(t, float64(1), testutil.ToFloat64(p.terminated.WithLabelValues("stream", "stop-time")))
	require.Equal(t, float64(1), testutil.ToFloat64(p.sent.WithLabelValues("push", "push-update")))
	require.Equal(t, float64(2), testutil.ToFloat64(p.excluded.WithLabelValues("stream", CauseFilter)))
	require.Equal(t, float64(1), testutil.ToFloat64(p.excluded.WithLabelValues("stream", CauseAccess)))
	require.Equal(t, 1, testutil.CollectAndCount(p.drain))
}
