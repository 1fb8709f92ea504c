// Package metrics defines the counters the subscription core reports and
// two collectors for them: Nop, which discards everything, and Prometheus,
// which exports them through client_golang.
package metrics
