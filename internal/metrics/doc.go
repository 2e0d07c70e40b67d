// Package metrics collects balancer metrics off the request path.
//
// Request handling and the health checker emit MetricEvent values into a
// buffered channel with non-blocking sends. A single collector goroutine
// consumes them and updates:
//   - per-instance selection and failure counts
//   - response times with percentile calculations (P50, P95, P99)
//   - upstream status code distribution
//   - last probe result per instance
//   - requests rejected because no healthy instance existed
//
// The same events feed a private Prometheus registry.
//
// Example usage:
//
//	collector := metrics.NewCollector(1000, logger)
//	collector.Start(ctx)
//
//	collector.Emit(metrics.MetricEvent{
//		Type:       metrics.EventForwardCompleted,
//		Instance:   "127.0.0.1:5001",
//		Duration:   150 * time.Millisecond,
//		StatusCode: 200,
//	})
//
//	snapshot := collector.Snapshot("round-robin")
//
// On context cancellation the collector drains pending events before stopping.
package metrics
