// Package metrics exposes pipeline counters and gauges in Prometheus format.
//
// A Collector owns its own registry. It is fed through the observer hooks of
// the orchestrator, transform worker, sensor and replay controller, and as a
// health.Sink; Handler serves the registry on the daemon API.
package metrics
