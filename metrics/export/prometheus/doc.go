// Package prometheus exposes stateauth engine metrics through
// prometheus/client_golang.
//
// [Collector] implements prometheus.Collector over
// [stateauth.Engine.MetricsSnapshot]. Register it with any registry, or mount
// [Handler] to serve it alone. Counter names are stateauth_*_total; the
// single histogram is stateauth_validate_latency_seconds.
//
// # What this package must NOT do
//
//   - Register with the global Prometheus registry.
//   - Mutate engine state.
package prometheus
