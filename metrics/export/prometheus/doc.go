// Package prometheus exposes engine metrics through the Prometheus client
// library. The exporter is a prometheus.Collector over the engine's
// snapshot API, so scrapes read live counter values without the engine
// depending on the client library.
package prometheus
