// Package otel bridges engine metrics into an OpenTelemetry meter using
// observable instruments. A single registered callback snapshots the
// engine's counters on each collection cycle.
package otel
