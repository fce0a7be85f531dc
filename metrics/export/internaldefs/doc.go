// Package internaldefs holds the metric name and bucket definitions shared
// by the Prometheus and OTel exporters, so both expose identical series.
//
// It must not import the engine package's exporters or perform I/O.
package internaldefs
