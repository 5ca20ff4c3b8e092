// Package influxdb is the optional telemetry write-through sink.
//
// When enabled, every applied device update's numeric fields are written to
// InfluxDB as a batched, non-blocking point. The sink is write-only;
// historical aggregation and reporting are served elsewhere.
package influxdb
