// Package progress reports workflow execution status. The Reporter fans each
// update out synchronously to pluggable sinks (execution store, logs,
// Prometheus) with a per-sink timeout. Sink failures are logged and never
// reach the caller.
package progress
