// Package telemetry carries the observability plumbing shared by bindings
// and tools: Prometheus metrics, OpenTelemetry flush spans, a fan-out
// slog logger and debug hooks.
//
// Every type here is safe to use as a nil pointer, which disables it.
package telemetry
