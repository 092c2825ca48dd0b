// Package observability provides an OpenTelemetry metrics extension for
// Bystander. MetricsExtension implements the request and job lifecycle
// hooks and records system-wide counters: requests started, advanced,
// accepted and exhausted, stray rejections, expired responses, and
// timeout jobs scheduled, completed, retried and failed.
//
// For per-execution tracing and metrics, see the middleware package:
// middleware.Tracing() and middleware.Metrics().
package observability
