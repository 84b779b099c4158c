/*
Package observability turns engine lifecycle hooks into metrics, logs and traces.

  - NewMetrics registers Prometheus collectors and returns hooks that feed them.
  - LoggingHooks writes one structured log line per lifecycle event.
  - InitTracing installs a global OpenTelemetry tracer provider, which the
    machine uses for its Machine.RunTurn spans.
*/
package observability
