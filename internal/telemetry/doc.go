// Package telemetry sets up OpenTelemetry tracing and metrics for the
// agentkanban daemon and CLI.
//
// Telemetry is off by default. When enabled it exports over OTLP (gRPC
// or HTTP/protobuf) and installs the providers globally, so packages that
// call otel.Tracer and otel.Meter pick them up. Exporter failures degrade
// the instance instead of failing startup.
package telemetry
