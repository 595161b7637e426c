// Package logging wraps zap for agentkanban's binaries.
//
// A Logger writes JSON or console lines to stdout or stderr and can tee
// into an OpenTelemetry log provider. Hook invocations log to stderr so
// stdout stays reserved for the hook acknowledgment.
//
// Correlation fields come from the context:
//
//	ctx = logging.WithSessionID(ctx, sessionID)
//	ctx = logging.WithProjectDir(ctx, projectDir)
//	logger.Info(ctx, "event recorded", zap.String("event.id", id))
//
// Field names listed in RedactionConfig are replaced with [REDACTED], and
// values matching a redaction pattern have the matching span replaced.
package logging
