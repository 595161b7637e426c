package logging

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type sessionCtxKey struct{}
type requestCtxKey struct{}
type projectCtxKey struct{}
type featureCtxKey struct{}

const maxIDLen = 128

// ContextFields extracts correlation fields from ctx.
func ContextFields(ctx context.Context) []zap.Field {
	fields := make([]zap.Field, 0, 6)

	if sc := trace.SpanFromContext(ctx).SpanContext(); sc.IsValid() {
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
	}
	if v := stringValue(ctx, sessionCtxKey{}); v != "" {
		fields = append(fields, zap.String("session.id", v))
	}
	if v := stringValue(ctx, requestCtxKey{}); v != "" {
		fields = append(fields, zap.String("request.id", v))
	}
	if v := stringValue(ctx, projectCtxKey{}); v != "" {
		fields = append(fields, zap.String("project.dir", v))
	}
	if v := stringValue(ctx, featureCtxKey{}); v != "" {
		fields = append(fields, zap.String("feature.id", v))
	}
	return fields
}

func stringValue(ctx context.Context, key any) string {
	s, _ := ctx.Value(key).(string)
	return s
}

// withString stores v under key, clipping overlong values. Empty values
// leave ctx unchanged.
func withString(ctx context.Context, key any, v string) context.Context {
	if v == "" {
		return ctx
	}
	if len(v) > maxIDLen {
		v = v[:maxIDLen]
	}
	return context.WithValue(ctx, key, v)
}

// WithSessionID adds the agent session ID.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return withString(ctx, sessionCtxKey{}, sessionID)
}

// SessionIDFromContext returns the session ID, or "".
func SessionIDFromContext(ctx context.Context) string {
	return stringValue(ctx, sessionCtxKey{})
}

// WithRequestID adds an HTTP request ID.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return withString(ctx, requestCtxKey{}, requestID)
}

// RequestIDFromContext returns the request ID, or "".
func RequestIDFromContext(ctx context.Context) string {
	return stringValue(ctx, requestCtxKey{})
}

// WithProjectDir adds the project directory.
func WithProjectDir(ctx context.Context, dir string) context.Context {
	return context.WithValue(ctx, projectCtxKey{}, dir)
}

// WithFeatureID adds the feature an operation concerns.
func WithFeatureID(ctx context.Context, featureID string) context.Context {
	return withString(ctx, featureCtxKey{}, featureID)
}
