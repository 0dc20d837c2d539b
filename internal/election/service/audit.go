package service

import (
	"context"

	"go.opentelemetry.io/otel/trace"

	"electa/pkg/attrs"
	"electa/pkg/requestcontext"
)

// requestAttrs appends the request id and the kind of caller.
func requestAttrs(ctx context.Context, kv []any) []any {
	if requestID := requestcontext.RequestID(ctx); requestID != "" {
		kv = append(kv, "request_id", requestID)
	}
	switch {
	case requestcontext.IsAdmin(ctx):
		kv = append(kv, "actor", "admin")
	case !requestcontext.MemberID(ctx).IsNil():
		kv = append(kv, "actor", "member")
	}
	return kv
}

// logAudit writes an audit line and mirrors it as an event on the active span.
func (s *Service) logAudit(ctx context.Context, event string, kv ...any) {
	kv = requestAttrs(ctx, kv)
	trace.SpanFromContext(ctx).AddEvent(event, trace.WithAttributes(attrs.ToOtel(kv)...))
	if s.logger == nil {
		return
	}
	args := append(kv, "event", event, "log_type", "audit")
	s.logger.InfoContext(ctx, event, args...)
}

// logRejection records an expected business-rule rejection at Warn.
func (s *Service) logRejection(ctx context.Context, event, reason string, kv ...any) {
	s.metrics.IncrementRejected(reason)
	kv = requestAttrs(ctx, append(kv, "reason", reason))
	trace.SpanFromContext(ctx).AddEvent(event, trace.WithAttributes(attrs.ToOtel(kv)...))
	if s.logger == nil {
		return
	}
	args := append(kv, "event", event)
	s.logger.WarnContext(ctx, event, args...)
}
