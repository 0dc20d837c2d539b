// Package requestcontext provides HTTP-independent context accessors for request-scoped values.
//
// Middleware sets these values; services read them without importing net/http.
//
//	memberID := requestcontext.MemberID(ctx)
//	requestID := requestcontext.RequestID(ctx)
package requestcontext

import (
	"context"

	id "electa/pkg/domain"
)

type (
	memberIDKey  struct{}
	requestIDKey struct{}
	adminKey     struct{}
)

var (
	ContextKeyMemberID  = memberIDKey{}
	ContextKeyRequestID = requestIDKey{}
	ContextKeyAdmin     = adminKey{}
)

// MemberID retrieves the authenticated member from the context.
// Returns the nil ID if not set.
func MemberID(ctx context.Context) id.MemberID {
	if memberID, ok := ctx.Value(ContextKeyMemberID).(id.MemberID); ok {
		return memberID
	}
	return id.MemberID{}
}

func WithMemberID(ctx context.Context, memberID id.MemberID) context.Context {
	return context.WithValue(ctx, ContextKeyMemberID, memberID)
}

// IsAdmin reports whether the request passed the admin token check.
func IsAdmin(ctx context.Context) bool {
	admin, _ := ctx.Value(ContextKeyAdmin).(bool)
	return admin
}

func WithAdmin(ctx context.Context) context.Context {
	return context.WithValue(ctx, ContextKeyAdmin, true)
}

func RequestID(ctx context.Context) string {
	if reqID, ok := ctx.Value(ContextKeyRequestID).(string); ok {
		return reqID
	}
	return ""
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}
