package middleware

import (
	"context"

	"github.com/angelmondragon/storefront-backend/internal/authz"
)

type contextKey int

const (
	subjectKey contextKey = iota
	requestIDKey
)

// SubjectFromContext returns the authenticated caller. Requests that passed
// through OptionalAuth without a token yield the zero Subject.
func SubjectFromContext(ctx context.Context) authz.Subject {
	if ctx == nil {
		return authz.Subject{}
	}
	subject, _ := ctx.Value(subjectKey).(authz.Subject)
	return subject
}

// UserIDFromContext is the caller's id as a string, or "" for guests.
func UserIDFromContext(ctx context.Context) string {
	subject := SubjectFromContext(ctx)
	if subject.IsSystem() {
		return ""
	}
	return subject.UserID.String()
}

// WithSubject injects an identity into the context. Used by Auth and by tests.
func WithSubject(ctx context.Context, subject authz.Subject) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, subjectKey, subject)
}

// RequestIDFromContext returns the id assigned by RequestID.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}
