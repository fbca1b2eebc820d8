package stepauth

import "context"

type ctxKey string

const (
	ctxKeyIdentity  ctxKey = "stepauth_identity"
	ctxKeyDecision  ctxKey = "stepauth_decision"
	ctxKeyRequestID ctxKey = "stepauth_request_id"
)

// WithIdentity stores the authenticated identity in the context.
func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, ctxKeyIdentity, identity)
}

// IdentityFromContext extracts the authenticated identity from the context.
func IdentityFromContext(ctx context.Context) *Identity {
	v, _ := ctx.Value(ctxKeyIdentity).(*Identity)
	return v
}

// WithAccessDecision stores the allow-list decision in the context.
func WithAccessDecision(ctx context.Context, d AccessDecision) context.Context {
	return context.WithValue(ctx, ctxKeyDecision, d)
}

// AccessDecisionFromContext extracts the allow-list decision from the
// context, defaulting to DecisionUnknown.
func AccessDecisionFromContext(ctx context.Context) AccessDecision {
	v, _ := ctx.Value(ctxKeyDecision).(AccessDecision)
	return v
}

// WithRequestID stores a correlation ID in the context.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKeyRequestID, id)
}

// RequestIDFromContext extracts the correlation ID from the context.
func RequestIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(ctxKeyRequestID).(string)
	return v
}
