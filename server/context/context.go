// Package context defines the typed keys used to carry request-scoped
// identifiers through context.Context so log entries can be trace-correlated.
package context

import "context"

type key int

const (
	// RequestIDKey carries the per-request trace ID assigned by the HTTP middleware.
	RequestIDKey key = iota
	// AgentIDKey carries the authenticated agent's ID.
	AgentIDKey
	// AgentNameKey carries the authenticated agent's registered name.
	AgentNameKey
)

// SetRequestID returns a new context with the given request ID attached.
func SetRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// RequestID returns the request ID attached to the context, if any.
func RequestID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(RequestIDKey).(string)
	return id, ok
}

// SetAgent returns a new context carrying the authenticated agent's identifiers.
func SetAgent(ctx context.Context, agentID, agentName string) context.Context {
	ctx = context.WithValue(ctx, AgentIDKey, agentID)
	return context.WithValue(ctx, AgentNameKey, agentName)
}

// AgentID returns the authenticated agent's ID attached to the context, if any.
func AgentID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(AgentIDKey).(string)
	return id, ok
}

// AgentName returns the authenticated agent's name attached to the context, if any.
func AgentName(ctx context.Context) (string, bool) {
	name, ok := ctx.Value(AgentNameKey).(string)
	return name, ok
}
