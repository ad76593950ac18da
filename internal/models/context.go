package models

import "context"

type requestContextKey struct{}

// RequestContext carries per-request metadata through context so lower
// layers can correlate log lines without widening their signatures.
type RequestContext struct {
	RequestId string
	Route     string
	ClientIP  string
}

// WithRequestContext attaches request metadata to a context.
func WithRequestContext(ctx context.Context, rc *RequestContext) context.Context {
	return context.WithValue(ctx, requestContextKey{}, rc)
}

// GetRequestContext retrieves request metadata from context, or nil if absent.
func GetRequestContext(ctx context.Context) *RequestContext {
	rc, _ := ctx.Value(requestContextKey{}).(*RequestContext)
	return rc
}

// RequestIdFromContext returns the request id or an empty string.
func RequestIdFromContext(ctx context.Context) string {
	if rc := GetRequestContext(ctx); rc != nil {
		return rc.RequestId
	}
	return ""
}
