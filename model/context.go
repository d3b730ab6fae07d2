package model

import "context"

// RequestContext carries the per-request information the BFF forwards to
// the backend. It is immutable after construction and safe for concurrent
// reads.
type RequestContext struct {
	CorrelationID string
	TraceID       string
	Locale        string
}

type contextKey struct{}

// WithRequestContext attaches a RequestContext to the given context.
func WithRequestContext(ctx context.Context, rctx *RequestContext) context.Context {
	return context.WithValue(ctx, contextKey{}, rctx)
}

// RequestContextFrom extracts the RequestContext from the context, or returns nil
// if not present.
func RequestContextFrom(ctx context.Context) *RequestContext {
	rctx, _ := ctx.Value(contextKey{}).(*RequestContext)
	return rctx
}

// LocaleFrom returns the request locale, or fallback when the context has
// none.
func LocaleFrom(ctx context.Context, fallback string) string {
	if rctx := RequestContextFrom(ctx); rctx != nil && rctx.Locale != "" {
		return rctx.Locale
	}
	return fallback
}
