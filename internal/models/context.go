package models

import "context"

type requestContextKey struct{}

// RequestMetadata carries caller details from the outer request layer so the
// audit log can record them without widening every operation's signature.
type RequestMetadata struct {
	IpAddress string
	UserAgent string
}

// WithRequestMetadata attaches request metadata to a context.
func WithRequestMetadata(ctx context.Context, rm *RequestMetadata) context.Context {
	return context.WithValue(ctx, requestContextKey{}, rm)
}

// GetRequestMetadata retrieves request metadata from context, or nil if absent.
func GetRequestMetadata(ctx context.Context) *RequestMetadata {
	rm, _ := ctx.Value(requestContextKey{}).(*RequestMetadata)
	return rm
}
