package log

import "context"

type ctxKey struct{}

// NewContext returns a copy of ctx carrying fields on top of any already
// attached. The broker tags each connection's context this way so every
// logger derived through WithContext names the connection and tenant.
func NewContext(ctx context.Context, fields ...Field) context.Context {
	prev := ContextExtractor(ctx)
	merged := make(Fields, len(prev)+len(fields))
	for k, v := range prev {
		merged[k] = v
	}
	for _, f := range fields {
		merged[f.Key] = f.Value
	}
	return context.WithValue(ctx, ctxKey{}, merged)
}

// ContextExtractor returns the fields attached by NewContext, or nil.
func ContextExtractor(ctx context.Context) Fields {
	if ctx == nil {
		return nil
	}
	f, _ := ctx.Value(ctxKey{}).(Fields)
	return f
}
