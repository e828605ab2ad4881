// Package ctxutil carries per-request identifiers through a context.
package ctxutil

import "context"

type requestIDsKey struct{}

// RequestIDs are the identifiers a request is logged and answered with.
type RequestIDs struct {
	TraceID   string
	RequestID string
}

// LogFields returns the non-empty IDs as logger key/value pairs.
func (ids RequestIDs) LogFields() []interface{} {
	var kv []interface{}
	if ids.TraceID != "" {
		kv = append(kv, "trace_id", ids.TraceID)
	}
	if ids.RequestID != "" {
		kv = append(kv, "request_id", ids.RequestID)
	}
	return kv
}

func WithRequestIDs(ctx context.Context, ids RequestIDs) context.Context {
	return context.WithValue(ctx, requestIDsKey{}, ids)
}

// RequestIDsFrom returns the IDs attached to ctx; the zero value outside a
// request.
func RequestIDsFrom(ctx context.Context) RequestIDs {
	ids, _ := ctx.Value(requestIDsKey{}).(RequestIDs)
	return ids
}
