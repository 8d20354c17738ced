package core

import "context"

type contextKey string

const ctxKeyRequester contextKey = "requester"

// Requester identifies who started a run. It is attached by the transport
// layer and logged with the run.
type Requester struct {
	IP        string
	UserAgent string
	Source    string // "http" or "cli"
}

// ContextWithRequester attaches r to ctx.
func ContextWithRequester(ctx context.Context, r Requester) context.Context {
	return context.WithValue(ctx, ctxKeyRequester, r)
}

// RequesterFromContext returns the requester attached to ctx, if any.
func RequesterFromContext(ctx context.Context) (Requester, bool) {
	r, ok := ctx.Value(ctxKeyRequester).(Requester)
	return r, ok
}
