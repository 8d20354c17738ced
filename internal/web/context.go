package web

import (
	"context"
	"net"
	"net/http"

	"github.com/JonMunkholm/dqgen/internal/core"
)

// WithRequestMetadata records who submitted a run so the run log names them.
func WithRequestMetadata(ctx context.Context, r *http.Request, source string) context.Context {
	return core.ContextWithRequester(ctx, core.Requester{
		IP:        clientIP(r),
		UserAgent: r.Header.Get("User-Agent"),
		Source:    source,
	})
}

// clientIP strips the port from RemoteAddr, which TrustedRealIP has already
// replaced with the forwarded address for trusted proxies.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
