package testutil

import (
	"net/http"
	"time"

	"blaze/pkg/requestcontext"
)

// WithRequestMetadata injects what the metadata middleware would capture, so
// handlers can be served directly without the router chain.
func WithRequestMetadata(req *http.Request, now time.Time, userAgent string) *http.Request {
	ctx := requestcontext.WithTime(req.Context(), now)
	ctx = requestcontext.WithUserAgent(ctx, userAgent)
	return req.WithContext(ctx)
}
