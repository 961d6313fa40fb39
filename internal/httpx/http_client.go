package httpx

import (
	"context"
	"net/http"
	"time"
)

const defaultExternalHTTPTimeout = 90 * time.Second

var externalHTTPClient = &http.Client{
	Timeout: defaultExternalHTTPTimeout,
}

// ExternalHTTPClient is shared by the embedding, Presidio and Anthropic
// clients. Per-call deadlines come from CallContext; the client timeout is
// only the outer bound.
func ExternalHTTPClient() *http.Client {
	return externalHTTPClient
}

// ConfigureExternalHTTPClient sets the outer bound. It is raised to the
// longest per-call timeout so the shared client never cuts a configured
// call short.
func ConfigureExternalHTTPClient(timeout time.Duration, callTimeouts ...time.Duration) time.Duration {
	if timeout <= 0 {
		timeout = defaultExternalHTTPTimeout
	}
	for _, d := range callTimeouts {
		if d > timeout {
			timeout = d
		}
	}
	externalHTTPClient.Timeout = timeout
	return timeout
}

// CallContext bounds one outbound call by d. A zero d leaves ctx as is.
func CallContext(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d)
}
