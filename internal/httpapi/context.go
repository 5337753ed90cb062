package httpapi

import (
	"context"
	"net/http"
)

// serverBaseCtx is canceled on shutdown so in-flight jobs stop with it.
var serverBaseCtx = context.Background()

// SetBaseContext sets the process-level base context used by job handlers.
func SetBaseContext(ctx context.Context) {
	if ctx == nil {
		serverBaseCtx = context.Background()
		return
	}
	serverBaseCtx = ctx
}

// joinContexts returns a context derived from a that is also canceled when
// b is done. The cancel func releases the link to b.
func joinContexts(a, b context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(a)
	stop := context.AfterFunc(b, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

// jobContext is the context a job runs under: the request context joined
// with the server base context, bounded by the job timeout when set.
func jobContext(r *http.Request) (context.Context, context.CancelFunc) {
	ctx, cancel := joinContexts(r.Context(), serverBaseCtx)
	if jobTimeout <= 0 {
		return ctx, cancel
	}
	tctx, tcancel := context.WithTimeout(ctx, jobTimeout)
	return tctx, func() {
		tcancel()
		cancel()
	}
}

// clientGone reports whether the job was stopped by the caller going away
// or the server shutting down, in which case nobody is left to answer.
func clientGone(r *http.Request) bool {
	return r.Context().Err() != nil || serverBaseCtx.Err() != nil
}
