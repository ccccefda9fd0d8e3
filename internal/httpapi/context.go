package httpapi

import (
	"context"
)

// serverBaseCtx is the process-level context the daemon cancels at shutdown.
// Generations stream for minutes; joining it into every request context is
// what lets a SIGTERM abort in-flight native calls instead of waiting them
// out. Defaults to Background when never set.
var serverBaseCtx = context.Background()

// SetBaseContext installs the process-level base context used by handlers.
func SetBaseContext(ctx context.Context) {
	if ctx == nil {
		serverBaseCtx = context.Background()
		return
	}
	serverBaseCtx = ctx
}

// joinContexts derives a context from the request context req that is
// additionally canceled when base is done. Deriving from req keeps its
// values (request id, route) visible downstream. The returned cancel must be
// called when the handler ends.
func joinContexts(base, req context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(req)
	stop := context.AfterFunc(base, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}
