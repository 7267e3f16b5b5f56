// Package shutdown coordinates process termination.
//
// A Handler waits for SIGINT or SIGTERM (or the end of its context), then
// runs the registered hooks in reverse order under a timeout. SIGHUP runs
// the reload hooks without ending the wait.
//
// Usage:
//
//	h := shutdown.NewHandler(10 * time.Second)
//	h.OnShutdown(func(ctx context.Context) error { return engine.Close() })
//	err := h.Wait(ctx)
package shutdown
