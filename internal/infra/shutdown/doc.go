// Package shutdown runs cleanup hooks when the process stops.
//
// Usage:
//
//	h := shutdown.NewHandler(10 * time.Second)
//	h.OnShutdown(session.Close)
//	err := h.Wait(ctx) // SIGINT, SIGTERM or ctx cancellation
package shutdown
