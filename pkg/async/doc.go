// Package async provides panic-safe goroutine helpers for background work.
//
// SafeGo runs a task with a timeout and recovers panics; InFlight adds a
// drainable wait group on top of it:
//
//	var inflight async.InFlight
//	inflight.Go(ctx, 10*time.Second, "track", send)
//	_ = inflight.Wait(shutdownCtx)
//
// # Related Packages
//
//   - pkg/tracker: dispatches events through InFlight
package async
