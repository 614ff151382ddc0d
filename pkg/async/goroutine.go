package async

import (
	"context"
	"fmt"
	"log"
	"runtime/debug"
	"sync"
	"time"
)

// SafeGo executes fn in a goroutine with a timeout-bound context and panic
// recovery. Errors are logged and otherwise dropped, which suits
// fire-and-forget work such as analytics dispatch.
//
//	SafeGo(ctx, 5*time.Second, "track page_view", func(ctx context.Context) error {
//	    return sender.Send(ctx, payload)
//	})
func SafeGo(parentCtx context.Context, timeout time.Duration, taskName string, fn func(context.Context) error) {
	go func() {
		ctx, cancel := context.WithTimeout(parentCtx, timeout)
		defer cancel()

		defer func() {
			if r := recover(); r != nil {
				log.Printf("[SafeGo] PANIC in %s: %v\nStack trace:\n%s",
					taskName, r, string(debug.Stack()))
			}
		}()

		if err := fn(ctx); err != nil {
			log.Printf("[SafeGo] Error in %s: %v", taskName, err)
		}
	}()
}

// InFlight tracks goroutines started through Go so a caller can drain them,
// e.g. before process exit or at the end of a test.
type InFlight struct {
	wg sync.WaitGroup
}

// Go starts fn with SafeGo semantics and tracks it until it returns or panics
func (f *InFlight) Go(parentCtx context.Context, timeout time.Duration, taskName string, fn func(context.Context) error) {
	f.wg.Add(1)
	SafeGo(parentCtx, timeout, taskName, func(ctx context.Context) error {
		defer f.wg.Done()
		return fn(ctx)
	})
}

// Wait blocks until every tracked goroutine finished or ctx is done
func (f *InFlight) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		f.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for in-flight tasks: %w", ctx.Err())
	}
}
