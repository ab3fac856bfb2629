// internal/browser/context.go
package browser

import "context"

// CombineContext returns a context that carries ctx1's values and deadline and
// is additionally canceled when ctx2 is done. Browser actions need the values
// of the session context but must also honor the caller's cancellation.
func CombineContext(ctx1, ctx2 context.Context) (context.Context, context.CancelFunc) {
	combinedCtx, cancel := context.WithCancel(ctx1)

	go func() {
		select {
		case <-ctx2.Done():
			cancel()
		case <-combinedCtx.Done():
		}
	}()

	return combinedCtx, cancel
}
