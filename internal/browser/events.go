// internal/browser/events.go
package browser

import (
	"context"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// pageEvents watches the tab for things that would stall or explain a
// failed login: blocking dialogs, failed document loads and page exceptions.
type pageEvents struct {
	logger *zap.Logger
	// acceptDialog answers an open JavaScript dialog. It is called on its own
	// goroutine because CDP actions cannot run inside an event callback.
	acceptDialog func()
}

func newPageEvents(ctx context.Context, logger *zap.Logger) *pageEvents {
	return &pageEvents{
		logger: logger,
		acceptDialog: func() {
			if err := chromedp.Run(ctx, page.HandleJavaScriptDialog(true)); err != nil {
				logger.Debug("Could not dismiss dialog.", zap.Error(err))
			}
		},
	}
}

// listen subscribes to the tab's events until ctx ends.
func (e *pageEvents) listen(ctx context.Context) {
	chromedp.ListenTarget(ctx, e.handle)
}

func (e *pageEvents) handle(ev interface{}) {
	switch ev := ev.(type) {
	case *page.EventJavascriptDialogOpening:
		e.logger.Info("Accepting page dialog.", zap.String("type", ev.Type.String()), zap.String("message", ev.Message))
		go e.acceptDialog()
	case *network.EventResponseReceived:
		if ev.Type != network.ResourceTypeDocument || ev.Response == nil {
			return
		}
		fields := []zap.Field{zap.String("url", ev.Response.URL), zap.Int64("status", ev.Response.Status)}
		if ev.Response.Status >= 400 {
			e.logger.Warn("Document load returned an error status.", fields...)
			return
		}
		e.logger.Debug("Document loaded.", fields...)
	case *runtime.EventExceptionThrown:
		if ev.ExceptionDetails == nil {
			return
		}
		e.logger.Debug("Page exception.", zap.String("text", ev.ExceptionDetails.Text), zap.String("url", ev.ExceptionDetails.URL))
	}
}
