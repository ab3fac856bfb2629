// internal/browser/page.go
package browser

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/chromedp/kb"
)

// KeyEnter is the key sequence for a single Enter press.
const KeyEnter = kb.Enter

// Page is the DOM adapter the login flow drives. Every method addresses
// elements through a LocatorSpec; index selects among multiple matches.
//
// SetValue carries the write-then-notify contract: the implementation must
// assign the value property and then dispatch bubbling "input" and "change"
// events on the element, since reactive front-ends ignore bare property writes.
type Page interface {
	Navigate(ctx context.Context, url string) error
	URL(ctx context.Context) (string, error)
	HTML(ctx context.Context) (string, error)

	// Count reports how many elements currently match, without waiting.
	Count(ctx context.Context, spec LocatorSpec) (int, error)
	// WaitFor blocks until at least one element matches or ctx is done.
	WaitFor(ctx context.Context, spec LocatorSpec) error

	Value(ctx context.Context, spec LocatorSpec, index int) (string, error)
	SetValue(ctx context.Context, spec LocatorSpec, index int, value string) error
	Focus(ctx context.Context, spec LocatorSpec, index int) error
	Click(ctx context.Context, spec LocatorSpec, index int) error
	// SendKeys dispatches real key events to the element.
	SendKeys(ctx context.Context, spec LocatorSpec, index int, keys string) error

	// Evaluate runs script in the page and decodes its result into res (may be nil).
	Evaluate(ctx context.Context, script string, res interface{}) error
}

// WaitForURLContains polls the page URL until it contains substr. It returns
// the last URL observed and whether the substring was seen before timeout.
func WaitForURLContains(ctx context.Context, p Page, substr string, timeout, interval time.Duration) (string, bool) {
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var last string
	for {
		if u, err := p.URL(ctx); err == nil {
			last = u
			if strings.Contains(u, substr) {
				return last, true
			}
		}
		select {
		case <-ctx.Done():
			return last, false
		case <-deadline.C:
			return last, false
		case <-ticker.C:
		}
	}
}

// ActiveElement and Body address the keyboard targets used when no input
// can be located.
var (
	ActiveElement = JSPath("document.activeElement")
	Body          = JSPath("document.body")
)

func describe(spec LocatorSpec, index int) string {
	return fmt.Sprintf("%s[%d]", spec, index)
}
