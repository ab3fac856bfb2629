// internal/browser/errors.go
package browser

import (
	"errors"
	"fmt"
)

// ErrElementNotFound is matched by every *ElementNotFoundError.
var ErrElementNotFound = errors.New("element not found")

// ElementNotFoundError reports a resolution that exhausted its locator list.
type ElementNotFoundError struct {
	// Attempted holds every spec that was part of the resolution, in order.
	Attempted Locators
}

func (e *ElementNotFoundError) Error() string {
	return fmt.Sprintf("element not found after %d locator(s): %s", len(e.Attempted), e.Attempted)
}

func (e *ElementNotFoundError) Unwrap() error { return ErrElementNotFound }
