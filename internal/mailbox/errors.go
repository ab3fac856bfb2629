// internal/mailbox/errors.go
package mailbox

import (
	"errors"
	"fmt"
)

// ErrTransport marks failures to reach the provider at all.
var ErrTransport = errors.New("mailbox transport failure")

// AuthError is returned when the provider rejects the credentials or token.
type AuthError struct {
	Provider string
	Message  string
	Err      error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("mailbox auth error (%s): %s: %v", e.Provider, e.Message, e.Err)
	}
	return fmt.Sprintf("mailbox auth error (%s): %s", e.Provider, e.Message)
}

func (e *AuthError) Unwrap() error { return e.Err }

// IsAuthError reports whether err (or any error in its chain) is an AuthError.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// IsFatal reports whether retrying within the same run cannot help:
// authorization and transport failures.
func IsFatal(err error) bool {
	return IsAuthError(err) || errors.Is(err, ErrTransport)
}

func transportError(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrTransport, err)
}
