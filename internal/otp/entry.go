// internal/otp/entry.go
package otp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/kiteauth/internal/browser"
	"github.com/xkilldash9x/kiteauth/internal/observability"
)

// ErrOtpEntryFailed is returned when no strategy could place the code.
var ErrOtpEntryFailed = errors.New("otp entry failed")

var errNoCandidates = errors.New("no candidate inputs")

// Strategy is one way of getting a code into the page.
type Strategy interface {
	Name() string
	Enter(ctx context.Context, page browser.Page, code string) error
}

// SingleFieldLocators are tried in order for a single code input.
var SingleFieldLocators = browser.Locators{
	browser.CSS(`input[autocomplete="one-time-code"]`),
	browser.CSS(`input[type="tel"][maxlength]`),
	browser.CSS(`input[type="tel"]`),
	browser.CSS(`input[type="text"][inputmode]`),
	browser.CSS(`input[type="text"][maxlength]`),
	browser.ID("otp"),
	browser.Name("otp"),
}

// DigitInputs matches the per-digit boxes of split OTP forms.
var DigitInputs = browser.CSS(`input.otp, input[id^="pin"], input[id*="pin"], input[id*="otp"], input[class*="otp"], input[class*="pin"]`)

// SingleField writes the code into the first matching single input.
type SingleField struct {
	Locators browser.Locators
	// Wait bounds the explicit wait used when a locator has no match yet.
	Wait time.Duration
}

func (SingleField) Name() string { return "single-field" }

func (s SingleField) Enter(ctx context.Context, page browser.Page, code string) error {
	resolver := browser.NewResolver(page, 0)
	var errs []error
	for _, spec := range s.Locators {
		if _, err := resolver.Find(ctx, browser.Locators{spec}); err != nil {
			if _, err := resolver.Resolve(ctx, browser.Locators{spec}, s.Wait); err != nil {
				errs = append(errs, err)
				continue
			}
		}
		if err := writeCode(ctx, page, spec, code); err != nil {
			errs = append(errs, err)
			continue
		}
		return nil
	}
	if len(errs) == 0 {
		return errNoCandidates
	}
	return errors.Join(errs...)
}

// writeCode sets the value with input/change notifications, then replays the
// digits as key events for pages that only listen to the keyboard. If the
// replay changed the value, the programmatic value is restored.
func writeCode(ctx context.Context, page browser.Page, spec browser.LocatorSpec, code string) error {
	_ = page.Focus(ctx, spec, 0)
	if err := page.SetValue(ctx, spec, 0, code); err != nil {
		if keyErr := page.SendKeys(ctx, spec, 0, code); keyErr != nil {
			return fmt.Errorf("write to %s failed: %w", spec, errors.Join(err, keyErr))
		}
		return nil
	}

	for _, ch := range code {
		_ = page.SendKeys(ctx, spec, 0, string(ch))
	}
	if v, err := page.Value(ctx, spec, 0); err == nil && v != code {
		_ = page.SetValue(ctx, spec, 0, code)
	}
	return nil
}

// MultiField spreads the digits over a row of single-character inputs.
type MultiField struct {
	Inputs browser.LocatorSpec
}

func (MultiField) Name() string { return "multi-field" }

func (m MultiField) Enter(ctx context.Context, page browser.Page, code string) error {
	n, err := page.Count(ctx, m.Inputs)
	if err != nil {
		return err
	}
	if n == 0 {
		return errNoCandidates
	}

	written := 0
	for i, ch := range []rune(code) {
		if i >= n {
			break
		}
		digit := string(ch)
		if err := page.SetValue(ctx, m.Inputs, i, digit); err != nil {
			if err := page.SendKeys(ctx, m.Inputs, i, digit); err != nil {
				continue
			}
		}
		written++
	}
	if written == 0 {
		return fmt.Errorf("none of %d digit inputs accepted a value", n)
	}
	return nil
}

// Keystroke types the code into whatever has focus, or the body.
type Keystroke struct{}

func (Keystroke) Name() string { return "keystroke" }

func (Keystroke) Enter(ctx context.Context, page browser.Page, code string) error {
	activeErr := page.SendKeys(ctx, browser.ActiveElement, 0, code)
	if activeErr == nil {
		return nil
	}
	if err := page.SendKeys(ctx, browser.Body, 0, code); err != nil {
		return errors.Join(activeErr, err)
	}
	return nil
}

// Chain tries strategies in order until one succeeds.
type Chain struct {
	Strategies []Strategy
	logger     *zap.Logger
}

// NewChain builds a chain from the given strategies.
func NewChain(strategies ...Strategy) *Chain {
	return &Chain{
		Strategies: strategies,
		logger:     observability.GetLogger().Named("otp.entry"),
	}
}

// DefaultChain is single-field, then multi-field, then raw keystrokes.
func DefaultChain(wait time.Duration) *Chain {
	return NewChain(
		SingleField{Locators: SingleFieldLocators, Wait: wait},
		MultiField{Inputs: DigitInputs},
		Keystroke{},
	)
}

// Enter returns the name of the strategy that placed the code. When every
// strategy fails the error wraps ErrOtpEntryFailed.
func (c *Chain) Enter(ctx context.Context, page browser.Page, code string) (string, error) {
	var errs []error
	for _, s := range c.Strategies {
		start := time.Now()
		err := s.Enter(ctx, page, code)
		if err == nil {
			c.logger.Info("OTP entered.", zap.String("strategy", s.Name()), zap.Duration("elapsed", time.Since(start)))
			return s.Name(), nil
		}
		c.logger.Debug("OTP strategy failed.", zap.String("strategy", s.Name()), zap.Error(err))
		errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		if ctx.Err() != nil {
			break
		}
	}
	if len(errs) == 0 {
		return "", ErrOtpEntryFailed
	}
	return "", fmt.Errorf("%w: %w", ErrOtpEntryFailed, errors.Join(errs...))
}
