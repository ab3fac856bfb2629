// internal/browser/resolver.go
package browser

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/kiteauth/internal/observability"
)

// Resolver finds one logical element from an ordered list of locator
// alternatives.
type Resolver struct {
	page Page
	// Budget bounds a whole Resolve call. Zero means only the caller's
	// context and the per-attempt waits apply.
	Budget time.Duration
	logger *zap.Logger
}

// NewResolver creates a resolver over the given page.
func NewResolver(page Page, budget time.Duration) *Resolver {
	return &Resolver{
		page:   page,
		Budget: budget,
		logger: observability.GetLogger().Named("resolver"),
	}
}

// Page returns the page the resolver queries.
func (r *Resolver) Page() Page { return r.page }

// Resolve tries each spec in order, waiting up to perAttempt for each, and
// returns the first one that matches a present element. When nothing matches
// the error is an *ElementNotFoundError listing every spec, including those
// skipped because the budget ran out.
func (r *Resolver) Resolve(ctx context.Context, locators Locators, perAttempt time.Duration) (LocatorSpec, error) {
	budgetCtx := ctx
	if r.Budget > 0 {
		var cancel context.CancelFunc
		budgetCtx, cancel = context.WithTimeout(ctx, r.Budget)
		defer cancel()
	}

	for _, spec := range locators {
		if budgetCtx.Err() != nil {
			break
		}
		attemptCtx, cancel := context.WithTimeout(budgetCtx, perAttempt)
		err := r.page.WaitFor(attemptCtx, spec)
		cancel()
		if err == nil {
			r.logger.Debug("Locator matched.", zap.Stringer("locator", spec))
			return spec, nil
		}
		r.logger.Debug("Locator did not match.", zap.Stringer("locator", spec), zap.Error(err))
	}

	if ctx.Err() != nil {
		return LocatorSpec{}, fmt.Errorf("resolution canceled: %w", ctx.Err())
	}
	return LocatorSpec{}, &ElementNotFoundError{Attempted: append(Locators(nil), locators...)}
}

// Find is the no-wait variant of Resolve: it returns the first spec with at
// least one element present right now.
func (r *Resolver) Find(ctx context.Context, locators Locators) (LocatorSpec, error) {
	for _, spec := range locators {
		n, err := r.page.Count(ctx, spec)
		if err != nil {
			r.logger.Debug("Locator query failed.", zap.Stringer("locator", spec), zap.Error(err))
			continue
		}
		if n > 0 {
			return spec, nil
		}
	}
	return LocatorSpec{}, &ElementNotFoundError{Attempted: append(Locators(nil), locators...)}
}
