package mailbox

import (
	"context"
	"io"

	"golang.org/x/time/rate"
)

// Limited throttles calls to a backend so tight poll intervals stay inside
// provider quotas.
type Limited struct {
	next    Mailbox
	limiter *rate.Limiter
}

var _ Mailbox = (*Limited)(nil)

// NewLimited allows perSecond calls per second with a burst of one.
func NewLimited(next Mailbox, perSecond float64) *Limited {
	return &Limited{next: next, limiter: rate.NewLimiter(rate.Limit(perSecond), 1)}
}

// Unwrap returns the throttled backend.
func (l *Limited) Unwrap() Mailbox { return l.next }

func (l *Limited) Search(ctx context.Context, q Query) ([]string, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return l.next.Search(ctx, q)
}

func (l *Limited) Fetch(ctx context.Context, id string) (Message, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return Message{}, err
	}
	return l.next.Fetch(ctx, id)
}

func (l *Limited) MarkConsumed(ctx context.Context, id string) error {
	if err := l.limiter.Wait(ctx); err != nil {
		return err
	}
	return l.next.MarkConsumed(ctx, id)
}

// Close closes the backend when it holds a connection.
func (l *Limited) Close() error {
	if c, ok := l.next.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
