package mailbox

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/kiteauth/internal/config"
)

type countingMailbox struct {
	searches, fetches, marks int
	closed                   bool
}

func (c *countingMailbox) Search(context.Context, Query) ([]string, error) {
	c.searches++
	return []string{"a"}, nil
}

func (c *countingMailbox) Fetch(_ context.Context, id string) (Message, error) {
	c.fetches++
	return Message{ID: id}, nil
}

func (c *countingMailbox) MarkConsumed(context.Context, string) error {
	c.marks++
	return nil
}

func (c *countingMailbox) Close() error {
	c.closed = true
	return nil
}

func TestLimited(t *testing.T) {
	t.Run("forwards calls", func(t *testing.T) {
		next := &countingMailbox{}
		l := NewLimited(next, 1000)
		ctx := context.Background()

		ids, err := l.Search(ctx, Query{})
		require.NoError(t, err)
		assert.Equal(t, []string{"a"}, ids)
		msg, err := l.Fetch(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, "a", msg.ID)
		require.NoError(t, l.MarkConsumed(ctx, "a"))
		require.NoError(t, l.Close())

		assert.Equal(t, 1, next.searches)
		assert.Equal(t, 1, next.fetches)
		assert.Equal(t, 1, next.marks)
		assert.True(t, next.closed)
		assert.Same(t, next, l.Unwrap())
	})

	t.Run("canceled context skips the backend", func(t *testing.T) {
		next := &countingMailbox{}
		l := NewLimited(next, 1000)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := l.Search(ctx, Query{})
		assert.True(t, errors.Is(err, context.Canceled))
		assert.False(t, IsFatal(err))
		assert.Zero(t, next.searches)
	})

	t.Run("new wraps when a rate is configured", func(t *testing.T) {
		mb, err := New(context.Background(), config.MailboxConfig{
			Provider:  "imap",
			RateLimit: 2,
			IMAP:      config.IMAPConfig{Host: "localhost", Port: "993"},
		})
		require.NoError(t, err)
		require.IsType(t, &Limited{}, mb)
		assert.IsType(t, &IMAP{}, mb.(*Limited).Unwrap())
	})
}
