// internal/otp/retriever.go
package otp

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/kiteauth/internal/mailbox"
	"github.com/xkilldash9x/kiteauth/internal/observability"
)

// Window filters candidate messages.
type Window struct {
	Sender           string
	Subject          string
	FreshnessMinutes int
}

// Match is a code found in a message.
type Match struct {
	Code      string
	MessageID string
	Timestamp time.Time
}

// Retriever polls a mailbox for a fresh OTP message. A message that yielded a
// code is never matched again by the same Retriever.
type Retriever struct {
	mailbox    mailbox.Mailbox
	maxResults int64
	// Now is the clock used for the freshness cutoff.
	Now    func() time.Time
	logger *zap.Logger

	mu       sync.Mutex
	consumed map[string]struct{}
}

// NewRetriever creates a retriever that asks the mailbox for at most
// maxResults candidates per cycle.
func NewRetriever(mb mailbox.Mailbox, maxResults int64) *Retriever {
	return &Retriever{
		mailbox:    mb,
		maxResults: maxResults,
		Now:        time.Now,
		logger:     observability.GetLogger().Named("otp"),
		consumed:   make(map[string]struct{}),
	}
}

// Poll searches the mailbox every interval until a code is found or timeout
// elapses. A timeout yields (nil, nil). Authorization and transport failures
// are returned at once without retrying. In-flight mailbox calls run under
// ctx, not the poll timeout, so a call started before the deadline completes.
func (r *Retriever) Poll(ctx context.Context, w Window, timeout, interval time.Duration) (*Match, error) {
	if w.FreshnessMinutes <= 0 {
		return nil, fmt.Errorf("freshness window must be positive, got %d minutes", w.FreshnessMinutes)
	}
	if interval <= 0 {
		interval = time.Second
	}

	log := r.logger.With(zap.String("sender", w.Sender), zap.String("subject", w.Subject))
	log.Info("Polling mailbox for OTP.", zap.Duration("timeout", timeout), zap.Int("window_minutes", w.FreshnessMinutes))

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for attempt := 1; ; attempt++ {
		match, err := r.cycle(ctx, w)
		if err != nil {
			if mailbox.IsFatal(err) {
				return nil, fmt.Errorf("otp retrieval aborted: %w", err)
			}
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Warn("Mailbox search failed; retrying.", zap.Int("attempt", attempt), zap.Error(err))
		}
		if match != nil {
			log.Info("OTP found.", zap.String("message_id", match.MessageID), zap.Int("attempt", attempt))
			return match, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline.C:
			log.Info("No OTP before timeout.", zap.Int("attempts", attempt))
			return nil, nil
		case <-time.After(interval):
		}
	}
}

// cycle runs one search and returns the code from the newest fresh message.
func (r *Retriever) cycle(ctx context.Context, w Window) (*Match, error) {
	ids, err := r.mailbox.Search(ctx, mailbox.Query{
		Sender:           w.Sender,
		Subject:          w.Subject,
		UnreadOnly:       true,
		NewerThanMinutes: w.FreshnessMinutes,
		MaxResults:       r.maxResults,
	})
	if err != nil {
		return nil, err
	}

	candidates := make([]mailbox.Message, 0, len(ids))
	for _, id := range ids {
		if r.isConsumed(id) {
			continue
		}
		msg, err := r.mailbox.Fetch(ctx, id)
		if err != nil {
			if mailbox.IsFatal(err) {
				return nil, err
			}
			r.logger.Debug("Skipping unreadable message.", zap.String("message_id", id), zap.Error(err))
			continue
		}
		candidates = append(candidates, msg)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Timestamp.After(candidates[j].Timestamp)
	})

	// The query already filters by age; recheck against our own clock.
	cutoff := r.Now().Add(-time.Duration(w.FreshnessMinutes) * time.Minute)
	for _, msg := range candidates {
		if msg.Timestamp.Before(cutoff) {
			r.logger.Debug("Discarding stale message.", zap.String("message_id", msg.ID), zap.Time("timestamp", msg.Timestamp))
			continue
		}
		code, ok := Extract(msg.Subject + "\n" + msg.Snippet)
		if !ok {
			continue
		}

		r.markConsumed(msg.ID)
		if err := r.mailbox.MarkConsumed(ctx, msg.ID); err != nil {
			r.logger.Warn("Failed to mark OTP message as read.", zap.String("message_id", msg.ID), zap.Error(err))
		}
		return &Match{Code: code, MessageID: msg.ID, Timestamp: msg.Timestamp}, nil
	}
	return nil, nil
}

func (r *Retriever) isConsumed(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.consumed[id]
	return ok
}

func (r *Retriever) markConsumed(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.consumed[id] = struct{}{}
}
