// Package mailbox reads one-time-passcode mail from a provider search API.
package mailbox

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/xkilldash9x/kiteauth/internal/config"
)

// Message is a candidate OTP message as returned by Fetch.
type Message struct {
	ID        string
	Timestamp time.Time
	From      string
	Subject   string
	Snippet   string
}

// Query selects candidate messages. Empty fields are left out.
type Query struct {
	Sender           string
	Subject          string
	UnreadOnly       bool
	NewerThanMinutes int
	MaxResults       int64
}

// String renders the query in Gmail search syntax, e.g.
// "from:noreply@zerodha.net subject:Kite is:unread newer_than:15m".
func (q Query) String() string {
	var parts []string
	if q.Sender != "" {
		parts = append(parts, "from:"+quoteTerm(q.Sender))
	}
	if q.Subject != "" {
		parts = append(parts, "subject:"+quoteTerm(q.Subject))
	}
	if q.UnreadOnly {
		parts = append(parts, "is:unread")
	}
	if q.NewerThanMinutes > 0 {
		parts = append(parts, fmt.Sprintf("newer_than:%dm", q.NewerThanMinutes))
	}
	return strings.Join(parts, " ")
}

func quoteTerm(s string) string {
	if strings.ContainsAny(s, " \t") {
		return `"` + strings.ReplaceAll(s, `"`, "") + `"`
	}
	return s
}

// Mailbox is the provider surface the OTP retriever polls.
//
// Implementations report authorization failures as *AuthError and
// connectivity failures wrapping ErrTransport, so callers can tell them
// apart from per-message problems with IsFatal.
type Mailbox interface {
	// Search returns candidate message ids matching q.
	Search(ctx context.Context, q Query) ([]string, error)
	Fetch(ctx context.Context, id string) (Message, error)
	// MarkConsumed clears the unread state of a message.
	MarkConsumed(ctx context.Context, id string) error
}

// New builds the backend selected by cfg.Provider.
func New(ctx context.Context, cfg config.MailboxConfig) (Mailbox, error) {
	var (
		mb  Mailbox
		err error
	)
	switch strings.ToLower(cfg.Provider) {
	case "gmail":
		mb, err = NewGmail(ctx, cfg)
	case "imap":
		mb = NewIMAP(cfg)
	default:
		return nil, fmt.Errorf("unsupported mailbox provider: %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	if cfg.RateLimit > 0 {
		mb = NewLimited(mb, cfg.RateLimit)
	}
	return mb, nil
}
