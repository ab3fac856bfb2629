// internal/mailbox/gmail.go
package mailbox

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/xkilldash9x/kiteauth/internal/config"
	"github.com/xkilldash9x/kiteauth/internal/observability"
)

const unreadLabel = "UNREAD"

// Gmail is the Gmail API backend.
type Gmail struct {
	svc    *gmail.Service
	user   string
	logger *zap.Logger
}

var _ Mailbox = (*Gmail)(nil)

// NewGmail authenticates with the stored token and client credentials named
// in cfg. A missing or unreadable token is an AuthError; run the authorize
// command to create one.
func NewGmail(ctx context.Context, cfg config.MailboxConfig) (*Gmail, error) {
	oauthCfg, err := LoadOAuthConfig(cfg.CredentialsPath)
	if err != nil {
		return nil, &AuthError{Provider: "gmail", Message: "client credentials unavailable", Err: err}
	}
	tok, err := LoadToken(cfg.TokenPath)
	if err != nil {
		return nil, &AuthError{Provider: "gmail", Message: "no stored token (run `kiteauth mailbox authorize`)", Err: err}
	}

	ts := newPersistingTokenSource(ctx, oauthCfg, tok, cfg.TokenPath)
	svc, err := gmail.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return nil, fmt.Errorf("failed to create gmail client: %w", err)
	}
	return NewGmailFromService(svc, cfg.Identity), nil
}

// NewGmailFromService wraps an existing client. An empty user means "me".
func NewGmailFromService(svc *gmail.Service, user string) *Gmail {
	if user == "" {
		user = "me"
	}
	return &Gmail{
		svc:    svc,
		user:   user,
		logger: observability.GetLogger().Named("mailbox.gmail"),
	}
}

func (g *Gmail) Search(ctx context.Context, q Query) ([]string, error) {
	call := g.svc.Users.Messages.List(g.user).Q(q.String()).Context(ctx)
	if q.MaxResults > 0 {
		call = call.MaxResults(q.MaxResults)
	}
	resp, err := call.Do()
	if err != nil {
		return nil, classifyGmailError("search", err)
	}

	ids := make([]string, 0, len(resp.Messages))
	for _, m := range resp.Messages {
		ids = append(ids, m.Id)
	}
	g.logger.Debug("Search complete.", zap.String("query", q.String()), zap.Int("results", len(ids)))
	return ids, nil
}

func (g *Gmail) Fetch(ctx context.Context, id string) (Message, error) {
	m, err := g.svc.Users.Messages.Get(g.user, id).
		Format("full").
		Context(ctx).
		Do()
	if err != nil {
		return Message{}, classifyGmailError("fetch "+id, err)
	}

	msg := Message{
		ID:        m.Id,
		Timestamp: time.UnixMilli(m.InternalDate),
		Snippet:   m.Snippet,
	}
	if m.Payload != nil {
		for _, h := range m.Payload.Headers {
			switch strings.ToLower(h.Name) {
			case "subject":
				msg.Subject = h.Value
			case "from":
				msg.From = h.Value
			}
		}
	}
	return msg, nil
}

func (g *Gmail) MarkConsumed(ctx context.Context, id string) error {
	_, err := g.svc.Users.Messages.Modify(g.user, id, &gmail.ModifyMessageRequest{
		RemoveLabelIds: []string{unreadLabel},
	}).Context(ctx).Do()
	if err != nil {
		return classifyGmailError("mark "+id, err)
	}
	return nil
}

// classifyGmailError maps 401/403 and token refresh failures to AuthError and
// failures below HTTP to ErrTransport. Other API statuses stay plain errors.
func classifyGmailError(op string, err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		if apiErr.Code == http.StatusUnauthorized || apiErr.Code == http.StatusForbidden {
			return &AuthError{Provider: "gmail", Message: op + " rejected", Err: err}
		}
		return fmt.Errorf("gmail %s: %w", op, err)
	}
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		return &AuthError{Provider: "gmail", Message: "token refresh failed", Err: err}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("gmail %s: %w", op, err)
	}
	return transportError("gmail "+op, err)
}
