// internal/mailbox/oauth.go
package mailbox

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	jsoniter "github.com/json-iterator/go"
	"github.com/mitchellh/go-homedir"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
)

// GmailScopes are the scopes requested by the authorize flow. Modify is
// needed to clear the UNREAD label.
var GmailScopes = []string{gmail.GmailModifyScope}

// LoadOAuthConfig reads a Google client-credentials JSON file.
func LoadOAuthConfig(credentialsPath string) (*oauth2.Config, error) {
	path, err := homedir.Expand(credentialsPath)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read mailbox credentials: %w", err)
	}
	cfg, err := google.ConfigFromJSON(data, GmailScopes...)
	if err != nil {
		return nil, fmt.Errorf("failed to parse mailbox credentials: %w", err)
	}
	return cfg, nil
}

// LoadToken reads a stored OAuth token.
func LoadToken(tokenPath string) (*oauth2.Token, error) {
	path, err := homedir.Expand(tokenPath)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	tok := &oauth2.Token{}
	if err := jsoniter.Unmarshal(data, tok); err != nil {
		return nil, fmt.Errorf("failed to decode token %s: %w", path, err)
	}
	return tok, nil
}

// SaveToken writes tok with owner-only permissions.
func SaveToken(tokenPath string, tok *oauth2.Token) error {
	path, err := homedir.Expand(tokenPath)
	if err != nil {
		return err
	}
	data, err := jsoniter.MarshalIndent(tok, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0o600)
}

// AuthCodeURL returns the consent URL for an offline (refreshable) token.
func AuthCodeURL(cfg *oauth2.Config, state string) string {
	return cfg.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// ExchangeCode trades an authorization code for a token and stores it.
func ExchangeCode(ctx context.Context, cfg *oauth2.Config, code, tokenPath string) (*oauth2.Token, error) {
	tok, err := cfg.Exchange(ctx, code)
	if err != nil {
		return nil, &AuthError{Provider: "gmail", Message: "authorization code exchange failed", Err: err}
	}
	if err := SaveToken(tokenPath, tok); err != nil {
		return nil, fmt.Errorf("failed to store token: %w", err)
	}
	return tok, nil
}

// persistingTokenSource writes refreshed tokens back to disk.
type persistingTokenSource struct {
	base oauth2.TokenSource
	path string

	mu   sync.Mutex
	last string
}

func newPersistingTokenSource(ctx context.Context, cfg *oauth2.Config, tok *oauth2.Token, path string) oauth2.TokenSource {
	return oauth2.ReuseTokenSource(tok, &persistingTokenSource{
		base: cfg.TokenSource(ctx, tok),
		path: path,
		last: tok.AccessToken,
	})
}

func (s *persistingTokenSource) Token() (*oauth2.Token, error) {
	tok, err := s.base.Token()
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if tok.AccessToken != s.last {
		s.last = tok.AccessToken
		// A failed write only costs a refresh on the next run.
		_ = SaveToken(s.path, tok)
	}
	return tok, nil
}
