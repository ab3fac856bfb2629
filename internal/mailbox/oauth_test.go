// internal/mailbox/oauth_test.go
package mailbox

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

const installedCredentials = `{"installed":{
	"client_id":"id.apps.googleusercontent.com",
	"client_secret":"secret",
	"auth_uri":"https://accounts.google.com/o/oauth2/auth",
	"token_uri":"https://oauth2.googleapis.com/token",
	"redirect_uris":["http://localhost"]
}}`

func TestLoadOAuthConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	require.NoError(t, os.WriteFile(path, []byte(installedCredentials), 0o600))

	cfg, err := LoadOAuthConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "id.apps.googleusercontent.com", cfg.ClientID)
	assert.Equal(t, GmailScopes, cfg.Scopes)

	u := AuthCodeURL(cfg, "state-1")
	assert.Contains(t, u, "access_type=offline")
	assert.Contains(t, u, "state=state-1")

	_, err = LoadOAuthConfig(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestTokenRoundTripOnDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "token.json")
	tok := &oauth2.Token{AccessToken: "a", RefreshToken: "r", TokenType: "Bearer", Expiry: time.Now().Add(time.Hour).Truncate(time.Second)}
	require.NoError(t, SaveToken(path, tok))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	loaded, err := LoadToken(path)
	require.NoError(t, err)
	assert.Equal(t, "r", loaded.RefreshToken)
	assert.True(t, tok.Expiry.Equal(loaded.Expiry))
}

type staticSource struct{ tok *oauth2.Token }

func (s staticSource) Token() (*oauth2.Token, error) { return s.tok, nil }

func TestPersistingTokenSourceWritesRefreshedTokens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	src := &persistingTokenSource{base: staticSource{&oauth2.Token{AccessToken: "fresh"}}, path: path, last: "stale"}

	tok, err := src.Token()
	require.NoError(t, err)
	assert.Equal(t, "fresh", tok.AccessToken)

	stored, err := LoadToken(path)
	require.NoError(t, err)
	assert.Equal(t, "fresh", stored.AccessToken)
}
