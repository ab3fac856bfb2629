// File: cmd/main_test.go
package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/kiteauth/internal/config"
	"github.com/xkilldash9x/kiteauth/internal/mailbox"
	"github.com/xkilldash9x/kiteauth/internal/observability"
)

// resetForTest restores package state and routes logs through the test.
func resetForTest(t *testing.T) {
	t.Helper()

	cfgFile = ""
	origPage, origMailbox := newPageSession, newMailbox
	t.Cleanup(func() {
		newPageSession, newMailbox = origPage, origMailbox
		cfgFile = ""
	})

	observability.ResetForTest()
	observability.SetLogger(zaptest.NewLogger(t))
	t.Cleanup(observability.ResetForTest)

	// Keep a kiteauth.yaml in the working directory or home from leaking in.
	t.Setenv("HOME", t.TempDir())
	t.Chdir(t.TempDir())
}

// execute runs a fresh command tree and returns its combined output.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

// writeConfig writes a config file with short timings for command tests.
func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "kiteauth.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

const fastConfig = `
logger:
  level: debug
browser:
  headless: true
  locator_timeout: 20ms
  click_timeout: 10ms
  settle_delay: 0s
  hold_open: 0s
portal:
  api_key: testkey
  success_wait: 50ms
mailbox:
  provider: gmail
  identity: me@example.com
otp:
  sender: noreply@zerodha.net
  subject: Kite
  window_minutes: 15
  timeout: 60ms
  poll_interval: 10ms
  initial_delay: 0s
`

func useMailbox(mb mailbox.Mailbox) {
	newMailbox = func(context.Context, config.MailboxConfig) (mailbox.Mailbox, error) { return mb, nil }
}
