// File: internal/config/config_test.go
package config

import (
	"bytes"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -- Constructor and Defaults Tests --

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.Equal(t, "info", cfg.Logger().Level)
	assert.Equal(t, "kiteauth", cfg.Logger().ServiceName)
	assert.False(t, cfg.Browser().Headless)
	assert.Equal(t, 10*time.Second, cfg.Browser().LocatorTimeout)
	assert.Equal(t, "kite.trade", cfg.Portal().SuccessDomain)
	assert.Equal(t, []string{"user is not enabled for the app"}, cfg.Portal().ErrorSignatures)
	assert.Equal(t, "gmail", cfg.Mailbox().Provider)
	assert.Equal(t, int64(25), cfg.Mailbox().MaxResults)
	assert.Equal(t, 15, cfg.OTP().WindowMinutes)
	assert.Equal(t, 120*time.Second, cfg.OTP().Timeout)
	assert.Equal(t, 5*time.Second, cfg.OTP().PollInterval)
	assert.True(t, cfg.OTP().RetryWithoutSubject)
	assert.Equal(t, time.Second, cfg.OTP().EntryWait)
	assert.Equal(t, 30*time.Second, cfg.Browser().ResolveBudget)
	assert.Zero(t, cfg.Browser().HoldOpen, "attended runs wait for the window by default")
	assert.Equal(t, "/zerodha_callback", cfg.Callback().Path)

	require.NoError(t, cfg.Validate(), "defaults must validate")
}

// -- Validation Logic Tests --

func TestConfigValidation(t *testing.T) {
	t.Run("Core Validation", func(t *testing.T) {
		cfg := NewDefaultConfig()
		assert.NoError(t, cfg.Validate())

		invalid := *cfg
		invalid.BrowserCfg.LocatorTimeout = 0
		err := invalid.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "browser.locator_timeout")

		negative := *cfg
		negative.BrowserCfg.ResolveBudget = -time.Second
		err = negative.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "browser.resolve_budget")

		cb := *cfg
		cb.CallbackCfg.Enabled = true
		cb.CallbackCfg.Addr = ""
		err = cb.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "callback.addr")
	})

	t.Run("Mailbox Validation", func(t *testing.T) {
		m := MailboxConfig{Provider: "imap", IMAP: IMAPConfig{Host: "imap.example.com", Port: "993"}}
		assert.NoError(t, m.Validate())

		m.IMAP.Host = ""
		assert.Error(t, m.Validate())

		unknown := MailboxConfig{Provider: "pop3"}
		err := unknown.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unsupported mailbox provider")

		gmail := MailboxConfig{Provider: "gmail"}
		assert.Error(t, gmail.Validate(), "gmail needs a credentials path")
	})

	t.Run("OTP Validation", func(t *testing.T) {
		o := OTPConfig{WindowMinutes: 15, Timeout: time.Minute, PollInterval: time.Second, EntryWait: time.Second}
		assert.NoError(t, o.Validate())

		noEntryWait := o
		noEntryWait.EntryWait = 0
		err := noEntryWait.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "entry_wait")

		zeroWindow := o
		zeroWindow.WindowMinutes = 0
		assert.Error(t, zeroWindow.Validate())

		zeroInterval := o
		zeroInterval.PollInterval = 0
		assert.Error(t, zeroInterval.Validate())
	})

	t.Run("Login Requirements", func(t *testing.T) {
		cfg := NewDefaultConfig()
		err := cfg.ValidateForLogin()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "portal.username")
		assert.Contains(t, err.Error(), "portal.api_key or portal.login_url")

		cfg.SetPortalUsername("AB1234")
		cfg.SetPortalPassword("secret")
		cfg.PortalCfg.APIKey = "key"
		assert.NoError(t, cfg.ValidateForLogin())
	})
}

// -- Viper Loading Tests --

func TestNewConfigFromViper(t *testing.T) {
	t.Run("yaml overrides defaults", func(t *testing.T) {
		v := viper.New()
		SetDefaults(v)
		v.SetConfigType("yaml")
		yaml := []byte(`
portal:
  username: AB1234
  api_key: abc
  success_domain: example.trade
otp:
  window_minutes: 5
  poll_interval: 2s
  entry_wait: 250ms
browser:
  resolve_budget: 12s
mailbox:
  provider: imap
  imap:
    host: mail.example.com
`)
		require.NoError(t, v.ReadConfig(bytes.NewReader(yaml)))

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)
		assert.Equal(t, "AB1234", cfg.Portal().Username)
		assert.Equal(t, "example.trade", cfg.Portal().SuccessDomain)
		assert.Equal(t, 5, cfg.OTP().WindowMinutes)
		assert.Equal(t, 2*time.Second, cfg.OTP().PollInterval)
		assert.Equal(t, 250*time.Millisecond, cfg.OTP().EntryWait)
		assert.Equal(t, 12*time.Second, cfg.Browser().ResolveBudget)
		assert.Equal(t, "imap", cfg.Mailbox().Provider)
		assert.Equal(t, "993", cfg.Mailbox().IMAP.Port, "unset keys keep their defaults")
	})

	t.Run("password comes from the environment", func(t *testing.T) {
		t.Setenv("KITEAUTH_PASSWORD", "from-env")
		v := viper.New()
		SetDefaults(v)

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)
		assert.Equal(t, "from-env", cfg.Portal().Password)
	})

	t.Run("invalid values are rejected", func(t *testing.T) {
		v := viper.New()
		SetDefaults(v)
		v.Set("otp.window_minutes", 0)

		_, err := NewConfigFromViper(v)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid configuration")
	})
}
