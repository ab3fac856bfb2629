// File: internal/config/config.go
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Browser() BrowserConfig
	Portal() PortalConfig
	Mailbox() MailboxConfig
	OTP() OTPConfig
	Callback() CallbackConfig

	// Browser Setters
	SetBrowserHeadless(bool)

	// Portal Setters
	SetPortalUsername(string)
	SetPortalPassword(string)
}

// Config holds the entire application configuration.
// Sections are reached through the Interface getters; the exported fields exist so
// viper can unmarshal into them.
type Config struct {
	LoggerCfg   LoggerConfig   `mapstructure:"logger" yaml:"logger"`
	BrowserCfg  BrowserConfig  `mapstructure:"browser" yaml:"browser"`
	PortalCfg   PortalConfig   `mapstructure:"portal" yaml:"portal"`
	MailboxCfg  MailboxConfig  `mapstructure:"mailbox" yaml:"mailbox"`
	OTPCfg      OTPConfig      `mapstructure:"otp" yaml:"otp"`
	CallbackCfg CallbackConfig `mapstructure:"callback" yaml:"callback"`
}

var _ Interface = (*Config)(nil)

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig     { return c.LoggerCfg }
func (c *Config) Browser() BrowserConfig   { return c.BrowserCfg }
func (c *Config) Portal() PortalConfig     { return c.PortalCfg }
func (c *Config) Mailbox() MailboxConfig   { return c.MailboxCfg }
func (c *Config) OTP() OTPConfig           { return c.OTPCfg }
func (c *Config) Callback() CallbackConfig { return c.CallbackCfg }

// --- Interface Method Implementations (Setters) ---

func (c *Config) SetBrowserHeadless(b bool)  { c.BrowserCfg.Headless = b }
func (c *Config) SetPortalUsername(u string) { c.PortalCfg.Username = u }
func (c *Config) SetPortalPassword(p string) { c.PortalCfg.Password = p }

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// BrowserConfig holds settings for the automated browser.
// Headless doubles as the unattended flag: headless runs close the browser when
// the flow ends, attended runs leave it open for inspection whatever the outcome.
type BrowserConfig struct {
	Headless          bool          `mapstructure:"headless" yaml:"headless"`
	ExecPath          string        `mapstructure:"exec_path" yaml:"exec_path"`
	UserDataDir       string        `mapstructure:"user_data_dir" yaml:"user_data_dir"`
	ProfileDirectory  string        `mapstructure:"profile_directory" yaml:"profile_directory"`
	Args              []string      `mapstructure:"args" yaml:"args"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	LocatorTimeout    time.Duration `mapstructure:"locator_timeout" yaml:"locator_timeout"`
	// ResolveBudget caps one resolution across all of its locators; zero disables the cap.
	ResolveBudget     time.Duration `mapstructure:"resolve_budget" yaml:"resolve_budget"`
	ClickTimeout      time.Duration `mapstructure:"click_timeout" yaml:"click_timeout"`
	SettleDelay       time.Duration `mapstructure:"settle_delay" yaml:"settle_delay"`
	// HoldOpen limits how long an attended run keeps the process waiting on the
	// open browser. Zero waits until the window is closed or the run is interrupted.
	HoldOpen          time.Duration `mapstructure:"hold_open" yaml:"hold_open"`
}

// PortalConfig describes the target portal and the account used to log in.
type PortalConfig struct {
	LoginURL         string        `mapstructure:"login_url" yaml:"login_url"`
	APIKey           string        `mapstructure:"api_key" yaml:"api_key"`
	APISecret        string        `mapstructure:"api_secret" yaml:"-"`
	RedirectURI      string        `mapstructure:"redirect_uri" yaml:"redirect_uri"`
	Username         string        `mapstructure:"username" yaml:"username"`
	Password         string        `mapstructure:"password" yaml:"-"`
	SuccessDomain    string        `mapstructure:"success_domain" yaml:"success_domain"`
	SuccessWait      time.Duration `mapstructure:"success_wait" yaml:"success_wait"`
	ErrorSignatures  []string      `mapstructure:"error_signatures" yaml:"error_signatures"`
	CheckboxKeyword  string        `mapstructure:"checkbox_keyword" yaml:"checkbox_keyword"`
	TokenExchangeURL string        `mapstructure:"token_exchange_url" yaml:"token_exchange_url"`
}

// MailboxConfig selects and configures the mailbox backend used to read OTP mail.
type MailboxConfig struct {
	Provider        string     `mapstructure:"provider" yaml:"provider"`
	Identity        string     `mapstructure:"identity" yaml:"identity"`
	CredentialsPath string     `mapstructure:"credentials_path" yaml:"credentials_path"`
	TokenPath       string     `mapstructure:"token_path" yaml:"token_path"`
	MaxResults      int64      `mapstructure:"max_results" yaml:"max_results"`
	// RateLimit caps provider calls per second; zero disables the limiter.
	RateLimit       float64    `mapstructure:"rate_limit" yaml:"rate_limit"`
	IMAP            IMAPConfig `mapstructure:"imap" yaml:"imap"`
}

// IMAPConfig holds connection details for the IMAP mailbox backend.
type IMAPConfig struct {
	Host     string `mapstructure:"host" yaml:"host"`
	Port     string `mapstructure:"port" yaml:"port"`
	Username string `mapstructure:"username" yaml:"username"`
	Password string `mapstructure:"password" yaml:"-"`
	TLS      bool   `mapstructure:"tls" yaml:"tls"`
	Folder   string `mapstructure:"folder" yaml:"folder"`
}

// OTPConfig tunes OTP polling.
type OTPConfig struct {
	Sender              string        `mapstructure:"sender" yaml:"sender"`
	Subject             string        `mapstructure:"subject" yaml:"subject"`
	WindowMinutes       int           `mapstructure:"window_minutes" yaml:"window_minutes"`
	Timeout             time.Duration `mapstructure:"timeout" yaml:"timeout"`
	PollInterval        time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	InitialDelay        time.Duration `mapstructure:"initial_delay" yaml:"initial_delay"`
	RetryWithoutSubject bool          `mapstructure:"retry_without_subject" yaml:"retry_without_subject"`
	// EntryWait is the short wait for each single-field OTP input before the
	// entry chain moves on.
	EntryWait           time.Duration `mapstructure:"entry_wait" yaml:"entry_wait"`
}

// CallbackConfig configures the request-token callback listener.
type CallbackConfig struct {
	Enabled     bool          `mapstructure:"enabled" yaml:"enabled"`
	Addr        string        `mapstructure:"addr" yaml:"addr"`
	Path        string        `mapstructure:"path" yaml:"path"`
	HandoffPath string        `mapstructure:"handoff_path" yaml:"handoff_path"`
	WaitTimeout time.Duration `mapstructure:"wait_timeout" yaml:"wait_timeout"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "kiteauth")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 10)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")

	// -- Browser --
	v.SetDefault("browser.headless", false)
	v.SetDefault("browser.navigation_timeout", "60s")
	v.SetDefault("browser.locator_timeout", "10s")
	v.SetDefault("browser.resolve_budget", "30s")
	v.SetDefault("browser.click_timeout", "5s")
	v.SetDefault("browser.settle_delay", "2s")
	v.SetDefault("browser.hold_open", "0s")

	// -- Portal --
	v.SetDefault("portal.login_url", "")
	v.SetDefault("portal.success_domain", "kite.trade")
	v.SetDefault("portal.success_wait", "15s")
	v.SetDefault("portal.error_signatures", []string{"user is not enabled for the app"})
	v.SetDefault("portal.checkbox_keyword", "kite web")
	v.SetDefault("portal.token_exchange_url", "https://api.kite.trade/session/token")

	// -- Mailbox --
	v.SetDefault("mailbox.provider", "gmail")
	v.SetDefault("mailbox.credentials_path", "credentials.json")
	v.SetDefault("mailbox.token_path", "token.json")
	v.SetDefault("mailbox.max_results", 25)
	v.SetDefault("mailbox.rate_limit", 4)
	v.SetDefault("mailbox.imap.host", "imap.gmail.com")
	v.SetDefault("mailbox.imap.port", "993")
	v.SetDefault("mailbox.imap.tls", true)
	v.SetDefault("mailbox.imap.folder", "INBOX")

	// -- OTP --
	v.SetDefault("otp.subject", "Kite")
	v.SetDefault("otp.window_minutes", 15)
	v.SetDefault("otp.timeout", "120s")
	v.SetDefault("otp.poll_interval", "5s")
	v.SetDefault("otp.initial_delay", "5s")
	v.SetDefault("otp.retry_without_subject", true)
	v.SetDefault("otp.entry_wait", "1s")

	// -- Callback --
	v.SetDefault("callback.enabled", false)
	v.SetDefault("callback.addr", "127.0.0.1:5000")
	v.SetDefault("callback.path", "/zerodha_callback")
	v.SetDefault("callback.handoff_path", "kite_session.json")
	v.SetDefault("callback.wait_timeout", "2m")
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Secrets come from the environment, never from a literal in the config file.
	_ = v.BindEnv("portal.password", "KITEAUTH_PASSWORD")
	_ = v.BindEnv("portal.api_secret", "KITEAUTH_API_SECRET")
	_ = v.BindEnv("mailbox.imap.password", "KITEAUTH_IMAP_PASSWORD")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if cfg.PortalCfg.Password == "" {
		cfg.PortalCfg.Password = os.Getenv("KITEAUTH_PASSWORD")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.BrowserCfg.LocatorTimeout <= 0 {
		return fmt.Errorf("browser.locator_timeout must be a positive duration")
	}
	if c.BrowserCfg.ResolveBudget < 0 || c.BrowserCfg.HoldOpen < 0 {
		return fmt.Errorf("browser.resolve_budget and browser.hold_open must not be negative")
	}
	if err := c.MailboxCfg.Validate(); err != nil {
		return fmt.Errorf("mailbox configuration invalid: %w", err)
	}
	if err := c.OTPCfg.Validate(); err != nil {
		return fmt.Errorf("otp configuration invalid: %w", err)
	}
	if c.CallbackCfg.Enabled && c.CallbackCfg.Addr == "" {
		return fmt.Errorf("callback.addr is required when the callback listener is enabled")
	}
	return nil
}

// Validate checks the mailbox backend selection.
func (m *MailboxConfig) Validate() error {
	switch m.Provider {
	case "gmail":
		if m.CredentialsPath == "" {
			return fmt.Errorf("credentials_path is required for the gmail provider")
		}
	case "imap":
		if m.IMAP.Host == "" || m.IMAP.Port == "" {
			return fmt.Errorf("imap.host and imap.port are required for the imap provider")
		}
	default:
		return fmt.Errorf("unsupported mailbox provider %q (supported: gmail, imap)", m.Provider)
	}
	return nil
}

// Validate checks the OTP polling settings.
func (o *OTPConfig) Validate() error {
	if o.WindowMinutes <= 0 {
		return fmt.Errorf("window_minutes must be greater than 0")
	}
	if o.Timeout <= 0 {
		return fmt.Errorf("timeout must be a positive duration")
	}
	if o.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be a positive duration")
	}
	if o.EntryWait <= 0 {
		return fmt.Errorf("entry_wait must be a positive duration")
	}
	return nil
}

// ValidateForLogin checks the fields a login run cannot do without.
func (c *Config) ValidateForLogin() error {
	var missing []string
	if c.PortalCfg.Username == "" {
		missing = append(missing, "portal.username")
	}
	if c.PortalCfg.Password == "" {
		missing = append(missing, "portal.password (KITEAUTH_PASSWORD)")
	}
	if c.PortalCfg.LoginURL == "" && c.PortalCfg.APIKey == "" {
		missing = append(missing, "portal.api_key or portal.login_url")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required settings: %v", missing)
	}
	return nil
}
