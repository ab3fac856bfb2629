// File: cmd/root.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/kiteauth/internal/config"
	"github.com/xkilldash9x/kiteauth/internal/observability"
)

type contextKey string

const configKey contextKey = "config"

// ErrLoginFailed is returned when a login run ends in anything but Completed.
var ErrLoginFailed = errors.New("login did not complete")

var cfgFile string

// NewRootCommand builds a fresh command tree. Each call returns independent
// flag state, which keeps tests from leaking into each other.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "kiteauth",
		Short:         "kiteauth automates the Kite login with an emailed one-time passcode.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			v := viper.New()
			config.SetDefaults(v)

			if err := initializeConfig(cmd, v); err != nil {
				return fmt.Errorf("failed to initialize configuration: %w", err)
			}

			cfg, err := config.NewConfigFromViper(v)
			if err != nil {
				observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "kiteauth"})
				return fmt.Errorf("failed to load or validate config: %w", err)
			}

			observability.InitializeLogger(cfg.Logger())
			observability.GetLogger().Debug("Starting kiteauth", zap.String("version", Version))

			cmd.SetContext(context.WithValue(cmd.Context(), configKey, cfg))
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./kiteauth.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "override logger.level (debug, info, warn, error)")
	rootCmd.SetVersionTemplate(`{{printf "%s version %s\n" .Name .Version}}`)

	rootCmd.AddCommand(newLoginCmd())
	rootCmd.AddCommand(newMailboxCmd())
	rootCmd.AddCommand(newCallbackCmd())
	return rootCmd
}

// Execute runs the command tree with ctx, logging any failure.
func Execute(ctx context.Context) error {
	rootCmd := NewRootCommand()
	err := rootCmd.ExecuteContext(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		observability.GetLogger().Error("Command execution failed", zap.Error(err))
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	observability.Sync()
	return err
}

// initializeConfig reads the config file and environment into v. Flags of
// the running command are bound so they override both.
func initializeConfig(cmd *cobra.Command, v *viper.Viper) error {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home + "/.config/kiteauth")
		}
		v.SetConfigName("kiteauth")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("KITEAUTH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	for key, flag := range flagBindings {
		if f := cmd.Flags().Lookup(flag); f != nil && f.Changed {
			if err := v.BindPFlag(key, f); err != nil {
				return fmt.Errorf("failed to bind flag %s: %w", flag, err)
			}
		}
	}
	return nil
}

// flagBindings maps config keys to the command flags that override them.
var flagBindings = map[string]string{
	"browser.headless": "headless",
	"portal.username":  "username",
	"portal.login_url": "login-url",
	"mailbox.provider": "provider",
	"mailbox.identity": "mailbox",
	"otp.timeout":      "otp-timeout",
	"callback.enabled": "callback",
	"callback.addr":    "addr",
	"logger.level":     "log-level",
}

// getConfigFromContext returns the configuration stored by PersistentPreRunE.
func getConfigFromContext(ctx context.Context) (*config.Config, error) {
	cfg, ok := ctx.Value(configKey).(*config.Config)
	if !ok || cfg == nil {
		return nil, errors.New("configuration not found in context")
	}
	return cfg, nil
}
