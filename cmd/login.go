// File: cmd/login.go
package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/kiteauth/internal/browser"
	"github.com/xkilldash9x/kiteauth/internal/callback"
	"github.com/xkilldash9x/kiteauth/internal/config"
	"github.com/xkilldash9x/kiteauth/internal/kite"
	"github.com/xkilldash9x/kiteauth/internal/login"
	"github.com/xkilldash9x/kiteauth/internal/mailbox"
	"github.com/xkilldash9x/kiteauth/internal/observability"
	"github.com/xkilldash9x/kiteauth/internal/otp"
)

// pageSession is what a login run needs from the browser.
type pageSession interface {
	browser.Page
	Close() error
	Done() <-chan struct{}
}

// Swapped out in tests.
var (
	newPageSession = func(ctx context.Context, cfg config.BrowserConfig) (pageSession, error) {
		return browser.NewChromeSession(ctx, cfg)
	}
	newMailbox = mailbox.New
)

func newLoginCmd() *cobra.Command {
	loginCmd := &cobra.Command{
		Use:   "login",
		Short: "Logs in to Kite, reading the emailed OTP from the configured mailbox",
		Long: `Opens the Kite login page, fills the credentials, selects the email
two-factor method, polls the mailbox for the one-time passcode and enters it.
Exits non-zero unless the run completes.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := getConfigFromContext(cmd.Context())
			if err != nil {
				return err
			}
			return runLogin(cmd.Context(), cmd.OutOrStdout(), cfg)
		},
	}

	loginCmd.Flags().Bool("headless", false, "run the browser headless and close it when done")
	loginCmd.Flags().String("username", "", "Kite user id (overrides portal.username)")
	loginCmd.Flags().String("login-url", "", "explicit login URL (overrides portal.login_url)")
	loginCmd.Flags().String("provider", "", "mailbox provider: gmail or imap")
	loginCmd.Flags().String("mailbox", "", "address the OTP is delivered to")
	loginCmd.Flags().Duration("otp-timeout", 0, "how long to poll the mailbox for the OTP")
	loginCmd.Flags().Bool("callback", false, "run the redirect listener during the login")
	loginCmd.Flags().String("addr", "", "listen address for the redirect listener")
	return loginCmd
}

func runLogin(ctx context.Context, out io.Writer, cfg *config.Config) error {
	if err := cfg.ValidateForLogin(); err != nil {
		return err
	}
	loginURL, err := kite.ResolveLoginURL(cfg.Portal())
	if err != nil {
		return err
	}

	runID := uuid.NewString()
	logger := observability.GetLogger().Named("cmd").With(zap.String("run_id", runID))
	logger.Info("Starting login run.", zap.String("user", cfg.Portal().Username), zap.String("mailbox_provider", cfg.Mailbox().Provider))

	mb, err := newMailbox(ctx, cfg.Mailbox())
	if err != nil {
		return authHint(fmt.Errorf("failed to open mailbox: %w", err))
	}
	defer closeMailbox(mb, logger)

	g, gctx := errgroup.WithContext(ctx)
	listenCtx, stopListener := context.WithCancel(gctx)
	defer stopListener()

	var listener *callback.Server
	if cfg.Callback().Enabled {
		listener = newCallbackServer(cfg, loginURL)
		g.Go(func() error { return listener.ListenAndServe(listenCtx) })
	}

	var result login.Result
	g.Go(func() error {
		defer stopListener()

		session, err := newPageSession(gctx, cfg.Browser())
		if err != nil {
			return fmt.Errorf("failed to start browser: %w", err)
		}
		if cfg.Browser().Headless {
			defer func() {
				if err := session.Close(); err != nil {
					logger.Warn("Browser did not close cleanly.", zap.Error(err))
				}
			}()
		}

		machine := login.NewMachine(
			session,
			otp.NewRetriever(mb, cfg.Mailbox().MaxResults),
			otp.DefaultChain(cfg.OTP().EntryWait),
			login.OptionsFromConfig(cfg, loginURL),
		)
		result = machine.Run(gctx, login.Credential{
			Username: cfg.Portal().Username,
			Password: cfg.Portal().Password,
			Mailbox:  cfg.Mailbox().Identity,
		})
		printResult(out, result)

		if listener != nil && result.Success() {
			reportHandoff(gctx, out, listener, cfg.Callback(), logger)
		}
		if !cfg.Browser().Headless {
			holdOpen(gctx, session, cfg.Browser().HoldOpen, logger)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	if !result.Success() {
		return fmt.Errorf("%w: %s", ErrLoginFailed, result)
	}
	return nil
}

func newCallbackServer(cfg *config.Config, loginURL string) *callback.Server {
	var exchanger callback.Exchanger
	if client := kite.NewClient(cfg.Portal(), nil); client.CanExchange() {
		exchanger = client
	}
	return callback.NewServer(cfg.Callback(), loginURL, exchanger)
}

func printResult(out io.Writer, r login.Result) {
	fmt.Fprintf(out, "Result: %s\n", r)
	if r.Code != "" {
		fmt.Fprintf(out, "OTP: %s (message %s)\n", r.Code, r.MessageID)
	}
	if r.Strategy != "" {
		fmt.Fprintf(out, "Entry strategy: %s\n", r.Strategy)
	}
	if r.FinalURL != "" {
		fmt.Fprintf(out, "Final URL: %s\n", r.FinalURL)
	}
	if r.Detail != "" && !r.Success() {
		fmt.Fprintf(out, "Detail: %s\n", r.Detail)
	}
}

func reportHandoff(ctx context.Context, out io.Writer, s *callback.Server, cfg config.CallbackConfig, logger *zap.Logger) {
	h, err := s.Wait(ctx, cfg.WaitTimeout)
	if err != nil {
		logger.Warn("No redirect reached the listener.", zap.Error(err))
		return
	}
	switch {
	case h.Error != "":
		fmt.Fprintf(out, "Token exchange failed: %s\n", h.Error)
	case h.Exchanged():
		fmt.Fprintf(out, "Access token obtained for %s\n", h.UserID)
	default:
		fmt.Fprintf(out, "Request token received\n")
	}
	if cfg.HandoffPath != "" {
		fmt.Fprintf(out, "Handoff written to %s\n", cfg.HandoffPath)
	}
}

// holdOpen leaves an attended browser up for inspection until the user closes
// the window, the run is interrupted or the optional limit d passes. The
// session is never closed here.
func holdOpen(ctx context.Context, session pageSession, d time.Duration, logger *zap.Logger) {
	logger.Info("Leaving the browser open; close the window or interrupt to exit.", zap.Duration("limit", d))
	var limit <-chan time.Time
	if d > 0 {
		t := time.NewTimer(d)
		defer t.Stop()
		limit = t.C
	}
	select {
	case <-ctx.Done():
	case <-session.Done():
	case <-limit:
	}
}

func closeMailbox(mb mailbox.Mailbox, logger *zap.Logger) {
	c, ok := mb.(io.Closer)
	if !ok {
		return
	}
	if err := c.Close(); err != nil {
		logger.Debug("Mailbox close failed.", zap.Error(err))
	}
}
