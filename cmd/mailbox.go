// File: cmd/mailbox.go
package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/xkilldash9x/kiteauth/internal/config"
	"github.com/xkilldash9x/kiteauth/internal/mailbox"
	"github.com/xkilldash9x/kiteauth/internal/observability"
	"github.com/xkilldash9x/kiteauth/internal/otp"
)

func newMailboxCmd() *cobra.Command {
	mailboxCmd := &cobra.Command{
		Use:   "mailbox",
		Short: "Checks and authorizes access to the OTP mailbox",
	}
	mailboxCmd.AddCommand(newMailboxCheckCmd())
	mailboxCmd.AddCommand(newMailboxAuthorizeCmd())
	return mailboxCmd
}

func newMailboxCheckCmd() *cobra.Command {
	var (
		limit int64
		all   bool
	)
	checkCmd := &cobra.Command{
		Use:   "check",
		Short: "Lists recent unread messages the OTP search would see",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := getConfigFromContext(cmd.Context())
			if err != nil {
				return err
			}
			return runMailboxCheck(cmd.Context(), cmd.OutOrStdout(), cfg, limit, all)
		},
	}
	checkCmd.Flags().Int64Var(&limit, "limit", 5, "maximum messages to list")
	checkCmd.Flags().BoolVar(&all, "all", false, "list all unread mail instead of applying the OTP sender and subject filters")
	checkCmd.Flags().String("provider", "", "mailbox provider: gmail or imap")
	return checkCmd
}

func runMailboxCheck(ctx context.Context, out io.Writer, cfg *config.Config, limit int64, all bool) error {
	mb, err := newMailbox(ctx, cfg.Mailbox())
	if err != nil {
		return authHint(fmt.Errorf("failed to open mailbox: %w", err))
	}
	defer closeMailbox(mb, observability.GetLogger().Named("cmd"))

	o := cfg.OTP()
	q := mailbox.Query{UnreadOnly: true, MaxResults: limit}
	if !all {
		q.Sender = o.Sender
		q.Subject = o.Subject
		q.NewerThanMinutes = o.WindowMinutes
	}

	ids, err := mb.Search(ctx, q)
	if err != nil {
		return authHint(fmt.Errorf("mailbox search failed: %w", err))
	}
	fmt.Fprintf(out, "Query: %s\n", q)
	fmt.Fprintf(out, "Found %d unread message(s)\n", len(ids))

	for i, id := range ids {
		if int64(i) >= limit {
			break
		}
		msg, err := mb.Fetch(ctx, id)
		if err != nil {
			if mailbox.IsFatal(err) {
				return authHint(err)
			}
			fmt.Fprintf(out, "- %s: fetch failed: %v\n", id, err)
			continue
		}
		fmt.Fprintf(out, "- %s  %s  %s\n", msg.Timestamp.Local().Format("2006-01-02 15:04:05"), msg.From, msg.Subject)
		if code, ok := otp.Extract(msg.Subject + "\n" + msg.Snippet); ok {
			fmt.Fprintf(out, "  code: %s\n", code)
		}
	}
	return nil
}

func authHint(err error) error {
	if mailbox.IsAuthError(err) {
		return fmt.Errorf("%w (run `kiteauth mailbox authorize` to refresh the token)", err)
	}
	return err
}

func newMailboxAuthorizeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "authorize",
		Short: "Runs the Gmail consent flow and stores a refreshable token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := getConfigFromContext(cmd.Context())
			if err != nil {
				return err
			}
			return runMailboxAuthorize(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), cfg.Mailbox())
		},
	}
}

func runMailboxAuthorize(ctx context.Context, in io.Reader, out io.Writer, cfg config.MailboxConfig) error {
	if !strings.EqualFold(cfg.Provider, "gmail") {
		return fmt.Errorf("authorize applies to the gmail provider, not %q", cfg.Provider)
	}
	oauthCfg, err := mailbox.LoadOAuthConfig(cfg.CredentialsPath)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Open this URL, approve access and paste the authorization code:\n\n%s\n\ncode: ", mailbox.AuthCodeURL(oauthCfg, uuid.NewString()))
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return fmt.Errorf("failed to read authorization code: %w", err)
	}
	code := strings.TrimSpace(line)
	if code == "" {
		return fmt.Errorf("no authorization code entered")
	}

	if _, err := mailbox.ExchangeCode(ctx, oauthCfg, code, cfg.TokenPath); err != nil {
		return err
	}
	fmt.Fprintf(out, "\nToken saved to %s\n", cfg.TokenPath)
	return nil
}
