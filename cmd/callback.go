// File: cmd/callback.go
package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/kiteauth/internal/config"
	"github.com/xkilldash9x/kiteauth/internal/kite"
)

func newCallbackCmd() *cobra.Command {
	callbackCmd := &cobra.Command{
		Use:   "callback",
		Short: "Runs the redirect listener that receives the request token",
	}

	var once bool
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serves the redirect path and records each request token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := getConfigFromContext(cmd.Context())
			if err != nil {
				return err
			}
			return runCallbackServe(cmd.Context(), cmd.OutOrStdout(), cfg, once)
		},
	}
	serveCmd.Flags().String("addr", "", "listen address (overrides callback.addr)")
	serveCmd.Flags().BoolVar(&once, "once", false, "stop after the first redirect")
	callbackCmd.AddCommand(serveCmd)
	return callbackCmd
}

func runCallbackServe(ctx context.Context, out io.Writer, cfg *config.Config, once bool) error {
	loginURL, _ := kite.ResolveLoginURL(cfg.Portal())
	srv := newCallbackServer(cfg, loginURL)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.ListenAndServe(gctx) })

	fmt.Fprintf(out, "Listening on http://%s%s\n", cfg.Callback().Addr, cfg.Callback().Path)
	if loginURL != "" {
		fmt.Fprintf(out, "Log in at %s\n", loginURL)
	}

	if once {
		g.Go(func() error {
			defer cancel()
			h, err := srv.Wait(gctx, 0)
			if err != nil {
				return nil
			}
			fmt.Fprintf(out, "Request token received (exchanged: %t)\n", h.Exchanged())
			return nil
		})
	}
	return g.Wait()
}
