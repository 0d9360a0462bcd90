package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

func newRefreshCmd(opts *rootOptions) *cobra.Command {
	var quiet bool

	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Refresh the access token now",
		Long: `Exchange the stored access token for a new one, regardless of how long
it has left. A rejected token ends the session.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := opts.app
			ctx := cmd.Context()

			mgr := a.sessionManager(nil, a.loading(!quiet))
			defer mgr.Close()
			if err := mgr.Start(ctx); err != nil {
				return fmt.Errorf("failed to load session: %w", err)
			}
			if mgr.Session() == nil {
				return notSignedIn()
			}

			if !mgr.ManualRefresh(ctx, !quiet) {
				if a.sessionEnded() {
					return errors.New("session ended, sign in again")
				}
				return errors.New("token refresh failed, try again later")
			}

			if !quiet {
				pterm.Success.WithWriter(a.out).Printfln("Session refreshed, expires in %s", mgr.TimeUntilExpiry().Round(time.Second))
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Suppress the loading indicator and output")

	return cmd
}
