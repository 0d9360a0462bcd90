package main

import (
	"context"
	"errors"

	"github.com/pterm/pterm"
	"github.com/s155cp/memberctl/pkg/auth"
	"github.com/s155cp/memberctl/pkg/auth/storage"
	"github.com/s155cp/memberctl/pkg/logger"
	"github.com/spf13/cobra"
)

func newLogoutCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and remove the stored session",
		Long: `Revoke the current token on the server (best effort) and remove the
locally stored session.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := opts.app
			ctx := cmd.Context()

			session, err := a.store.Load(ctx)
			switch {
			case errors.Is(err, storage.ErrNotFound):
				pterm.Info.WithWriter(a.out).Println("Not signed in")
				return nil
			case err != nil:
				return err
			}

			if err := a.client.Logout(ctx, session.Access); err != nil {
				a.log.Warn("server logout failed", logger.Error(err))
			}

			quiet := auth.NavigatorFunc(func(_ context.Context, _ string) error { return nil })
			withMember := auth.WithEventHandler(func(ev auth.Event) {
				if ev.User == nil {
					ev.User = session.User
				}
				a.recordEvent(ev)
			})
			mgr := a.sessionManager(quiet, nil, withMember)
			defer mgr.Close()
			mgr.Logout(ctx)

			pterm.Success.WithWriter(a.out).Printfln("Signed out %s", describeMember(session.User))
			return nil
		},
	}
}
