package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pterm/pterm"
	"github.com/s155cp/memberctl/pkg/auth"
	"github.com/s155cp/memberctl/pkg/logger"
	"github.com/s155cp/memberctl/pkg/output"
	"github.com/spf13/cobra"
)

// errSessionEnded is returned by keepalive when the session is forcibly ended.
var errSessionEnded = errors.New("session ended")

func newSessionCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Manage the session lifecycle",
	}

	cmd.AddCommand(newKeepaliveCmd(opts))
	cmd.AddCommand(newHistoryCmd(opts))

	return cmd
}

func newKeepaliveCmd(opts *rootOptions) *cobra.Command {
	var (
		openLogin bool
		interval  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "keepalive",
		Short: "Keep the session alive until interrupted",
		Long: `Run the refresh cycle in the foreground. The access token is refreshed
before it expires and transient failures are retried. The command exits
cleanly on Ctrl+C and with an error if the session is ended.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := opts.app

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			var nav auth.Navigator
			if openLogin {
				b := auth.NewBrowserNavigator(a.cfg.WebURL)
				b.Out = a.errOut
				nav = b
			}

			mgr := a.sessionManager(nav, nil)
			defer mgr.Close()
			if err := mgr.Start(ctx); err != nil {
				return fmt.Errorf("failed to load session: %w", err)
			}
			if a.sessionEnded() {
				return errSessionEnded
			}
			session := mgr.Session()
			if session == nil {
				return notSignedIn()
			}

			pterm.Info.WithWriter(a.out).Printfln("Keeping %s signed in (token expires in %s). Press Ctrl+C to stop.",
				describeMember(session.User), mgr.TimeUntilExpiry().Round(time.Second))

			return keepalive(ctx, a, mgr, interval)
		},
	}

	cmd.Flags().BoolVar(&openLogin, "open-login", false, "Open the web sign-in page when the session ends")
	cmd.Flags().DurationVar(&interval, "report", 0, "Log the remaining token lifetime at this interval")

	return cmd
}

// keepalive blocks until ctx is done or the session ends.
func keepalive(ctx context.Context, a *app, mgr *auth.SessionManager, interval time.Duration) error {
	var tick <-chan time.Time
	if interval > 0 {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			pterm.Info.WithWriter(a.out).Println("Stopped")
			return nil
		case <-a.ended:
			return errSessionEnded
		case <-tick:
			a.log.Info("session alive",
				logger.Duration("expires_in", mgr.TimeUntilExpiry()),
				logger.Bool("needs_refresh", mgr.NeedsRefresh()),
			)
		}
	}
}

func newHistoryCmd(opts *rootOptions) *cobra.Command {
	var (
		limit    int
		format   string
		clearAll bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent session events",
		Long: `Show the journal of sign-ins, token refreshes, retries and sign-outs
recorded on this machine, oldest first.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := opts.app
			if a.history == nil {
				return errors.New("session history is disabled (history.enabled)")
			}

			if clearAll {
				if err := a.history.Clear(cmd.Context()); err != nil {
					return err
				}
				pterm.Success.WithWriter(a.out).Println("Session history cleared")
				return nil
			}

			entries := a.history.Recent(limit)
			if len(entries) == 0 && format == "table" {
				pterm.Info.WithWriter(a.out).Println("No session events recorded")
				return nil
			}

			m := output.NewManager()
			m.SetOutput(a.out)
			m.GetConfig().WithColumns(
				output.Column{Field: "id", Header: "ID"},
				output.Column{Field: "timestamp", Header: "TIME"},
				output.Column{Field: "event", Header: "EVENT"},
				output.Column{Field: "member", Header: "MEMBER"},
				output.Column{Field: "attempt", Header: "ATTEMPT"},
				output.Column{Field: "detail", Header: "DETAIL", Width: 60},
			)
			return m.Print(entries, format)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of events to show (0 for all)")
	cmd.Flags().StringVarP(&format, "output", "o", "table", "Output format (table, json, yaml)")
	cmd.Flags().BoolVar(&clearAll, "clear", false, "Delete the recorded history")

	return cmd
}
