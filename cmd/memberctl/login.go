package main

import (
	"errors"
	"fmt"

	"github.com/pterm/pterm"
	"github.com/s155cp/memberctl/pkg/auth"
	"github.com/s155cp/memberctl/pkg/auth/types"
	"github.com/s155cp/memberctl/pkg/cache"
	"github.com/s155cp/memberctl/pkg/logger"
	"github.com/spf13/cobra"
	"golang.org/x/oauth2"
)

func newLoginCmd(opts *rootOptions) *cobra.Command {
	var (
		email    string
		password string
		google   bool
		token    string
	)

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the session",
		Long: `Sign in to the membership API and store the session locally.

Methods:
  --email/--password  Sign in with club credentials (prompts for missing values)
  --google            Sign in with Google in the browser
  --token             Exchange an existing bearer token for a session`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := opts.app
			ctx := cmd.Context()

			var (
				session *types.Session
				err     error
			)
			switch {
			case token != "":
				session, err = a.client.ExchangeToken(ctx, token)
			case google:
				session, err = loginWithGoogle(cmd, a)
			default:
				if email == "" {
					if email, err = pterm.DefaultInteractiveTextInput.Show("Email"); err != nil {
						return err
					}
				}
				if password == "" {
					password, err = pterm.DefaultInteractiveTextInput.WithMask("*").Show("Password")
					if err != nil {
						return err
					}
				}
				session, err = a.client.Login(ctx, email, password)
			}
			if err != nil {
				var apiErr *auth.APIError
				if errors.As(err, &apiErr) && apiErr.Terminal() {
					return fmt.Errorf("sign-in rejected: %s", apiErr.Message)
				}
				return fmt.Errorf("sign-in failed: %w", err)
			}

			mgr := a.sessionManager(nil, nil)
			defer mgr.Close()
			if err := mgr.SetSession(ctx, session); err != nil {
				return fmt.Errorf("failed to store session: %w", err)
			}

			pterm.Success.WithWriter(a.out).Printfln("Signed in as %s", describeMember(session.User))
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "Member email")
	cmd.Flags().StringVar(&password, "password", "", "Member password")
	cmd.Flags().BoolVar(&google, "google", false, "Sign in with Google")
	cmd.Flags().StringVar(&token, "token", "", "Exchange an existing bearer token")
	cmd.MarkFlagsMutuallyExclusive("google", "token", "email")
	cmd.MarkFlagsMutuallyExclusive("google", "token", "password")

	return cmd
}

func loginWithGoogle(cmd *cobra.Command, a *app) (*types.Session, error) {
	gopts := auth.GoogleOptions{
		ClientID:     a.cfg.Google.ClientID,
		CallbackPort: a.cfg.Google.CallbackPort,
		Out:          a.errOut,
	}
	if gopts.ClientID == "" {
		remote, err := cache.Fetch(cmd.Context(), a.responses, a.cfg.APIURL+auth.PathConfig, a.cfg.Cache.TTL, a.client.Config)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch sign-in config: %w", err)
		}
		gopts.ClientID = remote.Google.ClientID
		a.log.Debug("google client id resolved", logger.String("client_id", gopts.ClientID))
	}
	if a.cfg.Google.OpenBrowser {
		gopts.Opener = &auth.SystemBrowserOpener{}
	}
	if a.cfg.Google.AuthURL != "" {
		gopts.Endpoint = oauth2.Endpoint{
			AuthURL:   a.cfg.Google.AuthURL,
			TokenURL:  a.cfg.Google.TokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		}
	}

	g, err := auth.NewGoogleLogin(a.client, gopts)
	if err != nil {
		return nil, err
	}
	if !a.cfg.Google.OpenBrowser {
		fmt.Fprintln(a.errOut, "Open the URL below in a browser to continue.")
	}
	return g.Login(cmd.Context())
}
