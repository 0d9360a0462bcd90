package main

import (
	"fmt"
	"time"

	"github.com/pterm/pterm"
	"github.com/s155cp/memberctl/pkg/auth"
	"github.com/s155cp/memberctl/pkg/auth/types"
	"github.com/s155cp/memberctl/pkg/output"
	"github.com/s155cp/memberctl/pkg/secrets"
	"github.com/spf13/cobra"
)

// sessionStatus is what `memberctl status` reports.
type sessionStatus struct {
	SignedIn     bool          `json:"signed_in" yaml:"signed_in"`
	Member       string        `json:"member,omitempty" yaml:"member,omitempty"`
	Email        string        `json:"email,omitempty" yaml:"email,omitempty"`
	Designation  string        `json:"designation,omitempty" yaml:"designation,omitempty"`
	TokenType    string        `json:"token_type,omitempty" yaml:"token_type,omitempty"`
	Token        string        `json:"token,omitempty" yaml:"token,omitempty"`
	ExpiresAt    time.Time     `json:"expires_at,omitempty" yaml:"expires_at,omitempty"`
	ExpiresIn    time.Duration `json:"expires_in,omitempty" yaml:"expires_in,omitempty"`
	NeedsRefresh bool          `json:"needs_refresh" yaml:"needs_refresh"`
	Storage      string        `json:"storage" yaml:"storage"`
}

func newStatusCmd(opts *rootOptions) *cobra.Command {
	var (
		format    string
		showToken bool
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the current session",
		Long: `Load the stored session and report who is signed in and when the
access token expires.

Loading the session starts the refresh cycle, so a token that is inside
the refresh buffer is refreshed first and an expired one ends the session.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := opts.app
			ctx := cmd.Context()

			mgr := a.sessionManager(nil, a.loading(format == "table"))
			defer mgr.Close()
			if err := mgr.Start(ctx); err != nil {
				return fmt.Errorf("failed to load session: %w", err)
			}

			status := sessionStatus{Storage: string(a.cfg.Storage.Type)}
			if session := mgr.Session(); session != nil {
				status.SignedIn = true
				status.Member = session.User.FullName()
				if session.User != nil {
					status.Email = session.User.Email
					if session.User.Designation != nil {
						status.Designation = *session.User.Designation
					}
				}
				status.TokenType = session.Access.Scheme()
				status.Token = secrets.MaskToken(session.Access.Token)
				if showToken {
					status.Token = session.Access.Token
				}
				if exp, err := auth.DecodeExpiry(session.Access.Token); err == nil {
					status.ExpiresAt = exp.UTC()
				}
				status.ExpiresIn = mgr.TimeUntilExpiry()
				status.NeedsRefresh = mgr.NeedsRefresh()
			}

			if format == "table" && !status.SignedIn {
				pterm.Info.WithWriter(a.out).Println("Not signed in")
				return nil
			}

			m := output.NewManager()
			m.SetOutput(a.out)
			return m.Print(status, format)
		},
	}

	cmd.Flags().StringVarP(&format, "output", "o", "table", "Output format (table, json, yaml)")
	cmd.Flags().BoolVar(&showToken, "show-token", false, "Print the full access token")

	return cmd
}

// describeMember renders "Name <email>", falling back to what is known.
func describeMember(u *types.User) string {
	switch {
	case u == nil:
		return "unknown member"
	case u.FullName() == "":
		return u.Email
	case u.Email == "":
		return u.FullName()
	default:
		return fmt.Sprintf("%s <%s>", u.FullName(), u.Email)
	}
}
