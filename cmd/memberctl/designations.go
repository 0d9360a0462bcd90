package main

import (
	"context"
	"fmt"

	"github.com/s155cp/memberctl/pkg/auth"
	"github.com/s155cp/memberctl/pkg/cache"
	"github.com/s155cp/memberctl/pkg/output"
	"github.com/spf13/cobra"
)

func newDesignationsCmd(opts *rootOptions) *cobra.Command {
	var (
		format  string
		noCache bool
	)

	cmd := &cobra.Command{
		Use:   "designations",
		Short: "List club designations",
		Long: `List the designations a member can hold. The request is authorized with
the stored session and retried once after a refresh if the token is
rejected.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := opts.app
			ctx := cmd.Context()

			mgr := a.sessionManager(nil, nil)
			defer mgr.Close()
			if err := mgr.Start(ctx); err != nil {
				return fmt.Errorf("failed to load session: %w", err)
			}
			if mgr.Session() == nil {
				return notSignedIn()
			}

			api, err := auth.NewClient(a.cfg.APIURL,
				auth.WithHTTPClient(auth.NewAuthenticatedClient(nil, mgr)),
				auth.WithClientLogger(a.log),
			)
			if err != nil {
				return err
			}

			responses := a.responses
			if noCache {
				responses = nil
			}
			options, err := cache.Fetch(ctx, responses, a.cfg.APIURL+auth.PathDesignations, a.cfg.Cache.TTL,
				func(ctx context.Context) ([]auth.Option, error) { return api.Designations(ctx, nil) })
			if err != nil {
				return fmt.Errorf("failed to list designations: %w", err)
			}

			m := output.NewManager()
			m.SetOutput(a.out)
			m.GetConfig().WithColumns(output.Column{Field: "label", Header: "DESIGNATION"})
			if len(options) == 0 {
				_, err := fmt.Fprintln(a.out, "No designations found")
				return err
			}
			return m.Print(options, format)
		},
	}

	cmd.Flags().StringVarP(&format, "output", "o", "table", "Output format (table, json, yaml)")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "Always fetch from the API")

	return cmd
}
