// Package main implements memberctl, the command-line client for the club
// membership API.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Version is set at build time
	version = "0.1.0"
	// BuildDate is set at build time
	buildDate = "unknown"
)

const cliName = "memberctl"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// rootOptions carries the global flags and the app built from them.
type rootOptions struct {
	configPath string
	verbose    bool
	debug      bool

	app *app
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   cliName,
		Short: "memberctl - sign in to the club membership API and keep the session alive",
		Long: `memberctl signs a member in to the club membership API, stores the
session locally and refreshes the access token before it expires.

Settings are read from the config file, MEMBERCTL_* environment variables
and flags, in increasing order of precedence.`,
		Version:       fmt.Sprintf("%s (built %s)", version, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, opts)
			if err != nil {
				return err
			}
			opts.app = a
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if opts.app != nil {
				opts.app.close()
			}
			return nil
		},
	}

	// Add global flags
	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "Path to the config file")
	flags.String("api-url", "", "Membership API base URL")
	flags.String("storage", "", "Session storage (file, keyring, memory)")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "Enable verbose output")
	flags.BoolVarP(&opts.debug, "debug", "d", false, "Enable debug mode")

	// Add subcommands
	cmd.AddCommand(newLoginCmd(opts))
	cmd.AddCommand(newLogoutCmd(opts))
	cmd.AddCommand(newStatusCmd(opts))
	cmd.AddCommand(newRefreshCmd(opts))
	cmd.AddCommand(newSessionCmd(opts))
	cmd.AddCommand(newDesignationsCmd(opts))

	return cmd
}
