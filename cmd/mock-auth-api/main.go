// Package main runs the fake membership Auth API for local development.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/s155cp/memberctl/internal/authtest"
	"github.com/s155cp/memberctl/pkg/logger"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type serveOptions struct {
	addr           string
	ttl            time.Duration
	googleClientID string
	failRefresh    []int
	logLevel       string
	logFormat      string
}

func newRootCmd() *cobra.Command {
	opts := serveOptions{}

	cmd := &cobra.Command{
		Use:   "mock-auth-api",
		Short: "Run a fake membership Auth API",
		Long: `Serve the membership Auth API endpoints (/v1/auth/*) and a fake Google
OAuth provider (/google/*) backed by memory. Tokens are signed JWTs with a
configurable lifetime, so refresh timing can be exercised with short TTLs.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			ln, err := net.Listen("tcp", opts.addr)
			if err != nil {
				return fmt.Errorf("failed to listen on %s: %w", opts.addr, err)
			}
			return serve(ctx, ln, opts, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&opts.addr, "addr", "127.0.0.1:8080", "Listen address")
	cmd.Flags().DurationVar(&opts.ttl, "ttl", authtest.DefaultTTL, "Access token lifetime")
	cmd.Flags().StringVar(&opts.googleClientID, "google-client-id", "", "Client id returned by /v1/auth/config")
	cmd.Flags().IntSliceVar(&opts.failRefresh, "fail-refresh", nil, "Status codes returned by the next refresh calls, in order")
	cmd.Flags().StringVar(&opts.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	cmd.Flags().StringVar(&opts.logFormat, "log-format", "console", "Log format (console, json)")

	return cmd
}

// serve runs the fake on ln until ctx is done.
func serve(ctx context.Context, ln net.Listener, opts serveOptions, out io.Writer) error {
	log, err := logger.New(logger.Config{Level: opts.logLevel, Format: opts.logFormat})
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	fakeOpts := []authtest.Option{authtest.WithLogger(log)}
	if opts.ttl > 0 {
		fakeOpts = append(fakeOpts, authtest.WithTTL(opts.ttl))
	}
	if opts.googleClientID != "" {
		fakeOpts = append(fakeOpts, authtest.WithGoogle(opts.googleClientID, authtest.DefaultEmail))
	}
	fake := authtest.New(fakeOpts...)
	if len(opts.failRefresh) > 0 {
		fake.FailNext(opts.failRefresh...)
	}

	base := "http://" + ln.Addr().String()
	endpoint := authtest.GoogleEndpoint(base)
	fmt.Fprintf(out, "Fake Auth API listening on %s\n", base)
	fmt.Fprintf(out, "  member:    %s / %s\n", authtest.DefaultEmail, authtest.DefaultPassword)
	fmt.Fprintf(out, "  token ttl: %s\n", opts.ttl)
	fmt.Fprintf(out, "  use with:  MEMBERCTL_API_URL=%s MEMBERCTL_GOOGLE_AUTH_URL=%s MEMBERCTL_GOOGLE_TOKEN_URL=%s\n",
		base, endpoint.AuthURL, endpoint.TokenURL)

	server := &http.Server{
		Handler:           fake.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- server.Serve(ln) }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	log.Info("fake Auth API stopped")
	return nil
}
