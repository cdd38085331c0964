package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/sdsverify/internal/fakesds"
	"github.com/roach88/sdsverify/internal/store"
)

const shutdownTimeout = 5 * time.Second

// FakeServerOptions holds flags for the fake-server command.
type FakeServerOptions struct {
	*RootOptions
	Addr         string
	Secret       string
	ClientID     string
	ClientSecret string
	TenantID     string
	Database     string

	// Ready is called with the bound address once the listener is open
	// (for testing).
	Ready func(addr string)
}

// NewFakeServerCommand creates the fake-server command.
func NewFakeServerCommand(rootOpts *RootOptions) *cobra.Command {
	return newFakeServerCommand(&FakeServerOptions{RootOptions: rootOpts})
}

func newFakeServerCommand(opts *FakeServerOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fake-server",
		Short: "Serve a local fake of the SDS REST API",
		Long: `Serve the SDS REST surface used by the run command over a SQLite store.

Tokens are issued at /identity/connect/token for the configured client
credentials and signed with --secret. Point a settings document's
Resource at the server to run verifications locally.

Examples:
  sdsverify fake-server --addr :8089 --secret dev-signing-key
  sdsverify fake-server --db ./fakesds.db --client-id ci --client-secret ci-secret`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFakeServer(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", ":8089", "listen address")
	cmd.Flags().StringVar(&opts.Secret, "secret", "", "token signing key (required)")
	cmd.Flags().StringVar(&opts.ClientID, "client-id", "sdsverify", "accepted client id")
	cmd.Flags().StringVar(&opts.ClientSecret, "client-secret", "sdsverify", "accepted client secret")
	cmd.Flags().StringVar(&opts.TenantID, "tenant", "", "only serve this tenant (default any)")
	cmd.Flags().StringVar(&opts.Database, "db", ":memory:", "path to SQLite database")
	_ = cmd.MarkFlagRequired("secret")

	return cmd
}

func runFakeServer(opts *FakeServerOptions, cmd *cobra.Command) error {
	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr())

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			logger.Error("error closing database", "error", closeErr)
		}
	}()

	handler, err := fakesds.New(st, fakesds.Options{
		ClientID:     opts.ClientID,
		ClientSecret: opts.ClientSecret,
		SigningKey:   []byte(opts.Secret),
		TenantID:     opts.TenantID,
		Logger:       logger,
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid server options", err)
	}

	ln, err := net.Listen("tcp", opts.Addr)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to listen", err)
	}

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	addr := ln.Addr().String()
	logger.Info("fake SDS listening", "addr", addr, "db", opts.Database)
	fmt.Fprintf(cmd.OutOrStdout(), "Fake SDS listening on %s. Press Ctrl-C to stop.\n", addr)
	if opts.Ready != nil {
		opts.Ready(addr)
	}

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return WrapExitError(ExitFailure, "server error", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return WrapExitError(ExitFailure, "shutdown failed", err)
	}
	logger.Info("fake SDS stopped")
	return nil
}
