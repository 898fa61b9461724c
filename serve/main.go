// Command runod is the runo daemon.
// It listens on a Unix domain socket, and optionally on HTTP, for verse
// requests and answers them from the configured character model.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	runo "github.com/Paranoid-AF/runo"
)

// Version is set at build time via -ldflags.
var Version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		verbose    bool
		socketPath string
		httpAddr   string
	)

	cmd := &cobra.Command{
		Use:           "runod",
		Short:         "Serve verses from a character model",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			setupLogging(verbose)

			cfg, err := runo.LoadConfig()
			if err != nil {
				slog.Warn("failed to load config, using defaults", "error", err)
				cfg = runo.DefaultConfig()
			}
			if socketPath == "" {
				socketPath = runo.ResolveSocketPath(cfg)
			}
			if httpAddr == "" {
				httpAddr = cfg.Server.HTTPAddr
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return run(ctx, socketPath, httpAddr)
		},
	}
	cmd.SetVersionTemplate("runod {{.Version}}\n")

	cmd.Flags().BoolVar(&verbose, "verbose", false, "log every request and response")
	cmd.Flags().StringVar(&socketPath, "socket", "", "Unix socket path (default from $RUNO_SOCKET or config)")
	cmd.Flags().StringVar(&httpAddr, "http", "", "also serve HTTP on this address, e.g. 127.0.0.1:8080")
	return cmd
}

func setupLogging(verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

// run serves until ctx is done or a listener fails.
func run(ctx context.Context, socketPath, httpAddr string) error {
	slog.Info("starting", "socket", socketPath, "http", httpAddr)

	var ln net.Listener
	if httpAddr != "" {
		var err error
		ln, err = net.Listen("tcp", httpAddr)
		if err != nil {
			return fmt.Errorf("listen %s: %w", httpAddr, err)
		}
	}

	srv, err := NewServer(socketPath)
	if err != nil {
		if ln != nil {
			ln.Close()
		}
		return fmt.Errorf("start socket server: %w", err)
	}
	defer srv.Close()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := srv.Serve()
		if ctx.Err() != nil && errors.Is(err, net.ErrClosed) {
			return nil
		}
		return err
	})

	var hs *HTTPServer
	if ln != nil {
		hs = NewHTTPServer(httpAddr, srv)
		g.Go(func() error { return hs.Serve(ln) })
	}

	g.Go(func() error {
		<-ctx.Done()
		slog.Info("shutting down")
		srv.listener.Close()
		if hs != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return hs.Shutdown(shutdownCtx)
		}
		return nil
	})

	slog.Info("ready")
	return g.Wait()
}
