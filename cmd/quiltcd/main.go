// Command quiltcd runs the Quilt Mesh Controller (spec.md §4.1): the
// cluster's subnet allocator and node registry, exposed over HTTP/JSON.
package main

import (
	"context"
	"fmt"
	"net/http"
	"net/netip"
	"os"
	"os/signal"
	"syscall"

	"github.com/ariacomputecompany/quiltc/internal/cliexit"
	"github.com/ariacomputecompany/quiltc/internal/controller"
	"github.com/ariacomputecompany/quiltc/internal/controller/httpapi"
	"github.com/ariacomputecompany/quiltc/internal/controller/store/sqlitestore"
	"github.com/ariacomputecompany/quiltc/internal/logging"
	"github.com/ariacomputecompany/quiltc/internal/netdefaults"

	"github.com/spf13/cobra"
)

func main() {
	err := rootCmd().Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
	}
	os.Exit(cliexit.Code(err))
}

func rootCmd() *cobra.Command {
	var (
		listen   string
		dbPath   string
		logLevel string
	)

	cmd := &cobra.Command{
		Use:           "quiltcd",
		Short:         "Quilt Mesh Controller",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := logging.Configure(logLevel); err != nil {
				return cliexit.Init(fmt.Errorf("configure logging: %w", err))
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return cliexit.Init(run(ctx, listen, dbPath))
		},
	}

	cmd.Flags().StringVar(&listen, "listen", netdefaults.ControllerListenAddr, "HTTP listen address")
	cmd.Flags().StringVar(&dbPath, "db-path", netdefaults.ControllerDBPath, "Path to the controller's sqlite database")
	cmd.Flags().StringVar(&logLevel, "log-level", logging.LevelInfo, "Log level (debug, info, warn, error)")
	return cmd
}

func run(ctx context.Context, listen, dbPath string) error {
	umbrella, err := netip.ParsePrefix(netdefaults.UmbrellaCIDR)
	if err != nil {
		return fmt.Errorf("parse umbrella cidr: %w", err)
	}

	st, err := sqlitestore.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	svc, err := controller.New(st, umbrella, netdefaults.HeartbeatTimeout)
	if err != nil {
		return fmt.Errorf("start controller: %w", err)
	}

	go svc.RunReaper(ctx, netdefaults.ReaperInterval)

	server := &http.Server{Addr: listen, Handler: httpapi.NewRouter(svc)}
	serveErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), netdefaults.RPCTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-serveErr:
		return fmt.Errorf("http server: %w", err)
	}
}
