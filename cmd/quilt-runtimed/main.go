// Command quilt-runtimed runs the Quilt Mesh Runtime (spec.md §4.3): the
// privileged, per-host service that mutates kernel route state on behalf
// of the Agent, reachable over net/rpc.
package main

import (
	"context"
	"fmt"
	"net/netip"
	"os"
	"os/signal"
	"syscall"

	"github.com/ariacomputecompany/quiltc/internal/cliexit"
	"github.com/ariacomputecompany/quiltc/internal/logging"
	"github.com/ariacomputecompany/quiltc/internal/netdefaults"
	"github.com/ariacomputecompany/quiltc/internal/runtimed"
	"github.com/ariacomputecompany/quiltc/internal/runtimed/netlinkops"
	runtimerpc "github.com/ariacomputecompany/quiltc/internal/runtimed/rpc"

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
		rpcAddr  string
		logLevel string
	)

	cmd := &cobra.Command{
		Use:           "quilt-runtimed",
		Short:         "Quilt Mesh Runtime",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := logging.Configure(logLevel); err != nil {
				return cliexit.Init(fmt.Errorf("configure logging: %w", err))
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return cliexit.Init(run(ctx, rpcAddr))
		},
	}

	// --rpc-addr is this repo's name for the Runtime's bind address; the
	// transport is net/rpc rather than gRPC (spec.md §1 scopes Protocol
	// Buffers codegen out). --grpc-addr is accepted as an alias that sets
	// the same address.
	cmd.Flags().StringVar(&rpcAddr, "rpc-addr", netdefaults.RuntimeRPCAddr, "RPC listen address")
	cmd.Flags().StringVar(&rpcAddr, "grpc-addr", netdefaults.RuntimeRPCAddr, "Alias for --rpc-addr")
	cmd.Flags().StringVar(&logLevel, "log-level", logging.LevelInfo, "Log level (debug, info, warn, error)")
	return cmd
}

func run(ctx context.Context, rpcAddr string) error {
	umbrella, err := netip.ParsePrefix(netdefaults.UmbrellaCIDR)
	if err != nil {
		return fmt.Errorf("parse umbrella cidr: %w", err)
	}

	kernel := netlinkops.New()
	rt := runtimed.New(umbrella, kernel)
	svc := runtimerpc.NewService(rt)

	server, err := runtimerpc.Listen(rpcAddr, svc)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	<-ctx.Done()
	return server.Shutdown()
}
