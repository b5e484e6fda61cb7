// Command quilt-agent runs the Quilt Mesh Agent (spec.md §4.2): the
// per-host reconciliation loop that registers with the Controller, brings
// up the overlay device, and keeps peer routes and FDB entries in sync.
package main

import (
	"fmt"
	"net/netip"
	"os"
	"os/signal"
	"syscall"

	"github.com/ariacomputecompany/quiltc/internal/agent"
	"github.com/ariacomputecompany/quiltc/internal/agent/overlaylink"
	"github.com/ariacomputecompany/quiltc/internal/cliexit"
	"github.com/ariacomputecompany/quiltc/internal/controlclient"
	"github.com/ariacomputecompany/quiltc/internal/logging"
	"github.com/ariacomputecompany/quiltc/internal/netdefaults"
	"github.com/ariacomputecompany/quiltc/internal/runtimeclient"

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
		controlPlane string
		hostIP       string
		hostname     string
		runtimeAddr  string
		logLevel     string
	)

	cmd := &cobra.Command{
		Use:           "quilt-agent",
		Short:         "Quilt Mesh Agent",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cliexit.Init(runAgent(cmd, controlPlane, hostIP, hostname, runtimeAddr, logLevel))
		},
	}

	cmd.Flags().StringVar(&controlPlane, "control-plane", "http://"+netdefaults.ControllerListenAddr, "Controller base URL")
	cmd.Flags().StringVar(&hostIP, "host-ip", "", "This host's underlay IP address")
	cmd.Flags().StringVar(&hostname, "hostname", "", "Hostname to register (defaults to os.Hostname)")
	cmd.Flags().StringVar(&runtimeAddr, "runtime-addr", netdefaults.RuntimeRPCAddr, "Local Runtime RPC address")
	cmd.Flags().StringVar(&logLevel, "log-level", logging.LevelInfo, "Log level (debug, info, warn, error)")
	_ = cmd.MarkFlagRequired("host-ip")
	return cmd
}

func runAgent(cmd *cobra.Command, controlPlane, hostIP, hostname, runtimeAddr, logLevel string) error {
	if err := logging.Configure(logLevel); err != nil {
		return fmt.Errorf("configure logging: %w", err)
	}

	hn := hostname
	if hn == "" {
		h, err := os.Hostname()
		if err != nil {
			return fmt.Errorf("determine hostname: %w", err)
		}
		hn = h
	}
	addr, err := netip.ParseAddr(hostIP)
	if err != nil {
		return fmt.Errorf("parse --host-ip: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := agent.New(agent.Config{
		Hostname:          hn,
		HostIP:            addr,
		Iface:             netdefaults.VXLANInterface,
		VNI:               netdefaults.VXLANVNI,
		Port:              netdefaults.VXLANPort,
		MTU:               1450,
		HeartbeatInterval: netdefaults.HeartbeatInterval,
		PeerSyncInterval:  netdefaults.PeerSyncInterval,
	},
		controlclient.New(controlPlane, netdefaults.RPCTimeout),
		runtimeclient.New(runtimeAddr, netdefaults.RPCTimeout),
		overlaylink.New(),
	)
	return a.Run(ctx)
}
