// Package agent implements the per-host Agent loop (spec.md §4.2):
// register with the Controller, bring up the overlay device, configure the
// node's subnet on the Runtime, then loop heartbeating and syncing peer
// routes/FDB entries until told to stop.
//
// Grounded on the teacher's internal/daemon/reconcile/worker.go shape: a
// single Run(ctx) loop driven by tickers, with retry-with-backoff around
// the steps that depend on a remote service being reachable.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"net/netip"
	"time"

	"github.com/ariacomputecompany/quiltc/internal/agent/overlaylink"
	"github.com/ariacomputecompany/quiltc/internal/controlclient"
	"github.com/ariacomputecompany/quiltc/internal/runtimeclient"
)

// Config is everything the Agent needs to start. cmd/quilt-agent fills
// Hostname and HostIP from its flags and the device and interval fields
// from internal/netdefaults; it leaves CPUCores and RAMMB at zero.
type Config struct {
	Hostname string
	HostIP   netip.Addr
	CPUCores int
	RAMMB    int

	Iface string
	VNI   int
	Port  int
	MTU   int

	HeartbeatInterval time.Duration
	PeerSyncInterval  time.Duration
}

// Agent runs the per-host reconciliation loop against a Controller client,
// a Runtime client, and an overlay link implementation.
type Agent struct {
	cfg     Config
	control *controlclient.Client
	runtime *runtimeclient.Client
	link    overlaylink.Link

	nodeID string
	subnet string

	knownPeers map[string]string // node_id -> subnet, for route teardown on peer loss
}

func New(cfg Config, control *controlclient.Client, runtime *runtimeclient.Client, link overlaylink.Link) *Agent {
	return &Agent{
		cfg:        cfg,
		control:    control,
		runtime:    runtime,
		link:       link,
		knownPeers: make(map[string]string),
	}
}

// Run implements spec.md §4.2's startup sequence followed by the steady
// state heartbeat/peer-sync loop. It returns only when ctx is cancelled or
// an unrecoverable error occurs.
func (a *Agent) Run(ctx context.Context) error {
	log := slog.With("component", "agent", "hostname", a.cfg.Hostname)

	if err := a.bootstrap(ctx, log); err != nil {
		return err
	}

	heartbeat := time.NewTicker(a.cfg.HeartbeatInterval)
	defer heartbeat.Stop()
	peerSync := time.NewTicker(a.cfg.PeerSyncInterval)
	defer peerSync.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-heartbeat.C:
			a.doHeartbeat(ctx, log)
		case <-peerSync.C:
			a.doPeerSync(ctx, log)
		}
	}
}

// bootstrap implements the register -> device bring-up -> subnet configure
// sequence, retrying registration with backoff since the Controller may not
// be up yet when the Agent starts.
func (a *Agent) bootstrap(ctx context.Context, log *slog.Logger) error {
	if err := a.registerWithRetry(ctx, log); err != nil {
		return err
	}

	if err := a.link.EnsureDevice(overlaylink.Config{
		Iface:     a.cfg.Iface,
		VNI:       a.cfg.VNI,
		Port:      a.cfg.Port,
		LocalVTEP: a.cfg.HostIP,
		MTU:       a.cfg.MTU,
	}); err != nil {
		return fmt.Errorf("bring up overlay device: %w", err)
	}

	ok, errMsg, err := a.runtime.ConfigureNodeSubnet(a.subnet)
	if err != nil {
		return fmt.Errorf("configure node subnet: %w", err)
	}
	if !ok {
		return fmt.Errorf("runtime rejected subnet %s: %s", a.subnet, errMsg)
	}

	log.Info("bootstrap complete", "node_id", a.nodeID, "subnet", a.subnet)
	a.doPeerSync(ctx, log)
	return nil
}

func (a *Agent) registerWithRetry(ctx context.Context, log *slog.Logger) error {
	backoff := time.Second
	const maxBackoff = 30 * time.Second
	for {
		nodeID, subnet, err := a.control.Register(ctx, a.cfg.Hostname, a.cfg.HostIP.String(), a.cfg.CPUCores, a.cfg.RAMMB)
		if err == nil {
			a.nodeID, a.subnet = nodeID, subnet
			return nil
		}
		log.Warn("registration failed, retrying", "err", err, "backoff", backoff)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// doHeartbeat implements spec.md §4.2's heartbeat task. On UnknownNode it
// re-registers, re-runs the startup sequence from ConfigureNodeSubnet
// onward with the (possibly new) subnet, and removes every route in
// knownPeers and clears it before the next doPeerSync re-adds the current
// peer set (spec.md §4.2's re-registration note).
func (a *Agent) doHeartbeat(ctx context.Context, log *slog.Logger) {
	err := a.control.Heartbeat(ctx, a.nodeID)
	if err == nil {
		return
	}
	if err == controlclient.ErrUnknownNode {
		log.Warn("controller forgot this node, re-registering")
		if rerr := a.registerWithRetry(ctx, log); rerr != nil {
			log.Error("re-registration failed", "err", rerr)
			return
		}
		ok, errMsg, cerr := a.runtime.ConfigureNodeSubnet(a.subnet)
		if cerr != nil {
			log.Error("configure node subnet failed after re-registration", "err", cerr)
			return
		}
		if !ok {
			log.Error("runtime rejected subnet after re-registration", "subnet", a.subnet, "reason", errMsg)
			return
		}
		for nodeID, subnet := range a.knownPeers {
			if ok, errMsg, rerr := a.runtime.RemoveRoute(subnet); rerr != nil {
				log.Error("remove route failed after re-registration", "peer", nodeID, "subnet", subnet, "err", rerr)
			} else if !ok {
				log.Error("runtime rejected route removal after re-registration", "peer", nodeID, "subnet", subnet, "reason", errMsg)
			}
		}
		a.knownPeers = make(map[string]string)
		a.doPeerSync(ctx, log)
		return
	}
	log.Error("heartbeat failed", "err", err)
}

// doPeerSync implements spec.md §4.2's peer diff step: list live peers from
// the Controller, then reconcile routes and FDB entries to match exactly.
// RemoveRoute for a departing peer is issued before its FDB entry is
// deleted (spec.md §5: otherwise overlay traffic briefly encapsulates with
// nowhere to be delivered), and InjectRoute is re-issued for the entire
// desired set every cycle rather than only for newly seen peers, so the
// Agent self-heals if a route is dropped out from under it at the kernel
// level (spec.md §4.2).
func (a *Agent) doPeerSync(ctx context.Context, log *slog.Logger) {
	peers, err := a.control.ListNodes(ctx)
	if err != nil {
		log.Error("list nodes failed", "err", err)
		return
	}

	desired := make(map[string]string, len(peers))
	vteps := make([]netip.Addr, 0, len(peers))
	for _, p := range peers {
		if p.NodeID == a.nodeID || p.Status != "up" {
			continue
		}
		desired[p.NodeID] = p.Subnet
		if vtep, perr := netip.ParseAddr(p.HostIP); perr == nil {
			vteps = append(vteps, vtep)
		}
	}

	for nodeID, subnet := range a.knownPeers {
		if _, stillDesired := desired[nodeID]; stillDesired {
			continue
		}
		if ok, errMsg, err := a.runtime.RemoveRoute(subnet); err != nil {
			log.Error("remove route failed", "peer", nodeID, "subnet", subnet, "err", err)
		} else if !ok {
			log.Error("runtime rejected route removal", "peer", nodeID, "subnet", subnet, "reason", errMsg)
		}
	}

	if err := a.link.SyncPeers(a.cfg.Iface, vteps); err != nil {
		log.Error("sync fdb entries failed", "err", err)
	}

	for nodeID, subnet := range desired {
		if ok, errMsg, err := a.runtime.InjectRoute(subnet, a.cfg.Iface); err != nil {
			log.Error("inject route failed", "peer", nodeID, "subnet", subnet, "err", err)
		} else if !ok {
			log.Error("runtime rejected route", "peer", nodeID, "subnet", subnet, "reason", errMsg)
		}
	}

	a.knownPeers = desired
}
