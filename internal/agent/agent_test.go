package agent

import (
	"context"
	"log/slog"
	"net/http/httptest"
	"net/netip"
	"testing"
	"time"

	"github.com/ariacomputecompany/quiltc/internal/agent/overlaylink"
	"github.com/ariacomputecompany/quiltc/internal/controlclient"
	"github.com/ariacomputecompany/quiltc/internal/controller"
	"github.com/ariacomputecompany/quiltc/internal/controller/httpapi"
	"github.com/ariacomputecompany/quiltc/internal/controller/store/memstore"
	"github.com/ariacomputecompany/quiltc/internal/runtimeclient"
	"github.com/ariacomputecompany/quiltc/internal/runtimed"
	runtimerpc "github.com/ariacomputecompany/quiltc/internal/runtimed/rpc"
)

type fakeLink struct {
	devices  []overlaylink.Config
	syncCall [][]netip.Addr
}

func (f *fakeLink) EnsureDevice(cfg overlaylink.Config) error {
	f.devices = append(f.devices, cfg)
	return nil
}

func (f *fakeLink) SyncPeers(iface string, peerVTEPs []netip.Addr) error {
	f.syncCall = append(f.syncCall, peerVTEPs)
	return nil
}

type fakeKernel struct {
	routeAdds []string
}

func (fakeKernel) LinkIndex(string) (int, error) { return 1, nil }
func (f *fakeKernel) RouteAdd(dest string, _ int) error {
	f.routeAdds = append(f.routeAdds, dest)
	return nil
}
func (fakeKernel) RouteDel(string) error { return nil }

func TestAgentBootstrapRegistersAndConfiguresRuntime(t *testing.T) {
	umbrella := netip.MustParsePrefix("10.42.0.0/16")
	svc, err := controller.New(memstore.New(), umbrella, 30*time.Second)
	if err != nil {
		t.Fatalf("controller.New: %v", err)
	}
	controllerSrv := httptest.NewServer(httpapi.NewRouter(svc))
	defer controllerSrv.Close()

	rt := runtimed.New(umbrella, &fakeKernel{})
	rpcSvc := runtimerpc.NewService(rt)
	rpcSrv, err := runtimerpc.Listen("127.0.0.1:0", rpcSvc)
	if err != nil {
		t.Fatalf("runtime rpc listen: %v", err)
	}
	defer rpcSrv.Shutdown()

	link := &fakeLink{}
	a := New(Config{
		Hostname:          "host-a",
		HostIP:            netip.MustParseAddr("10.0.0.1"),
		Iface:             "vxlan100",
		VNI:               100,
		Port:              4789,
		MTU:               1450,
		HeartbeatInterval: time.Hour,
		PeerSyncInterval:  time.Hour,
	},
		controlclient.New(controllerSrv.URL, 5*time.Second),
		runtimeclient.New(rpcSrv.Addr(), 5*time.Second),
		link,
	)

	if err := a.bootstrap(context.Background(), slog.Default()); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}

	if a.nodeID == "" || a.subnet == "" {
		t.Fatalf("expected node_id/subnet to be populated, got %+v", a)
	}
	if len(link.devices) != 1 || link.devices[0].Iface != "vxlan100" {
		t.Fatalf("expected overlay device to be brought up, got %+v", link.devices)
	}
	scope, ok := rt.Scope()
	if !ok || scope.String() != a.subnet {
		t.Fatalf("expected runtime scope %s, got %v ok=%v", a.subnet, scope, ok)
	}
}

func TestAgentPeerSyncInstallsRoutesForOtherLiveNodes(t *testing.T) {
	umbrella := netip.MustParsePrefix("10.42.0.0/16")
	svc, err := controller.New(memstore.New(), umbrella, 30*time.Second)
	if err != nil {
		t.Fatalf("controller.New: %v", err)
	}
	controllerSrv := httptest.NewServer(httpapi.NewRouter(svc))
	defer controllerSrv.Close()

	ctx := context.Background()
	control := controlclient.New(controllerSrv.URL, 5*time.Second)
	selfID, selfSubnet, err := control.Register(ctx, "host-a", "10.0.0.1", 1, 1)
	if err != nil {
		t.Fatalf("register self: %v", err)
	}
	if _, _, err := control.Register(ctx, "host-b", "10.0.0.2", 1, 1); err != nil {
		t.Fatalf("register peer: %v", err)
	}

	kernel := &fakeKernel{}
	rt := runtimed.New(umbrella, kernel)
	rpcSvc := runtimerpc.NewService(rt)
	rpcSrv, err := runtimerpc.Listen("127.0.0.1:0", rpcSvc)
	if err != nil {
		t.Fatalf("runtime rpc listen: %v", err)
	}
	defer rpcSrv.Shutdown()

	link := &fakeLink{}
	a := New(Config{Hostname: "host-a", HostIP: netip.MustParseAddr("10.0.0.1"), Iface: "vxlan100"},
		control, runtimeclient.New(rpcSrv.Addr(), 5*time.Second), link)
	a.nodeID = selfID
	a.subnet = selfSubnet

	a.doPeerSync(ctx, slog.Default())

	if len(a.knownPeers) != 1 {
		t.Fatalf("expected exactly one known peer, got %+v", a.knownPeers)
	}
	if len(kernel.routeAdds) != 1 || kernel.routeAdds[0] == selfSubnet {
		t.Fatalf("expected one RouteAdd for the peer's subnet only, got %+v", kernel.routeAdds)
	}
	if len(link.syncCall) != 1 || len(link.syncCall[0]) != 1 {
		t.Fatalf("expected one fdb sync call with one peer vtep, got %+v", link.syncCall)
	}
}

// TestAgentPeerSyncReinjectsUnchangedRoutesEveryCycle exercises the
// self-healing invariant: if a route a doPeerSync cycle previously
// installed is dropped out from under the Runtime (e.g. by an operator's
// `ip route del`), the next cycle must re-issue InjectRoute for it even
// though the peer's subnet hasn't changed, rather than skipping it as
// "already known".
func TestAgentPeerSyncReinjectsUnchangedRoutesEveryCycle(t *testing.T) {
	umbrella := netip.MustParsePrefix("10.42.0.0/16")
	svc, err := controller.New(memstore.New(), umbrella, 30*time.Second)
	if err != nil {
		t.Fatalf("controller.New: %v", err)
	}
	controllerSrv := httptest.NewServer(httpapi.NewRouter(svc))
	defer controllerSrv.Close()

	ctx := context.Background()
	control := controlclient.New(controllerSrv.URL, 5*time.Second)
	selfID, selfSubnet, err := control.Register(ctx, "host-a", "10.0.0.1", 1, 1)
	if err != nil {
		t.Fatalf("register self: %v", err)
	}
	_, peerSubnet, err := control.Register(ctx, "host-b", "10.0.0.2", 1, 1)
	if err != nil {
		t.Fatalf("register peer: %v", err)
	}

	kernel := &fakeKernel{}
	rt := runtimed.New(umbrella, kernel)
	rpcSvc := runtimerpc.NewService(rt)
	rpcSrv, err := runtimerpc.Listen("127.0.0.1:0", rpcSvc)
	if err != nil {
		t.Fatalf("runtime rpc listen: %v", err)
	}
	defer rpcSrv.Shutdown()

	link := &fakeLink{}
	a := New(Config{Hostname: "host-a", HostIP: netip.MustParseAddr("10.0.0.1"), Iface: "vxlan100"},
		control, runtimeclient.New(rpcSrv.Addr(), 5*time.Second), link)
	a.nodeID = selfID
	a.subnet = selfSubnet

	a.doPeerSync(ctx, slog.Default())
	if n := countOccurrences(kernel.routeAdds, peerSubnet); n != 1 {
		t.Fatalf("expected one RouteAdd for %s after first cycle, got %d (%+v)", peerSubnet, n, kernel.routeAdds)
	}

	// Simulate kernel-level drift: the route silently disappeared, but
	// the Agent's knownPeers still reflects host-b's subnet as unchanged.
	if ok, errMsg := rt.RemoveRoute(peerSubnet); !ok {
		t.Fatalf("simulate dropped route: ok=%v msg=%s", ok, errMsg)
	}

	a.doPeerSync(ctx, slog.Default())
	if n := countOccurrences(kernel.routeAdds, peerSubnet); n != 2 {
		t.Fatalf("expected route to be reinjected on second cycle despite unchanged subnet, got %d RouteAdd calls (%+v)", n, kernel.routeAdds)
	}
}

func countOccurrences(haystack []string, needle string) int {
	n := 0
	for _, s := range haystack {
		if s == needle {
			n++
		}
	}
	return n
}
