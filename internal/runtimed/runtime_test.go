package runtimed

import (
	"net/netip"
	"testing"

	"github.com/ariacomputecompany/quiltc/internal/runtimed/netlinkops"
)

type fakeKernel struct {
	links  map[string]int
	routes map[string]int
	addErr error
	delErr error
}

func newFakeKernel() *fakeKernel {
	return &fakeKernel{links: map[string]int{"vxlan100": 7}, routes: map[string]int{}}
}

func (f *fakeKernel) LinkIndex(iface string) (int, error) {
	idx, ok := f.links[iface]
	if !ok {
		return 0, netlinkops.ErrInterfaceNotFound
	}
	return idx, nil
}

func (f *fakeKernel) RouteAdd(destCIDR string, ifaceIndex int) error {
	if f.addErr != nil {
		return f.addErr
	}
	if _, ok := f.routes[destCIDR]; ok {
		return netlinkops.ErrRouteExists
	}
	f.routes[destCIDR] = ifaceIndex
	return nil
}

func (f *fakeKernel) RouteDel(destCIDR string) error {
	if f.delErr != nil {
		return f.delErr
	}
	if _, ok := f.routes[destCIDR]; !ok {
		return netlinkops.ErrNoSuchRoute
	}
	delete(f.routes, destCIDR)
	return nil
}

func umbrella(t *testing.T) netip.Prefix {
	t.Helper()
	p, err := netip.ParsePrefix("10.42.0.0/16")
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func TestConfigureNodeSubnetValidation(t *testing.T) {
	rt := New(umbrella(t), newFakeKernel())

	if ok, errMsg := rt.ConfigureNodeSubnet("10.42.1.0/16"); ok || errMsg != "must be /24" {
		t.Fatalf("got ok=%v errMsg=%q", ok, errMsg)
	}
	if ok, errMsg := rt.ConfigureNodeSubnet("10.43.1.0/24"); ok || errMsg == "" {
		t.Fatalf("expected outside-umbrella rejection, got ok=%v errMsg=%q", ok, errMsg)
	}
	if ok, _ := rt.ConfigureNodeSubnet("10.42.1.0/24"); !ok {
		t.Fatal("expected valid subnet to be accepted")
	}
	scope, ok := rt.Scope()
	if !ok || scope.String() != "10.42.1.0/24" {
		t.Fatalf("unexpected scope %v ok=%v", scope, ok)
	}
}

func TestInjectRouteIdempotent(t *testing.T) {
	rt := New(umbrella(t), newFakeKernel())

	ok, errMsg := rt.InjectRoute("10.42.2.0/24", "vxlan100")
	if !ok {
		t.Fatalf("first inject failed: %s", errMsg)
	}
	ok, errMsg = rt.InjectRoute("10.42.2.0/24", "vxlan100")
	if !ok {
		t.Fatalf("repeat inject should be idempotent-success, got error: %s", errMsg)
	}
}

func TestInjectRouteConflictingInterfaceRejected(t *testing.T) {
	rt := New(umbrella(t), newFakeKernel())

	if ok, _ := rt.InjectRoute("10.42.2.0/24", "vxlan100"); !ok {
		t.Fatal("first inject should succeed")
	}
	ok, errMsg := rt.InjectRoute("10.42.2.0/24", "vxlan200")
	if ok {
		t.Fatal("expected conflicting via_interface to be rejected")
	}
	if errMsg != "route exists via different interface" {
		t.Fatalf("unexpected error message %q", errMsg)
	}
}

func TestInjectRouteUnknownInterface(t *testing.T) {
	rt := New(umbrella(t), newFakeKernel())

	ok, errMsg := rt.InjectRoute("10.42.2.0/24", "no-such-iface")
	if ok || errMsg == "" {
		t.Fatalf("expected interface-not-found rejection, got ok=%v errMsg=%q", ok, errMsg)
	}
}

func TestRemoveRouteIdempotent(t *testing.T) {
	rt := New(umbrella(t), newFakeKernel())

	if ok, errMsg := rt.RemoveRoute("10.42.9.0/24"); !ok {
		t.Fatalf("removing an absent route should be idempotent-success, got: %s", errMsg)
	}

	if ok, _ := rt.InjectRoute("10.42.9.0/24", "vxlan100"); !ok {
		t.Fatal("inject should succeed")
	}
	if ok, errMsg := rt.RemoveRoute("10.42.9.0/24"); !ok {
		t.Fatalf("remove of existing route failed: %s", errMsg)
	}
	if ok, errMsg := rt.RemoveRoute("10.42.9.0/24"); !ok {
		t.Fatalf("second remove should be idempotent-success, got: %s", errMsg)
	}
}
