// Package runtimed implements the Runtime's privileged operations (spec.md
// §4.3): ConfigureNodeSubnet, InjectRoute, RemoveRoute. The Runtime is the
// sole writer of kernel state under the cluster's umbrella CIDR, so its
// in-memory installed-route map is authoritative for the "differing via
// interface" conflict check — no kernel read-back is needed to resolve it.
//
// Grounded on the teacher's internal/wireguard/device_linux.go route
// bookkeeping, narrowed to the three operations this spec names and driven
// through the netlinkops.Ops boundary instead of talking to netlink
// directly.
package runtimed

import (
	"fmt"
	"net/netip"
	"sync"

	"github.com/ariacomputecompany/quiltc/internal/runtimed/netlinkops"
)

// Runtime holds the node's configured subnet and the routes it has
// installed on behalf of the Agent. All exported methods are safe for
// concurrent use and are idempotent per spec.md §4.3.
type Runtime struct {
	umbrella netip.Prefix

	mu        sync.Mutex
	scope     *netip.Prefix
	installed map[string]string // destination CIDR -> via_interface

	kernel netlinkops.Ops
}

func New(umbrella netip.Prefix, kernel netlinkops.Ops) *Runtime {
	return &Runtime{
		umbrella:  umbrella,
		installed: make(map[string]string),
		kernel:    kernel,
	}
}

// ConfigureNodeSubnet implements spec.md §4.3's ConfigureNodeSubnet: records
// the node's own /24 after validating it is a /24 contained in the
// cluster's umbrella CIDR (invariant I2).
func (rt *Runtime) ConfigureNodeSubnet(subnetCIDR string) (success bool, errMsg string) {
	prefix, err := netip.ParsePrefix(subnetCIDR)
	if err != nil {
		return false, fmt.Sprintf("%q is not a valid CIDR", subnetCIDR)
	}
	if prefix.Bits() != 24 {
		return false, "must be /24"
	}
	if !containsPrefix(rt.umbrella, prefix) {
		return false, fmt.Sprintf("outside umbrella %s", rt.umbrella)
	}

	prefix = prefix.Masked()
	rt.mu.Lock()
	rt.scope = &prefix
	rt.mu.Unlock()
	return true, ""
}

// InjectRoute implements spec.md §4.3's InjectRoute: installs a route to a
// peer's subnet via the named overlay interface. Idempotent against both
// the kernel (an existing identical route is a success) and a prior call
// recorded in the installed map (a conflicting via_interface is rejected
// without touching the kernel).
func (rt *Runtime) InjectRoute(destination, viaInterface string) (success bool, errMsg string) {
	if _, err := netip.ParsePrefix(destination); err != nil {
		return false, fmt.Sprintf("%q is not a valid CIDR", destination)
	}
	if viaInterface == "" {
		return false, "via_interface is required"
	}

	rt.mu.Lock()
	defer rt.mu.Unlock()

	if existing, ok := rt.installed[destination]; ok && existing != viaInterface {
		return false, "route exists via different interface"
	}

	idx, err := rt.kernel.LinkIndex(viaInterface)
	if err != nil {
		if err == netlinkops.ErrInterfaceNotFound {
			return false, fmt.Sprintf("interface %q not found", viaInterface)
		}
		return false, err.Error()
	}

	if err := rt.kernel.RouteAdd(destination, idx); err != nil && err != netlinkops.ErrRouteExists {
		return false, err.Error()
	}

	rt.installed[destination] = viaInterface
	return true, ""
}

// RemoveRoute implements spec.md §4.3's RemoveRoute: idempotent against an
// already-absent route.
func (rt *Runtime) RemoveRoute(destination string) (success bool, errMsg string) {
	if _, err := netip.ParsePrefix(destination); err != nil {
		return false, fmt.Sprintf("%q is not a valid CIDR", destination)
	}

	rt.mu.Lock()
	defer rt.mu.Unlock()

	if err := rt.kernel.RouteDel(destination); err != nil && err != netlinkops.ErrNoSuchRoute {
		return false, err.Error()
	}
	delete(rt.installed, destination)
	return true, ""
}

// Scope reports the node's currently configured subnet, if any.
func (rt *Runtime) Scope() (netip.Prefix, bool) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.scope == nil {
		return netip.Prefix{}, false
	}
	return *rt.scope, true
}

func containsPrefix(outer, inner netip.Prefix) bool {
	if outer.Bits() > inner.Masked().Bits() {
		return false
	}
	return outer.Contains(inner.Masked().Addr())
}
