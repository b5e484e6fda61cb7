// Package netlinkops is the Runtime's kernel-mutation boundary (spec.md
// §4.3 platform note): Linux-only rtnetlink route/interface operations,
// with a logging stub for non-Linux development builds. Grounded on the
// teacher's internal/wireguard/device_linux.go netlink usage, narrowed from
// WireGuard link/peer/address management to plain route add/remove and
// interface lookup.
package netlinkops

import "errors"

// Sentinel errors the Runtime service treats as idempotent-success per
// spec.md §4.3, or as a NotFound condition.
var (
	ErrInterfaceNotFound = errors.New("interface not found")
	ErrRouteExists       = errors.New("route already exists")
	ErrNoSuchRoute       = errors.New("no such route")
)

// Ops is the Runtime's kernel-mutation boundary. The Linux build satisfies
// it with real rtnetlink calls; non-Linux builds get a stub that logs and
// simulates success so the Runtime can be developed off-target.
type Ops interface {
	// LinkIndex resolves an interface name to its kernel index, or
	// ErrInterfaceNotFound.
	LinkIndex(iface string) (int, error)
	// RouteAdd installs `destCIDR dev <ifaceIndex> scope link` with no
	// gateway. Returns ErrRouteExists if the kernel reports a conflict.
	RouteAdd(destCIDR string, ifaceIndex int) error
	// RouteDel removes the route for destCIDR. Returns ErrNoSuchRoute if
	// the kernel has no matching route.
	RouteDel(destCIDR string) error
}
