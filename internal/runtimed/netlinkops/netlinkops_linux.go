//go:build linux

package netlinkops

import (
	"errors"
	"fmt"
	"net"

	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"
)

// Linux is the real rtnetlink-backed Ops implementation, grounded on the
// teacher's internal/wireguard/device_linux.go use of vishvananda/netlink
// for link lookup and route mutation (there applied to WireGuard peer
// routes; here to plain overlay-subnet routes).
type Linux struct{}

func New() Linux { return Linux{} }

func (Linux) LinkIndex(iface string) (int, error) {
	link, err := netlink.LinkByName(iface)
	if err != nil {
		var notFound netlink.LinkNotFoundError
		if errors.As(err, &notFound) {
			return 0, ErrInterfaceNotFound
		}
		return 0, fmt.Errorf("link by name %s: %w", iface, err)
	}
	return link.Attrs().Index, nil
}

func (Linux) RouteAdd(destCIDR string, ifaceIndex int) error {
	_, ipnet, err := net.ParseCIDR(destCIDR)
	if err != nil {
		return fmt.Errorf("parse destination %s: %w", destCIDR, err)
	}
	route := &netlink.Route{
		LinkIndex: ifaceIndex,
		Dst:       ipnet,
		Scope:     netlink.SCOPE_LINK,
	}
	if err := netlink.RouteAdd(route); err != nil {
		if errors.Is(err, unix.EEXIST) {
			return ErrRouteExists
		}
		return fmt.Errorf("route add %s: %w", destCIDR, err)
	}
	return nil
}

func (Linux) RouteDel(destCIDR string) error {
	_, ipnet, err := net.ParseCIDR(destCIDR)
	if err != nil {
		return fmt.Errorf("parse destination %s: %w", destCIDR, err)
	}
	route := &netlink.Route{Dst: ipnet}
	if err := netlink.RouteDel(route); err != nil {
		if errors.Is(err, unix.ESRCH) || errors.Is(err, unix.EINVAL) {
			return ErrNoSuchRoute
		}
		return fmt.Errorf("route del %s: %w", destCIDR, err)
	}
	return nil
}
