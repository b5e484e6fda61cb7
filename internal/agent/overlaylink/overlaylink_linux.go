//go:build linux

package overlaylink

import (
	"errors"
	"fmt"
	"net"
	"net/netip"

	"github.com/vishvananda/netlink"
)

var zeroMAC = net.HardwareAddr{0, 0, 0, 0, 0, 0}

type LinuxLink struct{}

func New() LinuxLink { return LinuxLink{} }

// EnsureDevice implements spec.md §4.2's VXLAN bring-up step: idempotent on
// an existing device whose VNI/port already match.
func (LinuxLink) EnsureDevice(cfg Config) error {
	existing, err := netlink.LinkByName(cfg.Iface)
	if err == nil {
		vxlan, ok := existing.(*netlink.Vxlan)
		if !ok {
			return fmt.Errorf("interface %q exists and is not a vxlan device", cfg.Iface)
		}
		if vxlan.VxlanId != cfg.VNI || vxlan.Port != cfg.Port {
			return fmt.Errorf("interface %q exists with vni=%d port=%d, want vni=%d port=%d",
				cfg.Iface, vxlan.VxlanId, vxlan.Port, cfg.VNI, cfg.Port)
		}
		return bringUp(existing)
	}

	var notFound netlink.LinkNotFoundError
	if !errors.As(err, &notFound) {
		return fmt.Errorf("find vxlan interface %q: %w", cfg.Iface, err)
	}

	link := &netlink.Vxlan{
		LinkAttrs: netlink.LinkAttrs{Name: cfg.Iface, MTU: cfg.MTU},
		VxlanId:   cfg.VNI,
		Port:      cfg.Port,
		SrcAddr:   cfg.LocalVTEP.AsSlice(),
		Learning:  false,
	}
	if err := netlink.LinkAdd(link); err != nil {
		return fmt.Errorf("create vxlan interface %q: %w", cfg.Iface, err)
	}
	created, err := netlink.LinkByName(cfg.Iface)
	if err != nil {
		return fmt.Errorf("refetch vxlan interface %q: %w", cfg.Iface, err)
	}
	return bringUp(created)
}

func bringUp(link netlink.Link) error {
	if link.Attrs().Flags&net.FlagUp != 0 {
		return nil
	}
	if err := netlink.LinkSetUp(link); err != nil {
		return fmt.Errorf("set %q up: %w", link.Attrs().Name, err)
	}
	return nil
}

// SyncPeers implements spec.md §4.2/§5's FDB catch-all reconciliation: one
// all-zero-MAC neighbor entry per peer VTEP, added or removed to match the
// desired set exactly.
func (LinuxLink) SyncPeers(iface string, peerVTEPs []netip.Addr) error {
	link, err := netlink.LinkByName(iface)
	if err != nil {
		return fmt.Errorf("find vxlan interface %q: %w", iface, err)
	}

	desired := make(map[string]netip.Addr, len(peerVTEPs))
	for _, v := range peerVTEPs {
		desired[v.String()] = v
	}

	current, err := netlink.NeighList(link.Attrs().Index, netlink.FAMILY_ALL)
	if err != nil {
		return fmt.Errorf("list fdb entries on %q: %w", iface, err)
	}
	present := make(map[string]struct{})
	for _, n := range current {
		if !isFDBCatchAll(n) {
			continue
		}
		addr, ok := netip.AddrFromSlice(n.IP)
		if !ok {
			continue
		}
		present[addr.String()] = struct{}{}
		if _, wanted := desired[addr.String()]; !wanted {
			if err := netlink.NeighDel(&n); err != nil {
				return fmt.Errorf("remove stale fdb entry %s: %w", addr, err)
			}
		}
	}

	for key, addr := range desired {
		if _, ok := present[key]; ok {
			continue
		}
		neigh := &netlink.Neigh{
			LinkIndex:    link.Attrs().Index,
			Family:       netlink.FAMILY_BRIDGE,
			State:        netlink.NUD_PERMANENT,
			Flags:        netlink.NTF_SELF,
			IP:           addr.AsSlice(),
			HardwareAddr: zeroMAC,
		}
		if err := netlink.NeighAppend(neigh); err != nil {
			return fmt.Errorf("add fdb entry for %s: %w", addr, err)
		}
	}
	return nil
}

func isFDBCatchAll(n netlink.Neigh) bool {
	return n.Family == netlink.FAMILY_BRIDGE && net.HardwareAddr(n.HardwareAddr).String() == zeroMAC.String()
}
