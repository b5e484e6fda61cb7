// Package overlaylink manages the Agent's VXLAN overlay device and the
// all-zero-MAC FDB catch-all entries that route overlay traffic to peers
// (spec.md §4.2, §5): one vxlan100 device per host, one FDB entry per live
// peer pointing at that peer's VTEP (host_ip).
//
// Grounded on the teacher's internal/wireguard/device_linux.go: the
// create-if-missing / bring-up-if-down idempotency shape is the same one
// used there for the WireGuard device, applied here to a VXLAN device plus
// FDB neighbor entries instead of WireGuard peers. The MTU is set only when
// the device is created; an existing device keeps its MTU.
package overlaylink

import "net/netip"

// Config describes the overlay device this host should have.
type Config struct {
	Iface     string
	VNI       int
	Port      int
	LocalVTEP netip.Addr
	MTU       int
}

// Link is the platform boundary for VXLAN/FDB mutation. The Linux build
// satisfies it with vishvananda/netlink; non-Linux builds get a logging
// stub.
type Link interface {
	// EnsureDevice creates vxlan100 if absent, or validates an existing
	// device matches cfg.VNI/cfg.Port, and brings it up.
	EnsureDevice(cfg Config) error
	// SyncPeers reconciles the FDB catch-all (00:00:00:00:00:00) neighbor
	// entries to exactly the given set of peer VTEP addresses.
	SyncPeers(iface string, peerVTEPs []netip.Addr) error
}
